package notify

import (
	"strings"

	"github.com/Sternrassler/offline-shell/pkg/clients"
)

// Notification actions.
const (
	ActionView    = "view"
	ActionRespond = "respond"
	ActionOpen    = "open"
	ActionHelp    = "help"
	ActionDismiss = "dismiss"
)

// MessageTriggerSOS is broadcast to every window on the help action.
const MessageTriggerSOS = "TRIGGER_SOS"

// OutcomeKind says what a click leads to.
type OutcomeKind int

const (
	OutcomeNone OutcomeKind = iota
	OutcomeFocus
	OutcomeOpenWindow
	OutcomeBroadcast
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeFocus:
		return "focus"
	case OutcomeOpenWindow:
		return "open_window"
	case OutcomeBroadcast:
		return "broadcast"
	default:
		return "none"
	}
}

func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Outcome is the result of routing a click.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`

	// ClientID is set for OutcomeFocus.
	ClientID string `json:"client_id,omitempty"`

	// URL is set for OutcomeOpenWindow.
	URL string `json:"url,omitempty"`

	// Targets and Message are set for OutcomeBroadcast.
	Targets []string        `json:"targets,omitempty"`
	Message clients.Message `json:"message,omitempty"`
}

// RouteClick decides what a click on action does, given the open windows.
//
// view, respond, open and the notification body focus the first focusable
// window whose URL contains match, or open data.URL. help broadcasts
// TRIGGER_SOS to all windows, or opens sosURL when there are none.
// Any other action does nothing.
func RouteClick(action string, data ClickData, windows []clients.Descriptor, match, sosURL string) Outcome {
	switch action {
	case ActionView, ActionRespond, ActionOpen, "":
		for _, w := range windows {
			if w.Focusable && strings.Contains(w.URL, match) {
				return Outcome{Kind: OutcomeFocus, ClientID: w.ID}
			}
		}
		return Outcome{Kind: OutcomeOpenWindow, URL: firstNonEmpty(data.URL, "/")}

	case ActionHelp:
		if len(windows) == 0 {
			return Outcome{Kind: OutcomeOpenWindow, URL: sosURL}
		}
		targets := make([]string, len(windows))
		for i, w := range windows {
			targets[i] = w.ID
		}
		return Outcome{
			Kind:    OutcomeBroadcast,
			Targets: targets,
			Message: clients.Message{Type: MessageTriggerSOS},
		}

	default:
		return Outcome{Kind: OutcomeNone}
	}
}
