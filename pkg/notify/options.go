package notify

import "github.com/Sternrassler/offline-shell/pkg/config"

var (
	defaultVibrate   = []int{200, 100, 200, 100, 200}
	emergencyVibrate = []int{500, 200, 500, 200, 500}
)

// ClickData travels with a notification and comes back on click.
type ClickData struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// DisplayOptions is what a Notifier shows.
type DisplayOptions struct {
	Title              string    `json:"title"`
	Body               string    `json:"body"`
	Icon               string    `json:"icon"`
	Badge              string    `json:"badge"`
	Tag                string    `json:"tag"`
	Vibrate            []int     `json:"vibrate"`
	Renotify           bool      `json:"renotify"`
	RequireInteraction bool      `json:"requireInteraction"`
	Actions            []Action  `json:"actions"`
	Data               ClickData `json:"data"`
}

// DefaultActions are shown when a payload brings none.
func DefaultActions() []Action {
	return []Action{
		{Action: ActionView, Title: "View"},
		{Action: ActionDismiss, Title: "Dismiss"},
	}
}

// EmergencyActions replace any payload actions on emergency notifications.
func EmergencyActions() []Action {
	return []Action{
		{Action: ActionRespond, Title: "🚨 I'm Safe"},
		{Action: ActionHelp, Title: "🆘 Need Help"},
	}
}

// BuildOptions derives display options from d, filling gaps from defaults.
func BuildOptions(d Descriptor, defaults config.Notifications) DisplayOptions {
	opts := DisplayOptions{
		Title:              firstNonEmpty(d.Title, defaults.Title),
		Body:               firstNonEmpty(d.Body, defaults.Body),
		Icon:               firstNonEmpty(d.Icon, defaults.Icon),
		Badge:              defaults.Badge,
		Tag:                firstNonEmpty(d.Tag, defaults.Tag),
		Vibrate:            append([]int(nil), defaultVibrate...),
		Renotify:           true,
		RequireInteraction: d.Urgent,
		Actions:            d.Actions,
		Data: ClickData{
			URL:  firstNonEmpty(d.URL, "/"),
			Type: firstNonEmpty(d.Type, TypeAlert),
		},
	}
	// an explicit empty list is kept
	if opts.Actions == nil {
		opts.Actions = DefaultActions()
	}

	if d.Type == TypeEmergency {
		opts.Vibrate = append([]int(nil), emergencyVibrate...)
		opts.RequireInteraction = true
		opts.Actions = EmergencyActions()
	}
	return opts
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
