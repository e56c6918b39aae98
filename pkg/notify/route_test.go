package notify

import (
	"reflect"
	"testing"

	"github.com/Sternrassler/offline-shell/pkg/clients"
)

func TestRouteClick(t *testing.T) {
	windows := []clients.Descriptor{
		{ID: "a", URL: "http://localhost:8080/other", Focusable: true},
		{ID: "b", URL: "http://localhost:8080/safealert/map", Focusable: false},
		{ID: "c", URL: "http://localhost:8080/safealert", Focusable: true},
		{ID: "d", URL: "http://localhost:8080/safealert/feed", Focusable: true},
	}
	data := ClickData{URL: "/alerts/1", Type: TypeAlert}

	tests := []struct {
		name    string
		action  string
		data    ClickData
		windows []clients.Descriptor
		want    Outcome
	}{
		{
			name:    "view focuses first focusable match",
			action:  ActionView,
			data:    data,
			windows: windows,
			want:    Outcome{Kind: OutcomeFocus, ClientID: "c"},
		},
		{
			name:    "respond focuses",
			action:  ActionRespond,
			data:    data,
			windows: windows,
			want:    Outcome{Kind: OutcomeFocus, ClientID: "c"},
		},
		{
			name:    "body click focuses",
			action:  "",
			data:    data,
			windows: windows,
			want:    Outcome{Kind: OutcomeFocus, ClientID: "c"},
		},
		{
			name:    "view opens target when nothing matches",
			action:  ActionView,
			data:    data,
			windows: windows[:2],
			want:    Outcome{Kind: OutcomeOpenWindow, URL: "/alerts/1"},
		},
		{
			name:    "open without url opens root",
			action:  ActionOpen,
			windows: nil,
			want:    Outcome{Kind: OutcomeOpenWindow, URL: "/"},
		},
		{
			name:    "help broadcasts to every window",
			action:  ActionHelp,
			data:    data,
			windows: windows,
			want: Outcome{
				Kind:    OutcomeBroadcast,
				Targets: []string{"a", "b", "c", "d"},
				Message: clients.Message{Type: MessageTriggerSOS},
			},
		},
		{
			name:    "help without windows opens sos",
			action:  ActionHelp,
			data:    data,
			windows: nil,
			want:    Outcome{Kind: OutcomeOpenWindow, URL: "/?action=sos"},
		},
		{
			name:    "dismiss does nothing",
			action:  ActionDismiss,
			data:    data,
			windows: windows,
			want:    Outcome{Kind: OutcomeNone},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RouteClick(tt.action, tt.data, tt.windows, "safealert", "/?action=sos")
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("RouteClick() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestOutcomeKind_String(t *testing.T) {
	tests := map[OutcomeKind]string{
		OutcomeNone:       "none",
		OutcomeFocus:      "focus",
		OutcomeOpenWindow: "open_window",
		OutcomeBroadcast:  "broadcast",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
