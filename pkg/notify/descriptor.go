// Package notify turns push payloads into notification display options and
// routes notification clicks to client windows.
//
// Handling a push moves through Received, Parsed and Displayed. Parsing never
// fails: a payload that is not a JSON object is shown as plain text with the
// default title and icon.
package notify

import (
	"encoding/json"
	"strings"

	"github.com/Sternrassler/offline-shell/pkg/config"
)

// Notification types.
const (
	TypeAlert     = "alert"
	TypeEmergency = "emergency"
)

// Action is a button shown on a notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// Descriptor is a parsed push payload.
type Descriptor struct {
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	Icon    string   `json:"icon"`
	Tag     string   `json:"tag"`
	Urgent  bool     `json:"urgent"`
	Actions []Action `json:"actions"`
	Type    string   `json:"type"`
	URL     string   `json:"url"`
}

// Parse decodes a push payload. When data is not a JSON object the whole
// payload becomes the body and title and icon take their defaults.
// An empty payload yields an empty Descriptor.
//
// Fields of the object are decoded one by one. A field of the wrong type is
// dropped, except urgent, which is true for any truthy JSON value.
func Parse(data []byte, defaults config.Notifications) Descriptor {
	if len(strings.TrimSpace(string(data))) == 0 {
		return Descriptor{}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		parseFallbacks.Inc()
		return Descriptor{
			Title: defaults.Title,
			Body:  string(data),
			Icon:  defaults.Icon,
		}
	}

	return Descriptor{
		Title:   stringField(fields, "title"),
		Body:    stringField(fields, "body"),
		Icon:    stringField(fields, "icon"),
		Tag:     stringField(fields, "tag"),
		Urgent:  truthy(fields["urgent"]),
		Actions: actionsField(fields["actions"]),
		Type:    stringField(fields, "type"),
		URL:     stringField(fields, "url"),
	}
}

func stringField(fields map[string]json.RawMessage, name string) string {
	var s string
	if raw, ok := fields[name]; ok {
		json.Unmarshal(raw, &s)
	}
	return s
}

// truthy follows JavaScript truthiness: false, null, 0 and "" are false,
// every other value is true.
func truthy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}

// actionsField decodes an actions array. It returns nil when raw is not an
// array; elements that are not objects are skipped and mistyped members
// are left empty.
func actionsField(raw json.RawMessage) []Action {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil || items == nil {
		return nil
	}
	actions := make([]Action, 0, len(items))
	for _, item := range items {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
			continue
		}
		actions = append(actions, Action{
			Action: stringField(fields, "action"),
			Title:  stringField(fields, "title"),
			Icon:   stringField(fields, "icon"),
		})
	}
	return actions
}
