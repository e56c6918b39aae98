// Package clients is the boundary to the open client windows of the web
// application. A Host lists the windows and carries out the commands the
// worker issues to them: focus, open a new window, post a message, claim.
package clients

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUnknownClient indicates a client id that is not registered.
var ErrUnknownClient = errors.New("unknown client")

// Descriptor describes one open client window.
type Descriptor struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Focusable bool   `json:"focusable"`
	Focused   bool   `json:"focused,omitempty"`

	// Controlled is set once the current worker has claimed the client.
	Controlled bool `json:"controlled,omitempty"`
}

// Message is posted to client windows.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Command operations.
const (
	OpFocus       = "focus"
	OpOpenWindow  = "open_window"
	OpPostMessage = "post_message"
	OpClaim       = "claim"
)

// Command is an instruction for the client-facing gateway.
type Command struct {
	Op       string   `json:"op"`
	ClientID string   `json:"client_id,omitempty"`
	URL      string   `json:"url,omitempty"`
	Message  *Message `json:"message,omitempty"`
}

// Host is the client-window registry.
type Host interface {
	// Register adds or replaces a client.
	Register(ctx context.Context, d Descriptor) error

	// Unregister removes a client. Removing an unknown client is not an error.
	Unregister(ctx context.Context, id string) error

	// MatchAll returns all open windows ordered by id.
	MatchAll(ctx context.Context) ([]Descriptor, error)

	// Focus brings the client to the front.
	Focus(ctx context.Context, id string) error

	// OpenWindow opens a new window at url.
	OpenWindow(ctx context.Context, url string) error

	// PostMessage delivers msg to the client.
	PostMessage(ctx context.Context, id string, msg Message) error

	// Claim makes the current worker the controller of every client.
	Claim(ctx context.Context) error
}
