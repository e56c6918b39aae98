package clients

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryHost is an in-process Host. Issued commands are recorded and can
// be read back with Commands.
type MemoryHost struct {
	mu       sync.Mutex
	clients  map[string]Descriptor
	commands []Command
}

// NewMemoryHost creates an empty MemoryHost.
func NewMemoryHost() *MemoryHost {
	return &MemoryHost{clients: make(map[string]Descriptor)}
}

func (h *MemoryHost) Register(ctx context.Context, d Descriptor) error {
	if d.ID == "" {
		return fmt.Errorf("client id is required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[d.ID] = d
	return nil
}

func (h *MemoryHost) Unregister(ctx context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
	return nil
}

func (h *MemoryHost) MatchAll(ctx context.Context) ([]Descriptor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Descriptor, 0, len(h.clients))
	for _, d := range h.clients {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (h *MemoryHost) Focus(ctx context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClient, id)
	}
	for cid, d := range h.clients {
		d.Focused = cid == id
		h.clients[cid] = d
	}
	h.commands = append(h.commands, Command{Op: OpFocus, ClientID: id})
	return nil
}

func (h *MemoryHost) OpenWindow(ctx context.Context, url string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = append(h.commands, Command{Op: OpOpenWindow, URL: url})
	return nil
}

func (h *MemoryHost) PostMessage(ctx context.Context, id string, msg Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClient, id)
	}
	m := msg
	h.commands = append(h.commands, Command{Op: OpPostMessage, ClientID: id, Message: &m})
	return nil
}

func (h *MemoryHost) Claim(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, d := range h.clients {
		d.Controlled = true
		h.clients[id] = d
	}
	h.commands = append(h.commands, Command{Op: OpClaim})
	return nil
}

// Commands returns a copy of every command issued so far.
func (h *MemoryHost) Commands() []Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Command, len(h.commands))
	copy(out, h.commands)
	return out
}
