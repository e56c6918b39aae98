package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Sternrassler/offline-shell/pkg/notify"
)

// EventKind names a platform event.
type EventKind string

const (
	EventInstall           EventKind = "install"
	EventActivate          EventKind = "activate"
	EventFetch             EventKind = "fetch"
	EventPush              EventKind = "push"
	EventNotificationClick EventKind = "notificationclick"
	EventSync              EventKind = "sync"
	EventMessage           EventKind = "message"
)

// Message types accepted from clients.
const (
	MessageSkipWaiting = "SKIP_WAITING"
	MessageCacheURLs   = "CACHE_URLS"
)

// Event is one platform event delivered to the worker.
type Event struct {
	Kind EventKind

	// Request is the intercepted request of a fetch event.
	Request *http.Request

	// Data is the push payload or the client message.
	Data []byte

	// Action and Click describe a notificationclick event.
	Action string
	Click  notify.ClickData

	// Tag is the sync tag.
	Tag string
}

// Result is what handling an event produced.
type Result struct {
	State State `json:"state"`

	// Response answers a fetch event. It is nil when the request is not
	// intercepted.
	Response *http.Response `json:"-"`

	Evicted []string        `json:"evicted,omitempty"`
	Push    *notify.Push    `json:"push,omitempty"`
	Outcome *notify.Outcome `json:"outcome,omitempty"`
	Cached  int             `json:"cached,omitempty"`
}

// Handler handles one kind of event.
type Handler func(ctx context.Context, w *Worker, ev Event) (Result, error)

// defaultHandlers returns the dispatch table.
func defaultHandlers() map[EventKind]Handler {
	return map[EventKind]Handler{
		EventInstall:           handleInstall,
		EventActivate:          handleActivate,
		EventFetch:             handleFetch,
		EventPush:              handlePush,
		EventNotificationClick: handleNotificationClick,
		EventSync:              handleSync,
		EventMessage:           handleMessage,
	}
}

// ClientMessage is a message posted by a client window.
type ClientMessage struct {
	Type string   `json:"type"`
	URLs []string `json:"urls,omitempty"`
}

func handleInstall(ctx context.Context, w *Worker, ev Event) (Result, error) {
	if err := w.install(ctx); err != nil {
		return Result{State: w.lifecycle.State()}, err
	}
	if w.skipWaiting.Load() {
		return w.activateWaiting(ctx)
	}
	return Result{State: w.lifecycle.State()}, nil
}

func handleActivate(ctx context.Context, w *Worker, ev Event) (Result, error) {
	return w.activate(ctx)
}

func handleFetch(ctx context.Context, w *Worker, ev Event) (Result, error) {
	if ev.Request == nil {
		return Result{}, fmt.Errorf("fetch event without request")
	}
	return Result{State: w.lifecycle.State(), Response: w.intercept(ev.Request)}, nil
}

func handlePush(ctx context.Context, w *Worker, ev Event) (Result, error) {
	p, err := w.dispatcher.HandlePush(ctx, ev.Data)
	return Result{State: w.lifecycle.State(), Push: &p}, err
}

func handleNotificationClick(ctx context.Context, w *Worker, ev Event) (Result, error) {
	out, err := w.dispatcher.HandleClick(ctx, ev.Action, ev.Click)
	return Result{State: w.lifecycle.State(), Outcome: &out}, err
}

func handleSync(ctx context.Context, w *Worker, ev Event) (Result, error) {
	return Result{State: w.lifecycle.State()}, w.drainer.HandleSync(ctx, ev.Tag)
}

func handleMessage(ctx context.Context, w *Worker, ev Event) (Result, error) {
	var msg ClientMessage
	if err := json.Unmarshal(ev.Data, &msg); err != nil {
		return Result{State: w.lifecycle.State()}, fmt.Errorf("decode message: %w", err)
	}

	switch msg.Type {
	case MessageSkipWaiting:
		w.skipWaiting.Store(true)
		if w.lifecycle.State() == StateInstalled {
			return w.activateWaiting(ctx)
		}
		return Result{State: w.lifecycle.State()}, nil

	case MessageCacheURLs:
		n, err := w.cacheURLs(ctx, msg.URLs)
		return Result{State: w.lifecycle.State(), Cached: n}, err

	default:
		w.logger.Debug().Str("type", msg.Type).Msg("Ignoring client message")
		return Result{State: w.lifecycle.State()}, nil
	}
}
