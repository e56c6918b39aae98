package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/offline-shell/pkg/clients"
	"github.com/Sternrassler/offline-shell/pkg/config"
)

var (
	pushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_shell_push_total",
		Help: "Total push events by notification type and final state",
	}, []string{"type", "state"})

	parseFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offline_shell_push_parse_fallbacks_total",
		Help: "Total push payloads shown as plain text",
	})

	clicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_shell_notification_clicks_total",
		Help: "Total notification clicks by outcome",
	}, []string{"outcome"})
)

// PushState tracks one push event.
type PushState string

const (
	PushReceived  PushState = "received"
	PushParsed    PushState = "parsed"
	PushDisplayed PushState = "displayed"
)

// Push is the record of one handled push event.
type Push struct {
	State      PushState      `json:"state"`
	Descriptor Descriptor     `json:"descriptor"`
	Options    DisplayOptions `json:"options"`
}

// Dispatcher handles push and notificationclick events.
type Dispatcher struct {
	notifier Notifier
	host     clients.Host
	defaults config.Notifications
	match    string
	sosURL   string
	logger   zerolog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(notifier Notifier, host clients.Host, cfg config.Config) *Dispatcher {
	if notifier == nil || host == nil {
		panic("notify: notifier and host are required")
	}
	return &Dispatcher{
		notifier: notifier,
		host:     host,
		defaults: cfg.Notifications,
		match:    cfg.ClientMatch,
		sosURL:   cfg.SOSURL,
		logger:   log.With().Str("component", "notify").Logger(),
	}
}

// HandlePush parses data and shows the notification. The returned Push
// reports how far the event got; it is Displayed only when err is nil.
func (d *Dispatcher) HandlePush(ctx context.Context, data []byte) (Push, error) {
	p := Push{State: PushReceived}

	p.Descriptor = Parse(data, d.defaults)
	p.Options = BuildOptions(p.Descriptor, d.defaults)
	p.State = PushParsed

	if err := d.notifier.Show(ctx, p.Options); err != nil {
		pushesTotal.WithLabelValues(p.Options.Data.Type, string(p.State)).Inc()
		return p, fmt.Errorf("show notification: %w", err)
	}
	p.State = PushDisplayed
	pushesTotal.WithLabelValues(p.Options.Data.Type, string(p.State)).Inc()

	d.logger.Debug().
		Str("type", p.Options.Data.Type).
		Str("tag", p.Options.Tag).
		Msg("Push displayed")
	return p, nil
}

// HandleClick routes a click on action and carries out the outcome.
// A broadcast skips windows that closed in the meantime.
func (d *Dispatcher) HandleClick(ctx context.Context, action string, data ClickData) (Outcome, error) {
	windows, err := d.host.MatchAll(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("match clients: %w", err)
	}

	out := RouteClick(action, data, windows, d.match, d.sosURL)
	clicksTotal.WithLabelValues(out.Kind.String()).Inc()

	switch out.Kind {
	case OutcomeFocus:
		err = d.host.Focus(ctx, out.ClientID)
	case OutcomeOpenWindow:
		err = d.host.OpenWindow(ctx, out.URL)
	case OutcomeBroadcast:
		for _, id := range out.Targets {
			perr := d.host.PostMessage(ctx, id, out.Message)
			if errors.Is(perr, clients.ErrUnknownClient) {
				d.logger.Debug().Str("client", id).Msg("Client gone before broadcast")
				continue
			}
			if perr != nil {
				err = errors.Join(err, perr)
			}
		}
	}
	if err != nil {
		return out, fmt.Errorf("%s: %w", out.Kind, err)
	}

	d.logger.Info().
		Str("action", action).
		Str("outcome", out.Kind.String()).
		Msg("Notification click handled")
	return out, nil
}
