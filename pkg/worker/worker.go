// Package worker is the runtime hosting the offline shell: it owns the
// lifecycle of the current cache generation, dispatches platform events to
// their handlers and intercepts HTTP requests from the web client.
//
// Until the generation is activated no request is intercepted; everything
// is proxied to the upstream untouched.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/offline-shell/pkg/cache"
	"github.com/Sternrassler/offline-shell/pkg/classify"
	"github.com/Sternrassler/offline-shell/pkg/clients"
	"github.com/Sternrassler/offline-shell/pkg/config"
	"github.com/Sternrassler/offline-shell/pkg/connectivity"
	"github.com/Sternrassler/offline-shell/pkg/drain"
	"github.com/Sternrassler/offline-shell/pkg/network"
	"github.com/Sternrassler/offline-shell/pkg/notify"
	"github.com/Sternrassler/offline-shell/pkg/strategy"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_shell_events_total",
		Help: "Total handled events by kind and result",
	}, []string{"kind", "result"})

	eventDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "offline_shell_event_duration_seconds",
		Help:    "Event handling duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	lifecycleState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "offline_shell_lifecycle_state",
		Help: "Current lifecycle state (1 for the active state)",
	}, []string{"state"})
)

var (
	// ErrUnknownEvent indicates an event kind without a handler.
	ErrUnknownEvent = errors.New("unknown event kind")

	// ErrClosed indicates the worker no longer accepts background work.
	ErrClosed = errors.New("worker closed")
)

// Deps are the collaborators of a Worker. Monitor is optional.
type Deps struct {
	Manager    *cache.Manager
	Network    *network.Client
	Dispatcher *notify.Dispatcher
	Drainer    *drain.Drainer
	Clients    clients.Host
	Monitor    *connectivity.Monitor
}

// Worker hosts one cache generation.
type Worker struct {
	cfg        config.Config
	appOrigin  *url.URL
	shellURLs  []string
	manager    *cache.Manager
	network    *network.Client
	classifier *classify.Classifier
	engine     *strategy.Engine
	dispatcher *notify.Dispatcher
	drainer    *drain.Drainer
	clients    clients.Host
	monitor    *connectivity.Monitor
	proxy      *httputil.ReverseProxy

	handlers    map[EventKind]Handler
	lifecycle   *Lifecycle
	skipWaiting atomic.Bool

	// background work registered with WaitUntil
	baseCtx context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup

	logger zerolog.Logger
}

// New creates a worker for a validated configuration.
func New(cfg config.Config, deps Deps) (*Worker, error) {
	switch {
	case deps.Manager == nil:
		return nil, fmt.Errorf("worker: cache manager is required")
	case deps.Network == nil:
		return nil, fmt.Errorf("worker: network client is required")
	case deps.Dispatcher == nil:
		return nil, fmt.Errorf("worker: notification dispatcher is required")
	case deps.Drainer == nil:
		return nil, fmt.Errorf("worker: drainer is required")
	case deps.Clients == nil:
		return nil, fmt.Errorf("worker: client host is required")
	}

	appOrigin, err := url.Parse(cfg.AppOrigin)
	if err != nil {
		return nil, fmt.Errorf("app origin: %w", err)
	}

	shellURLs := make([]string, len(cfg.Shell))
	for i, p := range cfg.Shell {
		if shellURLs[i], err = cfg.ResolveURL(p); err != nil {
			return nil, fmt.Errorf("shell[%d]: %w", i, err)
		}
	}

	var offlineURLs []string
	for _, p := range []string{cfg.OfflineURL, "/"} {
		u, err := cfg.ResolveURL(p)
		if err != nil {
			return nil, fmt.Errorf("offline url: %w", err)
		}
		offlineURLs = append(offlineURLs, u)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		cfg:        cfg,
		appOrigin:  appOrigin,
		shellURLs:  shellURLs,
		manager:    deps.Manager,
		network:    deps.Network,
		classifier: classify.New(cfg),
		engine:     strategy.New(deps.Manager, deps.Network, offlineURLs),
		dispatcher: deps.Dispatcher,
		drainer:    deps.Drainer,
		clients:    deps.Clients,
		monitor:    deps.Monitor,
		handlers:   defaultHandlers(),
		lifecycle:  NewLifecycle(),
		baseCtx:    ctx,
		cancel:     cancel,
		logger:     log.With().Str("component", "worker").Logger(),
	}
	w.skipWaiting.Store(cfg.SkipWaiting)
	w.proxy = &httputil.ReverseProxy{
		Rewrite:      w.rewrite,
		ErrorHandler: w.proxyError,
	}

	if w.monitor != nil {
		w.monitor.OnRestore(func() {
			w.logger.Info().Msg("Connectivity restored - syncing reports")
			w.WaitUntil(Event{Kind: EventSync, Tag: drain.TagReports})
		})
	}
	return w, nil
}

// State returns the lifecycle state.
func (w *Worker) State() State {
	return w.lifecycle.State()
}

// Dispatch handles ev with the handler registered for its kind.
func (w *Worker) Dispatch(ctx context.Context, ev Event) (Result, error) {
	h, ok := w.handlers[ev.Kind]
	if !ok {
		eventsTotal.WithLabelValues(string(ev.Kind), "unknown").Inc()
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Kind)
	}

	start := time.Now()
	res, err := h(ctx, w, ev)
	eventDuration.WithLabelValues(string(ev.Kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		eventsTotal.WithLabelValues(string(ev.Kind), "error").Inc()
		w.logger.Warn().Err(err).Str("event", string(ev.Kind)).Msg("Event failed")
		return res, err
	}
	eventsTotal.WithLabelValues(string(ev.Kind), "success").Inc()
	return res, nil
}

// WaitUntil handles ev in the background. Close waits for it to finish.
// It returns ErrClosed once Close has been called.
func (w *Worker) WaitUntil(ev Event) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.pending.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.pending.Done()
		w.Dispatch(w.baseCtx, ev)
	}()
	return nil
}

// Close stops accepting background work and waits for pending work until
// ctx is done, at which point pending work is cancelled.
func (w *Worker) Close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.cancel()
		return nil
	case <-ctx.Done():
		w.cancel()
		<-done
		return ctx.Err()
	}
}

func (w *Worker) install(ctx context.Context) error {
	if _, err := w.lifecycle.Transition(StateInstalling); err != nil {
		return err
	}
	if err := w.manager.InstallShell(ctx, w.manager.Generation().ShellStore(), w.shellURLs); err != nil {
		w.lifecycle.Transition(StateRedundant)
		return err
	}
	w.lifecycle.Transition(StateInstalled)
	w.logger.Info().Str("version", w.manager.Generation().VersionTag).Msg("Generation installed")
	return nil
}

func (w *Worker) activate(ctx context.Context) (Result, error) {
	if _, err := w.lifecycle.Transition(StateActivating); err != nil {
		return Result{State: w.lifecycle.State()}, err
	}

	evicted, err := w.manager.Activate(ctx, w.clients)
	if err != nil {
		w.lifecycle.Transition(StateInstalled)
		return Result{State: StateInstalled, Evicted: evicted}, fmt.Errorf("activate: %w", err)
	}
	w.lifecycle.Transition(StateActivated)

	w.logger.Info().
		Str("version", w.manager.Generation().VersionTag).
		Strs("evicted", evicted).
		Msg("Generation activated")
	return Result{State: StateActivated, Evicted: evicted}, nil
}

// activateWaiting activates an installed generation. Losing a race with
// another activation is not an error.
func (w *Worker) activateWaiting(ctx context.Context) (Result, error) {
	res, err := w.activate(ctx)
	if errors.Is(err, ErrInvalidTransition) {
		return Result{State: w.lifecycle.State()}, nil
	}
	return res, err
}

func (w *Worker) cacheURLs(ctx context.Context, refs []string) (int, error) {
	if len(refs) == 0 {
		return 0, nil
	}
	urls := make([]string, len(refs))
	for i, ref := range refs {
		u, err := w.cfg.ResolveURL(ref)
		if err != nil {
			return 0, fmt.Errorf("url %q: %w", ref, err)
		}
		urls[i] = u
	}
	if err := w.manager.AddAll(ctx, w.manager.Generation().RuntimeStore(), urls); err != nil {
		return 0, fmt.Errorf("cache urls: %w", err)
	}
	return len(urls), nil
}

// absoluteURL returns the URL r addresses. Origin-form requests address
// the application origin.
func (w *Worker) absoluteURL(r *http.Request) *url.URL {
	u := *r.URL
	if !u.IsAbs() {
		u.Scheme = w.appOrigin.Scheme
		u.Host = w.appOrigin.Host
	}
	return &u
}

// intercept answers r through the strategy engine. It returns nil when r
// is not intercepted.
func (w *Worker) intercept(r *http.Request) *http.Response {
	if w.lifecycle.State() != StateActivated {
		return nil
	}
	u := w.absoluteURL(r)
	req := classify.FromHTTP(r, u)
	class := w.classifier.Classify(req)
	return w.engine.Handle(r, req, class)
}

// ServeHTTP handles requests from the web client.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	res, err := w.Dispatch(r.Context(), Event{Kind: EventFetch, Request: r})
	if err != nil {
		http.Error(rw, "internal error", http.StatusInternalServerError)
		return
	}
	if res.Response == nil {
		w.proxy.ServeHTTP(rw, r)
		return
	}
	writeResponse(rw, res.Response)
}

func writeResponse(rw http.ResponseWriter, resp *http.Response) {
	defer resp.Body.Close()
	h := rw.Header()
	for k, vs := range resp.Header {
		h[k] = append([]string(nil), vs...)
	}
	rw.WriteHeader(resp.StatusCode)
	io.Copy(rw, resp.Body)
}

func (w *Worker) rewrite(pr *httputil.ProxyRequest) {
	u := w.absoluteURL(pr.In)
	w.network.Rewrite(u)
	pr.Out.URL = u
	pr.Out.Host = ""
	pr.SetXForwarded()
}

func (w *Worker) proxyError(rw http.ResponseWriter, r *http.Request, err error) {
	w.logger.Warn().Err(err).Str("method", r.Method).Str("url", r.URL.String()).Msg("Passthrough failed")
	http.Error(rw, "upstream unavailable", http.StatusBadGateway)
}

// Status is a snapshot of the worker.
type Status struct {
	State        State               `json:"state"`
	ChangedAt    time.Time           `json:"changed_at"`
	Generation   config.Generation   `json:"generation"`
	SkipWaiting  bool                `json:"skip_waiting"`
	Connectivity *connectivity.State `json:"connectivity,omitempty"`
}

// Status returns a snapshot of the worker.
func (w *Worker) Status() Status {
	s := Status{
		State:       w.lifecycle.State(),
		ChangedAt:   w.lifecycle.ChangedAt(),
		Generation:  w.manager.Generation(),
		SkipWaiting: w.skipWaiting.Load(),
	}
	if w.monitor != nil {
		st := w.monitor.State()
		s.Connectivity = &st
	}
	return s
}
