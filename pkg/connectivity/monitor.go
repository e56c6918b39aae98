package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	onlineGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "offline_shell_online",
		Help: "1 while the upstream origin is reachable, 0 otherwise",
	})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_shell_connectivity_transitions_total",
		Help: "Total number of connectivity transitions",
	}, []string{"to"}) // "online", "offline"
)

// Monitor is a connectivity state machine fed by fetch outcomes.
// It is safe for concurrent use.
type Monitor struct {
	mu        sync.Mutex
	state     State
	threshold int
	logger    zerolog.Logger
	onRestore []func()
}

// NewMonitor creates a monitor that starts online.
// A threshold <= 0 uses DefaultOfflineThreshold.
func NewMonitor(threshold int, logger zerolog.Logger) *Monitor {
	if threshold <= 0 {
		threshold = DefaultOfflineThreshold
	}
	now := time.Now()
	onlineGauge.Set(1)
	return &Monitor{
		state: State{
			Online:     true,
			LastChange: now,
			LastUpdate: now,
		},
		threshold: threshold,
		logger:    logger,
	}
}

// OnRestore registers fn to run after every offline to online transition.
// Callbacks run synchronously on the goroutine that recorded the success
// and must not block.
func (m *Monitor) OnRestore(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRestore = append(m.onRestore, fn)
}

// State returns a snapshot of the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Online reports whether the upstream is considered reachable.
func (m *Monitor) Online() bool {
	return m.State().Online
}

// RecordSuccess records a fetch that reached the upstream.
func (m *Monitor) RecordSuccess() {
	m.mu.Lock()
	now := time.Now()
	restored := !m.state.Online
	m.state.ConsecutiveFailures = 0
	m.state.LastUpdate = now
	var callbacks []func()
	if restored {
		offlineFor := now.Sub(m.state.LastChange)
		m.state.Online = true
		m.state.LastChange = now
		callbacks = append(callbacks, m.onRestore...)

		onlineGauge.Set(1)
		transitionsTotal.WithLabelValues("online").Inc()
		m.logger.Info().Dur("offline_for", offlineFor).Msg("Upstream reachable again")
	}
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// RecordFailure records a fetch that failed at the network level.
func (m *Monitor) RecordFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.state.ConsecutiveFailures++
	m.state.LastUpdate = now

	if m.state.Online && m.state.ConsecutiveFailures >= m.threshold {
		m.state.Online = false
		m.state.LastChange = now

		onlineGauge.Set(0)
		transitionsTotal.WithLabelValues("offline").Inc()
		m.logger.Warn().
			Err(err).
			Int("consecutive_failures", m.state.ConsecutiveFailures).
			Msg("Upstream unreachable - serving offline")
		return
	}

	m.logger.Debug().
		Err(err).
		Int("consecutive_failures", m.state.ConsecutiveFailures).
		Msg("Upstream fetch failed")
}

// Probe runs check every interval while offline and records its outcome,
// so connectivity is restored even when no client traffic arrives.
// It returns when ctx is done.
func (m *Monitor) Probe(ctx context.Context, interval time.Duration, check func(ctx context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if m.Online() {
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, interval)
		err := check(probeCtx)
		cancel()
		if err != nil {
			m.RecordFailure(err)
			continue
		}
		m.RecordSuccess()
	}
}
