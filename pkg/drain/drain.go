// Package drain queues submissions made while offline and replays them
// once connectivity returns.
//
// Queue entries live in the generation's queue store under synthetic keys
// that sort in enqueue order. An entry is deleted only after its replay
// got a 2xx answer; replay stops at the first failure so later entries keep
// their order.
package drain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/offline-shell/pkg/cache"
	"github.com/Sternrassler/offline-shell/pkg/config"
)

// Queue kinds.
const (
	KindReports  = "reports"
	KindLocation = "location"
)

// Sync tags.
const (
	TagReports  = "sync-reports"
	TagLocation = "sync-location"
)

const queuePath = "/__queue/"

var (
	// ErrInvalidKind indicates a queue kind that cannot be used in a key.
	ErrInvalidKind = errors.New("invalid queue kind")

	// ErrInvalidBody indicates a submission that is not JSON.
	ErrInvalidBody = errors.New("submission is not valid JSON")

	kindPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

var (
	enqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_shell_queue_enqueued_total",
		Help: "Total queued offline submissions by kind",
	}, []string{"kind"})

	replayedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_shell_queue_replayed_total",
		Help: "Total replay attempts by result (success, failure, discarded)",
	}, []string{"result"})
)

// ReplayError reports the queue entry whose replay failed.
type ReplayError struct {
	Key string
	Err error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay %s: %v", e.Key, e.Err)
}

func (e *ReplayError) Unwrap() error {
	return e.Err
}

// Poster sends replayed submissions.
type Poster interface {
	Do(req *http.Request) (*http.Response, error)
}

// Drainer owns the offline queue.
type Drainer struct {
	manager   *cache.Manager
	poster    Poster
	appOrigin string
	endpoint  string

	// one drain at a time, so no entry is posted twice
	mu  sync.Mutex
	seq atomic.Uint64

	now    func() time.Time
	logger zerolog.Logger
}

// New creates a Drainer replaying to cfg.ReportsEndpoint.
func New(manager *cache.Manager, poster Poster, cfg config.Config) (*Drainer, error) {
	if manager == nil || poster == nil {
		panic("drain: manager and poster are required")
	}
	endpoint, err := cfg.ResolveURL(cfg.ReportsEndpoint)
	if err != nil {
		return nil, fmt.Errorf("reports endpoint: %w", err)
	}
	return &Drainer{
		manager:   manager,
		poster:    poster,
		appOrigin: cfg.AppOrigin,
		endpoint:  endpoint,
		now:       time.Now,
		logger:    log.With().Str("component", "drain").Logger(),
	}, nil
}

// Endpoint returns the absolute URL submissions are replayed to.
func (d *Drainer) Endpoint() string {
	return d.endpoint
}

// Enqueue appends a JSON submission of the given kind to the queue.
func (d *Drainer) Enqueue(ctx context.Context, kind string, body []byte) (cache.RequestKey, error) {
	if !kindPattern.MatchString(kind) {
		return cache.RequestKey{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if !json.Valid(body) {
		return cache.RequestKey{}, ErrInvalidBody
	}

	key, err := cache.NewRequestKey(http.MethodGet, d.queueURL(kind))
	if err != nil {
		return cache.RequestKey{}, err
	}

	q, err := d.manager.Queue(ctx)
	if err != nil {
		return cache.RequestKey{}, err
	}
	entry := &cache.StoredResponse{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   append([]byte(nil), body...),
		URL:    key.URL,
	}
	if err := q.Put(ctx, key, entry); err != nil {
		return cache.RequestKey{}, fmt.Errorf("enqueue: %w", err)
	}

	enqueuedTotal.WithLabelValues(kind).Inc()
	d.logger.Debug().Str("kind", kind).Str("key", key.String()).Msg("Submission queued")
	return key, nil
}

// queueURL builds a key URL that sorts after every earlier one.
func (d *Drainer) queueURL(kind string) string {
	return fmt.Sprintf("%s%s%s/%020d-%06d", d.appOrigin, queuePath, kind, d.now().UnixNano(), d.seq.Add(1)%1000000)
}

// Pending returns the queued keys of kind in replay order.
func (d *Drainer) Pending(ctx context.Context, kind string) ([]cache.RequestKey, error) {
	q, err := d.manager.Queue(ctx)
	if err != nil {
		return nil, err
	}
	keys, err := q.Keys(ctx)
	if err != nil {
		return nil, err
	}
	prefix := d.appOrigin + queuePath + kind + "/"
	var out []cache.RequestKey
	for _, k := range keys {
		if strings.HasPrefix(k.URL, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

// Drain replays queued reports in order and returns how many were sent.
// It stops at the first failed replay and returns a *ReplayError; that
// entry and all after it stay queued.
func (d *Drainer) Drain(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	keys, err := d.Pending(ctx, KindReports)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	q, err := d.manager.Queue(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, key := range keys {
		entry, err := q.Match(ctx, key)
		switch {
		case errors.Is(err, cache.ErrCacheMiss):
			continue
		case errors.Is(err, cache.ErrInvalidEntry):
			// unreadable entries can never be replayed
			d.logger.Error().Err(err).Str("key", key.String()).Msg("Discarding corrupt queue entry")
			replayedTotal.WithLabelValues("discarded").Inc()
			if err := q.Delete(ctx, key); err != nil {
				return sent, &ReplayError{Key: key.String(), Err: err}
			}
			continue
		case err != nil:
			return sent, &ReplayError{Key: key.String(), Err: err}
		}

		if err := d.post(ctx, entry.Body); err != nil {
			replayedTotal.WithLabelValues("failure").Inc()
			d.logger.Warn().Err(err).Str("key", key.String()).Int("sent", sent).Msg("Replay failed - keeping queue")
			return sent, &ReplayError{Key: key.String(), Err: err}
		}
		if err := q.Delete(ctx, key); err != nil {
			return sent, &ReplayError{Key: key.String(), Err: err}
		}
		replayedTotal.WithLabelValues("success").Inc()
		sent++
	}

	d.logger.Info().Int("sent", sent).Msg("Offline reports synced")
	return sent, nil
}

func (d *Drainer) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.poster.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// HandleSync runs the work registered for a sync tag.
func (d *Drainer) HandleSync(ctx context.Context, tag string) error {
	switch tag {
	case TagReports:
		_, err := d.Drain(ctx)
		return err
	case TagLocation:
		// location updates have no queued data yet
		d.logger.Debug().Msg("Location sync complete")
		return nil
	default:
		d.logger.Info().Str("tag", tag).Msg("Ignoring unknown sync tag")
		return nil
	}
}
