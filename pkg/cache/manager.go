package cache

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/offline-shell/pkg/config"
	"github.com/Sternrassler/offline-shell/pkg/prefetch"
	"github.com/Sternrassler/offline-shell/pkg/storage"
)

var (
	// ErrCacheMiss indicates no stored response matches the key
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the stored entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrNotCacheable indicates a response with a non-2xx status
	ErrNotCacheable = errors.New("response is not cacheable")

	// ErrNoFetcher indicates a bulk add on a manager without a fetcher
	ErrNoFetcher = errors.New("no fetcher configured")
)

// InstallError reports a failed shell install. Nothing was written.
type InstallError struct {
	Store string
	URL   string
	Err   error
}

func (e *InstallError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("install %s: %s: %v", e.Store, e.URL, e.Err)
	}
	return fmt.Sprintf("install %s: %v", e.Store, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// Claimer takes control of every open client.
type Claimer interface {
	Claim(ctx context.Context) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithFetcher sets the fetcher used by InstallShell and AddAll.
func WithFetcher(f *prefetch.BatchFetcher) Option {
	return func(m *Manager) {
		m.fetcher = f
	}
}

// WithLogger sets the manager logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// Manager owns the named stores of one cache generation.
type Manager struct {
	backend storage.Backend
	gen     config.Generation
	fetcher *prefetch.BatchFetcher
	log     zerolog.Logger
}

// NewManager creates a manager for the given generation.
func NewManager(backend storage.Backend, gen config.Generation, opts ...Option) *Manager {
	if backend == nil {
		panic("storage backend cannot be nil")
	}
	m := &Manager{
		backend: backend,
		gen:     gen,
		log:     log.With().Str("component", "cache").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Generation returns the current generation.
func (m *Manager) Generation() config.Generation {
	return m.gen
}

// Open returns the named store, creating it if absent.
func (m *Manager) Open(ctx context.Context, name string) (*Store, error) {
	if name == "" {
		return nil, fmt.Errorf("store name cannot be empty")
	}
	if err := m.backend.CreateStore(ctx, name); err != nil {
		CacheErrors.WithLabelValues("open").Inc()
		return nil, fmt.Errorf("open store %s: %w", name, err)
	}
	return m.handle(name), nil
}

// handle returns a Store without creating it. Reads from a missing store miss.
func (m *Manager) handle(name string) *Store {
	return &Store{name: name, backend: m.backend}
}

// Shell opens the current shell store.
func (m *Manager) Shell(ctx context.Context) (*Store, error) {
	return m.Open(ctx, m.gen.ShellStore())
}

// Runtime opens the current runtime store.
func (m *Manager) Runtime(ctx context.Context) (*Store, error) {
	return m.Open(ctx, m.gen.RuntimeStore())
}

// Queue opens the queue store.
func (m *Manager) Queue(ctx context.Context) (*Store, error) {
	return m.Open(ctx, m.gen.QueueStore())
}

// CurrentNames returns the store names that belong to the current generation.
func (m *Manager) CurrentNames() map[string]struct{} {
	return map[string]struct{}{
		m.gen.ShellStore():   {},
		m.gen.RuntimeStore(): {},
		m.gen.QueueStore():   {},
	}
}

// Match searches the current shell store, then the runtime store.
func (m *Manager) Match(ctx context.Context, key RequestKey) (*StoredResponse, error) {
	for _, name := range []string{m.gen.ShellStore(), m.gen.RuntimeStore()} {
		entry, err := m.handle(name).Match(ctx, key)
		if err == nil {
			m.log.Debug().Str("store", name).Str("key", key.String()).Msg("Cache hit")
			return entry, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			return nil, err
		}
	}
	CacheMisses.Inc()
	m.log.Debug().Str("key", key.String()).Msg("Cache miss")
	return nil, ErrCacheMiss
}

// InstallShell fetches and stores every URL into the named store.
// It fails atomically: on any failure a *InstallError is returned and the
// store is left as it was.
func (m *Manager) InstallShell(ctx context.Context, name string, urls []string) error {
	m.log.Info().Str("store", name).Int("urls", len(urls)).Msg("Installing shell")

	if err := m.AddAll(ctx, name, urls); err != nil {
		ierr := &InstallError{Store: name, Err: err}
		var uerr *prefetch.URLError
		if errors.As(err, &uerr) {
			ierr.URL = uerr.URL
		}
		m.log.Error().Err(err).Str("store", name).Str("url", ierr.URL).Msg("Shell install failed")
		return ierr
	}

	m.log.Info().Str("store", name).Int("urls", len(urls)).Msg("Shell installed")
	return nil
}

// AddAll fetches every URL, then writes all responses into the named store.
// Nothing is written unless every fetch returns a 2xx status; a failed write
// restores the entries already written.
func (m *Manager) AddAll(ctx context.Context, name string, urls []string) error {
	if m.fetcher == nil {
		return ErrNoFetcher
	}

	keys := make([]RequestKey, len(urls))
	for i, u := range urls {
		k, err := NewRequestKey(http.MethodGet, u)
		if err != nil {
			return err
		}
		keys[i] = k
	}

	results, err := m.fetcher.FetchAll(ctx, urls)
	if err != nil {
		return err
	}

	existed, err := m.backend.HasStore(ctx, name)
	if err != nil {
		return fmt.Errorf("check store %s: %w", name, err)
	}
	store, err := m.Open(ctx, name)
	if err != nil {
		return err
	}

	var written []writtenEntry

	for i, r := range results {
		prev, err := m.backend.Get(ctx, name, keys[i].String())
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			m.rollback(ctx, name, existed, written)
			return fmt.Errorf("read previous %s: %w", keys[i], err)
		}

		entry := &StoredResponse{
			Status: r.Status,
			Header: r.Header,
			Body:   r.Body,
			URL:    r.URL,
		}
		if err := store.Put(ctx, keys[i], entry); err != nil {
			m.rollback(ctx, name, existed, written)
			return err
		}
		written = append(written, writtenEntry{key: keys[i].String(), previous: prev})
	}

	return nil
}

// writtenEntry remembers the value a bulk add overwrote.
type writtenEntry struct {
	key      string
	previous []byte
}

func (m *Manager) rollback(ctx context.Context, name string, existed bool, written []writtenEntry) {
	if !existed {
		if err := m.backend.DropStore(ctx, name); err != nil {
			m.log.Warn().Err(err).Str("store", name).Msg("Rollback drop failed")
		}
		return
	}
	for _, w := range written {
		var err error
		if w.previous == nil {
			err = m.backend.Delete(ctx, name, w.key)
		} else {
			err = m.backend.Put(ctx, name, w.key, w.previous)
		}
		if err != nil {
			m.log.Warn().Err(err).Str("store", name).Str("key", w.key).Msg("Rollback failed")
		}
	}
}

// EvictStale deletes every store whose name is not in current and returns
// the deleted names. A store that fails to delete is logged and skipped.
func (m *Manager) EvictStale(ctx context.Context, current map[string]struct{}) ([]string, error) {
	names, err := m.backend.Stores(ctx)
	if err != nil {
		CacheErrors.WithLabelValues("evict").Inc()
		return nil, fmt.Errorf("list stores: %w", err)
	}

	var deleted []string
	for _, name := range names {
		if _, keep := current[name]; keep {
			continue
		}
		if err := m.backend.DropStore(ctx, name); err != nil {
			CacheErrors.WithLabelValues("evict").Inc()
			m.log.Warn().Err(err).Str("store", name).Msg("Evicting stale store failed")
			continue
		}
		CacheEvictions.Inc()
		m.log.Info().Str("store", name).Msg("Evicted stale store")
		deleted = append(deleted, name)
	}
	return deleted, nil
}

// Activate evicts every store outside the current generation, then lets
// claimer take control of all open clients. A nil claimer skips the claim.
func (m *Manager) Activate(ctx context.Context, claimer Claimer) ([]string, error) {
	deleted, err := m.EvictStale(ctx, m.CurrentNames())
	if err != nil {
		return nil, err
	}
	if claimer != nil {
		if err := claimer.Claim(ctx); err != nil {
			return deleted, fmt.Errorf("claim clients: %w", err)
		}
	}
	return deleted, nil
}
