// Package strategy answers intercepted requests from the network, the cache
// or a synthesized fallback, depending on their resource class.
//
//   - Navigation: network-first, successful pages copied into the shell store
//   - APICall: network-only, offline JSON error on failure
//   - StaticAsset: cache-first, 200 responses copied into the runtime store
//
// No strategy returns an error: every request resolves to a live response,
// a stored one, or a synthesized one.
package strategy

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/offline-shell/pkg/cache"
	"github.com/Sternrassler/offline-shell/pkg/classify"
	"github.com/Sternrassler/offline-shell/pkg/network"
)

var interceptedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "offline_shell_intercepted_total",
	Help: "Total intercepted requests by resource class and answer source",
}, []string{"class", "source"})

// Fetcher performs upstream fetches.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Engine executes the caching strategies.
type Engine struct {
	manager     *cache.Manager
	fetcher     Fetcher
	offlineURLs []string
	logger      zerolog.Logger
}

// New creates an engine. offlineURLs are absolute URLs looked up, in order,
// when a navigation fails and has no stored copy.
func New(manager *cache.Manager, fetcher Fetcher, offlineURLs []string) *Engine {
	if manager == nil || fetcher == nil {
		panic("strategy: manager and fetcher are required")
	}
	return &Engine{
		manager:     manager,
		fetcher:     fetcher,
		offlineURLs: offlineURLs,
		logger:      log.With().Str("component", "strategy").Logger(),
	}
}

// Handle answers r, whose absolute URL and metadata are in req.
// It returns nil only for Ignored requests, which are not intercepted.
func (e *Engine) Handle(r *http.Request, req classify.Request, class classify.ResourceClass) *http.Response {
	var (
		resp   *http.Response
		source Source
	)

	switch class {
	case classify.Navigation:
		resp, source = e.networkFirst(r, req)
	case classify.APICall:
		resp, source = e.networkOnly(r, req)
	case classify.StaticAsset:
		resp, source = e.cacheFirst(r, req)
	default:
		return nil
	}

	interceptedTotal.WithLabelValues(class.String(), string(source)).Inc()
	if source != SourceNetwork {
		resp.Header.Set(FallbackHeader, string(source))
	}
	return resp
}

func (e *Engine) fetch(r *http.Request, target string) (*http.Response, error) {
	out, err := network.Forward(r, target)
	if err != nil {
		return nil, err
	}
	return e.fetcher.Do(out)
}

// networkFirst serves navigations.
func (e *Engine) networkFirst(r *http.Request, req classify.Request) (*http.Response, Source) {
	ctx := r.Context()
	target := req.URL.String()
	key, keyErr := cache.NewRequestKey(http.MethodGet, target)

	resp, err := e.fetch(r, target)
	if err == nil {
		if keyErr == nil && resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			e.store(ctx, resp, key, e.manager.Shell)
		}
		return resp, SourceNetwork
	}

	e.logger.Warn().Err(err).Str("url", target).Msg("Navigation failed - serving offline copy")

	if keyErr == nil {
		if entry := e.match(ctx, key); entry != nil {
			return entry.NewResponse(r), SourceCache
		}
	}
	for _, u := range e.offlineURLs {
		k, err := cache.NewRequestKey(http.MethodGet, u)
		if err != nil {
			continue
		}
		if entry := e.match(ctx, k); entry != nil {
			return entry.NewResponse(r), SourceOfflinePage
		}
	}
	return OfflinePageResponse(r), SourceSynthesized
}

// networkOnly serves API calls.
func (e *Engine) networkOnly(r *http.Request, req classify.Request) (*http.Response, Source) {
	resp, err := e.fetch(r, req.URL.String())
	if err == nil {
		return resp, SourceNetwork
	}
	e.logger.Warn().Err(err).Str("url", req.URL.String()).Msg("API call failed - answering offline")
	return OfflineAPIResponse(r), SourceSynthesized
}

// cacheFirst serves static assets.
func (e *Engine) cacheFirst(r *http.Request, req classify.Request) (*http.Response, Source) {
	ctx := r.Context()
	target := req.URL.String()
	key, keyErr := cache.NewRequestKey(http.MethodGet, target)

	if keyErr == nil {
		if entry := e.match(ctx, key); entry != nil {
			return entry.NewResponse(r), SourceCache
		}
	}

	resp, err := e.fetch(r, target)
	if err == nil {
		if keyErr == nil && resp.StatusCode == http.StatusOK {
			e.store(ctx, resp, key, e.manager.Runtime)
		}
		return resp, SourceNetwork
	}

	e.logger.Warn().Err(err).Str("url", target).Msg("Asset unavailable - answering offline")
	if req.IsImage() {
		return OfflineImageResponse(r), SourceSynthesized
	}
	return OfflineTextResponse(r), SourceSynthesized
}

// match looks key up in the current generation. Store errors count as a miss.
func (e *Engine) match(ctx context.Context, key cache.RequestKey) *cache.StoredResponse {
	entry, err := e.manager.Match(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			e.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache lookup failed")
		}
		return nil
	}
	return entry
}

// store copies resp into the store returned by open. The response body is
// restored for the caller. Failures are logged only.
func (e *Engine) store(ctx context.Context, resp *http.Response, key cache.RequestKey, open func(context.Context) (*cache.Store, error)) {
	entry, err := cache.ResponseToEntry(resp)
	if err != nil {
		e.logger.Warn().Err(err).Str("key", key.String()).Msg("Reading response for cache failed")
		return
	}
	entry.URL = key.URL

	s, err := open(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Opening store failed")
		return
	}
	if err := s.Put(ctx, key, entry); err != nil {
		e.logger.Warn().Err(err).Str("store", s.Name()).Str("key", key.String()).Msg("Caching response failed")
		return
	}
	e.logger.Debug().Str("store", s.Name()).Str("key", key.String()).Msg("Cached response")
}
