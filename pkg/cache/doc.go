// Package cache manages the versioned response stores of the offline shell.
//
// A cache generation consists of three named stores:
//
//   - shell store: seeded atomically at install with the application shell
//   - runtime store: filled lazily with static assets as they are fetched
//   - queue store: deferred submissions, shared by every generation
//
// Shell and runtime store names carry the generation's version tag, so
// installing a new generation creates fresh stores and activation deletes
// every store that does not belong to the current generation.
//
// # Basic Usage
//
//	gen := config.Default().Generation
//	manager := cache.NewManager(storage.NewMemoryBackend(), gen,
//		cache.WithFetcher(prefetch.NewBatchFetcher(httpClient, prefetch.DefaultConfig())),
//	)
//
//	// Seed the shell, all or nothing
//	if err := manager.InstallShell(ctx, gen.ShellStore(), urls); err != nil {
//		var ierr *cache.InstallError
//		if errors.As(err, &ierr) {
//			// previous generation stays authoritative
//		}
//	}
//
//	// Delete stale generations and take over clients
//	deleted, err := manager.Activate(ctx, clientHost)
//
// # Keys and Entries
//
// Only GET requests for absolute URLs are keyable; NewRequestKey returns
// ErrNotKeyable for anything else. Entries are StoredResponse values encoded
// as JSON and only 2xx responses are ever written.
//
//	key, err := cache.NewRequestKey(http.MethodGet, "http://localhost:8080/index.html")
//	entry, err := manager.Match(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// not stored in shell or runtime
//	}
//
// # Metrics
//
//   - offline_shell_cache_hits_total{store} - Cache hits
//   - offline_shell_cache_misses_total - Cache misses
//   - offline_shell_cache_writes_total{store} - Responses written
//   - offline_shell_cache_evictions_total - Stale stores deleted
//   - offline_shell_cache_errors_total{operation} - Store operation errors
package cache
