package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks lookups answered by a store
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_shell_cache_hits_total",
			Help: "Total number of cache hits by store",
		},
		[]string{"store"},
	)

	// CacheMisses tracks lookups with no stored response
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_shell_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// CacheWrites tracks responses written by store
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_shell_cache_writes_total",
			Help: "Total number of responses written by store",
		},
		[]string{"store"},
	)

	// CacheEvictions tracks stale stores deleted during activation
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_shell_cache_evictions_total",
			Help: "Total number of stale stores deleted",
		},
	)

	// CacheErrors tracks store operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_shell_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "open", "get", "put", "delete", "keys", "evict"
	)
)
