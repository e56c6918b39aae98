// Package metrics exposes the Prometheus registry used by offline-shell.
// All metrics are defined in their respective packages (cache, network,
// connectivity, strategy, drain, notify, worker) via promauto, so every package stays
// self-contained and free of import cycles.
//
// This package provides the scrape handler and a reference of all metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all offline-shell metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer backing Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics scrape handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - offline_shell_cache_hits_total{store} (Counter): Lookups answered by a store
//   - offline_shell_cache_misses_total (Counter): Lookups with no stored response
//   - offline_shell_cache_writes_total{store} (Counter): Responses written
//   - offline_shell_cache_errors_total{operation} (Counter): Store operation errors
//   - offline_shell_cache_evictions_total (Counter): Stale stores deleted
//
// Connectivity Metrics (pkg/connectivity):
//   - offline_shell_online (Gauge): 1 while the upstream is reachable, 0 otherwise
//   - offline_shell_connectivity_transitions_total{to} (Counter): Online/offline transitions
//
// Network Metrics (pkg/network):
//   - offline_shell_upstream_requests_total{status} (Counter): Upstream responses by status
//   - offline_shell_upstream_request_duration_seconds (Histogram): Upstream latency
//   - offline_shell_upstream_errors_total{class} (Counter): Errors by class (client, server, network)
//   - offline_shell_upstream_retries_total (Counter): Retry attempts
//
// Strategy Metrics (pkg/strategy):
//   - offline_shell_intercepted_total{class, source} (Counter): Answers by resource class
//     and source (network, cache, offline_page, synthesized)
//
// Drain Metrics (pkg/drain):
//   - offline_shell_queue_enqueued_total{kind} (Counter): Submissions queued
//   - offline_shell_queue_replayed_total{result} (Counter): Replay attempts by result
//
// Notification Metrics (pkg/notify):
//   - offline_shell_push_total{type, state} (Counter): Push payloads by notification type and state
//   - offline_shell_push_parse_fallbacks_total (Counter): Payloads shown as plain text
//   - offline_shell_notification_clicks_total{outcome} (Counter): Clicks by routing outcome
//
// Worker Metrics (pkg/worker):
//   - offline_shell_events_total{kind, result} (Counter): Dispatched events
//   - offline_shell_event_duration_seconds{kind} (Histogram): Event handling latency
//   - offline_shell_lifecycle_state{state} (Gauge): 1 for the current lifecycle state
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(offline_shell_cache_hits_total[5m])) /
//   (sum(rate(offline_shell_cache_hits_total[5m])) + sum(rate(offline_shell_cache_misses_total[5m])))
//
//   # Share of answers served while offline
//   sum(rate(offline_shell_intercepted_total{source!="network"}[5m])) /
//   sum(rate(offline_shell_intercepted_total[5m]))
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(offline_shell_upstream_request_duration_seconds_bucket[5m]))
