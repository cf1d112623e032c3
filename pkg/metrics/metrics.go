// Package metrics exposes the Prometheus registry of the offline cache.
// Metrics are defined next to the code that records them (cache, network,
// offline) and registered via promauto; this package serves them and
// documents them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all offline cache metrics use.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer matching Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Store Metrics (pkg/cache, recorded by pkg/store):
//   - offline_cache_hits_total{layer} (Counter): Namespace lookups that found an entry
//   - offline_cache_misses_total{layer} (Counter): Namespace lookups that found nothing
//   - offline_cache_writes_total{layer} (Counter): Entries stored
//   - offline_cache_deletes_total{layer} (Counter): Entries deleted individually
//   - offline_cache_written_bytes_total{layer} (Counter): Encoded bytes written
//   - offline_cache_errors_total{layer, operation} (Counter): Store operation errors
//
// Fetch Metrics (pkg/network):
//   - offline_fetch_requests_total{method, status} (Counter): Network fetches by status
//   - offline_fetch_duration_seconds{method} (Histogram): Fetch duration
//   - offline_fetch_errors_total{class} (Counter): Fetch failures by class (client, server, network)
//   - offline_fetch_retries_total{error_class} (Counter): Retry attempts
//   - offline_fetch_retry_backoff_seconds{error_class} (Histogram): Backoff duration
//   - offline_fetch_retry_exhausted_total{error_class} (Counter): Fetches that used every attempt
//
// Manager Metrics (pkg/offline):
//   - offline_responses_total{category, source} (Counter): Responses by request category and source
//     (network, cache, shell, passthrough, unavailable)
//   - offline_lifecycle_transitions_total{state} (Counter): Lifecycle transitions
//   - offline_precache_failures_total{purpose} (Counter): Install-time fetches that did not cache
//   - offline_sweep_evictions_total{reason} (Counter): Entries removed by the sweep (size, age)
//   - offline_namespaces_deleted_total (Counter): Stale namespaces deleted on activation
//   - offline_sync_total{tag, result} (Counter): Background sync signals
//   - offline_active_version{version} (Gauge): 1 for the active version
//
// Example Prometheus Queries:
//
//   # Offline hit rate of data requests
//   sum(rate(offline_responses_total{category="data",source="cache"}[5m])) /
//   sum(rate(offline_responses_total{category="data"}[5m]))
//
//   # Requests nothing could answer
//   rate(offline_responses_total{source="unavailable"}[5m])
//
//   # P95 fetch latency
//   histogram_quantile(0.95, rate(offline_fetch_duration_seconds_bucket[5m]))
