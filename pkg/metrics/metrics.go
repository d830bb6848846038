// Package metrics exposes the Prometheus registry used by the proxy.
// All metrics are defined in their respective packages (cache, client,
// ratelimit, server) via promauto and registered with the default registry.
//
// This package provides the scrape handler and a reference for all metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the Prometheus registerer every proxy metric is registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the source served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics scrape handler.
func Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(Registry, promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}))
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - proxyhades_cache_hits_total{layer="memory|disk"} (Counter): Cache hits by layer
//   - proxyhades_cache_misses_total (Counter): Lookups that missed both tiers
//   - proxyhades_cache_entries{layer="memory"} (Gauge): Entries held by the memory tier
//   - proxyhades_cache_evictions_total{layer="memory"} (Counter): Entries evicted to enforce the bound
//   - proxyhades_cache_errors_total{operation} (Counter): Swallowed disk I/O errors
//   - proxyhades_write_queue_dropped_total (Counter): Disk writes dropped because the queue was full
//
// Upstream Metrics (pkg/client):
//   - proxyhades_upstream_requests_total{host, status} (Counter): Upstream fetches by host and status
//   - proxyhades_upstream_request_duration_seconds{host} (Histogram): Upstream fetch duration
//   - proxyhades_upstream_errors_total{class} (Counter): Transport failures by class
//
// Rate Limit Metrics (pkg/ratelimit):
//   - proxyhades_rate_limit_blocks_total (Counter): Requests rejected with 429
//   - proxyhades_rate_limit_errors_total (Counter): Checks that failed open
//
// HTTP Metrics (pkg/server):
//   - proxyhades_http_requests_total{status, source} (Counter): Responses by status and cache source
//   - proxyhades_http_request_duration_seconds{source} (Histogram): End-to-end request duration
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(proxyhades_cache_hits_total[5m])) /
//   (sum(rate(proxyhades_cache_hits_total[5m])) + sum(rate(proxyhades_cache_misses_total[5m])))
//
//   # Upstream Error Rate
//   rate(proxyhades_upstream_errors_total[5m])
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(proxyhades_upstream_request_duration_seconds_bucket[5m]))
//
//   # Dropped Disk Writes
//   increase(proxyhades_write_queue_dropped_total[1h]) > 0
