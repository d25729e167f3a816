// Package metrics exposes the Prometheus registry KatScan publishes to.
// Collectors are declared with promauto in the packages that own them
// (client, cache, ratelimit, collection, pagination) so no package depends on this one
// except the binaries that serve /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is where promauto registers KatScan collectors.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the read side of Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Published metrics:
//
// Upstream budget (pkg/ratelimit):
//   - katscan_upstream_budget_remaining (Gauge)
//   - katscan_rate_limit_blocks_total (Counter)
//   - katscan_rate_limit_throttles_total (Counter)
//   - katscan_rate_limit_wait_seconds (Histogram)
//
// Response cache (pkg/cache):
//   - katscan_cache_hits_total{layer} (Counter)
//   - katscan_cache_misses_total (Counter)
//   - katscan_cache_written_bytes_total{layer} (Counter)
//   - katscan_304_responses_total (Counter)
//   - katscan_cache_errors_total{operation} (Counter)
//
// Upstream requests (pkg/client):
//   - katscan_upstream_requests_total{endpoint, status} (Counter)
//   - katscan_upstream_request_duration_seconds{endpoint} (Histogram)
//   - katscan_upstream_errors_total{class} (Counter)
//   - katscan_upstream_shared_requests_total (Counter)
//   - katscan_retries_total{error_class} (Counter)
//   - katscan_retry_backoff_seconds{error_class} (Histogram)
//   - katscan_retry_exhausted_total{error_class} (Counter)
//
// Paginator (pkg/collection):
//   - katscan_paginator_fetches_total{kind, outcome} (Counter)
//   - katscan_paginator_stale_responses_total (Counter)
//   - katscan_paginator_cache_hits_total (Counter)
//   - katscan_paginator_fetch_duration_seconds{kind} (Histogram)
//
// Batch fetch (pkg/pagination):
//   - katscan_batch_fetches_total{outcome} (Counter)
//   - katscan_batch_pages_total (Counter)
//   - katscan_batch_duration_seconds (Histogram)
//
// Useful queries:
//
//   # Response cache hit rate
//   sum(rate(katscan_cache_hits_total[5m])) /
//   (sum(rate(katscan_cache_hits_total[5m])) + sum(rate(katscan_cache_misses_total[5m])))
//
//   # Budget close to critical
//   katscan_upstream_budget_remaining < 20
//
//   # P95 upstream latency
//   histogram_quantile(0.95, rate(katscan_upstream_request_duration_seconds_bucket[5m]))
