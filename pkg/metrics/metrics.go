// Package metrics documents the Prometheus metrics exported by the
// storefront client. All metrics are defined in their owning packages
// (cache, client) via promauto to keep concerns local and avoid circular
// dependencies; this package is the catalog.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registerer used by the storefront
// client. All metrics register themselves through promauto.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - storefront_cache_hits_total{state} (Counter): Hits by freshness state (fresh, stale)
//   - storefront_cache_misses_total (Counter): Misses, including expired entries
//   - storefront_cache_coalesced_total (Counter): Callers coalesced onto an in-flight call
//   - storefront_cache_revalidations_total{outcome} (Counter): Background refreshes (ok, error)
//   - storefront_cache_store_errors_total{operation} (Counter): Store failures (get, set, delete)
//   - storefront_cache_store_bytes (Gauge): Bytes written to external stores
//
// Client Metrics (pkg/client):
//   - storefront_requests_total{operation, status} (Counter): Upstream requests by operation (query, mutate, fetch) and status
//   - storefront_request_duration_seconds{operation} (Histogram): Upstream request duration
//   - storefront_errors_total{kind} (Counter): Errors by kind (transport, http, graphql)
//
// Example Prometheus Queries:
//
//   # Cache hit rate
//   sum(rate(storefront_cache_hits_total[5m])) /
//   (sum(rate(storefront_cache_hits_total[5m])) + sum(rate(storefront_cache_misses_total[5m])))
//
//   # Share of requests served stale
//   rate(storefront_cache_hits_total{state="stale"}[5m])
//
//   # Upstream error rate
//   rate(storefront_errors_total[5m])
//
//   # P95 upstream latency
//   histogram_quantile(0.95, rate(storefront_request_duration_seconds_bucket[5m]))
