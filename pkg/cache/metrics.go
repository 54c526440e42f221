package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheHits tracks cache hits by freshness state (fresh, stale).
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_hits_total",
			Help: "Total number of storefront cache hits by state",
		},
		[]string{"state"},
	)

	// cacheMisses tracks cache misses, including expired entries.
	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_cache_misses_total",
			Help: "Total number of storefront cache misses",
		},
	)

	// coalescedCalls tracks callers that shared another caller's
	// in-flight upstream call instead of starting their own.
	coalescedCalls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_cache_coalesced_total",
			Help: "Total number of callers coalesced onto an in-flight upstream call",
		},
	)

	// revalidations tracks background refreshes by outcome.
	revalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_revalidations_total",
			Help: "Total number of background revalidations by outcome",
		},
		[]string{"outcome"}, // "ok", "error"
	)

	// storeErrors tracks backing-store operation failures.
	storeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_store_errors_total",
			Help: "Total number of cache store operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)

	// storeSize tracks bytes written to external stores.
	storeSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_cache_store_bytes",
			Help: "Bytes written to the storefront cache store",
		},
	)
)
