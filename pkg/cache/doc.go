// Package cache implements the process-local response cache that fronts the
// storefront API:
//
//   - Deterministic, order-independent cache keys derived from request
//     identity (method, URL, canonicalized body, tracked headers)
//   - A minimal Store interface with in-memory and Redis implementations
//   - Coalescing of concurrent identical requests into a single upstream
//     call (golang.org/x/sync/singleflight)
//   - Stale-while-revalidate serving with at most one background refresh
//     per key
//   - Prometheus metrics for hits, misses, coalesced calls, revalidations
//     and store errors
//
// # Basic Usage
//
//	store := cache.NewMemoryStore()
//	runner := background.NewRunner(logger)
//	fetcher := cache.NewFetcher(store, runner, logger)
//
//	key := cache.Key{
//		URL:    "https://api.example.com/graphql",
//		Method: http.MethodPost,
//		Body:   body,
//	}
//
//	res, err := fetcher.Do(ctx, key.String(), strategy.Short(), func(ctx context.Context) (*cache.Result, error) {
//		// perform the upstream call
//	})
//
// # Freshness model
//
// Every entry is stored with the strategy that produced it. At read time the
// entry is classified against the clock:
//
//	age < maxAge                 -> fresh: served directly
//	age < maxAge + staleWindow   -> stale: served directly, refreshed in background
//	otherwise                    -> expired: refetched synchronously
//
// Strategies with MustRevalidate skip the stale window entirely.
//
// The cache is process-local by design: no cross-process coordination, no
// persistence beyond what the chosen Store provides.
package cache
