package cache

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/quayside/storefront-client/pkg/background"
	"github.com/quayside/storefront-client/pkg/strategy"
)

// Result is the outcome of one upstream call, or of a cache hit.
type Result struct {
	// Body is the raw response body.
	Body []byte

	// StatusCode is the upstream HTTP status.
	StatusCode int

	// Header holds the upstream response headers.
	Header http.Header

	// Cached reports whether the result was served from the store.
	Cached bool
}

// FetchFunc performs the actual upstream call. It is invoked at most once
// per key for any set of concurrent callers, and must return an error for
// any response that should never be cached (e.g. non-2xx statuses).
type FetchFunc func(ctx context.Context) (*Result, error)

// ShouldCacheFunc decides whether a successful result may be stored.
type ShouldCacheFunc func(*Result) bool

// Fetcher ties the store, the in-flight coalescer and the revalidation
// scheduler into the cache state machine: per key it decides between a
// fresh hit, a stale hit with background refresh, and a synchronous fetch.
//
// A Fetcher is created once per process and shared across requests.
type Fetcher struct {
	store       Store
	runner      *background.Runner
	logger      zerolog.Logger
	shouldCache ShouldCacheFunc

	// group coalesces concurrent upstream calls per key. A settled call,
	// successful or not, is forgotten immediately so failures are never
	// retained.
	group singleflight.Group

	// revalidating guards against scheduling more than one background
	// refresh per key.
	revalidating sync.Map

	// now is swappable for tests.
	now func() time.Time
}

// FetcherOption customizes a Fetcher.
type FetcherOption func(*Fetcher)

// WithShouldCache replaces the response-cacheability predicate. The default
// accepts any 2xx result.
func WithShouldCache(fn ShouldCacheFunc) FetcherOption {
	return func(f *Fetcher) { f.shouldCache = fn }
}

// NewFetcher creates the orchestrator. The store may be nil, in which case
// every call is a pass-through fetch (still coalesced per key).
func NewFetcher(store Store, runner *background.Runner, logger zerolog.Logger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		store:  store,
		runner: runner,
		logger: logger.With().Str("component", "cache-fetcher").Logger(),
		shouldCache: func(r *Result) bool {
			return r.StatusCode >= 200 && r.StatusCode < 300
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Do resolves one request through the cache state machine.
//
//   - No entry (miss): fetch synchronously, coalesced per key, and store
//     the result if cacheable.
//   - Fresh entry: return it, no upstream contact.
//   - Stale entry: return it immediately and schedule at most one
//     background refresh for the key.
//   - Expired entry: treated as a miss; the old entry is replaced once the
//     refresh succeeds.
//
// Store failures degrade to pass-through fetching with a warning; they
// never fail the request.
func (f *Fetcher) Do(ctx context.Context, key string, strat strategy.Strategy, fetch FetchFunc) (*Result, error) {
	if key == "" || f.store == nil || !strat.Cacheable() {
		// Nothing to consult and nothing to store. ModeNone callers
		// opted out of sharing, so skip the coalescer too.
		return fetch(ctx)
	}

	entry, err := f.store.Get(ctx, key)
	if err != nil && err != ErrMiss {
		f.logger.Warn().Err(err).Str("key", key).Msg("Cache store unavailable, passing through")
		res, ferr := f.coalesce(ctx, key, fetch)
		return res, ferr
	}

	if err == nil {
		state := entry.State(f.now())
		switch state {
		case StateFresh:
			cacheHits.WithLabelValues("fresh").Inc()
			f.logger.Debug().Str("key", key).Msg("Fresh cache hit")
			return entryResult(entry), nil
		case StateStale:
			cacheHits.WithLabelValues("stale").Inc()
			f.scheduleRevalidation(key, strat, fetch)
			f.logger.Debug().Str("key", key).Msg("Stale cache hit, revalidating in background")
			return entryResult(entry), nil
		case StateExpired:
			// Fall through to a synchronous refetch.
		}
	}
	cacheMisses.Inc()

	res, err := f.coalesce(ctx, key, fetch)
	if err != nil {
		return nil, err
	}
	f.storeResult(ctx, key, strat, res)
	return res, nil
}

// Invalidate removes the entry for key, if any.
func (f *Fetcher) Invalidate(ctx context.Context, key string) error {
	if f.store == nil {
		return nil
	}
	return f.store.Delete(ctx, key)
}

// coalesce runs fetch through the in-flight ticket for key: concurrent
// callers with the same key share one upstream call and one outcome. The
// ticket is dropped as soon as the call settles, so a failure is observed
// only by the callers that were already waiting on it.
func (f *Fetcher) coalesce(ctx context.Context, key string, fetch FetchFunc) (*Result, error) {
	v, err, shared := f.group.Do(key, func() (interface{}, error) {
		return fetch(ctx)
	})
	if shared {
		coalescedCalls.Inc()
	}
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// storeResult writes a cacheable result, or clears a leftover expired entry
// when the fresh result must not be cached. Store errors are absorbed.
func (f *Fetcher) storeResult(ctx context.Context, key string, strat strategy.Strategy, res *Result) {
	if f.shouldCache(res) {
		entry := NewEntry(res.Body, res.StatusCode, res.Header, strat, f.now())
		if err := f.store.Set(ctx, key, entry, strat.TTL()); err != nil {
			f.logger.Warn().Err(err).Str("key", key).Msg("Failed to store cache entry")
		}
		return
	}
	// The refresh succeeded but its payload is not cacheable; drop any
	// stale entry so it cannot be served again.
	if err := f.store.Delete(ctx, key); err != nil {
		f.logger.Warn().Err(err).Str("key", key).Msg("Failed to drop stale cache entry")
	}
}

// scheduleRevalidation fires at most one background refresh for key. The
// refresh runs on a detached context: cancelling the request that observed
// the stale entry must not abort it.
func (f *Fetcher) scheduleRevalidation(key string, strat strategy.Strategy, fetch FetchFunc) {
	if _, loaded := f.revalidating.LoadOrStore(key, struct{}{}); loaded {
		return
	}

	started := f.runner.Go("revalidate", func() {
		defer f.revalidating.Delete(key)

		ctx := context.Background()
		res, err := f.coalesce(ctx, key, fetch)
		if err != nil {
			revalidations.WithLabelValues("error").Inc()
			f.logger.Warn().Err(err).Str("key", key).Msg("Background revalidation failed")
			return
		}
		f.storeResult(ctx, key, strat, res)
		revalidations.WithLabelValues("ok").Inc()
		f.logger.Debug().Str("key", key).Msg("Background revalidation complete")
	})
	if !started {
		f.revalidating.Delete(key)
	}
}

func entryResult(e *Entry) *Result {
	return &Result{
		Body:       e.Body,
		StatusCode: e.StatusCode,
		Header:     e.Header,
		Cached:     true,
	}
}
