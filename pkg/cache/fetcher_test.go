package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/quayside/storefront-client/pkg/background"
	"github.com/quayside/storefront-client/pkg/strategy"
)

// countingFetch returns a FetchFunc that counts invocations and serves a
// payload that changes with every call.
func countingFetch(calls *int64) FetchFunc {
	return func(ctx context.Context) (*Result, error) {
		n := atomic.AddInt64(calls, 1)
		return &Result{
			Body:       []byte(fmt.Sprintf(`{"data":{"version":%d}}`, n)),
			StatusCode: 200,
			Header:     http.Header{},
		}, nil
	}
}

func newTestFetcher(t *testing.T, store Store, opts ...FetcherOption) (*Fetcher, *background.Runner) {
	t.Helper()
	runner := background.NewRunner(zerolog.Nop())
	return NewFetcher(store, runner, zerolog.Nop(), opts...), runner
}

func TestFetcher_MissThenFreshHit(t *testing.T) {
	f, _ := newTestFetcher(t, NewMemoryStore())
	ctx := context.Background()

	var calls int64
	fetch := countingFetch(&calls)

	first, err := f.Do(ctx, "k1", strategy.Long(), fetch)
	if err != nil {
		t.Fatalf("first Do failed: %v", err)
	}
	if first.Cached {
		t.Error("first call must not be served from cache")
	}

	second, err := f.Do(ctx, "k1", strategy.Long(), fetch)
	if err != nil {
		t.Fatalf("second Do failed: %v", err)
	}
	if !second.Cached {
		t.Error("second call within max-age must be a cache hit")
	}
	if !bytes.Equal(first.Body, second.Body) {
		t.Errorf("payloads differ: %s vs %s", first.Body, second.Body)
	}
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
}

func TestFetcher_CoalescesConcurrentCallers(t *testing.T) {
	f, _ := newTestFetcher(t, NewMemoryStore())
	ctx := context.Background()

	var calls int64
	release := make(chan struct{})
	fetch := func(ctx context.Context) (*Result, error) {
		atomic.AddInt64(&calls, 1)
		<-release
		return &Result{Body: []byte(`{"data":{}}`), StatusCode: 200, Header: http.Header{}}, nil
	}

	const n = 50
	results := make([]*Result, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.Do(ctx, "k1", strategy.Short(), fetch)
		}(i)
	}

	// Give every caller time to reach the coalescer before the single
	// upstream call is allowed to settle.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if !bytes.Equal(results[i].Body, results[0].Body) {
			t.Errorf("caller %d observed a different payload", i)
		}
	}
}

func TestFetcher_StaleServeThenSingleRefresh(t *testing.T) {
	store := NewMemoryStore()
	f, runner := newTestFetcher(t, store)
	ctx := context.Background()

	now := time.Now()
	f.now = func() time.Time { return now }

	var calls int64
	release := make(chan struct{})
	fetch := func(ctx context.Context) (*Result, error) {
		n := atomic.AddInt64(&calls, 1)
		if n > 1 {
			// Only background refreshes block; the initial fill
			// settles immediately.
			<-release
		}
		return &Result{
			Body:       []byte(fmt.Sprintf(`{"data":{"version":%d}}`, n)),
			StatusCode: 200,
			Header:     http.Header{},
		}, nil
	}

	// Fill the cache, then move past max-age but inside the stale window.
	if _, err := f.Do(ctx, "k1", strategy.Short(), fetch); err != nil {
		t.Fatalf("initial fill failed: %v", err)
	}
	now = now.Add(1500 * time.Millisecond)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.Do(ctx, "k1", strategy.Short(), fetch)
			if err != nil {
				t.Errorf("stale Do failed: %v", err)
				return
			}
			if !res.Cached {
				t.Error("stale hit blocked on the network")
			}
			if !bytes.Contains(res.Body, []byte(`"version":1`)) {
				t.Errorf("stale hit returned wrong payload: %s", res.Body)
			}
		}()
	}
	wg.Wait()

	// All ten callers returned without waiting on the refresh; let it
	// settle now and drain the runner.
	close(release)
	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := runner.Wait(waitCtx); err != nil {
		t.Fatalf("runner did not drain: %v", err)
	}

	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Errorf("upstream calls = %d, want 2 (fill + one refresh)", got)
	}

	// The refreshed entry replaced the stale one.
	entry, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("refreshed entry missing: %v", err)
	}
	if !bytes.Contains(entry.Body, []byte(`"version":2`)) {
		t.Errorf("stored entry not refreshed: %s", entry.Body)
	}
}

func TestFetcher_ExpiredForcesSynchronousRefetch(t *testing.T) {
	store := NewMemoryStore()
	f, _ := newTestFetcher(t, store)
	ctx := context.Background()

	now := time.Now()
	f.now = func() time.Time { return now }

	var calls int64
	fetch := countingFetch(&calls)

	if _, err := f.Do(ctx, "k1", strategy.Short(), fetch); err != nil {
		t.Fatalf("initial fill failed: %v", err)
	}

	// Past max-age + stale window.
	now = now.Add(11 * time.Second)

	res, err := f.Do(ctx, "k1", strategy.Short(), fetch)
	if err != nil {
		t.Fatalf("Do after expiry failed: %v", err)
	}
	if res.Cached {
		t.Error("expired entry was served instead of refetched")
	}
	if !bytes.Contains(res.Body, []byte(`"version":2`)) {
		t.Errorf("expired refetch returned wrong payload: %s", res.Body)
	}
	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}

	entry, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("replacement entry missing: %v", err)
	}
	if !bytes.Contains(entry.Body, []byte(`"version":2`)) {
		t.Errorf("entry not replaced: %s", entry.Body)
	}
}

func TestFetcher_MustRevalidateSkipsStaleServing(t *testing.T) {
	f, _ := newTestFetcher(t, NewMemoryStore())
	ctx := context.Background()

	now := time.Now()
	f.now = func() time.Time { return now }

	strat := strategy.Custom(1*time.Second, 9*time.Second, strategy.WithMustRevalidate())

	var calls int64
	fetch := countingFetch(&calls)

	if _, err := f.Do(ctx, "k1", strat, fetch); err != nil {
		t.Fatalf("initial fill failed: %v", err)
	}

	// Inside what would be the stale window.
	now = now.Add(1500 * time.Millisecond)

	res, err := f.Do(ctx, "k1", strat, fetch)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if res.Cached {
		t.Error("must-revalidate entry served stale")
	}
	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
}

func TestFetcher_UncacheableResponseNotStored(t *testing.T) {
	store := NewMemoryStore()
	f, _ := newTestFetcher(t, store, WithShouldCache(func(r *Result) bool {
		return !bytes.Contains(r.Body, []byte(`"errors"`))
	}))
	ctx := context.Background()

	var calls int64
	fetch := func(ctx context.Context) (*Result, error) {
		atomic.AddInt64(&calls, 1)
		return &Result{
			Body:       []byte(`{"errors":[{"message":"boom"}]}`),
			StatusCode: 200,
			Header:     http.Header{},
		}, nil
	}

	if _, err := f.Do(ctx, "k1", strategy.Long(), fetch); err != nil {
		t.Fatalf("first Do failed: %v", err)
	}
	if _, err := store.Get(ctx, "k1"); err != ErrMiss {
		t.Error("errored payload was stored")
	}

	// The following identical request must go upstream again.
	if _, err := f.Do(ctx, "k1", strategy.Long(), fetch); err != nil {
		t.Fatalf("second Do failed: %v", err)
	}
	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
}

func TestFetcher_FetchErrorNotRetained(t *testing.T) {
	f, _ := newTestFetcher(t, NewMemoryStore())
	ctx := context.Background()

	var calls int64
	boom := errors.New("upstream down")
	fetch := func(ctx context.Context) (*Result, error) {
		atomic.AddInt64(&calls, 1)
		if atomic.LoadInt64(&calls) == 1 {
			return nil, boom
		}
		return &Result{Body: []byte(`{"data":{}}`), StatusCode: 200, Header: http.Header{}}, nil
	}

	if _, err := f.Do(ctx, "k1", strategy.Long(), fetch); !errors.Is(err, boom) {
		t.Fatalf("Do = %v, want upstream error", err)
	}

	// The failed call must not leave a ticket or an entry behind.
	res, err := f.Do(ctx, "k1", strategy.Long(), fetch)
	if err != nil {
		t.Fatalf("retry Do failed: %v", err)
	}
	if res.Cached {
		t.Error("failure was served from cache")
	}
	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
}

// brokenStore fails every operation, simulating an unavailable backing
// medium.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (*Entry, error) {
	return nil, errors.New("store unavailable")
}
func (brokenStore) Set(context.Context, string, *Entry, time.Duration) error {
	return errors.New("store unavailable")
}
func (brokenStore) Delete(context.Context, string) error {
	return errors.New("store unavailable")
}

func TestFetcher_StoreFailureDegradesToPassThrough(t *testing.T) {
	f, _ := newTestFetcher(t, brokenStore{})
	ctx := context.Background()

	var calls int64
	fetch := countingFetch(&calls)

	res, err := f.Do(ctx, "k1", strategy.Long(), fetch)
	if err != nil {
		t.Fatalf("Do must absorb store failures, got: %v", err)
	}
	if res.Cached {
		t.Error("result cannot be cached when the store is down")
	}
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
}

func TestFetcher_NoneStrategyBypassesCache(t *testing.T) {
	store := NewMemoryStore()
	f, _ := newTestFetcher(t, store)
	ctx := context.Background()

	var calls int64
	fetch := countingFetch(&calls)

	for i := 0; i < 3; i++ {
		res, err := f.Do(ctx, "k1", strategy.None(), fetch)
		if err != nil {
			t.Fatalf("Do failed: %v", err)
		}
		if res.Cached {
			t.Error("ModeNone served a cached result")
		}
	}
	if got := atomic.LoadInt64(&calls); got != 3 {
		t.Errorf("upstream calls = %d, want 3", got)
	}
	if store.Len() != 0 {
		t.Errorf("ModeNone stored entries: %d", store.Len())
	}
}

func TestFetcher_Invalidate(t *testing.T) {
	store := NewMemoryStore()
	f, _ := newTestFetcher(t, store)
	ctx := context.Background()

	var calls int64
	fetch := countingFetch(&calls)

	if _, err := f.Do(ctx, "k1", strategy.Long(), fetch); err != nil {
		t.Fatalf("fill failed: %v", err)
	}
	if err := f.Invalidate(ctx, "k1"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	res, err := f.Do(ctx, "k1", strategy.Long(), fetch)
	if err != nil {
		t.Fatalf("Do after invalidate failed: %v", err)
	}
	if res.Cached {
		t.Error("invalidated entry was served")
	}
	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
}
