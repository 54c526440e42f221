// Package background provides a small runner for fire-and-forget tasks
// whose lifetime is decoupled from the request that spawned them, such as
// cache revalidations. Tasks are tracked so a graceful shutdown can drain
// them instead of killing them mid-flight.
package background

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Runner spawns and tracks detached tasks.
type Runner struct {
	wg     sync.WaitGroup
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// NewRunner creates a Runner that logs task panics through logger.
func NewRunner(logger zerolog.Logger) *Runner {
	return &Runner{logger: logger}
}

// Go runs fn in its own goroutine. The task is tracked until it returns and
// survives cancellation of whatever request scheduled it. Panics are
// recovered and logged so one bad task cannot take the process down.
//
// Returns false if the runner is already draining; fn is not started.
func (r *Runner) Go(name string, fn func()) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn().Str("task", name).Msg("Runner draining, task rejected")
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error().
					Str("task", name).
					Interface("panic", rec).
					Msg("Background task panicked")
			}
		}()
		fn()
	}()
	return true
}

// Wait blocks until all running tasks finish or ctx is done, whichever comes
// first. New tasks are rejected once Wait has been called.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
