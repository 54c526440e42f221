package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quayside/storefront-client/pkg/cache"
)

var retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "storefront_retries_total",
	Help: "Total retry attempts by operation",
}, []string{"operation"})

// ErrRetryExhausted is returned when all retry attempts are exhausted.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

const (
	maxBackoff        = 10 * time.Second
	backoffMultiplier = 2.0
)

// shouldRetry reports whether an error is worth another attempt: transport
// failures and 5xx responses are; 4xx and GraphQL-level errors are not.
func shouldRetry(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode >= 500
	}
	return false
}

// withRetry executes attempt with exponential backoff and jitter. Only the
// query/fetch path goes through here; mutations are non-idempotent and
// always single-shot.
func (c *Client) withRetry(ctx context.Context, operation string, attempt func(context.Context) (*cache.Result, error)) (*cache.Result, error) {
	maxAttempts := c.config.MaxRetries + 1
	backoff := c.config.InitialBackoff

	var lastErr error
	for i := 1; i <= maxAttempts; i++ {
		res, err := attempt(ctx)
		if err == nil {
			if i > 1 {
				c.logger.Info().
					Str("operation", operation).
					Int("attempt", i).
					Msg("Request succeeded after retry")
			}
			return res, nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return nil, err
		}
		if i >= maxAttempts {
			break
		}

		retriesTotal.WithLabelValues(operation).Inc()

		// ±20% jitter to avoid synchronized retries.
		delay := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		c.logger.Debug().
			Str("operation", operation).
			Int("attempt", i).
			Dur("backoff", delay).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-time.After(delay):
		}

		backoff = time.Duration(float64(backoff) * backoffMultiplier)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, maxAttempts, lastErr)
}
