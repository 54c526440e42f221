package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMiss indicates the requested key was not found in the store.
	ErrMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates a stored entry could not be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is the minimal backing-store contract for cached entries. Any
// key-value medium that supports TTLs can implement it.
//
// Implementations must be safe for concurrent use: operations on different
// keys must not block each other, and operations on the same key must be
// linearizable (a reader never observes a torn entry). Store failures are
// surfaced as errors and treated as non-fatal by the Fetcher.
type Store interface {
	// Get returns the entry for key, or ErrMiss if absent or expired.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set stores the entry under key for at most ttl.
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error

	// Delete removes the entry for key. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, key string) error
}
