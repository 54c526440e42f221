package cache

import (
	"net/http"
	"time"

	"github.com/quayside/storefront-client/pkg/strategy"
)

// State classifies an entry's freshness at a point in time.
type State int

const (
	// StateFresh means the entry is within its max-age window and can be
	// served without any upstream contact.
	StateFresh State = iota

	// StateStale means max-age has elapsed but the stale-while-revalidate
	// window has not; the entry may be served while a background refresh
	// runs.
	StateStale

	// StateExpired means the entry's total lifetime has elapsed (or the
	// strategy demands revalidation); it must be replaced synchronously.
	StateExpired
)

// String returns the state name as used in logs and metrics labels.
func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Entry is a cached upstream response. Entries are never mutated in place;
// a refresh replaces the entry wholesale.
type Entry struct {
	// Body is the raw response body.
	Body []byte `json:"body"`

	// StatusCode is the HTTP status of the cached response.
	StatusCode int `json:"status_code"`

	// Header holds the response headers at the time of caching.
	Header http.Header `json:"header"`

	// StoredAt is when the entry was written.
	StoredAt time.Time `json:"stored_at"`

	// Strategy is the policy the entry was stored under.
	Strategy strategy.Strategy `json:"strategy"`
}

// NewEntry builds an entry from a fetched response under the given policy.
func NewEntry(body []byte, statusCode int, header http.Header, strat strategy.Strategy, now time.Time) *Entry {
	return &Entry{
		Body:       body,
		StatusCode: statusCode,
		Header:     header.Clone(),
		StoredAt:   now,
		Strategy:   strat,
	}
}

// State classifies the entry against now. MustRevalidate strategies skip the
// stale window entirely: the entry goes straight from fresh to expired.
func (e *Entry) State(now time.Time) State {
	age := now.Sub(e.StoredAt)
	if age < e.Strategy.MaxAge {
		return StateFresh
	}
	if e.Strategy.MustRevalidate {
		return StateExpired
	}
	if age < e.Strategy.MaxAge+e.Strategy.StaleWhileRevalidate {
		return StateStale
	}
	return StateExpired
}

// TTL returns the remaining total lifetime of the entry at now.
// Returns 0 if the entry is already expired.
func (e *Entry) TTL(now time.Time) time.Duration {
	ttl := e.Strategy.TTL() - now.Sub(e.StoredAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}
