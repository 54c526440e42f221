// Package strategy defines the caching policies understood by the
// storefront cache: how long an entry is fresh, how long it may be served
// stale while a background refresh runs, and how the same policy is
// advertised downstream as a Cache-Control header.
package strategy

import (
	"fmt"
	"strings"
	"time"
)

// Mode identifies a named caching policy.
type Mode int

const (
	// ModeNone disables caching entirely; every call goes upstream.
	ModeNone Mode = iota

	// ModeShort caches for 1s with a 9s stale window. Suitable for
	// frequently-changing data that tolerates brief staleness (cart
	// totals, inventory counts).
	ModeShort

	// ModeLong caches for 1h with a 23h stale window. Suitable for
	// slow-changing content (shop metadata, navigation menus).
	ModeLong

	// ModeCustom carries caller-supplied windows.
	ModeCustom
)

// String returns the mode name as used in logs and metrics labels.
func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeShort:
		return "short"
	case ModeLong:
		return "long"
	case ModeCustom:
		return "custom"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Strategy is an immutable caching policy. Construct one with None, Short,
// Long or Custom; never mutate the fields of an existing value.
type Strategy struct {
	Mode                 Mode
	MaxAge               time.Duration
	StaleWhileRevalidate time.Duration

	// MustRevalidate disables stale serving: once MaxAge elapses the
	// entry is treated as expired and the next caller refetches
	// synchronously.
	MustRevalidate bool

	// Private marks the policy as per-user; rendered as "private" in
	// Cache-Control so shared downstream caches do not store it.
	Private bool
}

// None returns the no-caching policy. It is the default for queries.
func None() Strategy {
	return Strategy{Mode: ModeNone}
}

// Short returns the preset for frequently-changing data: 1s fresh, 9s stale.
func Short() Strategy {
	return Strategy{
		Mode:                 ModeShort,
		MaxAge:               1 * time.Second,
		StaleWhileRevalidate: 9 * time.Second,
	}
}

// Long returns the preset for slow-changing content: 1h fresh, 23h stale.
func Long() Strategy {
	return Strategy{
		Mode:                 ModeLong,
		MaxAge:               1 * time.Hour,
		StaleWhileRevalidate: 23 * time.Hour,
	}
}

// Option customizes a Custom strategy.
type Option func(*Strategy)

// WithMustRevalidate disables stale serving for the strategy.
func WithMustRevalidate() Option {
	return func(s *Strategy) { s.MustRevalidate = true }
}

// WithPrivate marks the strategy as private (per-user responses).
func WithPrivate() Option {
	return func(s *Strategy) { s.Private = true }
}

// Custom returns a caller-defined policy with the given fresh and stale
// windows. Negative durations are clamped to zero.
func Custom(maxAge, staleWhileRevalidate time.Duration, opts ...Option) Strategy {
	if maxAge < 0 {
		maxAge = 0
	}
	if staleWhileRevalidate < 0 {
		staleWhileRevalidate = 0
	}
	s := Strategy{
		Mode:                 ModeCustom,
		MaxAge:               maxAge,
		StaleWhileRevalidate: staleWhileRevalidate,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Cacheable reports whether entries produced under this strategy should be
// stored at all.
func (s Strategy) Cacheable() bool {
	switch s.Mode {
	case ModeNone:
		return false
	case ModeShort, ModeLong, ModeCustom:
		return s.TTL() > 0
	default:
		return false
	}
}

// TTL returns the total lifetime of an entry: the fresh window plus the
// stale window. Past this point the entry is evicted and the next caller
// fetches synchronously.
func (s Strategy) TTL() time.Duration {
	if s.MustRevalidate {
		return s.MaxAge
	}
	return s.MaxAge + s.StaleWhileRevalidate
}

// CacheControl renders the strategy as a Cache-Control header value, so a
// downstream HTTP response can advertise the same policy to its own client.
func (s Strategy) CacheControl() string {
	if s.Mode == ModeNone {
		return "no-store"
	}

	directives := make([]string, 0, 4)
	if s.Private {
		directives = append(directives, "private")
	} else {
		directives = append(directives, "public")
	}
	directives = append(directives, fmt.Sprintf("max-age=%d", int(s.MaxAge.Seconds())))
	if s.MustRevalidate {
		directives = append(directives, "must-revalidate")
	} else if s.StaleWhileRevalidate > 0 {
		directives = append(directives, fmt.Sprintf("stale-while-revalidate=%d", int(s.StaleWhileRevalidate.Seconds())))
	}
	return strings.Join(directives, ", ")
}
