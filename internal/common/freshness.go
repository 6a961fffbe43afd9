// Package common provides shared utilities for Benchfolio
package common

import "time"

// Freshness TTLs for price data. Historical closes never go stale once the
// market day has ended; only the current-day price has a meaningful window.
const (
	FreshnessCurrentPrice = 15 * time.Minute
	FreshnessTodayClose   = 1 * time.Hour
)

// IsFresh returns true if the given timestamp is within the TTL.
func IsFresh(updated time.Time, ttl time.Duration) bool {
	if updated.IsZero() {
		return false
	}
	return time.Since(updated) < ttl
}

// IsFreshAt is the clock-injectable variant of IsFresh, used where services
// carry a now() func for testing.
func IsFreshAt(now, updated time.Time, ttl time.Duration) bool {
	if updated.IsZero() {
		return false
	}
	return now.Sub(updated) < ttl
}
