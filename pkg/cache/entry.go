// Package cache stores the results of finished searches so that repeated
// identical searches skip the create/poll/fetch/delete cycle.
package cache

import (
	"time"
)

// Entry is a cached search result set.
type Entry struct {
	// Records are the search results in offset order.
	Records []map[string]any `json:"records"`

	// CachedAt is when we cached the results.
	CachedAt time.Time `json:"cached_at"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
