// Package ratelimit tracks the Sumo Logic API rate limit and schedules
// requests around it. It parses the Retry-After and X-RateLimit-* headers,
// keeps the last observed quota (optionally shared between processes through
// Redis) and throttles outgoing requests with a token bucket.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyLimit     = "sumo:rate_limit:limit"
	RedisKeyRemaining = "sumo:rate_limit:remaining"
	RedisKeyResetAt   = "sumo:rate_limit:reset_at"
	RedisKeyUpdatedAt = "sumo:rate_limit:updated_at"
)

// State is the last known API quota.
type State struct {
	// Limit is the request quota of the current window (X-RateLimit-Limit).
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the window (X-RateLimit-Remaining).
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when the state was last observed.
	LastUpdate time.Time `json:"last_update"`

	// Known is false until a response carried X-RateLimit-Remaining.
	Known bool `json:"known"`
}

// IsStale returns true if the state was last observed more than maxAge before now.
func (s *State) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.LastUpdate) > maxAge
}

// Exhausted reports whether the quota is used up and the window has not reset yet.
func (s *State) Exhausted(now time.Time) bool {
	return s.Known && s.Remaining <= 0 && now.Before(s.ResetAt)
}

// TimeUntilReset returns the duration until the window resets, or 0 if it already has.
func (s *State) TimeUntilReset(now time.Time) time.Duration {
	d := s.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Apply merges the fields present in info into the state.
func (s *State) Apply(info Info, now time.Time) {
	if info.Limit != nil {
		s.Limit = *info.Limit
	}
	if info.Remaining != nil {
		s.Remaining = *info.Remaining
		s.Known = true
	}
	if info.ResetAt != nil {
		s.ResetAt = *info.ResetAt
	}
	if info.RetryAfter != nil && *info.RetryAfter > 0 {
		at := now.Add(time.Duration(*info.RetryAfter) * time.Second)
		if at.After(s.ResetAt) {
			s.ResetAt = at
		}
		s.Remaining = 0
		s.Known = true
	}
	s.LastUpdate = now
}
