package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Rate limit response headers.
const (
	HeaderRetryAfter = "Retry-After"
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
)

// epochThreshold separates absolute reset timestamps (Unix seconds) from
// relative "seconds until reset" values in X-RateLimit-Reset.
const epochThreshold = 1_000_000_000

// Info is the rate limit metadata carried by a single response.
// Every field is optional; nil means the header was absent or unparsable.
type Info struct {
	RetryAfter *int       `json:"retry_after,omitempty"`
	Limit      *int       `json:"limit,omitempty"`
	Remaining  *int       `json:"remaining,omitempty"`
	ResetAt    *time.Time `json:"reset_at,omitempty"`
}

// ParseHeaders extracts Info from response headers.
func ParseHeaders(h http.Header, now time.Time) Info {
	var info Info

	if v := strings.TrimSpace(h.Get(HeaderRetryAfter)); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			info.RetryAfter = &secs
		} else if at, err := http.ParseTime(v); err == nil {
			secs := int(at.Sub(now).Round(time.Second) / time.Second)
			if secs < 0 {
				secs = 0
			}
			info.RetryAfter = &secs
		}
	}

	if v, ok := parseIntHeader(h.Get(HeaderLimit)); ok {
		info.Limit = &v
	}
	if v, ok := parseIntHeader(h.Get(HeaderRemaining)); ok {
		info.Remaining = &v
	}

	if v := strings.TrimSpace(h.Get(HeaderReset)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			var at time.Time
			if n >= epochThreshold {
				at = time.Unix(n, 0)
			} else {
				at = now.Add(time.Duration(n) * time.Second)
			}
			info.ResetAt = &at
		}
	}

	return info
}

// Empty reports whether no rate limit header was present.
func (i Info) Empty() bool {
	return i.RetryAfter == nil && i.Limit == nil && i.Remaining == nil && i.ResetAt == nil
}

// Delay returns the wait the server asked for. Retry-After wins over
// X-RateLimit-Reset; the reset-derived value is clamped to zero.
// The boolean is false when the server gave no positive delay.
func (i Info) Delay(now time.Time) (time.Duration, bool) {
	if i.RetryAfter != nil && *i.RetryAfter > 0 {
		return time.Duration(*i.RetryAfter) * time.Second, true
	}
	if i.ResetAt != nil {
		d := i.ResetAt.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, d > 0
	}
	return 0, false
}

func parseIntHeader(v string) (int, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
