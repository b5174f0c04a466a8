package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Key identifies the result set of one search.
type Key struct {
	// Query is the Sumo Logic query text.
	Query string

	// From and To bound the search window as sent to the API.
	From string
	To   string

	// TimeZone of the window (e.g. "UTC").
	TimeZone string

	// Kind is the result endpoint ("messages" or "records").
	Kind string

	// Limit is the requested record count, negative for unlimited.
	Limit int
}

// String generates a deterministic cache key string.
// Format: sumo:search:<kind>:<sha256 of the normalized search>
//
// Example:
//
//	sumo:search:messages:9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08
func (k Key) String() string {
	kind := k.Kind
	if kind == "" {
		kind = "messages"
	}

	tz := k.TimeZone
	if tz == "" {
		tz = "UTC"
	}

	normalized := strings.Join([]string{
		strings.TrimSpace(k.Query),
		k.From,
		k.To,
		tz,
		strconv.Itoa(k.Limit),
	}, "\x00")
	sum := sha256.Sum256([]byte(normalized))

	return "sumo:search:" + kind + ":" + hex.EncodeToString(sum[:])
}
