// Package search runs Sumo Logic search jobs end to end: create the job,
// poll it until the results are gathered, page through the results and
// delete the job again.
package search

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/Sternrassler/sumo-search-client/pkg/cache"
	"github.com/Sternrassler/sumo-search-client/pkg/pagination"
)

// JobState is the lifecycle state reported by the API.
type JobState string

const (
	StateNotStarted  JobState = "NOT STARTED"
	StateGathering   JobState = "GATHERING RESULTS"
	StateDone        JobState = "DONE GATHERING RESULTS"
	StateCancelled   JobState = "CANCELLED"
	StateForcePaused JobState = "FORCE PAUSED"
)

// IsTerminal reports whether the job will not change state anymore.
func (s JobState) IsTerminal() bool {
	switch s {
	case StateDone, StateCancelled, StateForcePaused:
		return true
	default:
		return false
	}
}

// Status is the job status document.
type Status struct {
	State           JobState `json:"state"`
	MessageCount    int      `json:"messageCount"`
	RecordCount     int      `json:"recordCount"`
	PendingWarnings []string `json:"pendingWarnings"`
	PendingErrors   []string `json:"pendingErrors"`
}

// Query describes one search.
type Query struct {
	// Query is the Sumo Logic query text.
	Query string

	// From and To bound the search window, ISO 8601 or epoch milliseconds.
	From string
	To   string

	// TimeZone of the window. Defaults to UTC.
	TimeZone string

	// Limit caps the number of results. Use pagination.NoLimit to fetch
	// everything. The zero value returns an empty result: the job still runs
	// and is deleted, but no page is requested.
	Limit int

	// Kind selects messages or aggregate records. Defaults to messages.
	Kind pagination.Kind
}

func (q Query) withDefaults() Query {
	if q.TimeZone == "" {
		q.TimeZone = "UTC"
	}
	if q.Kind == "" {
		q.Kind = pagination.KindMessages
	}
	return q
}

func (q Query) validate() error {
	if q.Query == "" {
		return fmt.Errorf("query is required")
	}
	if q.From == "" || q.To == "" {
		return fmt.Errorf("from and to are required")
	}
	switch q.Kind {
	case pagination.KindMessages, pagination.KindRecords:
	default:
		return fmt.Errorf("unknown result kind %q", q.Kind)
	}
	return nil
}

func (q Query) cacheKey() cache.Key {
	return cache.Key{
		Query:    q.Query,
		From:     q.From,
		To:       q.To,
		TimeZone: q.TimeZone,
		Kind:     string(q.Kind),
		Limit:    q.Limit,
	}
}

// createRequest is the POST /search/jobs body.
type createRequest struct {
	Query    string `json:"query"`
	From     string `json:"from"`
	To       string `json:"to"`
	TimeZone string `json:"timeZone"`
}

type createResponse struct {
	ID string `json:"id"`
}

// Progress is reported after every status poll.
type Progress struct {
	JobID        string
	State        JobState
	MessageCount int
	RecordCount  int
	Poll         int
	Interval     time.Duration
	Elapsed      time.Duration
}

// API is the subset of the HTTP client the search layer needs.
// *client.Client satisfies it.
type API interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body any, out any) error
	Delete(ctx context.Context, path string) error
}

// ResultCache stores finished result sets. *cache.Manager satisfies it.
type ResultCache interface {
	Get(ctx context.Context, key cache.Key) (*cache.Entry, error)
	Set(ctx context.Context, key cache.Key, records []map[string]any) error
}

func jobPath(jobID string) string {
	return "/search/jobs/" + url.PathEscape(jobID)
}
