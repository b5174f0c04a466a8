package search

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Sternrassler/sumo-search-client/pkg/cache"
	"github.com/Sternrassler/sumo-search-client/pkg/client"
	"github.com/Sternrassler/sumo-search-client/pkg/pagination"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Prometheus metrics for search jobs.
var (
	searchJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sumo_search_jobs_total",
		Help: "Total searches by outcome (ok, cached, create_failed, timeout, job_error, error)",
	}, []string{"outcome"})

	searchJobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sumo_search_job_duration_seconds",
		Help:    "Duration of searches from job creation to job deletion",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	searchJobDeletesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sumo_search_job_deletes_total",
		Help: "Total search job deletions by result (ok, not_found, failed)",
	}, []string{"result"})
)

// Config holds the searcher configuration.
type Config struct {
	// Poller controls how job status is polled.
	Poller PollerConfig

	// DeleteTimeout bounds the cleanup request. Cleanup runs even when the
	// caller's context is already cancelled.
	DeleteTimeout time.Duration

	// Cache optionally stores finished result sets.
	Cache ResultCache
}

// DefaultConfig returns the default searcher configuration.
func DefaultConfig() Config {
	return Config{
		Poller:        DefaultPollerConfig(),
		DeleteTimeout: 30 * time.Second,
	}
}

// Searcher runs search jobs. It deletes every job it creates exactly once,
// whether the search succeeds or fails.
type Searcher struct {
	api       API
	poller    *Poller
	paginator *pagination.Paginator
	cache     ResultCache
	logger    zerolog.Logger

	deleteTimeout time.Duration
	deleted       sync.Map // job id -> struct{}
	flight        singleflight.Group

	mu    sync.Mutex
	calls map[string]*flightCall // query key -> running shared search
}

// flightCall is a shared search detached from any single caller. Its context
// is cancelled once the last waiting caller has left.
type flightCall struct {
	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewSearcher creates a Searcher using api for job management and paginator
// for result retrieval.
func NewSearcher(api API, paginator *pagination.Paginator, config Config, logger zerolog.Logger) *Searcher {
	if config.DeleteTimeout <= 0 {
		config.DeleteTimeout = DefaultConfig().DeleteTimeout
	}
	return &Searcher{
		api:           api,
		poller:        NewPoller(api, config.Poller, logger),
		paginator:     paginator,
		cache:         config.Cache,
		logger:        logger.With().Str("component", "searcher").Logger(),
		deleteTimeout: config.DeleteTimeout,
		calls:         make(map[string]*flightCall),
	}
}

// Execute runs q to completion and returns its results in offset order.
// Identical concurrent calls share one search job. A caller whose ctx ends
// returns early without affecting the others; the job is cancelled and
// deleted once no caller is waiting for it anymore.
func (s *Searcher) Execute(ctx context.Context, q Query) ([]pagination.Record, error) {
	q = q.withDefaults()
	if err := q.validate(); err != nil {
		return nil, err
	}

	key := q.cacheKey()
	if records, ok := s.cached(ctx, key); ok {
		searchJobsTotal.WithLabelValues("cached").Inc()
		return records, nil
	}

	call := s.join(ctx, key.String())
	ch := s.flight.DoChan(call.key, func() (any, error) {
		return s.execute(call.ctx, q)
	})

	select {
	case res := <-ch:
		s.leave(key.String(), call)
		if res.Err != nil {
			return nil, res.Err
		}
		records := res.Val.([]pagination.Record)
		if res.Shared {
			records = slices.Clone(records)
		}
		return records, nil
	case <-ctx.Done():
		if s.leave(key.String(), call) {
			// Last waiter: the search is being torn down, wait for its cleanup.
			<-ch
		}
		return nil, fmt.Errorf("search abandoned: %w", ctx.Err())
	}
}

// join registers the caller with the running search for key, starting a new
// detached one when none is running.
func (s *Searcher) join(ctx context.Context, key string) *flightCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	call, ok := s.calls[key]
	if !ok {
		flightCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		call = &flightCall{
			key:    key + "/" + uuid.NewString(),
			ctx:    flightCtx,
			cancel: cancel,
		}
		s.calls[key] = call
	}
	call.waiters++
	return call
}

// leave unregisters a caller and reports whether it was the last one.
func (s *Searcher) leave(key string, call *flightCall) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	call.waiters--
	if call.waiters > 0 {
		return false
	}
	call.cancel()
	if s.calls[key] == call {
		delete(s.calls, key)
	}
	return true
}

// Stream runs q like Execute but hands records to fn page by page instead of
// collecting them. It returns the number of records delivered.
func (s *Searcher) Stream(ctx context.Context, q Query, fn func(pagination.Record) error) (count int, err error) {
	q = q.withDefaults()
	if err := q.validate(); err != nil {
		return 0, err
	}

	logger := s.searchLogger()
	start := time.Now()

	jobID, err := s.Create(ctx, q)
	if err != nil {
		searchJobsTotal.WithLabelValues("create_failed").Inc()
		return 0, err
	}
	defer func() {
		s.cleanup(ctx, jobID, logger)
		s.observe(start, err)
	}()

	if _, err := s.poller.Poll(ctx, jobID); err != nil {
		return 0, err
	}

	count, err = s.paginator.WithKind(q.Kind).Stream(ctx, jobID, q.Limit, fn)
	if err != nil {
		return count, fmt.Errorf("stream results of job %s: %w", jobID, err)
	}

	logger.Info().
		Str("job_id", jobID).
		Int("count", count).
		Dur("duration", time.Since(start)).
		Msg("Search stream complete")
	return count, nil
}

// Create submits q and returns the new job id.
func (s *Searcher) Create(ctx context.Context, q Query) (string, error) {
	q = q.withDefaults()

	var resp createResponse
	err := s.api.Post(ctx, "/search/jobs", createRequest{
		Query:    q.Query,
		From:     q.From,
		To:       q.To,
		TimeZone: q.TimeZone,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("create search job: %w", err)
	}
	if resp.ID == "" {
		return "", &JobError{Message: "no job id returned by create"}
	}

	s.logger.Info().
		Str("job_id", resp.ID).
		Str("from", q.From).
		Str("to", q.To).
		Msg("Search job created")
	return resp.ID, nil
}

// Poll waits for jobID to finish gathering results.
func (s *Searcher) Poll(ctx context.Context, jobID string) (*Status, error) {
	return s.poller.Poll(ctx, jobID)
}

// FetchAll retrieves up to limit messages of a finished job.
func (s *Searcher) FetchAll(ctx context.Context, jobID string, limit int) ([]pagination.Record, error) {
	return s.paginator.FetchAll(ctx, jobID, limit)
}

// Delete removes jobID on the server. Only the first call for an id sends a
// request; later calls return nil. A job the server no longer knows counts
// as deleted.
func (s *Searcher) Delete(ctx context.Context, jobID string) error {
	if _, loaded := s.deleted.LoadOrStore(jobID, struct{}{}); loaded {
		return nil
	}

	err := s.api.Delete(ctx, jobPath(jobID))
	switch {
	case err == nil:
		searchJobDeletesTotal.WithLabelValues("ok").Inc()
		s.logger.Debug().Str("job_id", jobID).Msg("Search job deleted")
		return nil
	case client.IsNotFound(err):
		searchJobDeletesTotal.WithLabelValues("not_found").Inc()
		return nil
	default:
		searchJobDeletesTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("delete search job %s: %w", jobID, err)
	}
}

func (s *Searcher) execute(ctx context.Context, q Query) (records []pagination.Record, err error) {
	logger := s.searchLogger()
	start := time.Now()

	jobID, err := s.Create(ctx, q)
	if err != nil {
		searchJobsTotal.WithLabelValues("create_failed").Inc()
		return nil, err
	}
	defer func() {
		s.cleanup(ctx, jobID, logger)
		s.observe(start, err)
	}()

	status, err := s.poller.Poll(ctx, jobID)
	if err != nil {
		return nil, err
	}

	records, err = s.paginator.WithKind(q.Kind).FetchAll(ctx, jobID, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("fetch results of job %s: %w", jobID, err)
	}

	logger.Info().
		Str("job_id", jobID).
		Int("message_count", status.MessageCount).
		Int("record_count", status.RecordCount).
		Int("fetched", len(records)).
		Dur("duration", time.Since(start)).
		Msg("Search complete")

	if s.cache != nil {
		if err := s.cache.Set(ctx, q.cacheKey(), slices.Clone(records)); err != nil {
			logger.Warn().Err(err).Msg("Failed to cache search results")
		}
	}
	return records, nil
}

// cleanup deletes jobID detached from ctx cancellation. Failures are logged only.
func (s *Searcher) cleanup(ctx context.Context, jobID string, logger zerolog.Logger) {
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deleteTimeout)
	defer cancel()

	if err := s.Delete(deleteCtx, jobID); err != nil {
		logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to delete search job")
	}
}

func (s *Searcher) cached(ctx context.Context, key cache.Key) ([]pagination.Record, bool) {
	if s.cache == nil {
		return nil, false
	}
	entry, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn().Err(err).Msg("Result cache lookup failed")
		}
		return nil, false
	}
	s.logger.Debug().Int("count", len(entry.Records)).Msg("Serving search from cache")
	return slices.Clone(entry.Records), true
}

func (s *Searcher) observe(start time.Time, err error) {
	searchJobDuration.Observe(time.Since(start).Seconds())

	var timeoutErr *TimeoutError
	var jobErr *JobError
	switch {
	case err == nil:
		searchJobsTotal.WithLabelValues("ok").Inc()
	case errors.As(err, &timeoutErr):
		searchJobsTotal.WithLabelValues("timeout").Inc()
	case errors.As(err, &jobErr):
		searchJobsTotal.WithLabelValues("job_error").Inc()
	default:
		searchJobsTotal.WithLabelValues("error").Inc()
	}
}

func (s *Searcher) searchLogger() zerolog.Logger {
	return s.logger.With().Str("search_id", uuid.NewString()).Logger()
}
