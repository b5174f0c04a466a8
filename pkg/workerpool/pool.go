// Package workerpool runs a batch of independent tasks on a bounded number of
// goroutines and collects their results.
package workerpool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Prometheus metrics for the worker pool.
var (
	workerPoolInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sumo_worker_pool_inflight",
		Help: "Number of tasks currently executing in worker pools",
	})

	workerPoolTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sumo_worker_pool_tasks_total",
		Help: "Total worker pool tasks by outcome (ok, skipped, error)",
	}, []string{"outcome"})
)

// ErrSkip may be returned by a task to signal that it produced no result.
// Skipped tasks count as done but are left out of the returned slice.
var ErrSkip = errors.New("workerpool: skip result")

// DefaultMaxWorkers is used when New is called with a non-positive size.
const DefaultMaxWorkers = 10

// Pool bounds how many tasks of one Execute call run concurrently.
type Pool struct {
	maxWorkers int
	logger     zerolog.Logger
}

// New creates a Pool running at most maxWorkers tasks at once.
func New(maxWorkers int, logger zerolog.Logger) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	return &Pool{
		maxWorkers: maxWorkers,
		logger:     logger.With().Str("component", "worker-pool").Logger(),
	}
}

// MaxWorkers returns the concurrency bound.
func (p *Pool) MaxWorkers() int {
	return p.maxWorkers
}

// Callbacks observe the progress of an Execute call. Any field may be nil.
// OnProgress is invoked while the result lock is held and must not block.
type Callbacks[R any] struct {
	OnStart    func(workers, total int)
	OnProgress func(done, total int)
	OnFinish   func(results []R, elapsed time.Duration)
}

// Execute runs fn for every item using min(MaxWorkers, len(items)) workers.
// Results are returned in completion order. The first error cancels the
// context passed to the remaining tasks; Execute waits for every worker
// before returning it.
func Execute[T, R any](ctx context.Context, p *Pool, items []T, fn func(context.Context, T) (R, error), cb *Callbacks[R]) ([]R, error) {
	if cb == nil {
		cb = &Callbacks[R]{}
	}
	if len(items) == 0 {
		if cb.OnFinish != nil {
			cb.OnFinish(nil, 0)
		}
		return nil, nil
	}

	workers := min(p.maxWorkers, len(items))
	total := len(items)
	start := time.Now()

	queue := make(chan T, total)
	for _, item := range items {
		queue <- item
	}
	close(queue)

	if cb.OnStart != nil {
		cb.OnStart(workers, total)
	}
	p.logger.Debug().Int("workers", workers).Int("tasks", total).Msg("Starting batch")

	var (
		mu      sync.Mutex
		results = make([]R, 0, total)
		done    int
	)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for item := range queue {
				if err := gctx.Err(); err != nil {
					return err
				}

				workerPoolInflight.Inc()
				result, err := fn(gctx, item)
				workerPoolInflight.Dec()

				switch {
				case errors.Is(err, ErrSkip):
					workerPoolTasksTotal.WithLabelValues("skipped").Inc()
				case err != nil:
					workerPoolTasksTotal.WithLabelValues("error").Inc()
					return err
				default:
					workerPoolTasksTotal.WithLabelValues("ok").Inc()
				}

				mu.Lock()
				if err == nil {
					results = append(results, result)
				}
				done++
				if cb.OnProgress != nil {
					cb.OnProgress(done, total)
				}
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		p.logger.Debug().Err(err).Int("done", done).Int("tasks", total).Msg("Batch aborted")
		return nil, err
	}

	elapsed := time.Since(start)
	if cb.OnFinish != nil {
		cb.OnFinish(results, elapsed)
	}
	p.logger.Debug().
		Int("results", len(results)).
		Dur("elapsed", elapsed).
		Msg("Batch finished")
	return results, nil
}
