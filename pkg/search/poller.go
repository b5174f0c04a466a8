package search

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var pollIterationsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sumo_poll_iterations_total",
	Help: "Total number of search job status polls",
})

// PollerConfig holds the poll schedule.
type PollerConfig struct {
	// InitialInterval is the wait after the first poll.
	InitialInterval time.Duration

	// MaxInterval caps the growing interval.
	MaxInterval time.Duration

	// BackoffFactor multiplies the interval after each poll.
	BackoffFactor float64

	// Timeout bounds the total time spent waiting for a job.
	Timeout time.Duration

	// OnProgress is called after every poll. Nil logs a progress line instead.
	OnProgress func(Progress)
}

// DefaultPollerConfig returns the default poll schedule.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		InitialInterval: 5 * time.Second,
		MaxInterval:     20 * time.Second,
		BackoffFactor:   1.5,
		Timeout:         300 * time.Second,
	}
}

// Poller waits for search jobs to finish gathering results.
type Poller struct {
	api    API
	config PollerConfig
	logger zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a Poller. Zero config fields take their defaults.
func NewPoller(api API, config PollerConfig, logger zerolog.Logger) *Poller {
	defaults := DefaultPollerConfig()
	if config.InitialInterval <= 0 {
		config.InitialInterval = defaults.InitialInterval
	}
	if config.MaxInterval <= 0 {
		config.MaxInterval = defaults.MaxInterval
	}
	if config.MaxInterval < config.InitialInterval {
		config.MaxInterval = config.InitialInterval
	}
	if config.BackoffFactor < 1 {
		config.BackoffFactor = defaults.BackoffFactor
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	return &Poller{
		api:    api,
		config: config,
		logger: logger.With().Str("component", "poller").Logger(),
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Status fetches the current status of jobID.
func (p *Poller) Status(ctx context.Context, jobID string) (*Status, error) {
	var status Status
	if err := p.api.Get(ctx, jobPath(jobID), nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Poll blocks until jobID is done gathering results. It fails with a
// *TimeoutError once the timeout has passed and with a *JobError when
// the job is cancelled or force paused.
func (p *Poller) Poll(ctx context.Context, jobID string) (*Status, error) {
	start := p.now()
	interval := p.config.InitialInterval

	for poll := 1; ; poll++ {
		elapsed := p.now().Sub(start)
		if elapsed > p.config.Timeout {
			return nil, &TimeoutError{JobID: jobID, Timeout: p.config.Timeout, Elapsed: elapsed}
		}

		status, err := p.Status(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("poll job %s: %w", jobID, err)
		}
		pollIterationsTotal.Inc()

		p.report(Progress{
			JobID:        jobID,
			State:        status.State,
			MessageCount: status.MessageCount,
			RecordCount:  status.RecordCount,
			Poll:         poll,
			Interval:     interval,
			Elapsed:      elapsed,
		})

		if status.State.IsTerminal() {
			if status.State == StateDone {
				return status, nil
			}
			return nil, &JobError{JobID: jobID, State: status.State, Message: "job did not complete"}
		}

		if err := p.sleep(ctx, interval); err != nil {
			return nil, fmt.Errorf("poll job %s: %w", jobID, err)
		}
		interval = min(time.Duration(float64(interval)*p.config.BackoffFactor), p.config.MaxInterval)
	}
}

func (p *Poller) report(progress Progress) {
	if p.config.OnProgress != nil {
		p.config.OnProgress(progress)
		return
	}
	p.logger.Info().
		Str("job_id", progress.JobID).
		Str("state", string(progress.State)).
		Int("messages", progress.MessageCount).
		Int("records", progress.RecordCount).
		Int("poll", progress.Poll).
		Dur("elapsed", progress.Elapsed).
		Msg("Search job status")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
