package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/Sternrassler/sumo-search-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	sumoRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sumo_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	sumoRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sumo_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	sumoRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sumo_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// BaseDelay is the first backoff step.
	BaseDelay time.Duration

	// MaxDelay caps every wait, including Retry-After and reset hints from the server.
	MaxDelay time.Duration

	// JitterFraction is the maximum random addition relative to the backoff.
	JitterFraction float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		BaseDelay:      1 * time.Second,
		MaxDelay:       30 * time.Second,
		JitterFraction: 0.5,
	}
}

// Delay computes the wait before retry number attempt (1-based).
// A positive server-provided delay in info wins over exponential backoff.
// Both are clamped to MaxDelay.
func (c RetryConfig) Delay(attempt int, info *ratelimit.Info) time.Duration {
	return c.delay(attempt, info, time.Now(), rand.Float64)
}

func (c RetryConfig) delay(attempt int, info *ratelimit.Info, now time.Time, random func() float64) time.Duration {
	if info != nil {
		if d, ok := info.Delay(now); ok {
			if c.MaxDelay > 0 && d > c.MaxDelay {
				return c.MaxDelay
			}
			return d
		}
	}

	if attempt < 1 {
		attempt = 1
	}
	backoff := float64(c.BaseDelay) * math.Pow(2, float64(attempt-1))
	backoff += backoff * c.JitterFraction * random()

	if c.MaxDelay > 0 && backoff > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(backoff)
}

// retryWithBackoff runs fn until it succeeds, returns a non-retryable error or
// the attempt budget (MaxRetries+1) is spent. It respects context cancellation
// between attempts.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, fn func(attempt int) error) error {
	attempts := cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	var errorClass ErrorClass

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("error_class", string(errorClass)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		errorClass = Classify(err)

		if !shouldRetry(errorClass) {
			return lastErr
		}

		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, lastErr)
		}

		if attempt >= attempts {
			break
		}

		var info *ratelimit.Info
		var rateErr *RateLimitError
		if errors.As(err, &rateErr) {
			info = &rateErr.Info
		}
		delay := cfg.Delay(attempt, info)

		sumoRetriesTotal.WithLabelValues(string(errorClass)).Inc()
		sumoRetryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(delay.Seconds())

		logger.Warn().
			Err(err).
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Dur("backoff", delay).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Warn().
				Str("error_class", string(errorClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	sumoRetryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
	logger.Warn().
		Str("error_class", string(errorClass)).
		Int("max_attempts", attempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, lastErr)
}
