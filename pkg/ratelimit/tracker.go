package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for rate limit tracking.
var (
	sumoRateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sumo_rate_limit_remaining",
		Help: "Requests remaining in the current Sumo Logic rate limit window",
	})

	sumoRateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sumo_rate_limit_waits_total",
		Help: "Total number of requests held back until the rate limit window reset",
	})

	sumoRateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sumo_rate_limit_wait_seconds",
		Help:    "Time requests spent waiting for the rate limit window to reset",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})
)

// Config holds tracker configuration.
type Config struct {
	// RequestsPerSecond is the proactive throttle rate. Zero disables throttling.
	RequestsPerSecond float64

	// Burst is the token bucket size (default 1).
	Burst int

	// MaxWait bounds how long Wait holds a request for an exhausted window.
	MaxWait time.Duration

	// MaxStateAge is how long an observed quota is trusted. Older state no
	// longer holds requests back.
	MaxStateAge time.Duration

	// Redis optionally shares the observed quota between processes.
	Redis *redis.Client
}

// DefaultConfig returns the default tracker configuration.
// Sumo Logic allows 4 API requests per second per user.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 4,
		Burst:             4,
		MaxWait:           60 * time.Second,
		MaxStateAge:       5 * time.Minute,
	}
}

// Tracker observes rate limit headers and gates outgoing requests.
type Tracker struct {
	mu          sync.Mutex
	state       State
	redis       *redis.Client
	bucket      *rate.Limiter
	maxWait     time.Duration
	maxStateAge time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// NewTracker creates a new rate limit tracker.
func NewTracker(cfg Config, logger zerolog.Logger) *Tracker {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultConfig().MaxWait
	}
	if cfg.MaxStateAge <= 0 {
		cfg.MaxStateAge = DefaultConfig().MaxStateAge
	}

	return &Tracker{
		redis:       cfg.Redis,
		bucket:      rate.NewLimiter(limit, burst),
		maxWait:     cfg.MaxWait,
		maxStateAge: cfg.MaxStateAge,
		logger:      logger.With().Str("component", "rate-limit").Logger(),
		now:         time.Now,
	}
}

// GetState returns the current rate limit state. With Redis configured the
// shared state wins; otherwise the locally observed state is returned.
func (t *Tracker) GetState(ctx context.Context) (State, error) {
	t.mu.Lock()
	local := t.state
	t.mu.Unlock()

	if t.redis == nil {
		return local, nil
	}

	remaining, err := t.redis.Get(ctx, RedisKeyRemaining).Int()
	if errors.Is(err, redis.Nil) {
		return local, nil
	}
	if err != nil {
		return local, fmt.Errorf("get remaining: %w", err)
	}

	limit, err := t.redis.Get(ctx, RedisKeyLimit).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return local, fmt.Errorf("get limit: %w", err)
	}

	resetUnix, err := t.redis.Get(ctx, RedisKeyResetAt).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return local, fmt.Errorf("get reset timestamp: %w", err)
	}

	var updatedAt time.Time
	if raw, err := t.redis.Get(ctx, RedisKeyUpdatedAt).Bytes(); err == nil {
		if err := json.Unmarshal(raw, &updatedAt); err != nil {
			return local, fmt.Errorf("parse last update: %w", err)
		}
	}

	return State{
		Limit:      limit,
		Remaining:  remaining,
		ResetAt:    time.Unix(resetUnix, 0),
		LastUpdate: updatedAt,
		Known:      true,
	}, nil
}

// Observe records the rate limit metadata of a response.
func (t *Tracker) Observe(ctx context.Context, info Info) error {
	if info.Empty() {
		return nil
	}

	now := t.now()
	t.mu.Lock()
	t.state.Apply(info, now)
	state := t.state
	t.mu.Unlock()

	if state.Known {
		sumoRateLimitRemaining.Set(float64(state.Remaining))
	}

	if state.Remaining <= 0 && state.Known {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit exhausted - requests will wait for reset")
	} else {
		t.logger.Debug().
			Int("limit", state.Limit).
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit state updated")
	}

	if t.redis == nil || !state.Known {
		return nil
	}

	// Keys expire with the window so a dead writer never blocks other processes.
	ttl := state.TimeUntilReset(now) + time.Second

	updatedAt, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyLimit, state.Limit, ttl)
	pipe.Set(ctx, RedisKeyRemaining, state.Remaining, ttl)
	pipe.Set(ctx, RedisKeyResetAt, state.ResetAt.Unix(), ttl)
	pipe.Set(ctx, RedisKeyUpdatedAt, updatedAt, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	return nil
}

// Wait blocks until a request may be sent: first the proactive token bucket,
// then, if the quota is exhausted, until the window resets (at most MaxWait).
func (t *Tracker) Wait(ctx context.Context) error {
	if err := t.bucket.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit throttle: %w", err)
	}

	state, err := t.GetState(ctx)
	if err != nil {
		// Shared state is advisory; fall back to sending the request.
		t.logger.Warn().Err(err).Msg("Failed to read shared rate limit state")
		return nil
	}

	now := t.now()
	if !state.Exhausted(now) {
		return nil
	}
	if state.IsStale(now, t.maxStateAge) {
		t.logger.Debug().
			Time("last_update", state.LastUpdate).
			Msg("Ignoring stale rate limit state")
		return nil
	}

	wait := state.TimeUntilReset(now)
	if wait > t.maxWait {
		wait = t.maxWait
	}

	sumoRateLimitWaitsTotal.Inc()
	sumoRateLimitWaitSeconds.Observe(wait.Seconds())
	t.logger.Info().
		Dur("wait", wait).
		Time("reset_at", state.ResetAt).
		Msg("Waiting for rate limit reset")

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
