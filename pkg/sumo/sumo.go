// Package sumo wires the client stack from a config.Config: HTTP client,
// rate limit tracker, worker pool, paginator, result cache and searcher.
package sumo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/sumo-search-client/pkg/cache"
	"github.com/Sternrassler/sumo-search-client/pkg/client"
	"github.com/Sternrassler/sumo-search-client/pkg/config"
	"github.com/Sternrassler/sumo-search-client/pkg/pagination"
	"github.com/Sternrassler/sumo-search-client/pkg/ratelimit"
	"github.com/Sternrassler/sumo-search-client/pkg/search"
	"github.com/Sternrassler/sumo-search-client/pkg/workerpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Client is a ready-to-use search client.
type Client struct {
	api       *client.Client
	searcher  *search.Searcher
	limiter   *ratelimit.Tracker
	cache     *cache.Manager
	redis     *redis.Client
	logger    zerolog.Logger
	webUIBase string
}

type options struct {
	logger     zerolog.Logger
	onProgress func(search.Progress)
	redis      *redis.Client
}

// Option customizes New.
type Option func(*options)

// WithLogger sets the logger handed to every component.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithProgress receives a Progress report after every status poll.
func WithProgress(fn func(search.Progress)) Option {
	return func(o *options) { o.onProgress = fn }
}

// WithRedis uses an existing Redis client instead of dialing cfg.Redis.Addr.
// The caller keeps ownership of it.
func WithRedis(rdb *redis.Client) Option {
	return func(o *options) { o.redis = rdb }
}

// New validates cfg and builds the client stack. When Redis is configured it
// must answer a PING before New returns.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger

	c := &Client{
		logger:    logger.With().Str("component", "sumo").Logger(),
		webUIBase: cfg.WebUIBaseURL(),
	}

	rdb := o.redis
	if rdb == nil && cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.redis = rdb
	}
	if rdb != nil {
		if err := rdb.Ping(ctx).Err(); err != nil {
			c.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
	}

	rateCfg := ratelimit.DefaultConfig()
	rateCfg.RequestsPerSecond = cfg.HTTP.RequestsPerSecond
	rateCfg.Burst = max(1, int(cfg.HTTP.RequestsPerSecond))
	rateCfg.Redis = rdb
	c.limiter = ratelimit.NewTracker(rateCfg, logger)

	apiCfg := client.DefaultConfig(cfg.ResolveBaseURL(), cfg.Auth.AccessID, cfg.Auth.AccessKey)
	apiCfg.Retry.MaxRetries = cfg.HTTP.MaxRetries
	if cfg.HTTP.RetryBaseDelay > 0 {
		apiCfg.Retry.BaseDelay = cfg.HTTP.RetryBaseDelay
	}
	if cfg.HTTP.RetryMaxDelay > 0 {
		apiCfg.Retry.MaxDelay = cfg.HTTP.RetryMaxDelay
	}
	if cfg.HTTP.UserAgent != "" {
		apiCfg.UserAgent = cfg.HTTP.UserAgent
	}
	apiCfg.MaxConnections = cfg.HTTP.MaxConnections
	apiCfg.RequestTimeout = cfg.HTTP.RequestTimeout
	apiCfg.DialTimeout = cfg.HTTP.DialTimeout
	apiCfg.RateLimiter = c.limiter
	apiCfg.Verbose = cfg.HTTP.Debug
	apiCfg.Logger = logger

	api, err := client.New(apiCfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.api = api

	pageCfg := pagination.DefaultConfig()
	pageCfg.PageSize = cfg.Search.PageSize
	pageCfg.Parallel = cfg.Search.ParallelPagination
	paginator := pagination.New(api, workerpool.New(cfg.Search.MaxWorkers, logger), pageCfg, logger)

	searchCfg := search.DefaultConfig()
	searchCfg.Poller = search.PollerConfig{
		InitialInterval: cfg.Search.InitialPollInterval,
		MaxInterval:     cfg.Search.MaxPollInterval,
		BackoffFactor:   cfg.Search.PollBackoffFactor,
		Timeout:         cfg.Search.Timeout,
		OnProgress:      o.onProgress,
	}
	if cfg.Search.DeleteTimeout > 0 {
		searchCfg.DeleteTimeout = cfg.Search.DeleteTimeout
	}
	if cfg.Cache.Enabled {
		c.cache = cache.NewManager(cache.Config{
			TTL:           cfg.Cache.TTL,
			MemoryEntries: cfg.Cache.MemoryEntries,
			Redis:         rdb,
		})
		searchCfg.Cache = c.cache
	}
	c.searcher = search.NewSearcher(api, paginator, searchCfg, logger)

	c.logger.Debug().
		Str("base_url", cfg.ResolveBaseURL()).
		Bool("redis", rdb != nil).
		Bool("cache", cfg.Cache.Enabled).
		Int("max_workers", cfg.Search.MaxWorkers).
		Msg("Sumo client ready")

	return c, nil
}

// Search runs q and returns all of its results.
func (c *Client) Search(ctx context.Context, q search.Query) ([]pagination.Record, error) {
	return c.searcher.Execute(ctx, q)
}

// Stream runs q and hands its results to fn page by page.
func (c *Client) Stream(ctx context.Context, q search.Query, fn func(pagination.Record) error) (int, error) {
	return c.searcher.Stream(ctx, q, fn)
}

// Searcher exposes the stepwise job API (Create, Poll, FetchAll, Delete).
func (c *Client) Searcher() *search.Searcher {
	return c.searcher
}

// RateLimit returns the last observed rate limit state.
func (c *Client) RateLimit(ctx context.Context) (ratelimit.State, error) {
	return c.limiter.GetState(ctx)
}

// WebUIBaseURL returns the Sumo Logic web UI root for this deployment.
func (c *Client) WebUIBaseURL() string {
	return c.webUIBase
}

// Close releases pooled connections and the Redis client New opened.
func (c *Client) Close() error {
	var errs []error
	if c.api != nil {
		errs = append(errs, c.api.Close())
	}
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
	}
	return errors.Join(errs...)
}
