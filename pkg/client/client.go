// Package client provides the resilient Sumo Logic API HTTP client:
// connection pooling, cookie handling, rate-limit-aware scheduling and
// automatic retry with exponential backoff and jitter.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/sumo-search-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for API client operations.
var (
	sumoRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sumo_requests_total",
		Help: "Total Sumo Logic API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	sumoRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sumo_request_duration_seconds",
		Help:    "Sumo Logic API request duration in seconds by endpoint, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	sumoErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sumo_errors_total",
		Help: "Total Sumo Logic API errors by class",
	}, []string{"class"})
)

// maxLoggedBody bounds request/response bodies in verbose logs.
const maxLoggedBody = 500

// Client is the Sumo Logic API client.
type Client struct {
	builder *RequestBuilder
	handler *ResponseHandler
	cookies *CookieJar
	pool    *ConnectionPool
	limiter *ratelimit.Tracker
	config  Config
	logger  zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root, e.g. https://api.us2.sumologic.com/api/v1.
	BaseURL string

	// Credentials
	AccessID  string
	AccessKey string

	// UserAgent header sent with every request.
	UserAgent string

	// Retry
	Retry RetryConfig

	// Connections
	MaxConnections int
	RequestTimeout time.Duration
	DialTimeout    time.Duration

	// HandleFactory overrides how pooled connections are opened.
	HandleFactory HandleFactory

	// RateLimiter optionally gates requests on the observed API quota.
	RateLimiter *ratelimit.Tracker

	// Verbose logs every attempt (method, URL, truncated bodies) at debug level.
	Verbose bool

	// Logger receives client logs. The zero value discards them.
	Logger zerolog.Logger
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, accessID, accessKey string) Config {
	return Config{
		BaseURL:        baseURL,
		AccessID:       accessID,
		AccessKey:      accessKey,
		UserAgent:      "sumo-search-client/0.1.0",
		Retry:          DefaultRetryConfig(),
		MaxConnections: 10,
		RequestTimeout: 60 * time.Second,
		DialTimeout:    10 * time.Second,
	}
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cfg.Retry.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.Retry.MaxRetries)
	}

	auth, err := NewAuthenticator(cfg.AccessID, cfg.AccessKey)
	if err != nil {
		return nil, err
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.HandleFactory == nil {
		cfg.HandleFactory = NewHTTPHandleFactory(cfg.RequestTimeout, cfg.DialTimeout)
	}

	logger := cfg.Logger.With().Str("component", "sumo-client").Logger()
	cookies := NewCookieJar()

	return &Client{
		builder: NewRequestBuilder(cfg.BaseURL, auth, cookies, cfg.UserAgent),
		handler: NewResponseHandler(),
		cookies: cookies,
		pool:    NewConnectionPool(cfg.MaxConnections, cfg.HandleFactory, logger),
		limiter: cfg.RateLimiter,
		config:  cfg,
		logger:  logger,
	}, nil
}

// Request performs one logical API call, retrying transient failures.
// A 2xx JSON body is decoded into out (which may be nil); an empty body leaves out untouched.
func (c *Client) Request(ctx context.Context, method, path string, body any, query url.Values, out any) error {
	u, err := c.builder.URL(path, query)
	if err != nil {
		return err
	}
	payload, err := encodeBody(body)
	if err != nil {
		return err
	}

	endpoint := endpointLabel(path)
	startTime := time.Now()
	defer func() {
		sumoRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	return retryWithBackoff(ctx, c.config.Retry, c.logger, func(attempt int) error {
		return c.attempt(ctx, method, u, payload, out, endpoint, attempt)
	})
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Request(ctx, http.MethodGet, path, nil, query, out)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any, out any) error {
	return c.Request(ctx, http.MethodPost, path, body, nil, out)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Request(ctx, http.MethodDelete, path, nil, nil, nil)
}

// Close releases pooled connections.
func (c *Client) Close() error {
	return c.pool.CloseAll()
}

// attempt executes a single try of a request.
func (c *Client) attempt(ctx context.Context, method string, u *url.URL, payload []byte, out any, endpoint string, attempt int) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := c.builder.Build(ctx, method, u, payload)
	if err != nil {
		return err
	}
	c.logRequest(method, u, payload, attempt)

	var (
		status int
		header http.Header
		body   []byte
	)
	err = c.pool.WithConnection(u, func(h Handle) error {
		resp, err := h.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}
		c.cookies.StoreFromResponse(resp)
		status, header, body = resp.StatusCode, resp.Header, data
		return nil
	})
	if err != nil {
		sumoRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Error().
			Err(err).
			Str("method", method).
			Str("endpoint", endpoint).
			Int("attempt", attempt).
			Msg("HTTP request failed")

		if isTransientTransportError(err) {
			sumoErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return &APIError{ErrorClass: ErrorClassNetwork, Message: "transport error", Err: err}
		}
		return fmt.Errorf("%s %s: %w", method, u.Path, err)
	}

	sumoRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	c.observeRateLimit(ctx, header)
	c.logResponse(status, body)

	if err := c.handler.Handle(status, header, body, out); err != nil {
		class := Classify(err)
		if class != "" {
			sumoErrorsTotal.WithLabelValues(string(class)).Inc()
			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", status).
				Str("error_class", string(class)).
				Msg("Sumo API request error")
		}
		return err
	}
	return nil
}

func (c *Client) observeRateLimit(ctx context.Context, header http.Header) {
	if c.limiter == nil {
		return
	}
	info := ratelimit.ParseHeaders(header, time.Now())
	if err := c.limiter.Observe(ctx, info); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
	}
}

func (c *Client) logRequest(method string, u *url.URL, payload []byte, attempt int) {
	if !c.config.Verbose {
		return
	}
	event := c.logger.Debug().
		Str("method", method).
		Str("url", u.String()).
		Int("attempt", attempt)
	if payload != nil {
		event = event.Str("body", truncate(string(payload), maxLoggedBody))
	}
	event.Msg("API request")
}

func (c *Client) logResponse(status int, body []byte) {
	if !c.config.Verbose {
		return
	}
	c.logger.Debug().
		Int("status", status).
		Int("body_length", len(body)).
		Str("body", truncate(string(body), maxLoggedBody)).
		Msg("API response")
}

// endpointLabel replaces the job id in search job paths so metric labels
// stay bounded, e.g. /search/jobs/ABC/messages -> /search/jobs/{id}/messages.
func endpointLabel(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) >= 3 && segments[0] == "search" && segments[1] == "jobs" {
		segments[2] = "{id}"
	}
	return "/" + strings.Join(segments, "/")
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
