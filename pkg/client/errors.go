package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/Sternrassler/sumo-search-client/pkg/ratelimit"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrUnsupportedMethod is returned for HTTP methods the Search API does not use.
	ErrUnsupportedMethod = errors.New("unsupported HTTP method")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents non-retryable 4xx errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassAuth represents 401/403 authentication failures.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 rate limit errors.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport errors (reset, timeout, broken pipe, bad response).
	ErrorClassNetwork ErrorClass = "network"
)

// APIError is a generic Search API failure: an unclassified HTTP status,
// a 5xx, or a transport error once retries are exhausted.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sumo %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("sumo %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// AuthenticationError is returned for 401/403 responses and missing credentials.
// It is never retried.
type AuthenticationError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("authentication failed: %s", e.Message)
	}
	return fmt.Sprintf("authentication failed (status %d): %s "+
		"(check SUMO_ACCESS_ID and SUMO_ACCESS_KEY)", e.StatusCode, e.Message)
}

// RateLimitError is returned for 429 responses. The HTTP layer retries it;
// callers only see it once the retry budget is spent.
type RateLimitError struct {
	StatusCode int
	Message    string
	Info       ratelimit.Info
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	msg := fmt.Sprintf("rate limit exceeded (status %d)", e.StatusCode)
	if e.Info.RetryAfter != nil {
		msg += fmt.Sprintf(", retry after %ds", *e.Info.RetryAfter)
	}
	if e.Info.Remaining != nil && e.Info.Limit != nil {
		msg += fmt.Sprintf(", %d/%d remaining", *e.Info.Remaining, *e.Info.Limit)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Classify returns the ErrorClass of err, or "" for unknown errors.
func Classify(err error) ErrorClass {
	var authErr *AuthenticationError
	var rateErr *RateLimitError
	var apiErr *APIError

	switch {
	case err == nil:
		return ""
	case errors.As(err, &authErr):
		return ErrorClassAuth
	case errors.As(err, &rateErr):
		return ErrorClassRateLimit
	case errors.As(err, &apiErr):
		return apiErr.ErrorClass
	case isTransientTransportError(err):
		return ErrorClassNetwork
	default:
		return ""
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient, ErrorClassAuth:
		// 4xx errors are final
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// isTransientTransportError reports whether a transport error is worth another
// attempt: connection reset/refused, broken pipe, timeouts and truncated responses.
func isTransientTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
