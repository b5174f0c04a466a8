package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/sumo-search-client/pkg/ratelimit"
)

// maxErrorBody bounds how much of an error body ends up in error messages.
const maxErrorBody = 500

// ResponseHandler classifies responses into decoded payloads or typed errors.
type ResponseHandler struct {
	now func() time.Time
}

// NewResponseHandler creates a ResponseHandler.
func NewResponseHandler() *ResponseHandler {
	return &ResponseHandler{now: time.Now}
}

// Handle decodes a 2xx body into out or returns the typed error for the status.
// An empty 2xx body leaves out untouched.
func (h *ResponseHandler) Handle(status int, header http.Header, body []byte, out any) error {
	switch {
	case status >= 200 && status < 300:
		return decodeBody(body, out)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthenticationError{StatusCode: status, Message: truncate(string(body), maxErrorBody)}
	case status == http.StatusTooManyRequests:
		return &RateLimitError{
			StatusCode: status,
			Message:    truncate(string(body), maxErrorBody),
			Info:       ratelimit.ParseHeaders(header, h.now()),
		}
	case status >= 500:
		return &APIError{
			StatusCode: status,
			ErrorClass: ErrorClassServer,
			Message:    truncate(string(body), maxErrorBody),
		}
	default:
		return &APIError{
			StatusCode: status,
			ErrorClass: ErrorClassClient,
			Message:    truncate(string(body), maxErrorBody),
		}
	}
}

func decodeBody(body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
