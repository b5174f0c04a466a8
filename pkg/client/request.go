package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// RequestBuilder constructs outbound Search API requests.
type RequestBuilder struct {
	baseURL   string
	auth      *Authenticator
	cookies   *CookieJar
	userAgent string
}

// NewRequestBuilder creates a RequestBuilder for baseURL (e.g. https://api.us2.sumologic.com/api/v1).
func NewRequestBuilder(baseURL string, auth *Authenticator, cookies *CookieJar, userAgent string) *RequestBuilder {
	return &RequestBuilder{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		auth:      auth,
		cookies:   cookies,
		userAgent: userAgent,
	}
}

// URL joins path and query onto the base URL.
func (b *RequestBuilder) URL(path string, query url.Values) (*url.URL, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u, err := url.Parse(b.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u, nil
}

// Build creates a request carrying auth, accept, user-agent, cookie and,
// when body is non-nil, JSON content headers.
func (b *RequestBuilder) Build(ctx context.Context, method string, u *url.URL, body []byte) (*http.Request, error) {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodDelete:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", b.auth.Header())
	req.Header.Set("Accept", "application/json")
	if b.userAgent != "" {
		req.Header.Set("User-Agent", b.userAgent)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.cookies != nil {
		if cookie := b.cookies.Header(); cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
	}

	return req, nil
}

// encodeBody marshals a request payload. A nil payload yields a nil body.
func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	if raw, ok := body.([]byte); ok {
		return raw, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return data, nil
}
