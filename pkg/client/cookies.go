package client

import (
	"net/http"
	"strings"
	"sync"
)

// CookieJar keeps the session cookies the API hands out and replays them.
// Only name=value pairs are kept; path, domain and expiry are ignored since
// every request goes to the same API endpoint.
type CookieJar struct {
	mu      sync.Mutex
	names   []string
	cookies map[string]string
}

// NewCookieJar creates an empty jar.
func NewCookieJar() *CookieJar {
	return &CookieJar{cookies: make(map[string]string)}
}

// StoreFromResponse stores the cookies of every Set-Cookie header in resp.
func (j *CookieJar) StoreFromResponse(resp *http.Response) {
	if resp == nil {
		return
	}
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		if _, ok := j.cookies[c.Name]; !ok {
			j.names = append(j.names, c.Name)
		}
		j.cookies[c.Name] = c.Value
	}
}

// Header formats the stored cookies for a Cookie request header.
// It returns "" when the jar is empty.
func (j *CookieJar) Header() string {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.names) == 0 {
		return ""
	}
	parts := make([]string, 0, len(j.names))
	for _, name := range j.names {
		parts = append(parts, name+"="+j.cookies[name])
	}
	return strings.Join(parts, "; ")
}

// Len returns the number of stored cookies.
func (j *CookieJar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.names)
}

// Clear removes all cookies.
func (j *CookieJar) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.names = nil
	j.cookies = make(map[string]string)
}
