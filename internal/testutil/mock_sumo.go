// Package testutil provides a fake Sumo Logic Search Job API for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// APIPrefix is the path prefix the mock serves the Search Job API under.
const APIPrefix = "/api/v1"

// MockResponse defines a canned response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockJob is the server-side state of one search job.
type MockJob struct {
	ID       string
	Query    string
	From     string
	To       string
	TimeZone string
	Polls    int
	Deletes  int
}

// MockSumo is a configurable in-memory Search Job API.
//
// Jobs report "GATHERING RESULTS" for PollsUntilDone status requests and
// FinalState afterwards. Messages and records are numbered 0..TotalResults-1.
type MockSumo struct {
	server *httptest.Server
	mu     sync.Mutex

	// Behavior
	TotalResults   int
	PollsUntilDone int
	FinalState     string
	RateLimitLimit int

	jobs     map[string]*MockJob
	order    []string
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	failures []MockResponse

	// Tracking
	RequestCount      int
	PageRequests      []string
	LastRequestHeader http.Header
}

// NewMockSumo starts a mock server returning totalResults results per job.
func NewMockSumo(totalResults int) *MockSumo {
	mock := &MockSumo{
		TotalResults:   totalResults,
		PollsUntilDone: 1,
		FinalState:     "DONE GATHERING RESULTS",
		jobs:           make(map[string]*MockJob),
		handlers:       make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()

		var failure *MockResponse
		if len(mock.failures) > 0 {
			failure = &mock.failures[0]
			mock.failures = mock.failures[1:]
		}
		handler, exists := mock.handlers[r.Method+" "+r.URL.Path]
		mock.mu.Unlock()

		switch {
		case failure != nil:
			writeResponse(w, *failure)
		case exists:
			handler(w, r)
		default:
			mock.route(w, r)
		}
	}))

	return mock
}

// URL returns the API base URL (including APIPrefix).
func (m *MockSumo) URL() string {
	return m.server.URL + APIPrefix
}

// Close shuts down the mock server.
func (m *MockSumo) Close() {
	m.server.Close()
}

// SetHandler overrides the handler for method and full path, e.g. "POST", "/api/v1/search/jobs".
func (m *MockSumo) SetHandler(method, path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method+" "+path] = handler
}

// SetResponse configures a fixed response for method and full path.
func (m *MockSumo) SetResponse(method, path string, resp MockResponse) {
	m.SetHandler(method, path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// FailNext makes the next n requests, whatever their path, return resp.
func (m *MockSumo) FailNext(n int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.failures = append(m.failures, resp)
	}
}

// Jobs returns a snapshot of all jobs created so far, in creation order.
func (m *MockSumo) Jobs() []MockJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := make([]MockJob, 0, len(m.order))
	for _, id := range m.order {
		jobs = append(jobs, *m.jobs[id])
	}
	return jobs
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockSumo) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// GetPageRequests returns "offset:limit" of every result page request.
func (m *MockSumo) GetPageRequests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.PageRequests...)
}

func (m *MockSumo) route(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, APIPrefix)
	segments := strings.Split(strings.Trim(path, "/"), "/")

	if len(segments) < 2 || segments[0] != "search" || segments[1] != "jobs" {
		writeJSON(w, http.StatusNotFound, map[string]string{"code": "notfound"})
		return
	}

	switch {
	case len(segments) == 2 && r.Method == http.MethodPost:
		m.create(w, r)
	case len(segments) == 3 && r.Method == http.MethodGet:
		m.status(w, segments[2])
	case len(segments) == 3 && r.Method == http.MethodDelete:
		m.delete(w, segments[2])
	case len(segments) == 4 && r.Method == http.MethodGet:
		m.page(w, r, segments[2], segments[3])
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"code": "method.notallowed"})
	}
}

func (m *MockSumo) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query    string `json:"query"`
		From     string `json:"from"`
		To       string `json:"to"`
		TimeZone string `json:"timeZone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "searchjob.invalid"})
		return
	}

	m.mu.Lock()
	id := fmt.Sprintf("JOB%04d", len(m.order)+1)
	m.jobs[id] = &MockJob{ID: id, Query: req.Query, From: req.From, To: req.To, TimeZone: req.TimeZone}
	m.order = append(m.order, id)
	m.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "session-" + id})
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (m *MockSumo) status(w http.ResponseWriter, id string) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok || job.Deletes > 0 {
		m.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"code": "jobs.notfound"})
		return
	}
	job.Polls++
	state := "GATHERING RESULTS"
	count := m.TotalResults / 2
	if job.Polls > m.PollsUntilDone {
		state = m.FinalState
		count = m.TotalResults
	}
	limit := m.RateLimitLimit
	m.mu.Unlock()

	if limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limit-1))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":           state,
		"messageCount":    count,
		"recordCount":     count,
		"pendingWarnings": []string{},
		"pendingErrors":   []string{},
	})
}

func (m *MockSumo) page(w http.ResponseWriter, r *http.Request, id, kind string) {
	offset, err1 := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, err2 := strconv.Atoi(r.URL.Query().Get("limit"))
	if err1 != nil || err2 != nil || offset < 0 || limit <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "searchjob.invalid.paging"})
		return
	}
	if kind != "messages" && kind != "records" {
		writeJSON(w, http.StatusNotFound, map[string]string{"code": "notfound"})
		return
	}

	m.mu.Lock()
	_, ok := m.jobs[id]
	total := m.TotalResults
	m.PageRequests = append(m.PageRequests, fmt.Sprintf("%d:%d", offset, limit))
	m.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"code": "jobs.notfound"})
		return
	}

	results := make([]map[string]any, 0, limit)
	for i := offset; i < offset+limit && i < total; i++ {
		results = append(results, map[string]any{
			"map": map[string]any{
				"_messageid": strconv.Itoa(i),
				"_raw":       fmt.Sprintf("log line %d", i),
			},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{kind: results})
}

func (m *MockSumo) delete(w http.ResponseWriter, id string) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if ok {
		job.Deletes++
	}
	m.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"code": "jobs.notfound"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
