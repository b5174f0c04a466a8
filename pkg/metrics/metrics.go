// Package metrics provides centralized Prometheus metrics access for the Sumo client.
// All metrics are defined in their respective packages (client, ratelimit,
// workerpool, pagination, search, cache) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and an HTTP handler for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the Sumo client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - sumo_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - sumo_request_duration_seconds{endpoint} (Histogram): Request duration, retries included
//   - sumo_errors_total{class} (Counter): Errors by class (client, auth, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - sumo_retries_total{error_class} (Counter): Retry attempts by error class
//   - sumo_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - sumo_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Connection Pool Metrics (pkg/client):
//   - sumo_pool_connections (Gauge): Tracked connection handles
//   - sumo_pool_overflow_total (Counter): Temporary handles created while the pool was full
//   - sumo_pool_evictions_total (Counter): Handles discarded after an I/O error
//
// Rate Limit Metrics (pkg/ratelimit):
//   - sumo_rate_limit_remaining (Gauge): Requests remaining in the current window
//   - sumo_rate_limit_waits_total (Counter): Requests delayed by the rate limiter
//   - sumo_rate_limit_wait_seconds (Histogram): Time spent waiting for quota
//
// Worker Pool Metrics (pkg/workerpool):
//   - sumo_worker_pool_inflight (Gauge): Tasks currently executing
//   - sumo_worker_pool_tasks_total{outcome} (Counter): Tasks by outcome (ok, skipped, error)
//
// Pagination Metrics (pkg/pagination):
//   - sumo_pages_fetched_total{kind} (Counter): Result pages fetched
//   - sumo_records_fetched_total{kind} (Counter): Result records fetched
//
// Search Metrics (pkg/search):
//   - sumo_search_jobs_total{outcome} (Counter): Searches by outcome
//   - sumo_search_job_duration_seconds (Histogram): Job lifetime from creation to deletion
//   - sumo_search_job_deletes_total{result} (Counter): Job deletions (ok, not_found, failed)
//   - sumo_poll_iterations_total (Counter): Job status polls
//
// Cache Metrics (pkg/cache):
//   - sumo_cache_hits_total{layer} (Counter): Cache hits by layer (memory, redis)
//   - sumo_cache_misses_total (Counter): Cache misses
//   - sumo_cache_entries (Gauge): In-memory entries
//   - sumo_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Retry Rate
//   sum(rate(sumo_retries_total[5m])) by (error_class)
//
//   # Rate Limit Pressure
//   sumo_rate_limit_remaining < 10
//
//   # Leaked Jobs (deletions that failed)
//   increase(sumo_search_job_deletes_total{result="failed"}[1h])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(sumo_request_duration_seconds_bucket[5m]))
