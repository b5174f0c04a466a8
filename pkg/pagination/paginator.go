package pagination

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/Sternrassler/sumo-search-client/pkg/workerpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for result retrieval.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sumo_pages_fetched_total",
		Help: "Total result pages fetched by kind (messages, records)",
	}, []string{"kind"})

	recordsFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sumo_records_fetched_total",
		Help: "Total result records fetched by kind (messages, records)",
	}, []string{"kind"})
)

// NoLimit requests every available result.
const NoLimit = -1

// Kind selects which result endpoint of a search job is paged.
type Kind string

const (
	// KindMessages pages raw log messages.
	KindMessages Kind = "messages"
	// KindRecords pages aggregate query records.
	KindRecords Kind = "records"
)

// Record is one opaque result entry as returned by the API.
type Record = map[string]any

// Page describes one result window of a job.
type Page struct {
	JobID  string
	Offset int
	Limit  int
}

// Requester performs GET requests against the Search API.
// *client.Client satisfies it.
type Requester interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
}

// Config holds paginator configuration.
type Config struct {
	// PageSize is the window requested per page.
	PageSize int

	// Parallel enables concurrent page fetching for large result sets.
	Parallel bool

	// ParallelThreshold is the limit, in pages, below which fetching stays sequential.
	ParallelThreshold int

	// MaxPagesPerRound bounds how many pages are dispatched concurrently.
	MaxPagesPerRound int

	// Kind selects the result endpoint.
	Kind Kind
}

// DefaultConfig returns the default paginator configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:          10000,
		Parallel:          true,
		ParallelThreshold: 2,
		MaxPagesPerRound:  10,
		Kind:              KindMessages,
	}
}

// Paginator retrieves the results of a finished search job page by page.
type Paginator struct {
	api     Requester
	workers *workerpool.Pool
	config  Config
	logger  zerolog.Logger
}

// New creates a Paginator. workers may be nil, which disables concurrent fetching.
func New(api Requester, workers *workerpool.Pool, config Config, logger zerolog.Logger) *Paginator {
	defaults := DefaultConfig()
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.ParallelThreshold <= 0 {
		config.ParallelThreshold = defaults.ParallelThreshold
	}
	if config.MaxPagesPerRound <= 0 {
		config.MaxPagesPerRound = defaults.MaxPagesPerRound
	}
	if config.Kind == "" {
		config.Kind = defaults.Kind
	}
	return &Paginator{
		api:     api,
		workers: workers,
		config:  config,
		logger:  logger.With().Str("component", "paginator").Logger(),
	}
}

// WithKind returns a copy of p paging the given endpoint.
func (p *Paginator) WithKind(kind Kind) *Paginator {
	cp := *p
	if kind != "" {
		cp.config.Kind = kind
	}
	return &cp
}

// Kind returns the endpoint p pages.
func (p *Paginator) Kind() Kind {
	return p.config.Kind
}

// FetchAll returns up to limit results of jobID in offset order.
// A negative limit fetches everything; zero returns nothing without a request.
func (p *Paginator) FetchAll(ctx context.Context, jobID string, limit int) ([]Record, error) {
	if limit == 0 {
		return []Record{}, nil
	}

	start := time.Now()
	var (
		records []Record
		err     error
		mode    = "sequential"
	)
	if p.useConcurrent(limit) {
		mode = "concurrent"
		records, err = p.fetchConcurrent(ctx, jobID, limit)
	} else {
		records, err = p.fetchSequential(ctx, jobID, limit)
	}
	if err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("job_id", jobID).
		Str("kind", string(p.config.Kind)).
		Str("mode", mode).
		Int("count", len(records)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")
	return records, nil
}

// FetchPage requests a single result window. A server that returns more
// than page.Limit entries is clipped to the requested window.
func (p *Paginator) FetchPage(ctx context.Context, page Page) ([]Record, error) {
	path := fmt.Sprintf("/search/jobs/%s/%s", url.PathEscape(page.JobID), p.config.Kind)
	query := url.Values{
		"offset": {strconv.Itoa(page.Offset)},
		"limit":  {strconv.Itoa(page.Limit)},
	}

	var resp struct {
		Messages []Record `json:"messages"`
		Records  []Record `json:"records"`
	}
	if err := p.api.Get(ctx, path, query, &resp); err != nil {
		return nil, fmt.Errorf("fetch %s page at offset %d: %w", p.config.Kind, page.Offset, err)
	}

	records := resp.Messages
	if p.config.Kind == KindRecords {
		records = resp.Records
	}
	if page.Limit >= 0 && len(records) > page.Limit {
		p.logger.Warn().
			Str("job_id", page.JobID).
			Int("offset", page.Offset).
			Int("limit", page.Limit).
			Int("received", len(records)).
			Msg("Page exceeds requested limit, clipping")
		records = records[:page.Limit]
	}

	kind := string(p.config.Kind)
	pagesFetchedTotal.WithLabelValues(kind).Inc()
	recordsFetchedTotal.WithLabelValues(kind).Add(float64(len(records)))

	p.logger.Debug().
		Str("job_id", page.JobID).
		Int("offset", page.Offset).
		Int("limit", page.Limit).
		Int("received", len(records)).
		Msg("Fetched page")
	return records, nil
}

func (p *Paginator) useConcurrent(limit int) bool {
	if !p.config.Parallel || p.workers == nil {
		return false
	}
	return limit < 0 || limit >= p.config.ParallelThreshold*p.config.PageSize
}

// pageSize returns the window for a page starting at offset, or 0 once the limit is reached.
func (p *Paginator) pageSize(offset, limit int) int {
	if limit < 0 {
		return p.config.PageSize
	}
	return max(0, min(p.config.PageSize, limit-offset))
}

func (p *Paginator) fetchSequential(ctx context.Context, jobID string, limit int) ([]Record, error) {
	var all []Record
	offset := 0
	for {
		size := p.pageSize(offset, limit)
		if size == 0 {
			break
		}

		records, err := p.FetchPage(ctx, Page{JobID: jobID, Offset: offset, Limit: size})
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
		offset += len(records)

		if len(records) < size {
			break
		}
	}

	if limit >= 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

type pageResult struct {
	page    Page
	records []Record
}

func (p *Paginator) fetchConcurrent(ctx context.Context, jobID string, limit int) ([]Record, error) {
	var all []Record
	offset := 0
	for round := 1; ; round++ {
		pages := p.planRound(jobID, offset, limit)
		if len(pages) == 0 {
			break
		}

		results, err := workerpool.Execute(ctx, p.workers, pages, func(ctx context.Context, page Page) (pageResult, error) {
			records, err := p.FetchPage(ctx, page)
			if err != nil {
				return pageResult{}, err
			}
			return pageResult{page: page, records: records}, nil
		}, nil)
		if err != nil {
			return nil, err
		}

		sort.Slice(results, func(i, j int) bool {
			return results[i].page.Offset < results[j].page.Offset
		})

		final := false
		for _, r := range results {
			all = append(all, r.records...)
			if len(r.records) < r.page.Limit {
				// Later pages of this round start past the end of the results.
				final = true
				break
			}
		}

		last := pages[len(pages)-1]
		offset = last.Offset + last.Limit

		p.logger.Debug().
			Str("job_id", jobID).
			Int("round", round).
			Int("pages", len(pages)).
			Int("total", len(all)).
			Msg("Round complete")

		if final || (limit >= 0 && len(all) >= limit) {
			break
		}
	}

	if limit >= 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// planRound lays out up to MaxPagesPerRound contiguous pages starting at offset.
func (p *Paginator) planRound(jobID string, offset, limit int) []Page {
	pages := make([]Page, 0, p.config.MaxPagesPerRound)
	for i := 0; i < p.config.MaxPagesPerRound; i++ {
		size := p.pageSize(offset, limit)
		if size == 0 {
			break
		}
		pages = append(pages, Page{JobID: jobID, Offset: offset, Limit: size})
		offset += size
	}
	return pages
}
