package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/sumo-search-client/pkg/pagination"
	"github.com/Sternrassler/sumo-search-client/pkg/search"
	"github.com/Sternrassler/sumo-search-client/pkg/sumo"
	"github.com/spf13/cobra"
)

// aggregationPattern matches queries whose results come back as records.
var aggregationPattern = regexp.MustCompile(`(?i)\|\s*(count|sum|avg|min|max|pct|first|last|group)\b`)

type searchOptions struct {
	query    string
	from     string
	to       string
	timeZone string
	limit    int
	records  bool
	output   string
}

// searchOutput is the JSON document written by the search command.
type searchOutput struct {
	Query     string               `json:"query"`
	From      string               `json:"from"`
	To        string               `json:"to"`
	TimeZone  string               `json:"time_zone"`
	SearchURL string               `json:"search_url"`
	Count     int                  `json:"count"`
	Messages  *[]pagination.Record `json:"messages,omitempty"`
	Records   *[]pagination.Record `json:"records,omitempty"`
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run a search job and print its results as JSON",
		Example: `  sumo-query search -q 'error | count by _sourceCategory' \
    --from 2026-01-01T00:00:00 --to 2026-01-01T01:00:00`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, root, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.query, "query", "q", "", "search query (required)")
	flags.StringVar(&opts.from, "from", "", "start time, ISO 8601 or epoch milliseconds (required)")
	flags.StringVar(&opts.to, "to", "", "end time, ISO 8601 or epoch milliseconds (required)")
	flags.StringVar(&opts.timeZone, "time-zone", "UTC", "time zone of --from and --to")
	flags.IntVarP(&opts.limit, "limit", "l", pagination.NoLimit, "maximum number of results (-1 for all)")
	flags.BoolVar(&opts.records, "records", false, "fetch aggregate records instead of messages")
	flags.StringVarP(&opts.output, "output", "o", "", "write results to this file instead of stdout")
	cmd.MarkFlagRequired("query")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")

	return cmd
}

func runSearch(cmd *cobra.Command, root *rootOptions, opts *searchOptions) error {
	ctx := cmd.Context()

	client, err := sumo.New(ctx, root.cfg, sumo.WithLogger(root.logger))
	if err != nil {
		return err
	}
	defer client.Close()

	q := search.Query{
		Query:    opts.query,
		From:     opts.from,
		To:       opts.to,
		TimeZone: opts.timeZone,
		Limit:    opts.limit,
		Kind:     pagination.KindMessages,
	}
	if opts.records || aggregationPattern.MatchString(opts.query) {
		q.Kind = pagination.KindRecords
	}

	searchURL := buildSearchURL(client.WebUIBaseURL(), q)
	root.log.Info().Str("search_url", searchURL).Msg("Open in Sumo Logic")

	results, err := client.Search(ctx, q)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	root.log.Info().
		Int("count", len(results)).
		Str("kind", string(q.Kind)).
		Msg("Search finished")

	out := searchOutput{
		Query:     q.Query,
		From:      q.From,
		To:        q.To,
		TimeZone:  q.TimeZone,
		SearchURL: searchURL,
		Count:     len(results),
	}
	if results == nil {
		results = []pagination.Record{}
	}
	if q.Kind == pagination.KindRecords {
		out.Records = &results
	} else {
		out.Messages = &results
	}

	if opts.output == "" {
		return writeJSON(cmd.OutOrStdout(), out)
	}

	f, err := os.Create(opts.output)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := writeJSON(f, out); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}
	root.log.Info().Str("path", opts.output).Msg("Results written")
	return nil
}

// buildSearchURL links q in the web UI. Window bounds that do not parse are
// left out and the UI falls back to its default range.
func buildSearchURL(webUIBase string, q search.Query) string {
	params := []string{"query=" + strings.ReplaceAll(url.QueryEscape(q.Query), "+", "%20")}

	loc, err := time.LoadLocation(q.TimeZone)
	if err != nil {
		loc = time.UTC
	}
	if from, ok := epochMillis(q.From, loc); ok {
		params = append(params, "startTime="+strconv.FormatInt(from, 10))
	}
	if to, ok := epochMillis(q.To, loc); ok {
		params = append(params, "endTime="+strconv.FormatInt(to, 10))
	}
	return webUIBase + "/ui/#/search/create?" + strings.Join(params, "&")
}

var windowLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func epochMillis(value string, loc *time.Location) (int64, bool) {
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return ms, true
	}
	for _, layout := range windowLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	return nil
}
