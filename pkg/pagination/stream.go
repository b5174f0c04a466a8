package pagination

import (
	"context"
)

// Stream fetches results of jobID page by page and hands each record to fn
// as soon as its page arrives, without holding the full result set.
// It returns the number of records delivered. An error from fn stops the stream.
func (p *Paginator) Stream(ctx context.Context, jobID string, limit int, fn func(Record) error) (int, error) {
	delivered := 0
	offset := 0
	for {
		size := p.pageSize(offset, limit)
		if size == 0 {
			return delivered, nil
		}

		records, err := p.FetchPage(ctx, Page{JobID: jobID, Offset: offset, Limit: size})
		if err != nil {
			return delivered, err
		}
		for _, r := range records {
			if err := fn(r); err != nil {
				return delivered, err
			}
			delivered++
		}
		offset += len(records)

		if len(records) < size {
			p.logger.Debug().
				Str("job_id", jobID).
				Int("count", delivered).
				Msg("Stream complete")
			return delivered, nil
		}
	}
}
