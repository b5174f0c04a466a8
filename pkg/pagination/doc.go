// Package pagination retrieves the results of a finished Sumo Logic search job.
//
// Results are paged with offset/limit windows on either the messages or the
// records endpoint. Paging stops at the first short page or once the
// requested limit is reached. Large result sets can be fetched concurrently:
// pages are dispatched in rounds through a bounded worker pool and reassembled
// in offset order.
//
// Example usage:
//
//	workers := workerpool.New(10, logger)
//	p := pagination.New(apiClient, workers, pagination.DefaultConfig(), logger)
//	records, err := p.FetchAll(ctx, jobID, pagination.NoLimit)
package pagination
