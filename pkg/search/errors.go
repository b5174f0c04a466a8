package search

import (
	"fmt"
	"time"
)

// TimeoutError is returned when a job does not finish within the poll timeout.
type TimeoutError struct {
	JobID   string
	Timeout time.Duration
	Elapsed time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("search job %s did not complete within %s (elapsed %s)",
		e.JobID, e.Timeout, e.Elapsed.Round(time.Millisecond))
}

// JobError is returned when a job cannot be created or ends in a
// non-successful terminal state.
type JobError struct {
	JobID   string
	State   JobState
	Message string
}

// Error implements the error interface.
func (e *JobError) Error() string {
	switch {
	case e.JobID == "":
		return fmt.Sprintf("search job: %s", e.Message)
	case e.State != "":
		return fmt.Sprintf("search job %s ended in state %s: %s", e.JobID, e.State, e.Message)
	default:
		return fmt.Sprintf("search job %s: %s", e.JobID, e.Message)
	}
}
