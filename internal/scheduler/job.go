package scheduler

import "context"

// Job is a unit of work processed by the worker pool. Sync jobs are the only
// implementation today; the interface keeps room for cleanup or backfill
// jobs later.
type Job interface {
	// Execute runs the job. Context should be respected for cancellation
	// and timeouts.
	Execute(ctx context.Context) error

	// ConnectionID identifies the connection the job operates on, for
	// logging and tracking.
	ConnectionID() int64

	// Description returns a human-readable description of the job.
	Description() string
}
