package scheduler

import "context"

// Job represents a unit of work processed by the worker pool.
type Job interface {
	// Execute runs the job. The context carries the execution timeout.
	Execute(ctx context.Context) error

	// ItemID returns the connection this job operates on, for logging.
	ItemID() string

	// Description returns a human-readable description of the job.
	Description() string
}
