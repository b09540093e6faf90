package scheduler

import "context"

// Job represents a unit of work that can be executed by the worker pool.
type Job interface {
	// Execute runs the job. The pool cancels ctx when the job timeout expires.
	Execute(ctx context.Context) error

	// UserID returns the user whose data the job touches.
	UserID() string

	// Description returns a human-readable description of the job.
	Description() string
}
