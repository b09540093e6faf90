package syncjob

import "context"

// Repository persists jobs. Transition must read, validate with Apply, and
// write as one atomic unit.
type Repository interface {
	// Create returns ErrActiveJobExists when the store already holds a
	// queued or running job for the pair.
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, userID, id string) (*Job, error)
	// FindActive returns the newest queued or running job for the pair, or nil.
	FindActive(ctx context.Context, userID, provider string) (*Job, error)
	Transition(ctx context.Context, userID, id string, t Transition) (*Job, error)
}
