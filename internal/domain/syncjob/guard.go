package syncjob

import (
	"fmt"
	"sync"
)

// RunState is the guard state of a (user, provider) pair: Idle or Running.
type RunState interface {
	isRunState()
}

// Idle means no job holds the pair.
type Idle struct{}

// Running means JobID holds the pair until it reaches a terminal state.
type Running struct {
	JobID string
}

func (Idle) isRunState()    {}
func (Running) isRunState() {}

// InProgressError is returned when a job is already active for the pair.
type InProgressError struct {
	UserID   string
	Provider string
	JobID    string
}

func (e *InProgressError) Error() string {
	return fmt.Sprintf("sync already in progress for %s (job %s)", e.Provider, e.JobID)
}

type guardKey struct {
	userID   string
	provider string
}

// Guard is an in-process single-flight lock keyed by (user, provider).
type Guard struct {
	mu      sync.Mutex
	holders map[guardKey]string
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{holders: make(map[guardKey]string)}
}

// State returns the current state of the pair.
func (g *Guard) State(userID, provider string) RunState {
	g.mu.Lock()
	defer g.mu.Unlock()

	if jobID, ok := g.holders[guardKey{userID, provider}]; ok {
		return Running{JobID: jobID}
	}
	return Idle{}
}

// TryAcquire moves the pair from Idle to Running(jobID).
func (g *Guard) TryAcquire(userID, provider, jobID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := guardKey{userID, provider}
	if holder, ok := g.holders[key]; ok {
		return &InProgressError{UserID: userID, Provider: provider, JobID: holder}
	}
	g.holders[key] = jobID
	return nil
}

// Release returns the pair to Idle if jobID still holds it.
func (g *Guard) Release(userID, provider, jobID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := guardKey{userID, provider}
	if g.holders[key] == jobID {
		delete(g.holders, key)
	}
}
