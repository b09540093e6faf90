package syncjob

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	ErrJobNotFound       = errors.New("sync job not found")
	ErrInvalidTransition = errors.New("invalid sync job transition")
	ErrInvalidReason     = errors.New("sync job reason must be manual, scheduled or webhook")
	ErrActiveJobExists   = errors.New("an active sync job already exists")
)

// Status is a state of the job lifecycle.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusPartial   Status = "partial"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusPartial
}

// Reason records what triggered a job.
type Reason string

const (
	ReasonManual    Reason = "manual"
	ReasonScheduled Reason = "scheduled"
	ReasonWebhook   Reason = "webhook"
)

func (r Reason) valid() bool {
	return r == ReasonManual || r == ReasonScheduled || r == ReasonWebhook
}

// Job is one bounded synchronization attempt.
type Job struct {
	ID         string     `json:"id"`
	UserID     string     `json:"-"`
	Provider   string     `json:"provider"`
	Reason     Reason     `json:"reason"`
	Status     Status     `json:"status"`
	Summary    *string    `json:"summary,omitempty"`
	Error      *string    `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Transition describes a conditional status change.
type Transition struct {
	From    []Status
	To      Status
	At      time.Time
	Summary *string
	Error   *string
}

var allowed = map[Status][]Status{
	StatusRunning:   {StatusQueued},
	StatusSucceeded: {StatusRunning},
	StatusPartial:   {StatusRunning},
	StatusFailed:    {StatusQueued, StatusRunning},
}

// transitionTo builds the transition into to, allowed only from the states
// listed in the lifecycle.
func transitionTo(to Status, at time.Time) Transition {
	return Transition{From: allowed[to], To: to, At: at}
}

// Apply mutates job according to t. It is the single place where the state
// machine is enforced; repositories call it inside their atomic section.
// startedAt is stamped on entering running and finishedAt on entering a
// terminal state, each exactly once.
func Apply(job *Job, t Transition) error {
	if job.Status.Terminal() || !slices.Contains(t.From, job.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, t.To)
	}

	job.Status = t.To
	at := t.At
	switch {
	case t.To == StatusRunning:
		if job.StartedAt == nil {
			job.StartedAt = &at
		}
	case t.To.Terminal():
		if job.FinishedAt == nil {
			job.FinishedAt = &at
		}
	}
	if t.Summary != nil {
		job.Summary = t.Summary
	}
	if t.Error != nil {
		job.Error = t.Error
	}
	return nil
}
