// Package syncjob tracks the lifecycle of synchronization runs and keeps two
// runs for the same user and provider from overlapping.
package syncjob

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// DefaultStaleAfter is how long a queued or running job may stay active
// before a new job is allowed to take over.
const DefaultStaleAfter = 30 * time.Minute

// Service owns job creation and transitions.
type Service struct {
	repo       Repository
	guard      *Guard
	staleAfter time.Duration
	now        func() time.Time
}

// NewService creates a job service. staleAfter <= 0 selects DefaultStaleAfter.
func NewService(repo Repository, guard *Guard, staleAfter time.Duration) *Service {
	if guard == nil {
		guard = NewGuard()
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Service{
		repo:       repo,
		guard:      guard,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Enqueue creates a queued job after taking the (user, provider) guard. It
// returns *InProgressError when another job is active, either in this
// process or, according to the repository, anywhere else. An active job
// older than the stale threshold is failed as abandoned first, and a guard
// held by a job the repository shows as finished is reclaimed.
func (s *Service) Enqueue(ctx context.Context, userID, provider string, reason Reason) (*Job, error) {
	if userID == "" || provider == "" {
		return nil, fmt.Errorf("user id and provider are required")
	}
	if !reason.valid() {
		return nil, ErrInvalidReason
	}

	job := &Job{
		ID:        uuid.NewString(),
		UserID:    userID,
		Provider:  provider,
		Reason:    reason,
		Status:    StatusQueued,
		CreatedAt: s.now().UTC(),
	}

	if err := s.acquire(ctx, userID, provider, job.ID); err != nil {
		return nil, err
	}

	if err := s.checkActive(ctx, userID, provider); err != nil {
		s.guard.Release(userID, provider, job.ID)
		return nil, err
	}

	if err := s.repo.Create(ctx, job); err != nil {
		s.guard.Release(userID, provider, job.ID)
		if errors.Is(err, ErrActiveJobExists) {
			return nil, s.inProgress(ctx, userID, provider)
		}
		return nil, fmt.Errorf("failed to create sync job: %w", err)
	}

	log.Printf("User %s: queued %s sync job %s (%s)", userID, provider, job.ID, reason)
	return job, nil
}

// acquire takes the guard for jobID. When another job holds it, the holder's
// stored state decides: finished or stale holders give the pair up, anything
// else is still in progress. A holder not stored yet is being enqueued.
func (s *Service) acquire(ctx context.Context, userID, provider, jobID string) error {
	err := s.guard.TryAcquire(userID, provider, jobID)
	var held *InProgressError
	if !errors.As(err, &held) {
		return err
	}

	holder, gerr := s.repo.GetByID(ctx, userID, held.JobID)
	switch {
	case errors.Is(gerr, ErrJobNotFound):
		return err
	case gerr != nil:
		return fmt.Errorf("failed to load sync job %s: %w", held.JobID, gerr)
	case holder.Status.Terminal():
		log.Printf("User %s: reclaiming %s guard from finished sync job %s", userID, provider, holder.ID)
	case !s.stale(holder):
		return err
	default:
		if ferr := s.failStale(ctx, holder); ferr != nil {
			return ferr
		}
	}

	s.guard.Release(userID, provider, held.JobID)
	return s.guard.TryAcquire(userID, provider, jobID)
}

func (s *Service) checkActive(ctx context.Context, userID, provider string) error {
	active, err := s.repo.FindActive(ctx, userID, provider)
	if err != nil {
		return fmt.Errorf("failed to check active sync jobs: %w", err)
	}
	if active == nil {
		return nil
	}
	if !s.stale(active) {
		return &InProgressError{UserID: userID, Provider: provider, JobID: active.ID}
	}
	return s.failStale(ctx, active)
}

// inProgress reports the job another process created after checkActive ran.
func (s *Service) inProgress(ctx context.Context, userID, provider string) error {
	err := &InProgressError{UserID: userID, Provider: provider}
	if active, ferr := s.repo.FindActive(ctx, userID, provider); ferr == nil && active != nil {
		err.JobID = active.ID
	}
	return err
}

func (s *Service) stale(job *Job) bool {
	return s.now().Sub(job.CreatedAt) >= s.staleAfter
}

// failStale fails an abandoned job. Losing the race to another finisher is fine.
func (s *Service) failStale(ctx context.Context, job *Job) error {
	msg := fmt.Sprintf("abandoned: still %s after %s", job.Status, s.staleAfter)
	t := transitionTo(StatusFailed, s.now().UTC())
	t.Error = &msg
	if _, err := s.repo.Transition(ctx, job.UserID, job.ID, t); err != nil && !errors.Is(err, ErrInvalidTransition) {
		return fmt.Errorf("failed to fail stale sync job %s: %w", job.ID, err)
	}
	log.Printf("User %s: marked stale %s sync job %s as failed", job.UserID, job.Provider, job.ID)
	return nil
}

// Start moves a queued job to running.
func (s *Service) Start(ctx context.Context, userID, id string) (*Job, error) {
	return s.transition(ctx, userID, id, transitionTo(StatusRunning, s.now().UTC()))
}

// Succeed finishes a running job successfully.
func (s *Service) Succeed(ctx context.Context, userID, id, summary string) (*Job, error) {
	t := transitionTo(StatusSucceeded, s.now().UTC())
	t.Summary = &summary
	return s.transition(ctx, userID, id, t)
}

// Partial finishes a running job that completed with omissions.
func (s *Service) Partial(ctx context.Context, userID, id, summary string) (*Job, error) {
	t := transitionTo(StatusPartial, s.now().UTC())
	t.Summary = &summary
	return s.transition(ctx, userID, id, t)
}

// Fail finishes a queued or running job with cause's message.
func (s *Service) Fail(ctx context.Context, userID, id string, cause error) (*Job, error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	t := transitionTo(StatusFailed, s.now().UTC())
	t.Error = &msg
	return s.transition(ctx, userID, id, t)
}

func (s *Service) transition(ctx context.Context, userID, id string, t Transition) (*Job, error) {
	job, err := s.repo.Transition(ctx, userID, id, t)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		s.guard.Release(job.UserID, job.Provider, job.ID)
	}
	return job, nil
}

// Get returns a job by id.
func (s *Service) Get(ctx context.Context, userID, id string) (*Job, error) {
	return s.repo.GetByID(ctx, userID, id)
}

// State reports the guard state for the pair in this process.
func (s *Service) State(userID, provider string) RunState {
	return s.guard.State(userID, provider)
}
