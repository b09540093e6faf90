package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"lifedash/internal/domain/inbox"
	"lifedash/internal/domain/syncjob"
)

var ErrUnknownProvider = errors.New("no sync runner registered for provider")

// Runner drives a queued sync job to a terminal state.
type Runner interface {
	Run(ctx context.Context, job *syncjob.Job) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, job *syncjob.Job) error

func (f RunnerFunc) Run(ctx context.Context, job *syncjob.Job) error { return f(ctx, job) }

// JobQueue creates and fails sync jobs.
type JobQueue interface {
	Enqueue(ctx context.Context, userID, provider string, reason syncjob.Reason) (*syncjob.Job, error)
	Fail(ctx context.Context, userID, id string, cause error) (*syncjob.Job, error)
}

// UserLister lists the users connected to a provider.
type UserLister interface {
	Users(ctx context.Context, provider string) ([]string, error)
}

// Submitter accepts jobs for background execution.
type Submitter interface {
	Submit(job Job) error
}

// SyncJob runs one sync job of a user. A job created by Dispatch already
// carries its queued record; a scheduled one enqueues when it starts so a
// backed up queue never leaves stale queued records behind.
type SyncJob struct {
	userID   string
	provider string
	reason   syncjob.Reason
	queue    JobQueue
	runner   Runner
	job      *syncjob.Job
}

// Execute runs the sync job.
func (j *SyncJob) Execute(ctx context.Context) error {
	job := j.job
	if job == nil {
		var err error
		job, err = j.queue.Enqueue(ctx, j.userID, j.provider, j.reason)
		var inProgress *syncjob.InProgressError
		if errors.As(err, &inProgress) {
			log.Printf("User %s: %s sync skipped, job %s already active", j.userID, j.provider, inProgress.JobID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to enqueue sync job: %w", err)
		}
	}
	return j.runner.Run(ctx, job)
}

// UserID returns the user ID associated with this job
func (j *SyncJob) UserID() string {
	return j.userID
}

// Description returns a human-readable description of the job
func (j *SyncJob) Description() string {
	if j.job != nil {
		return fmt.Sprintf("%s %s sync %s", j.reason, j.provider, j.job.ID)
	}
	return fmt.Sprintf("%s %s sync", j.reason, j.provider)
}

// Pusher sends a user's local state to a provider.
type Pusher interface {
	PushOnly(ctx context.Context, userID string)
}

// PushOnlyJob pushes local state without pulling or recording a job.
type PushOnlyJob struct {
	userID   string
	provider string
	pusher   Pusher
}

func NewPushOnlyJob(userID, provider string, pusher Pusher) *PushOnlyJob {
	return &PushOnlyJob{userID: userID, provider: provider, pusher: pusher}
}

// Execute runs the push. Failures are reported by the pusher itself.
func (j *PushOnlyJob) Execute(ctx context.Context) error {
	j.pusher.PushOnly(ctx, j.userID)
	return ctx.Err()
}

func (j *PushOnlyJob) UserID() string { return j.userID }

func (j *PushOnlyJob) Description() string {
	return fmt.Sprintf("%s push-only", j.provider)
}

// InboxDrainRunner drains a user's pending inbox items under a sync job.
type InboxDrainRunner struct {
	Consumer *inbox.Consumer
	Jobs     inbox.JobRecorder
	Narrator inbox.Narrator
}

func (r InboxDrainRunner) Run(ctx context.Context, job *syncjob.Job) error {
	return r.Consumer.RunJob(ctx, r.Jobs, r.Narrator, job)
}

// Dispatcher creates sync jobs and hands them to the worker pool. Full
// syncs run the runner registered for their provider; webhook jobs drain
// the inbox.
type Dispatcher struct {
	queue JobQueue
	pool  Submitter

	mu      sync.RWMutex
	runners map[string]Runner
	webhook Runner
}

func NewDispatcher(queue JobQueue, pool Submitter) *Dispatcher {
	return &Dispatcher{queue: queue, pool: pool, runners: make(map[string]Runner)}
}

// Handle registers the full sync runner of provider.
func (d *Dispatcher) Handle(provider string, r Runner) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runners[provider] = r
}

// HandleWebhook registers the runner of webhook jobs, whatever their provider.
func (d *Dispatcher) HandleWebhook(r Runner) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.webhook = r
}

func (d *Dispatcher) runner(provider string, reason syncjob.Reason) (Runner, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if reason == syncjob.ReasonWebhook && d.webhook != nil {
		return d.webhook, nil
	}
	if r, ok := d.runners[provider]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
}

// Supports reports whether provider has a full sync runner.
func (d *Dispatcher) Supports(provider string) bool {
	_, err := d.runner(provider, syncjob.ReasonManual)
	return err == nil
}

// Dispatch enqueues a job and submits it for background execution. A job
// that cannot be submitted is failed so it does not block later requests.
func (d *Dispatcher) Dispatch(ctx context.Context, userID, provider string, reason syncjob.Reason) (*syncjob.Job, error) {
	runner, err := d.runner(provider, reason)
	if err != nil {
		return nil, err
	}

	job, err := d.queue.Enqueue(ctx, userID, provider, reason)
	if err != nil {
		return nil, err
	}

	if err := d.pool.Submit(&SyncJob{
		userID:   userID,
		provider: provider,
		reason:   reason,
		queue:    d.queue,
		runner:   runner,
		job:      job,
	}); err != nil {
		if _, ferr := d.queue.Fail(context.WithoutCancel(ctx), userID, job.ID, err); ferr != nil {
			log.Printf("User %s: failed to mark undispatched job %s failed: %v", userID, job.ID, ferr)
		}
		return nil, fmt.Errorf("failed to dispatch sync job: %w", err)
	}
	return job, nil
}

// RunNow enqueues and runs a job on the calling goroutine.
func (d *Dispatcher) RunNow(ctx context.Context, userID, provider string, reason syncjob.Reason) (*syncjob.Job, error) {
	runner, err := d.runner(provider, reason)
	if err != nil {
		return nil, err
	}
	job, err := d.queue.Enqueue(ctx, userID, provider, reason)
	if err != nil {
		return nil, err
	}
	return job, runner.Run(ctx, job)
}

// ScheduledSyncs returns a job provider running a scheduled sync of
// provider for every connected user.
func (d *Dispatcher) ScheduledSyncs(provider string, users UserLister) JobProvider {
	return func(ctx context.Context) ([]Job, error) {
		runner, err := d.runner(provider, syncjob.ReasonScheduled)
		if err != nil {
			return nil, err
		}
		ids, err := users.Users(ctx, provider)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s users: %w", provider, err)
		}

		jobs := make([]Job, 0, len(ids))
		for _, id := range ids {
			jobs = append(jobs, &SyncJob{
				userID:   id,
				provider: provider,
				reason:   syncjob.ReasonScheduled,
				queue:    d.queue,
				runner:   runner,
			})
		}
		return jobs, nil
	}
}

// ScheduledPushes returns a job provider pushing local state of every
// connected user.
func ScheduledPushes(provider string, users UserLister, pusher Pusher) JobProvider {
	return func(ctx context.Context) ([]Job, error) {
		ids, err := users.Users(ctx, provider)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s users: %w", provider, err)
		}

		jobs := make([]Job, 0, len(ids))
		for _, id := range ids {
			jobs = append(jobs, NewPushOnlyJob(id, provider, pusher))
		}
		return jobs, nil
	}
}
