package inbox

import (
	"context"
	"fmt"
	"log"

	"lifedash/internal/domain/syncjob"
)

// JobRecorder is the part of the job service a drain run reports to.
type JobRecorder interface {
	Start(ctx context.Context, userID, id string) (*syncjob.Job, error)
	Succeed(ctx context.Context, userID, id, summary string) (*syncjob.Job, error)
	Partial(ctx context.Context, userID, id, summary string) (*syncjob.Job, error)
	Fail(ctx context.Context, userID, id string, cause error) (*syncjob.Job, error)
}

// Narrator receives the user facing trail of a drain run.
type Narrator interface {
	Info(ctx context.Context, userID, provider, message string, metadata map[string]any)
	Error(ctx context.Context, userID, provider, message string, metadata map[string]any)
}

// DrainSummary formats the job summary of a drain run.
func DrainSummary(res BatchResult) string {
	return fmt.Sprintf("Processed %d inbox items, %d failed", res.Claimed, res.Failed)
}

// RunJob drains the pending items of job's user and provider under job,
// stamping the job id on each claimed item. The job ends partial when any
// item failed.
func (c *Consumer) RunJob(ctx context.Context, jobs JobRecorder, narrator Narrator, job *syncjob.Job) error {
	if _, err := jobs.Start(ctx, job.UserID, job.ID); err != nil {
		err = fmt.Errorf("failed to start inbox job: %w", err)
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
		defer cancel()
		if _, ferr := jobs.Fail(fctx, job.UserID, job.ID, err); ferr != nil {
			log.Printf("User %s: failed to mark inbox job %s failed: %v", job.UserID, job.ID, ferr)
		}
		return err
	}

	res, drainErr := c.Drain(ctx, ClaimFilter{
		UserID:    job.UserID,
		Provider:  job.Provider,
		SyncJobID: job.ID,
	})

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	meta := map[string]any{"jobId": job.ID, "claimed": res.Claimed, "failed": res.Failed}
	summary := DrainSummary(res)

	var err error
	switch {
	case drainErr != nil:
		narrator.Error(fctx, job.UserID, job.Provider, "Inbox processing failed: "+drainErr.Error(), meta)
		_, err = jobs.Fail(fctx, job.UserID, job.ID, drainErr)
	case res.Failed > 0:
		narrator.Info(fctx, job.UserID, job.Provider, summary, meta)
		_, err = jobs.Partial(fctx, job.UserID, job.ID, summary)
	default:
		narrator.Info(fctx, job.UserID, job.Provider, summary, meta)
		_, err = jobs.Succeed(fctx, job.UserID, job.ID, summary)
	}
	if err != nil {
		return fmt.Errorf("failed to finish inbox job: %w", err)
	}
	return drainErr
}
