// Package studysync reconciles a user's data with the study planner: it
// pulls remote sessions, tasks, exams, subjects and syllabi through the
// mapping registry and pushes local wellness, habits, goals, events and task
// progress back.
package studysync

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"lifedash/internal/domain/credential"
	"lifedash/internal/domain/entity"
	"lifedash/internal/domain/mapping"
	"lifedash/internal/domain/syncjob"
	"lifedash/internal/infrastructure/studyplanner"
)

// Provider is the provider id of the study planner integration.
const Provider = "studyplanner"

const (
	DefaultPushWindow = 14 * 24 * time.Hour
	finalizeTimeout   = 15 * time.Second
)

var tracer = otel.Tracer("lifedash/studysync")

// CredentialResolver returns usable credentials or a configuration error.
type CredentialResolver interface {
	Resolve(ctx context.Context, userID, provider string) (*credential.Credentials, error)
}

// JobRecorder is the part of the job service the adapter drives.
type JobRecorder interface {
	Start(ctx context.Context, userID, id string) (*syncjob.Job, error)
	Succeed(ctx context.Context, userID, id, summary string) (*syncjob.Job, error)
	Partial(ctx context.Context, userID, id, summary string) (*syncjob.Job, error)
	Fail(ctx context.Context, userID, id string, cause error) (*syncjob.Job, error)
}

// Narrator receives the user facing sync log.
type Narrator interface {
	Info(ctx context.Context, userID, provider, message string, metadata map[string]any)
	Warn(ctx context.Context, userID, provider, message string, metadata map[string]any)
	Error(ctx context.Context, userID, provider, message string, metadata map[string]any)
}

// Config tunes the adapter.
type Config struct {
	// Location interprets exam dates and decides what "today" is.
	Location *time.Location
	// PushWindow bounds how far ahead local events are pushed.
	PushWindow time.Duration
}

// Adapter runs pull and push for the study planner.
type Adapter struct {
	creds    CredentialResolver
	client   studyplanner.ClientInterface
	registry *mapping.Registry
	store    entity.Store
	jobs     JobRecorder
	logs     Narrator

	loc        *time.Location
	pushWindow time.Duration
	now        func() time.Time
	flight     singleflight.Group
}

func NewAdapter(
	creds CredentialResolver,
	client studyplanner.ClientInterface,
	registry *mapping.Registry,
	store entity.Store,
	jobs JobRecorder,
	logs Narrator,
	cfg Config,
) *Adapter {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	window := cfg.PushWindow
	if window <= 0 {
		window = DefaultPushWindow
	}
	return &Adapter{
		creds:      creds,
		client:     client,
		registry:   registry,
		store:      store,
		jobs:       jobs,
		logs:       logs,
		loc:        loc,
		pushWindow: window,
		now:        time.Now,
	}
}

// Run executes a full sync for a queued job and drives it to a terminal
// state. Pull and credential errors fail the job; push errors only
// degrade it to partial.
func (a *Adapter) Run(ctx context.Context, job *syncjob.Job) error {
	userID := job.UserID

	ctx, span := tracer.Start(ctx, "studysync.run", trace.WithAttributes(
		attribute.String("sync.user_id", userID),
		attribute.String("sync.job_id", job.ID),
		attribute.String("sync.reason", string(job.Reason)),
	))
	defer span.End()

	if _, err := a.jobs.Start(ctx, userID, job.ID); err != nil {
		err = fmt.Errorf("failed to start sync job: %w", err)
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
		defer cancel()
		if _, ferr := a.jobs.Fail(fctx, userID, job.ID, err); ferr != nil {
			log.Printf("User %s: failed to mark sync job %s failed: %v", userID, job.ID, ferr)
		}
		return err
	}
	meta := map[string]any{"jobId": job.ID, "reason": string(job.Reason)}
	a.logs.Info(ctx, userID, Provider, "Sync started", meta)

	report, err := a.sync(ctx, userID)

	// The job must reach a terminal state even when ctx timed out.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.logs.Error(fctx, userID, Provider, "Sync failed: "+err.Error(), meta)
		if _, ferr := a.jobs.Fail(fctx, userID, job.ID, err); ferr != nil {
			log.Printf("User %s: failed to mark sync job %s failed: %v", userID, job.ID, ferr)
		}
		return err
	}

	summary := report.Summary()
	finish := a.jobs.Succeed
	if report.Partial() {
		finish = a.jobs.Partial
	}
	if _, ferr := finish(fctx, userID, job.ID, summary); ferr != nil {
		return fmt.Errorf("failed to finish sync job: %w", ferr)
	}

	meta["pulled"] = report.Pull.Total()
	meta["failedItems"] = report.Pull.Failed
	a.logs.Info(fctx, userID, Provider, summary, meta)
	log.Printf("User %s: %s sync job %s finished: %s", userID, Provider, job.ID, summary)
	return nil
}

func (a *Adapter) sync(ctx context.Context, userID string) (*Report, error) {
	creds, err := a.creds.Resolve(ctx, userID, Provider)
	if err != nil {
		return nil, err
	}
	remote := studyplanner.Credentials{Email: creds.Email, SyncToken: creds.SyncToken}

	pulled, err := a.Pull(ctx, userID, remote)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("sync interrupted after pull: %w", err)
	}

	report := &Report{Pull: pulled}
	outcome, err := a.Push(ctx, userID, remote)
	if err != nil {
		a.logs.Warn(ctx, userID, Provider, "Push skipped: "+err.Error(), nil)
		report.PushErr = err
	} else {
		report.Push = outcome
	}
	return report, nil
}

// PushOnly resolves credentials and pushes current local state. Concurrent
// calls for the same user share one push. Errors are logged, never returned.
func (a *Adapter) PushOnly(ctx context.Context, userID string) {
	_, _, _ = a.flight.Do(userID, func() (any, error) {
		creds, err := a.creds.Resolve(ctx, userID, Provider)
		if err != nil {
			log.Printf("User %s: push-only skipped: %v", userID, err)
			return nil, nil
		}

		outcome, err := a.Push(ctx, userID, studyplanner.Credentials{Email: creds.Email, SyncToken: creds.SyncToken})
		if err != nil {
			log.Printf("User %s: push-only failed: %v", userID, err)
			a.logs.Warn(ctx, userID, Provider, "Background push failed: "+err.Error(), nil)
			return nil, nil
		}
		log.Printf("User %s: push-only finished: %s", userID, outcome.describe())
		return nil, nil
	})
}
