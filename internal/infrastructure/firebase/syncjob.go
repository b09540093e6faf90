package firebase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"lifedash/internal/domain/syncjob"
)

type jobDoc struct {
	Provider   string     `firestore:"provider"`
	Reason     string     `firestore:"reason"`
	Status     string     `firestore:"status"`
	Summary    *string    `firestore:"summary"`
	Error      *string    `firestore:"error"`
	CreatedAt  time.Time  `firestore:"createdAt"`
	StartedAt  *time.Time `firestore:"startedAt"`
	FinishedAt *time.Time `firestore:"finishedAt"`
}

func jobToDoc(j *syncjob.Job) *jobDoc {
	return &jobDoc{
		Provider:   j.Provider,
		Reason:     string(j.Reason),
		Status:     string(j.Status),
		Summary:    j.Summary,
		Error:      j.Error,
		CreatedAt:  j.CreatedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
	}
}

func jobFromSnapshot(snap *firestore.DocumentSnapshot) (*syncjob.Job, error) {
	var d jobDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode sync job: %w", err)
	}
	return &syncjob.Job{
		ID:         snap.Ref.ID,
		UserID:     userIDOf(snap.Ref),
		Provider:   d.Provider,
		Reason:     syncjob.Reason(d.Reason),
		Status:     syncjob.Status(d.Status),
		Summary:    d.Summary,
		Error:      d.Error,
		CreatedAt:  d.CreatedAt,
		StartedAt:  d.StartedAt,
		FinishedAt: d.FinishedAt,
	}, nil
}

// JobRepository stores jobs at users/{uid}/syncJobs/{id}.
type JobRepository struct {
	c *Client
}

func NewJobRepository(c *Client) *JobRepository {
	return &JobRepository{c: c}
}

// Create checks for an active job of the pair in the same transaction as
// the write.
func (r *JobRepository) Create(ctx context.Context, job *syncjob.Job) error {
	col := r.c.userCollection(job.UserID, colJobs)
	active := col.
		Where("provider", "==", job.Provider).
		Where("status", "in", []string{string(syncjob.StatusQueued), string(syncjob.StatusRunning)}).
		Limit(1)

	err := r.c.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if !job.Status.Terminal() {
			existing, err := tx.Documents(active).GetAll()
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				return syncjob.ErrActiveJobExists
			}
		}
		return tx.Create(col.Doc(job.ID), jobToDoc(job))
	})
	if isAlreadyExists(err) {
		return fmt.Errorf("sync job %s already exists", job.ID)
	}
	return err
}

func (r *JobRepository) GetByID(ctx context.Context, userID, id string) (*syncjob.Job, error) {
	snap, err := r.c.userCollection(userID, colJobs).Doc(id).Get(ctx)
	if isNotFound(err) {
		return nil, syncjob.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return jobFromSnapshot(snap)
}

func (r *JobRepository) FindActive(ctx context.Context, userID, provider string) (*syncjob.Job, error) {
	iter := r.c.userCollection(userID, colJobs).
		Where("provider", "==", provider).
		Where("status", "in", []string{string(syncjob.StatusQueued), string(syncjob.StatusRunning)}).
		OrderBy("createdAt", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return jobFromSnapshot(snap)
}

func (r *JobRepository) Transition(ctx context.Context, userID, id string, t syncjob.Transition) (*syncjob.Job, error) {
	ref := r.c.userCollection(userID, colJobs).Doc(id)

	var out *syncjob.Job
	err := r.c.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			return syncjob.ErrJobNotFound
		}
		if err != nil {
			return err
		}

		job, err := jobFromSnapshot(snap)
		if err != nil {
			return err
		}
		if err := syncjob.Apply(job, t); err != nil {
			return err
		}
		out = job
		return tx.Set(ref, jobToDoc(job))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
