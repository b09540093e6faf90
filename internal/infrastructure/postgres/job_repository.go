package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"lifedash/internal/domain/syncjob"
)

const jobColumns = `id, user_id, provider, reason, status, summary, error, created_at, started_at, finished_at`

const (
	uniqueViolation = "23505"
	// activeJobIndex allows one queued or running job per (user, provider).
	activeJobIndex = "uq_sync_jobs_active"
)

type JobRepository struct {
	db *DB
}

func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*syncjob.Job, error) {
	var (
		job                   syncjob.Job
		summary, errMsg       sql.NullString
		startedAt, finishedAt sql.NullTime
	)
	err := row.Scan(&job.ID, &job.UserID, &job.Provider, &job.Reason, &job.Status,
		&summary, &errMsg, &job.CreatedAt, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	if summary.Valid {
		job.Summary = &summary.String
	}
	if errMsg.Valid {
		job.Error = &errMsg.String
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Time
	}
	return &job, nil
}

func (r *JobRepository) Create(ctx context.Context, job *syncjob.Job) error {
	query := `
		INSERT INTO sync_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.UserID, job.Provider, job.Reason, job.Status,
		job.Summary, job.Error, job.CreatedAt, job.StartedAt, job.FinishedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == activeJobIndex {
		return syncjob.ErrActiveJobExists
	}
	if err != nil {
		return fmt.Errorf("failed to create sync job: %w", err)
	}
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, userID, id string) (*syncjob.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE id = $1 AND user_id = $2`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, syncjob.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync job: %w", err)
	}
	return job, nil
}

func (r *JobRepository) FindActive(ctx context.Context, userID, provider string) (*syncjob.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM sync_jobs
		WHERE user_id = $1 AND provider = $2 AND status IN ('queued', 'running')
		ORDER BY created_at DESC
		LIMIT 1
	`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, userID, provider))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active sync job: %w", err)
	}
	return job, nil
}

// Transition locks the row, applies the state machine and writes back.
func (r *JobRepository) Transition(ctx context.Context, userID, id string, t syncjob.Transition) (*syncjob.Job, error) {
	var out *syncjob.Job
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE id = $1 AND user_id = $2 FOR UPDATE`
		job, err := scanJob(tx.QueryRowContext(ctx, query, id, userID))
		if errors.Is(err, sql.ErrNoRows) {
			return syncjob.ErrJobNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock sync job: %w", err)
		}

		if err := syncjob.Apply(job, t); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE sync_jobs
			SET status = $3, summary = $4, error = $5, started_at = $6, finished_at = $7
			WHERE id = $1 AND user_id = $2
		`, id, userID, job.Status, job.Summary, job.Error, job.StartedAt, job.FinishedAt)
		if err != nil {
			return fmt.Errorf("failed to update sync job: %w", err)
		}
		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
