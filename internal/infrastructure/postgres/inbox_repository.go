package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"lifedash/internal/domain/inbox"
)

const inboxColumns = `id, user_id, provider, entity_type, payload, external_id, checksum, source, status, error, sync_job_id, created_at, processed_at`

// InboxRepository is the SQL inbox. The insert trigger notifies
// inbox_pending, which the listener package turns into consumer wake-ups.
type InboxRepository struct {
	db *DB
}

func NewInboxRepository(db *DB) *InboxRepository {
	return &InboxRepository{db: db}
}

func scanItem(row scanner) (*inbox.Item, error) {
	var (
		item                                 inbox.Item
		payload                              []byte
		externalID, checksum, errMsg, jobID sql.NullString
		processedAt                          sql.NullTime
	)
	err := row.Scan(&item.ID, &item.UserID, &item.Provider, &item.EntityType, &payload,
		&externalID, &checksum, &item.Source, &item.Status, &errMsg, &jobID,
		&item.CreatedAt, &processedAt)
	if err != nil {
		return nil, err
	}
	item.Payload = payload
	item.ExternalID = nullString(externalID)
	item.Checksum = nullString(checksum)
	item.Error = nullString(errMsg)
	item.SyncJobID = nullString(jobID)
	if processedAt.Valid {
		item.ProcessedAt = &processedAt.Time
	}
	return &item, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func (r *InboxRepository) Create(ctx context.Context, item *inbox.Item) error {
	query := `
		INSERT INTO integration_inbox (` + inboxColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.UserID, item.Provider, item.EntityType, string(item.Payload),
		item.ExternalID, item.Checksum, item.Source, item.Status, item.Error, item.SyncJobID,
		item.CreatedAt, item.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create inbox item: %w", err)
	}
	return nil
}

func (r *InboxRepository) GetByID(ctx context.Context, userID, id string) (*inbox.Item, error) {
	query := `SELECT ` + inboxColumns + ` FROM integration_inbox WHERE id = $1 AND user_id = $2`

	item, err := scanItem(r.db.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, inbox.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inbox item: %w", err)
	}
	return item, nil
}

// Claim uses SKIP LOCKED so concurrent consumers take disjoint batches.
func (r *InboxRepository) Claim(ctx context.Context, filter inbox.ClaimFilter) ([]*inbox.Item, error) {
	query := `
		UPDATE integration_inbox
		SET status = 'processing',
		    sync_job_id = COALESCE(NULLIF($4, ''), sync_job_id)
		WHERE id IN (
			SELECT id FROM integration_inbox
			WHERE status = 'pending'
			  AND ($1 = '' OR user_id = $1)
			  AND ($2 = '' OR provider = $2)
			ORDER BY created_at, id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + inboxColumns

	var limit sql.NullInt64
	if filter.Limit > 0 {
		limit = sql.NullInt64{Int64: int64(filter.Limit), Valid: true}
	}

	rows, err := r.db.QueryContext(ctx, query, filter.UserID, filter.Provider, limit, filter.SyncJobID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim inbox items: %w", err)
	}
	defer rows.Close()

	var items []*inbox.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inbox item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// RETURNING does not keep the subquery order.
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (r *InboxRepository) Complete(ctx context.Context, userID, id string, status inbox.Status, errMsg *string, at time.Time) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `SELECT ` + inboxColumns + ` FROM integration_inbox WHERE id = $1 AND user_id = $2 FOR UPDATE`
		item, err := scanItem(tx.QueryRowContext(ctx, query, id, userID))
		if errors.Is(err, sql.ErrNoRows) {
			return inbox.ErrItemNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock inbox item: %w", err)
		}

		if err := inbox.Finalize(item, status, errMsg, at); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE integration_inbox SET status = $3, error = $4, processed_at = $5
			WHERE id = $1 AND user_id = $2
		`, id, userID, item.Status, item.Error, item.ProcessedAt)
		if err != nil {
			return fmt.Errorf("failed to finalize inbox item: %w", err)
		}
		return nil
	})
}
