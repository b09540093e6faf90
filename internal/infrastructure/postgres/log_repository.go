package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"lifedash/internal/domain/synclog"
)

// LogRepository does not implement synclog.Watcher; stream handlers poll.
type LogRepository struct {
	db *DB
}

func NewLogRepository(db *DB) *LogRepository {
	return &LogRepository{db: db}
}

func (r *LogRepository) Append(ctx context.Context, entry *synclog.Entry) error {
	var metadata *string
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode log metadata: %w", err)
		}
		encoded := string(raw)
		metadata = &encoded
	}

	query := `
		INSERT INTO sync_logs (id, user_id, provider, level, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.Provider, entry.Level, entry.Message, metadata, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append sync log: %w", err)
	}
	return nil
}

func (r *LogRepository) Recent(ctx context.Context, userID, provider string, limit int) ([]*synclog.Entry, error) {
	query := `
		SELECT id, user_id, provider, level, message, metadata, created_at
		FROM sync_logs
		WHERE user_id = $1 AND ($2 = '' OR provider = $2)
		ORDER BY created_at DESC, seq DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, userID, provider, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync logs: %w", err)
	}
	defer rows.Close()

	var entries []*synclog.Entry
	for rows.Next() {
		var (
			e        synclog.Entry
			metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Provider, &e.Level, &e.Message, &metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode log metadata: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
