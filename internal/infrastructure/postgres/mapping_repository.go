package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lifedash/internal/domain/mapping"
)

type MappingRepository struct {
	db *DB
}

func NewMappingRepository(db *DB) *MappingRepository {
	return &MappingRepository{db: db}
}

func (r *MappingRepository) Find(ctx context.Context, key mapping.Key) (*mapping.Mapping, error) {
	query := `
		SELECT internal_id, checksum, created_at, updated_at
		FROM integration_mappings
		WHERE user_id = $1 AND provider = $2 AND entity_type = $3 AND external_id = $4
	`

	m := &mapping.Mapping{UserID: key.UserID, Provider: key.Provider, EntityType: key.EntityType, ExternalID: key.ExternalID}
	var checksum sql.NullString
	err := r.db.QueryRowContext(ctx, query, key.UserID, key.Provider, key.EntityType, key.ExternalID).
		Scan(&m.InternalID, &checksum, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query mapping: %w", err)
	}
	if checksum.Valid {
		m.Checksum = &checksum.String
	}
	return m, nil
}

func (r *MappingRepository) Upsert(ctx context.Context, key mapping.Key, internalID string, checksum *string, now time.Time) error {
	query := `
		INSERT INTO integration_mappings (user_id, provider, entity_type, external_id, internal_id, checksum, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (user_id, provider, entity_type, external_id) DO UPDATE SET
			internal_id = EXCLUDED.internal_id,
			checksum    = COALESCE(EXCLUDED.checksum, integration_mappings.checksum),
			updated_at  = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query, key.UserID, key.Provider, key.EntityType, key.ExternalID, internalID, checksum, now)
	if err != nil {
		return fmt.Errorf("failed to upsert mapping: %w", err)
	}
	return nil
}

// Resolve relies on the primary key: the insert either creates the row or
// touches the existing one, and xmax = 0 tells the two apart.
func (r *MappingRepository) Resolve(ctx context.Context, key mapping.Key, proposedID string, checksum *string, now time.Time) (*mapping.Mapping, bool, error) {
	query := `
		INSERT INTO integration_mappings (user_id, provider, entity_type, external_id, internal_id, checksum, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (user_id, provider, entity_type, external_id) DO UPDATE SET
			checksum   = COALESCE(EXCLUDED.checksum, integration_mappings.checksum),
			updated_at = EXCLUDED.updated_at
		RETURNING internal_id, checksum, created_at, updated_at, (xmax = 0) AS created
	`

	m := &mapping.Mapping{UserID: key.UserID, Provider: key.Provider, EntityType: key.EntityType, ExternalID: key.ExternalID}
	var (
		stored  sql.NullString
		created bool
	)
	err := r.db.QueryRowContext(ctx, query, key.UserID, key.Provider, key.EntityType, key.ExternalID, proposedID, checksum, now).
		Scan(&m.InternalID, &stored, &m.CreatedAt, &m.UpdatedAt, &created)
	if err != nil {
		return nil, false, fmt.Errorf("failed to resolve mapping: %w", err)
	}
	if stored.Valid {
		m.Checksum = &stored.String
	}
	return m, created, nil
}
