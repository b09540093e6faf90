// Package mapping keeps the association between provider entity ids and the
// ids of the entities this system created for them. It is the idempotency
// guard for every ingestion path.
package mapping

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Registry is the entry point for mapping lookups and writes.
type Registry struct {
	repo  Repository
	now   func() time.Time
	newID func() string
}

// NewRegistry creates a mapping registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:  repo,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Find looks a mapping up by its four-part key. It returns nil, nil when absent.
func (r *Registry) Find(ctx context.Context, key Key) (*Mapping, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	m, err := r.repo.Find(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to find mapping: %w", err)
	}
	return m, nil
}

// Upsert points key at internalID. An existing mapping keeps its checksum when
// checksum is nil.
func (r *Registry) Upsert(ctx context.Context, key Key, internalID string, checksum *string) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if internalID == "" {
		return fmt.Errorf("internal id is required")
	}

	if err := r.repo.Upsert(ctx, key, internalID, checksum, r.now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert mapping: %w", err)
	}
	return nil
}

// Resolve returns the internal id for key, registering opts.ProposedID (or a
// fresh id) when the external id has never been seen. The lookup and the
// write happen as one atomic unit in the repository.
func (r *Registry) Resolve(ctx context.Context, key Key, opts ResolveOptions) (Resolution, error) {
	if err := key.Validate(); err != nil {
		return Resolution{}, err
	}

	proposed := opts.ProposedID
	if proposed == "" {
		proposed = r.newID()
	}

	m, created, err := r.repo.Resolve(ctx, key, proposed, opts.Checksum, r.now().UTC())
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to resolve mapping: %w", err)
	}

	return Resolution{InternalID: m.InternalID, Created: created}, nil
}
