package memory

import (
	"context"
	"sync"
	"time"

	"lifedash/internal/domain/mapping"
)

type MappingRepository struct {
	mu       sync.Mutex
	mappings map[mapping.Key]*mapping.Mapping
}

func NewMappingRepository() *MappingRepository {
	return &MappingRepository{mappings: make(map[mapping.Key]*mapping.Mapping)}
}

func (r *MappingRepository) Find(ctx context.Context, key mapping.Key) (*mapping.Mapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.mappings[key]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *MappingRepository) Upsert(ctx context.Context, key mapping.Key, internalID string, checksum *string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.mappings[key]; ok {
		m.InternalID = internalID
		if checksum != nil {
			m.Checksum = checksum
		}
		m.UpdatedAt = now
		return nil
	}
	r.mappings[key] = newMapping(key, internalID, checksum, now)
	return nil
}

func (r *MappingRepository) Resolve(ctx context.Context, key mapping.Key, proposedID string, checksum *string, now time.Time) (*mapping.Mapping, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.mappings[key]; ok {
		if checksum != nil {
			m.Checksum = checksum
		}
		m.UpdatedAt = now
		cp := *m
		return &cp, false, nil
	}

	m := newMapping(key, proposedID, checksum, now)
	r.mappings[key] = m
	cp := *m
	return &cp, true, nil
}

// Len returns the number of stored mappings.
func (r *MappingRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mappings)
}

func newMapping(key mapping.Key, internalID string, checksum *string, now time.Time) *mapping.Mapping {
	return &mapping.Mapping{
		UserID:     key.UserID,
		Provider:   key.Provider,
		EntityType: key.EntityType,
		ExternalID: key.ExternalID,
		InternalID: internalID,
		Checksum:   checksum,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
