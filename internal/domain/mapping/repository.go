package mapping

import (
	"context"
	"time"
)

// Repository persists mappings. Implementations must make Resolve atomic:
// two concurrent calls with the same key return the same internal id and
// exactly one of them reports created=true.
type Repository interface {
	// Find returns nil, nil when no mapping exists for key.
	Find(ctx context.Context, key Key) (*Mapping, error)
	Upsert(ctx context.Context, key Key, internalID string, checksum *string, now time.Time) error
	Resolve(ctx context.Context, key Key, proposedID string, checksum *string, now time.Time) (*Mapping, bool, error)
}
