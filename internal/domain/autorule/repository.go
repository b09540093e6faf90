package autorule

import (
	"context"
	"time"
)

// Repository defines the data access interface for auto rules
type Repository interface {
	// ListByUser returns the user's rules in insertion order.
	ListByUser(ctx context.Context, userID string) ([]*Rule, error)
	GetByID(ctx context.Context, userID, id string) (*Rule, error)
	Create(ctx context.Context, rule *Rule) error
	SetActive(ctx context.Context, userID, id string, active bool) error
	Delete(ctx context.Context, userID, id string) error
	MarkTriggered(ctx context.Context, userID string, ids []string, at time.Time) error
}
