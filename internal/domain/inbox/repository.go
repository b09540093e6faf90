package inbox

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, item *Item) error
	GetByID(ctx context.Context, userID, id string) (*Item, error)
	// Claim atomically moves up to filter.Limit pending items, oldest first,
	// to processing and returns them. Concurrent claims never share an item.
	Claim(ctx context.Context, filter ClaimFilter) ([]*Item, error)
	// Complete finalizes a processing item through Finalize.
	Complete(ctx context.Context, userID, id string, status Status, errMsg *string, at time.Time) error
}

// Notifier is implemented by backends that signal when items are enqueued.
type Notifier interface {
	Notifications() <-chan struct{}
}
