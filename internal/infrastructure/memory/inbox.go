package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"lifedash/internal/domain/inbox"
)

// InboxRepository signals Notifications after every Create.
type InboxRepository struct {
	mu     sync.Mutex
	items  map[string]*inbox.Item
	notify chan struct{}
}

func NewInboxRepository() *InboxRepository {
	return &InboxRepository{
		items:  make(map[string]*inbox.Item),
		notify: make(chan struct{}, 1),
	}
}

func (r *InboxRepository) Create(ctx context.Context, item *inbox.Item) error {
	r.mu.Lock()
	cp := *item
	r.items[item.ID] = &cp
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
	return nil
}

func (r *InboxRepository) GetByID(ctx context.Context, userID, id string) (*inbox.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok || item.UserID != userID {
		return nil, inbox.ErrItemNotFound
	}
	cp := *item
	return &cp, nil
}

func (r *InboxRepository) Claim(ctx context.Context, filter inbox.ClaimFilter) ([]*inbox.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []*inbox.Item
	for _, item := range r.items {
		if filter.Matches(item) {
			pending = append(pending, item)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if filter.Limit > 0 && len(pending) > filter.Limit {
		pending = pending[:filter.Limit]
	}

	claimed := make([]*inbox.Item, 0, len(pending))
	for _, item := range pending {
		item.Status = inbox.StatusProcessing
		if filter.SyncJobID != "" {
			jobID := filter.SyncJobID
			item.SyncJobID = &jobID
		}
		cp := *item
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (r *InboxRepository) Complete(ctx context.Context, userID, id string, status inbox.Status, errMsg *string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok || item.UserID != userID {
		return inbox.ErrItemNotFound
	}
	next := *item
	if err := inbox.Finalize(&next, status, errMsg, at); err != nil {
		return err
	}
	r.items[id] = &next
	return nil
}

func (r *InboxRepository) Notifications() <-chan struct{} {
	return r.notify
}
