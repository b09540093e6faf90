package memory

import (
	"context"
	"sort"
	"sync"

	"lifedash/internal/domain/synclog"
)

type logWatcher struct {
	userID   string
	provider string
	limit    int
	ch       chan []*synclog.Entry
}

// LogRepository keeps entries in append order and pushes the recent window
// to watchers after every append.
type LogRepository struct {
	mu       sync.Mutex
	entries  []*synclog.Entry
	watchers map[*logWatcher]struct{}
}

func NewLogRepository() *LogRepository {
	return &LogRepository{watchers: make(map[*logWatcher]struct{})}
}

func (r *LogRepository) Append(ctx context.Context, entry *synclog.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *entry
	r.entries = append(r.entries, &cp)

	for w := range r.watchers {
		if w.userID != entry.UserID || (w.provider != "" && w.provider != entry.Provider) {
			continue
		}
		window := r.recentLocked(w.userID, w.provider, w.limit)
		// Drop the stale window a slow reader has not taken yet.
		select {
		case <-w.ch:
		default:
		}
		w.ch <- window
	}
	return nil
}

func (r *LogRepository) Recent(ctx context.Context, userID, provider string, limit int) ([]*synclog.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recentLocked(userID, provider, limit), nil
}

func (r *LogRepository) recentLocked(userID, provider string, limit int) []*synclog.Entry {
	var out []*synclog.Entry
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.UserID != userID || (provider != "" && e.Provider != provider) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	// Append order breaks ties between equal timestamps.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Watch emits the current window immediately and again after each matching append.
func (r *LogRepository) Watch(ctx context.Context, userID, provider string, limit int) (<-chan []*synclog.Entry, error) {
	w := &logWatcher{userID: userID, provider: provider, limit: limit, ch: make(chan []*synclog.Entry, 1)}

	r.mu.Lock()
	w.ch <- r.recentLocked(userID, provider, limit)
	r.watchers[w] = struct{}{}
	r.mu.Unlock()

	out := make(chan []*synclog.Entry)
	go func() {
		defer close(out)
		defer func() {
			r.mu.Lock()
			delete(r.watchers, w)
			r.mu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case window := <-w.ch:
				select {
				case out <- window:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
