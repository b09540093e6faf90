package synclog

import "context"

// Repository is append-only storage for log entries.
type Repository interface {
	Append(ctx context.Context, entry *Entry) error
	// Recent returns at most limit entries, newest first. An empty provider
	// matches every provider.
	Recent(ctx context.Context, userID, provider string, limit int) ([]*Entry, error)
}

// Watcher is implemented by backends that can push the recent window each
// time it changes. The channel is closed when ctx is done.
type Watcher interface {
	Watch(ctx context.Context, userID, provider string, limit int) (<-chan []*Entry, error)
}
