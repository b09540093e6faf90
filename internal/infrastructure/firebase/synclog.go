package firebase

import (
	"context"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"lifedash/internal/domain/synclog"
)

type logDoc struct {
	Provider  string         `firestore:"provider"`
	Level     string         `firestore:"level"`
	Message   string         `firestore:"message"`
	Metadata  map[string]any `firestore:"metadata,omitempty"`
	CreatedAt time.Time      `firestore:"createdAt"`
}

// LogRepository stores entries at users/{uid}/syncLogs/{id} and serves the
// live feed from query snapshots.
type LogRepository struct {
	c *Client
}

func NewLogRepository(c *Client) *LogRepository {
	return &LogRepository{c: c}
}

func (r *LogRepository) Append(ctx context.Context, entry *synclog.Entry) error {
	_, err := r.c.userCollection(entry.UserID, colLogs).Doc(entry.ID).Set(ctx, &logDoc{
		Provider:  entry.Provider,
		Level:     string(entry.Level),
		Message:   entry.Message,
		Metadata:  entry.Metadata,
		CreatedAt: entry.CreatedAt,
	})
	return err
}

func (r *LogRepository) query(userID, provider string, limit int) firestore.Query {
	q := r.c.userCollection(userID, colLogs).Query
	if provider != "" {
		q = q.Where("provider", "==", provider)
	}
	return q.OrderBy("createdAt", firestore.Desc).Limit(limit)
}

func (r *LogRepository) Recent(ctx context.Context, userID, provider string, limit int) ([]*synclog.Entry, error) {
	snaps, err := r.query(userID, provider, limit).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return decodeLogs(userID, snaps)
}

// Watch emits the window on every snapshot of the query until ctx is done.
func (r *LogRepository) Watch(ctx context.Context, userID, provider string, limit int) (<-chan []*synclog.Entry, error) {
	it := r.query(userID, provider, limit).Snapshots(ctx)

	out := make(chan []*synclog.Entry)
	go func() {
		defer close(out)
		defer it.Stop()

		for {
			qs, err := it.Next()
			if err != nil {
				if status.Code(err) != codes.Canceled && ctx.Err() == nil {
					log.Printf("User %s: sync log feed stopped: %v", userID, err)
				}
				return
			}
			snaps, err := qs.Documents.GetAll()
			if err != nil {
				log.Printf("User %s: failed to read sync log snapshot: %v", userID, err)
				return
			}
			window, err := decodeLogs(userID, snaps)
			if err != nil {
				log.Printf("User %s: %v", userID, err)
				continue
			}

			select {
			case out <- window:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func decodeLogs(userID string, snaps []*firestore.DocumentSnapshot) ([]*synclog.Entry, error) {
	entries := make([]*synclog.Entry, 0, len(snaps))
	for _, snap := range snaps {
		var d logDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("failed to decode sync log: %w", err)
		}
		entries = append(entries, &synclog.Entry{
			ID:        snap.Ref.ID,
			UserID:    userID,
			Provider:  d.Provider,
			Level:     synclog.Level(d.Level),
			Message:   d.Message,
			Metadata:  d.Metadata,
			CreatedAt: d.CreatedAt,
		})
	}
	return entries, nil
}
