package firebase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"lifedash/internal/domain/inbox"
)

type inboxDoc struct {
	Provider    string     `firestore:"provider"`
	EntityType  string     `firestore:"entityType"`
	Payload     string     `firestore:"payload"`
	ExternalID  *string    `firestore:"externalId"`
	Checksum    *string    `firestore:"checksum"`
	Source      string     `firestore:"source"`
	Status      string     `firestore:"status"`
	Error       *string    `firestore:"error"`
	SyncJobID   *string    `firestore:"syncJobId"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	ProcessedAt *time.Time `firestore:"processedAt"`
}

func itemToDoc(item *inbox.Item) *inboxDoc {
	return &inboxDoc{
		Provider:    item.Provider,
		EntityType:  string(item.EntityType),
		Payload:     string(item.Payload),
		ExternalID:  item.ExternalID,
		Checksum:    item.Checksum,
		Source:      item.Source,
		Status:      string(item.Status),
		Error:       item.Error,
		SyncJobID:   item.SyncJobID,
		CreatedAt:   item.CreatedAt,
		ProcessedAt: item.ProcessedAt,
	}
}

func itemFromSnapshot(snap *firestore.DocumentSnapshot) (*inbox.Item, error) {
	var d inboxDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode inbox item: %w", err)
	}
	return &inbox.Item{
		ID:          snap.Ref.ID,
		UserID:      userIDOf(snap.Ref),
		Provider:    d.Provider,
		EntityType:  inbox.EntityType(d.EntityType),
		Payload:     json.RawMessage(d.Payload),
		ExternalID:  d.ExternalID,
		Checksum:    d.Checksum,
		Source:      d.Source,
		Status:      inbox.Status(d.Status),
		Error:       d.Error,
		SyncJobID:   d.SyncJobID,
		CreatedAt:   d.CreatedAt,
		ProcessedAt: d.ProcessedAt,
	}, nil
}

// InboxRepository stores items at users/{uid}/integrationInbox/{id}. Claims
// across users use a collection group query. It does not implement
// inbox.Notifier; consumers poll.
type InboxRepository struct {
	c *Client
}

func NewInboxRepository(c *Client) *InboxRepository {
	return &InboxRepository{c: c}
}

func (r *InboxRepository) Create(ctx context.Context, item *inbox.Item) error {
	_, err := r.c.userCollection(item.UserID, colInbox).Doc(item.ID).Create(ctx, itemToDoc(item))
	return err
}

func (r *InboxRepository) GetByID(ctx context.Context, userID, id string) (*inbox.Item, error) {
	snap, err := r.c.userCollection(userID, colInbox).Doc(id).Get(ctx)
	if isNotFound(err) {
		return nil, inbox.ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return itemFromSnapshot(snap)
}

func (r *InboxRepository) pending(filter inbox.ClaimFilter) firestore.Query {
	var q firestore.Query
	if filter.UserID != "" {
		q = r.c.userCollection(filter.UserID, colInbox).Query
	} else {
		q = r.c.fs.CollectionGroup(colInbox).Query
	}
	q = q.Where("status", "==", string(inbox.StatusPending))
	if filter.Provider != "" {
		q = q.Where("provider", "==", filter.Provider)
	}
	q = q.OrderBy("createdAt", firestore.Asc)
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	return q
}

// Claim reads the pending window and flips it to processing in one
// transaction. A concurrent claim that touched the same documents forces a
// retry, which then sees them as processing.
func (r *InboxRepository) Claim(ctx context.Context, filter inbox.ClaimFilter) ([]*inbox.Item, error) {
	q := r.pending(filter)

	var claimed []*inbox.Item
	err := r.c.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		claimed = claimed[:0]

		snaps, err := tx.Documents(q).GetAll()
		if err != nil {
			return err
		}

		for _, snap := range snaps {
			item, err := itemFromSnapshot(snap)
			if err != nil {
				return err
			}
			if !filter.Matches(item) {
				continue
			}

			updates := []firestore.Update{{Path: "status", Value: string(inbox.StatusProcessing)}}
			item.Status = inbox.StatusProcessing
			if filter.SyncJobID != "" {
				jobID := filter.SyncJobID
				item.SyncJobID = &jobID
				updates = append(updates, firestore.Update{Path: "syncJobId", Value: jobID})
			}
			if err := tx.Update(snap.Ref, updates); err != nil {
				return err
			}
			claimed = append(claimed, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *InboxRepository) Complete(ctx context.Context, userID, id string, status inbox.Status, errMsg *string, at time.Time) error {
	ref := r.c.userCollection(userID, colInbox).Doc(id)
	return r.c.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			return inbox.ErrItemNotFound
		}
		if err != nil {
			return err
		}

		item, err := itemFromSnapshot(snap)
		if err != nil {
			return err
		}
		if err := inbox.Finalize(item, status, errMsg, at); err != nil {
			return err
		}
		return tx.Set(ref, itemToDoc(item))
	})
}
