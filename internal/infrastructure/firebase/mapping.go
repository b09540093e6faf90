package firebase

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"lifedash/internal/domain/mapping"
)

type mappingDoc struct {
	Provider   string    `firestore:"provider"`
	EntityType string    `firestore:"entityType"`
	ExternalID string    `firestore:"externalId"`
	InternalID string    `firestore:"internalId"`
	Checksum   *string   `firestore:"checksum"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func (d *mappingDoc) toDomain(userID string) *mapping.Mapping {
	return &mapping.Mapping{
		UserID:     userID,
		Provider:   d.Provider,
		EntityType: d.EntityType,
		ExternalID: d.ExternalID,
		InternalID: d.InternalID,
		Checksum:   d.Checksum,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// MappingRepository stores mappings at
// users/{uid}/integrationMappings/{hash(provider, entityType, externalId)}.
type MappingRepository struct {
	c *Client
}

func NewMappingRepository(c *Client) *MappingRepository {
	return &MappingRepository{c: c}
}

func (r *MappingRepository) ref(key mapping.Key) *firestore.DocumentRef {
	return r.c.userCollection(key.UserID, colMappings).Doc(docKey(key.Provider, key.EntityType, key.ExternalID))
}

func (r *MappingRepository) Find(ctx context.Context, key mapping.Key) (*mapping.Mapping, error) {
	snap, err := r.ref(key).Get(ctx)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var doc mappingDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode mapping: %w", err)
	}
	return doc.toDomain(key.UserID), nil
}

func (r *MappingRepository) Upsert(ctx context.Context, key mapping.Key, internalID string, checksum *string, now time.Time) error {
	ref := r.ref(key)
	return r.c.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			return tx.Create(ref, newMappingDoc(key, internalID, checksum, now))
		}
		if err != nil {
			return err
		}

		updates := []firestore.Update{
			{Path: "internalId", Value: internalID},
			{Path: "updatedAt", Value: now},
		}
		if checksum != nil {
			updates = append(updates, firestore.Update{Path: "checksum", Value: *checksum})
		}
		return tx.Update(snap.Ref, updates)
	})
}

// Resolve reads and creates in one transaction; Firestore retries it when
// a concurrent resolve commits first, so the loser reads the winner's id.
func (r *MappingRepository) Resolve(ctx context.Context, key mapping.Key, proposedID string, checksum *string, now time.Time) (*mapping.Mapping, bool, error) {
	ref := r.ref(key)

	var (
		out     *mapping.Mapping
		created bool
	)
	err := r.c.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			doc := newMappingDoc(key, proposedID, checksum, now)
			out, created = doc.toDomain(key.UserID), true
			return tx.Create(ref, doc)
		}
		if err != nil {
			return err
		}

		var doc mappingDoc
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("failed to decode mapping: %w", err)
		}
		updates := []firestore.Update{{Path: "updatedAt", Value: now}}
		if checksum != nil {
			doc.Checksum = checksum
			updates = append(updates, firestore.Update{Path: "checksum", Value: *checksum})
		}
		doc.UpdatedAt = now
		if err := tx.Update(ref, updates); err != nil {
			return err
		}
		created = false
		out = doc.toDomain(key.UserID)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

func newMappingDoc(key mapping.Key, internalID string, checksum *string, now time.Time) *mappingDoc {
	return &mappingDoc{
		Provider:   key.Provider,
		EntityType: key.EntityType,
		ExternalID: key.ExternalID,
		InternalID: internalID,
		Checksum:   checksum,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
