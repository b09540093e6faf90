// Package inbox stages inbound records from webhooks and imports and turns
// them into entities through registered transforms.
package inbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service accepts new inbox items.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Enqueue stores a pending item and returns its id.
func (s *Service) Enqueue(ctx context.Context, userID, provider string, entityType EntityType, payload json.RawMessage, opts EnqueueOptions) (string, error) {
	if userID == "" || provider == "" {
		return "", fmt.Errorf("user id and provider are required")
	}
	if !entityType.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntityType, entityType)
	}
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return "", ErrInvalidPayload
	}

	source := opts.Source
	if source == "" {
		source = DefaultSource
	}

	item := &Item{
		ID:         uuid.NewString(),
		UserID:     userID,
		Provider:   provider,
		EntityType: entityType,
		Payload:    json.RawMessage(trimmed),
		ExternalID: opts.ExternalID,
		Checksum:   opts.Checksum,
		Source:     source,
		Status:     StatusPending,
		CreatedAt:  s.now().UTC(),
	}

	if err := s.repo.Create(ctx, item); err != nil {
		return "", fmt.Errorf("failed to enqueue inbox item: %w", err)
	}
	return item.ID, nil
}

// Get returns an item by id.
func (s *Service) Get(ctx context.Context, userID, id string) (*Item, error) {
	return s.repo.GetByID(ctx, userID, id)
}
