package inbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrItemNotFound      = errors.New("inbox item not found")
	ErrItemNotProcessing = errors.New("inbox item is not processing")
	ErrInvalidEntityType = errors.New("invalid inbox entity type")
	ErrInvalidPayload    = errors.New("inbox payload must be a JSON object")
	ErrNoTransform       = errors.New("no transform registered")
)

// EntityType names the kind of record an inbox item carries.
type EntityType string

const (
	EntityTransaction      EntityType = "transaction"
	EntityWellnessSnapshot EntityType = "wellnessSnapshot"
	EntityCalendarEvent    EntityType = "calendarEvent"
	EntityTask             EntityType = "task"
)

func (t EntityType) Valid() bool {
	switch t {
	case EntityTransaction, EntityWellnessSnapshot, EntityCalendarEvent, EntityTask:
		return true
	}
	return false
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
)

// DefaultSource is recorded when the producer does not name itself.
const DefaultSource = "webhook"

// Item is a staged inbound record awaiting transformation.
type Item struct {
	ID          string          `json:"id"`
	UserID      string          `json:"-"`
	Provider    string          `json:"provider"`
	EntityType  EntityType      `json:"entityType"`
	Payload     json.RawMessage `json:"payload"`
	ExternalID  *string         `json:"externalId,omitempty"`
	Checksum    *string         `json:"checksum,omitempty"`
	Source      string          `json:"source"`
	Status      Status          `json:"status"`
	Error       *string         `json:"error,omitempty"`
	SyncJobID   *string         `json:"syncJobId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	ProcessedAt *time.Time      `json:"processedAt,omitempty"`
}

// IdentityKey is the external id used for mapping resolution. Items without
// an external id are keyed by their own id so a re-run maps to the same entity.
func (i *Item) IdentityKey() string {
	if i.ExternalID != nil && *i.ExternalID != "" {
		return *i.ExternalID
	}
	return "inbox:" + i.ID
}

// EnqueueOptions are the optional attributes of a new item.
type EnqueueOptions struct {
	ExternalID *string
	Checksum   *string
	Source     string
}

// ClaimFilter narrows a claim. Empty fields match everything; SyncJobID is
// recorded on the claimed items.
type ClaimFilter struct {
	UserID    string
	Provider  string
	SyncJobID string
	Limit     int
}

// BatchResult counts the outcome of one ProcessBatch call.
type BatchResult struct {
	Claimed   int
	Processed int
	Failed    int
}

func (r *BatchResult) add(o BatchResult) {
	r.Claimed += o.Claimed
	r.Processed += o.Processed
	r.Failed += o.Failed
}

// Finalize moves a processing item to processed or failed. Backends call it
// inside their atomic update so finished items are never mutated again.
func Finalize(item *Item, status Status, errMsg *string, at time.Time) error {
	if status != StatusProcessed && status != StatusFailed {
		return fmt.Errorf("cannot finalize inbox item as %s", status)
	}
	if item.Status != StatusProcessing {
		return fmt.Errorf("%w: item %s is %s", ErrItemNotProcessing, item.ID, item.Status)
	}

	item.Status = status
	item.Error = errMsg
	item.ProcessedAt = &at
	return nil
}

// Matches reports whether a pending item falls under filter.
func (f ClaimFilter) Matches(item *Item) bool {
	if item.Status != StatusPending {
		return false
	}
	if f.UserID != "" && item.UserID != f.UserID {
		return false
	}
	if f.Provider != "" && item.Provider != f.Provider {
		return false
	}
	return true
}
