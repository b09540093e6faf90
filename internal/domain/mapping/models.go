package mapping

import (
	"errors"
	"time"
)

var (
	ErrInvalidKey = errors.New("mapping key requires userId, provider, entityType and externalId")
)

// Key is the four-part identity of a mapping.
type Key struct {
	UserID     string
	Provider   string
	EntityType string
	ExternalID string
}

// Validate checks that every part of the key is present.
func (k Key) Validate() error {
	if k.UserID == "" || k.Provider == "" || k.EntityType == "" || k.ExternalID == "" {
		return ErrInvalidKey
	}
	return nil
}

// Mapping associates a provider's external id with the internal entity id.
type Mapping struct {
	UserID     string    `json:"-"`
	Provider   string    `json:"provider"`
	EntityType string    `json:"entityType"`
	ExternalID string    `json:"externalId"`
	InternalID string    `json:"internalId"`
	Checksum   *string   `json:"checksum,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Key returns the mapping's identity.
func (m *Mapping) Key() Key {
	return Key{UserID: m.UserID, Provider: m.Provider, EntityType: m.EntityType, ExternalID: m.ExternalID}
}

// ResolveOptions tunes Resolve.
type ResolveOptions struct {
	// ProposedID is used as the internal id when the mapping does not exist yet.
	// A random id is generated when empty.
	ProposedID string
	// Checksum replaces the stored checksum when non-nil.
	Checksum *string
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	InternalID string
	Created    bool
}
