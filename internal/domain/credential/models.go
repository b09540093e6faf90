package credential

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("credentials not found")

// Credentials authenticate a user against a provider's sync endpoints.
type Credentials struct {
	UserID    string    `json:"-"`
	Provider  string    `json:"provider"`
	Email     string    `json:"email"`
	SyncToken string    `json:"-"`
	UpdatedAt time.Time `json:"updatedAt"`
}
