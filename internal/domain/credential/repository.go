package credential

import "context"

// Repository stores one credentials record per (user, provider). Get returns
// ErrNotFound when the record is absent.
type Repository interface {
	Get(ctx context.Context, userID, provider string) (*Credentials, error)
	Save(ctx context.Context, creds *Credentials) error
	// ListUsers returns the ids of users with credentials for provider.
	ListUsers(ctx context.Context, provider string) ([]string, error)
}

// Cipher seals sync tokens at rest.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}
