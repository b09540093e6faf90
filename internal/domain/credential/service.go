// Package credential resolves the per-user secrets provider adapters need.
package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lifedash/internal/domain/integration"
)

// Service reads and writes credentials, sealing the sync token when a
// cipher is configured.
type Service struct {
	repo   Repository
	cipher Cipher
	now    func() time.Time
}

// NewService creates a credential service. cipher may be nil, in which case
// tokens are stored as given.
func NewService(repo Repository, cipher Cipher) *Service {
	return &Service{repo: repo, cipher: cipher, now: time.Now}
}

// Resolve returns usable credentials or an *integration.ConfigurationError
// when they are missing or incomplete.
func (s *Service) Resolve(ctx context.Context, userID, provider string) (*Credentials, error) {
	creds, err := s.repo.Get(ctx, userID, provider)
	if errors.Is(err, ErrNotFound) || (err == nil && creds == nil) {
		return nil, &integration.ConfigurationError{Provider: provider, Reason: "credentials not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	token := creds.SyncToken
	if s.cipher != nil && token != "" {
		token, err = s.cipher.Decrypt(token)
		if err != nil {
			return nil, &integration.ConfigurationError{Provider: provider, Reason: "stored sync token cannot be decrypted"}
		}
	}

	if strings.TrimSpace(creds.Email) == "" {
		return nil, &integration.ConfigurationError{Provider: provider, Reason: "email is missing"}
	}
	if strings.TrimSpace(token) == "" {
		return nil, &integration.ConfigurationError{Provider: provider, Reason: "sync token is missing"}
	}

	resolved := *creds
	resolved.SyncToken = token
	return &resolved, nil
}

// Save stores credentials for (userID, provider).
func (s *Service) Save(ctx context.Context, userID, provider, email, syncToken string) error {
	if userID == "" || provider == "" {
		return fmt.Errorf("user id and provider are required")
	}

	token := syncToken
	if s.cipher != nil {
		sealed, err := s.cipher.Encrypt(syncToken)
		if err != nil {
			return fmt.Errorf("failed to encrypt sync token: %w", err)
		}
		token = sealed
	}

	creds := &Credentials{
		UserID:    userID,
		Provider:  provider,
		Email:     strings.TrimSpace(email),
		SyncToken: token,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.repo.Save(ctx, creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// Users lists users with credentials for provider.
func (s *Service) Users(ctx context.Context, provider string) ([]string, error) {
	users, err := s.repo.ListUsers(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to list users with credentials: %w", err)
	}
	return users, nil
}
