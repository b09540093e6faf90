package memory

import (
	"context"
	"sort"
	"sync"

	"lifedash/internal/domain/credential"
)

type credentialKey struct {
	userID   string
	provider string
}

type CredentialRepository struct {
	mu    sync.Mutex
	creds map[credentialKey]*credential.Credentials
}

func NewCredentialRepository() *CredentialRepository {
	return &CredentialRepository{creds: make(map[credentialKey]*credential.Credentials)}
}

func (r *CredentialRepository) Get(ctx context.Context, userID, provider string) (*credential.Credentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.creds[credentialKey{userID, provider}]
	if !ok {
		return nil, credential.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *CredentialRepository) Save(ctx context.Context, creds *credential.Credentials) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *creds
	r.creds[credentialKey{creds.UserID, creds.Provider}] = &cp
	return nil
}

func (r *CredentialRepository) ListUsers(ctx context.Context, provider string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var users []string
	for key := range r.creds {
		if key.provider == provider {
			users = append(users, key.userID)
		}
	}
	sort.Strings(users)
	return users, nil
}
