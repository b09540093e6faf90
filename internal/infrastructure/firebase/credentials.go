package firebase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"lifedash/internal/domain/credential"
)

type credentialDoc struct {
	Provider  string    `firestore:"provider"`
	Email     string    `firestore:"email"`
	SyncToken string    `firestore:"syncToken"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// CredentialRepository stores one document per provider at
// users/{uid}/integrations/{provider}. The sync token arrives sealed.
type CredentialRepository struct {
	c *Client
}

func NewCredentialRepository(c *Client) *CredentialRepository {
	return &CredentialRepository{c: c}
}

func (r *CredentialRepository) Get(ctx context.Context, userID, provider string) (*credential.Credentials, error) {
	snap, err := r.c.userCollection(userID, colIntegrations).Doc(provider).Get(ctx)
	if isNotFound(err) {
		return nil, credential.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var d credentialDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	return &credential.Credentials{
		UserID:    userID,
		Provider:  provider,
		Email:     d.Email,
		SyncToken: d.SyncToken,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

func (r *CredentialRepository) Save(ctx context.Context, creds *credential.Credentials) error {
	_, err := r.c.userCollection(creds.UserID, colIntegrations).Doc(creds.Provider).Set(ctx, &credentialDoc{
		Provider:  creds.Provider,
		Email:     creds.Email,
		SyncToken: creds.SyncToken,
		UpdatedAt: creds.UpdatedAt,
	})
	return err
}

func (r *CredentialRepository) ListUsers(ctx context.Context, provider string) ([]string, error) {
	snaps, err := r.c.fs.CollectionGroup(colIntegrations).Where("provider", "==", provider).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}

	users := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		if uid := userIDOf(snap.Ref); uid != "" {
			users = append(users, uid)
		}
	}
	sort.Strings(users)
	return users, nil
}
