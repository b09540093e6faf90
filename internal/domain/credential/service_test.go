package credential

import (
	"context"
	"errors"
	"strings"
	"testing"

	"lifedash/internal/domain/integration"
)

// MockRepo implements Repository for testing
type MockRepo struct {
	GetFunc       func(ctx context.Context, userID, provider string) (*Credentials, error)
	SaveFunc      func(ctx context.Context, creds *Credentials) error
	ListUsersFunc func(ctx context.Context, provider string) ([]string, error)
}

func (m *MockRepo) Get(ctx context.Context, userID, provider string) (*Credentials, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, userID, provider)
	}
	return nil, ErrNotFound
}

func (m *MockRepo) Save(ctx context.Context, creds *Credentials) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, creds)
	}
	return nil
}

func (m *MockRepo) ListUsers(ctx context.Context, provider string) ([]string, error) {
	if m.ListUsersFunc != nil {
		return m.ListUsersFunc(ctx, provider)
	}
	return nil, nil
}

// reverseCipher is a reversible stand-in for the real encryptor.
type reverseCipher struct{}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

func (reverseCipher) Encrypt(p string) (string, error) { return "enc:" + reverse(p), nil }
func (reverseCipher) Decrypt(c string) (string, error) {
	if !strings.HasPrefix(c, "enc:") {
		return "", errors.New("not sealed")
	}
	return reverse(strings.TrimPrefix(c, "enc:")), nil
}

func TestService_Resolve_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name  string
		creds *Credentials
		err   error
	}{
		{"missing record", nil, ErrNotFound},
		{"empty email", &Credentials{SyncToken: "enc:kot"}, nil},
		{"empty token", &Credentials{Email: "a@b.c"}, nil},
		{"undecryptable token", &Credentials{Email: "a@b.c", SyncToken: "plain"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&MockRepo{
				GetFunc: func(ctx context.Context, userID, provider string) (*Credentials, error) {
					return tt.creds, tt.err
				},
			}, reverseCipher{})

			_, err := svc.Resolve(context.Background(), "u1", "studyplanner")
			if !integration.IsConfiguration(err) {
				t.Errorf("Resolve() error = %v, want ConfigurationError", err)
			}
		})
	}
}

func TestService_Resolve_StoreFailureIsNotConfiguration(t *testing.T) {
	svc := NewService(&MockRepo{
		GetFunc: func(ctx context.Context, userID, provider string) (*Credentials, error) {
			return nil, errors.New("unavailable")
		},
	}, nil)

	_, err := svc.Resolve(context.Background(), "u1", "studyplanner")
	if err == nil || integration.IsConfiguration(err) {
		t.Errorf("Resolve() error = %v, want plain store error", err)
	}
}

func TestService_SaveThenResolve(t *testing.T) {
	var stored *Credentials
	repo := &MockRepo{
		SaveFunc: func(ctx context.Context, creds *Credentials) error {
			stored = creds
			return nil
		},
		GetFunc: func(ctx context.Context, userID, provider string) (*Credentials, error) {
			return stored, nil
		},
	}
	svc := NewService(repo, reverseCipher{})

	if err := svc.Save(context.Background(), "u1", "studyplanner", " student@example.com ", "tok-123"); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if stored.SyncToken == "tok-123" {
		t.Error("sync token stored in plaintext")
	}

	creds, err := svc.Resolve(context.Background(), "u1", "studyplanner")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if creds.Email != "student@example.com" || creds.SyncToken != "tok-123" {
		t.Errorf("Resolve() = %+v, want decrypted credentials", creds)
	}
	if stored.SyncToken == creds.SyncToken {
		t.Error("Resolve() mutated the stored record")
	}
}
