package crypto

import (
	"errors"
	"strings"
	"testing"
)

const testKey = "01234567890123456789012345678901"

func TestNewEncryptor(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"valid key", testKey, nil},
		{"short key", "too-short", ErrInvalidKey},
		{"empty key", "", ErrInvalidKey},
		{"long key", testKey + "x", ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewEncryptor(tt.key)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NewEncryptor() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && enc == nil {
				t.Fatal("NewEncryptor() returned nil")
			}
		})
	}
}

func TestEncryptDecrypt_Roundtrip(t *testing.T) {
	enc, _ := NewEncryptor(testKey)

	for _, plaintext := range []string{
		"sync-token-abc123",
		"Token de sincronização ☕",
		strings.Repeat("long content ", 1000),
	} {
		ciphertext, err := enc.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt() failed: %v", err)
		}
		if ciphertext == plaintext {
			t.Error("Encrypt() returned plaintext")
		}

		decrypted, err := enc.Decrypt(ciphertext)
		if err != nil {
			t.Fatalf("Decrypt() failed: %v", err)
		}
		if decrypted != plaintext {
			t.Errorf("Decrypt() = %q, want %q", decrypted, plaintext)
		}
	}
}

func TestEncryptDecrypt_EmptyStaysEmpty(t *testing.T) {
	enc, _ := NewEncryptor(testKey)

	if c, err := enc.Encrypt(""); err != nil || c != "" {
		t.Errorf("Encrypt(\"\") = %q, %v; want empty, nil", c, err)
	}
	if p, err := enc.Decrypt(""); err != nil || p != "" {
		t.Errorf("Decrypt(\"\") = %q, %v; want empty, nil", p, err)
	}
}

func TestEncrypt_FreshNonce(t *testing.T) {
	enc, _ := NewEncryptor(testKey)

	c1, _ := enc.Encrypt("same text")
	c2, _ := enc.Encrypt("same text")
	if c1 == c2 {
		t.Error("Encrypt() produced identical ciphertexts for same plaintext")
	}
}

func TestDecrypt_Rejects(t *testing.T) {
	enc, _ := NewEncryptor(testKey)
	other, _ := NewEncryptor("98765432109876543210987654321098")
	sealed, _ := enc.Encrypt("secret data")
	foreign, _ := other.Encrypt("secret data")

	tests := []struct {
		name  string
		input string
	}{
		{"tampered", sealed[:len(sealed)-4] + "AAAA"},
		{"invalid base64", "not-valid-base64!!!"},
		{"shorter than nonce", "YQ=="},
		{"wrong key", foreign},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := enc.Decrypt(tt.input); err == nil {
				t.Errorf("Decrypt(%q) expected error, got nil", tt.name)
			}
		})
	}
}
