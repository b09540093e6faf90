// Package synclog records the per user, per provider narration of sync runs.
package synclog

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Service writes and reads sync log entries.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a sync log service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Append stores a new entry and returns its id.
func (s *Service) Append(ctx context.Context, userID, provider string, level Level, message string, metadata map[string]any) (string, error) {
	if userID == "" || provider == "" || message == "" || !level.valid() {
		return "", ErrInvalidEntry
	}

	entry := &Entry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Provider:  provider,
		Level:     level,
		Message:   message,
		Metadata:  metadata,
		CreatedAt: s.now().UTC(),
	}

	if err := s.repo.Append(ctx, entry); err != nil {
		return "", fmt.Errorf("failed to append sync log: %w", err)
	}
	return entry.ID, nil
}

// Info appends an info entry. Write failures are logged, never returned.
func (s *Service) Info(ctx context.Context, userID, provider, message string, metadata map[string]any) {
	s.write(ctx, userID, provider, LevelInfo, message, metadata)
}

// Warn appends a warning entry. Write failures are logged, never returned.
func (s *Service) Warn(ctx context.Context, userID, provider, message string, metadata map[string]any) {
	s.write(ctx, userID, provider, LevelWarning, message, metadata)
}

// Error appends an error entry. Write failures are logged, never returned.
func (s *Service) Error(ctx context.Context, userID, provider, message string, metadata map[string]any) {
	s.write(ctx, userID, provider, LevelError, message, metadata)
}

func (s *Service) write(ctx context.Context, userID, provider string, level Level, message string, metadata map[string]any) {
	if _, err := s.Append(ctx, userID, provider, level, message, metadata); err != nil {
		log.Printf("User %s: failed to write %s sync log %q: %v", userID, level, message, err)
	}
}

// Recent returns the newest entries first. max <= 0 selects the default
// window and values above MaxRecentLimit are capped.
func (s *Service) Recent(ctx context.Context, userID, provider string, max int) ([]*Entry, error) {
	entries, err := s.repo.Recent(ctx, userID, provider, clampLimit(max))
	if err != nil {
		return nil, fmt.Errorf("failed to read sync logs: %w", err)
	}
	return entries, nil
}

// Watch streams the recent window whenever it changes, if the backend can.
func (s *Service) Watch(ctx context.Context, userID, provider string, max int) (<-chan []*Entry, error) {
	w, ok := s.repo.(Watcher)
	if !ok {
		return nil, ErrLiveFeedUnsupported
	}
	return w.Watch(ctx, userID, provider, clampLimit(max))
}
