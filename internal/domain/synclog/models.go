package synclog

import (
	"errors"
	"time"
)

var (
	ErrLiveFeedUnsupported = errors.New("sync log backend does not support live feeds")
	ErrInvalidEntry        = errors.New("sync log entry requires userId, provider, level and message")
)

// Level is the severity of a log entry.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 200
)

// Entry is one line of the diagnostic trail of a provider integration.
type Entry struct {
	ID        string         `json:"id"`
	UserID    string         `json:"-"`
	Provider  string         `json:"provider"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

func (l Level) valid() bool {
	return l == LevelInfo || l == LevelWarning || l == LevelError
}

// clampLimit applies the default and the hard cap to a requested size.
func clampLimit(n int) int {
	if n <= 0 {
		return DefaultRecentLimit
	}
	if n > MaxRecentLimit {
		return MaxRecentLimit
	}
	return n
}
