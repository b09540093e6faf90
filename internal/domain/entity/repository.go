package entity

import (
	"context"
	"time"
)

// Upsert methods create or replace the entity stored under its ID; callers
// obtain the ID from the mapping registry. Get methods return ErrNotFound.

type TransactionRepository interface {
	Upsert(ctx context.Context, tx *Transaction) error
	GetByID(ctx context.Context, userID, id string) (*Transaction, error)
}

type CalendarEventRepository interface {
	Upsert(ctx context.Context, ev *CalendarEvent) error
	GetByID(ctx context.Context, userID, id string) (*CalendarEvent, error)
	// ListBetween returns events starting in [from, to).
	ListBetween(ctx context.Context, userID string, from, to time.Time) ([]*CalendarEvent, error)
}

type TaskRepository interface {
	Upsert(ctx context.Context, task *Task) error
	GetByID(ctx context.Context, userID, id string) (*Task, error)
	ListBySource(ctx context.Context, userID, source string) ([]*Task, error)
}

type SubjectRepository interface {
	Upsert(ctx context.Context, subject *Subject) error
}

type SyllabusRepository interface {
	Upsert(ctx context.Context, syllabus *Syllabus) error
}

type WellnessRepository interface {
	// Upsert merges patch into the day's snapshot, creating it when needed.
	Upsert(ctx context.Context, userID, date string, patch WellnessPatch) error
	// Get returns nil, nil when the day has no snapshot.
	Get(ctx context.Context, userID, date string) (*WellnessSnapshot, error)
}

type HabitRepository interface {
	ListActive(ctx context.Context, userID string) ([]*Habit, error)
}

type GoalRepository interface {
	ListActive(ctx context.Context, userID string) ([]*Goal, error)
}

// Store bundles the entity repositories a sync engine writes to and reads from.
type Store struct {
	Transactions TransactionRepository
	Events       CalendarEventRepository
	Tasks        TaskRepository
	Subjects     SubjectRepository
	Syllabi      SyllabusRepository
	Wellness     WellnessRepository
	Habits       HabitRepository
	Goals        GoalRepository
}
