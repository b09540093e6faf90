package entity

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("entity not found")
)

// Transaction is a financial record subject to auto rules.
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"-"`
	Description string          `json:"description"`
	Merchant    string          `json:"merchant,omitempty"`
	Account     string          `json:"account,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency,omitempty"`
	Date        time.Time       `json:"date"`
	Category    string          `json:"category,omitempty"`
	Tags        []string        `json:"tags"`
	NeedsReview bool            `json:"needsReview"`
	GoalID      string          `json:"goalId,omitempty"`
	Source      string          `json:"source,omitempty"`
	ExternalID  string          `json:"externalId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// CalendarEvent kinds.
const (
	EventKindEvent   = "event"
	EventKindSession = "session"
	EventKindExam    = "exam"
)

// DefaultEventDuration is the length given to events and exams that arrive
// without a usable end.
const DefaultEventDuration = 2 * time.Hour

// CalendarEvent is an entry of the user's calendar.
type CalendarEvent struct {
	ID          string    `json:"id"`
	UserID      string    `json:"-"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"allDay"`
	Kind        string    `json:"kind"`
	SubjectID   string    `json:"subjectId,omitempty"`
	Source      string    `json:"source,omitempty"`
	ExternalID  string    `json:"externalId,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Task statuses.
const (
	TaskTodo       = "todo"
	TaskInProgress = "in_progress"
	TaskDone       = "done"
)

// Task is a to-do item.
type Task struct {
	ID          string     `json:"id"`
	UserID      string     `json:"-"`
	Title       string     `json:"title"`
	Notes       string     `json:"notes,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority,omitempty"`
	SubjectID   string     `json:"subjectId,omitempty"`
	Source      string     `json:"source,omitempty"`
	ExternalID  string     `json:"externalId,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Subject is a course or study topic.
type Subject struct {
	ID         string    `json:"id"`
	UserID     string    `json:"-"`
	Name       string    `json:"name"`
	Color      string    `json:"color,omitempty"`
	Teacher    string    `json:"teacher,omitempty"`
	Source     string    `json:"source,omitempty"`
	ExternalID string    `json:"externalId,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Syllabus lists the topics of a subject.
type Syllabus struct {
	ID         string    `json:"id"`
	UserID     string    `json:"-"`
	SubjectID  string    `json:"subjectId,omitempty"`
	Title      string    `json:"title"`
	Topics     []string  `json:"topics"`
	Source     string    `json:"source,omitempty"`
	ExternalID string    `json:"externalId,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Wellness sub-entries. Each is optional on a day.
type Sleep struct {
	Hours   float64 `json:"hours"`
	Quality int     `json:"quality,omitempty"`
}

type Activity struct {
	Steps         int `json:"steps"`
	ActiveMinutes int `json:"activeMinutes,omitempty"`
}

type Stress struct {
	Level int    `json:"level"`
	Note  string `json:"note,omitempty"`
}

type Period struct {
	Flow     string   `json:"flow"`
	Symptoms []string `json:"symptoms,omitempty"`
}

// WellnessSnapshot is the user's wellness record for one day (YYYY-MM-DD).
type WellnessSnapshot struct {
	UserID    string    `json:"-"`
	Date      string    `json:"date"`
	Sleep     *Sleep    `json:"sleep,omitempty"`
	Activity  *Activity `json:"activity,omitempty"`
	Stress    *Stress   `json:"stress,omitempty"`
	Period    *Period   `json:"period,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// WellnessPatch sets the non-nil sub-fields of a day, leaving the rest.
type WellnessPatch struct {
	Sleep    *Sleep    `json:"sleep,omitempty"`
	Activity *Activity `json:"activity,omitempty"`
	Stress   *Stress   `json:"stress,omitempty"`
	Period   *Period   `json:"period,omitempty"`
}

// Empty reports whether the patch sets nothing.
func (p WellnessPatch) Empty() bool {
	return p.Sleep == nil && p.Activity == nil && p.Stress == nil && p.Period == nil
}

// ApplyTo merges the patch into snap.
func (p WellnessPatch) ApplyTo(snap *WellnessSnapshot) {
	if p.Sleep != nil {
		snap.Sleep = p.Sleep
	}
	if p.Activity != nil {
		snap.Activity = p.Activity
	}
	if p.Stress != nil {
		snap.Stress = p.Stress
	}
	if p.Period != nil {
		snap.Period = p.Period
	}
}

// Habit is a recurring behaviour the user tracks.
type Habit struct {
	ID              string     `json:"id"`
	UserID          string     `json:"-"`
	Name            string     `json:"name"`
	Frequency       string     `json:"frequency"`
	Active          bool       `json:"active"`
	Streak          int        `json:"streak"`
	LastCompletedAt *time.Time `json:"lastCompletedAt,omitempty"`
}

// Goal is a target the user works towards.
type Goal struct {
	ID       string          `json:"id"`
	UserID   string          `json:"-"`
	Title    string          `json:"title"`
	Target   decimal.Decimal `json:"target"`
	Progress decimal.Decimal `json:"progress"`
	Deadline *time.Time      `json:"deadline,omitempty"`
	Active   bool            `json:"active"`
}
