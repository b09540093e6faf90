package studyplanner

import (
	"encoding/json"
	"time"
)

// Credentials identify the user on every call.
type Credentials struct {
	Email     string `json:"email"`
	SyncToken string `json:"syncToken"`
}

// PullData holds the remote collections. Items that could not be decoded
// are listed in Rejected instead.
type PullData struct {
	Events     []RemoteEvent    `json:"events"`
	Tasks      []RemoteTask     `json:"tasks"`
	Subjects   []RemoteSubject  `json:"subjects"`
	Syllabi    []RemoteSyllabus `json:"syllabi"`
	ExamEvents []RemoteExam     `json:"examEvents"`
	Rejected   []RejectedItem   `json:"-"`
}

// RejectedItem is a pulled record that failed to decode.
type RejectedItem struct {
	Collection string
	ExternalID string
	Err        error
}

// rawPullResponse defers item decoding to decodeItems.
type rawPullResponse struct {
	Data struct {
		Events     []json.RawMessage `json:"events"`
		Tasks      []json.RawMessage `json:"tasks"`
		Subjects   []json.RawMessage `json:"subjects"`
		Syllabi    []json.RawMessage `json:"syllabi"`
		ExamEvents []json.RawMessage `json:"examEvents"`
	} `json:"data"`
}

// RemoteID is embedded by every remote record. Older payloads send
// externalId, newer ones id.
type RemoteID struct {
	ID         string `json:"id"`
	ExternalID string `json:"externalId"`
}

// Key returns the provider's identifier of the record.
func (r RemoteID) Key() string {
	if r.ExternalID != "" {
		return r.ExternalID
	}
	return r.ID
}

// RemoteEvent is a study session or other calendar entry.
type RemoteEvent struct {
	RemoteID
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	Start       time.Time  `json:"start"`
	End         *time.Time `json:"end"`
	AllDay      bool       `json:"allDay"`
	SubjectID   string     `json:"subjectId"`
}

// RemoteTask is an assignment or to-do item.
type RemoteTask struct {
	RemoteID
	Title     string     `json:"title"`
	Notes     string     `json:"notes"`
	DueDate   *time.Time `json:"dueDate"`
	Status    string     `json:"status"`
	Priority  string     `json:"priority"`
	SubjectID string     `json:"subjectId"`
}

type RemoteSubject struct {
	RemoteID
	Name    string `json:"name"`
	Color   string `json:"color"`
	Teacher string `json:"teacher"`
}

type RemoteSyllabus struct {
	RemoteID
	SubjectID string   `json:"subjectId"`
	Title     string   `json:"title"`
	Topics    []string `json:"topics"`
}

// RemoteExam carries its schedule as separate local date and time strings.
type RemoteExam struct {
	RemoteID
	Title     string `json:"title"`
	SubjectID string `json:"subjectId"`
	Location  string `json:"location"`
	Date      string `json:"date"`      // YYYY-MM-DD
	StartTime string `json:"startTime"` // HH:MM, optional
	EndTime   string `json:"endTime"`   // HH:MM, optional
}

// PushRequest is the body of a push call.
type PushRequest struct {
	Credentials
	Payload PushPayload `json:"payload"`
}

// PushPayload carries the local domains that were gathered successfully.
// Absent domains failed to gather; empty ones had nothing to send.
type PushPayload struct {
	Wellness    *WellnessPush `json:"wellness,omitzero"`
	Habits      []HabitPush   `json:"habits,omitzero"`
	Goals       []GoalPush    `json:"goals,omitzero"`
	Events      []EventPush   `json:"events,omitzero"`
	TaskUpdates []TaskUpdate  `json:"taskUpdates,omitzero"`
}

type WellnessPush struct {
	Date        string   `json:"date"`
	SleepHours  *float64 `json:"sleepHours,omitempty"`
	Steps       *int     `json:"steps,omitempty"`
	StressLevel *int     `json:"stressLevel,omitempty"`
	PeriodFlow  string   `json:"periodFlow,omitempty"`
}

type HabitPush struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Frequency string `json:"frequency"`
	Streak    int    `json:"streak"`
}

type GoalPush struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Progress float64    `json:"progress"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

type EventPush struct {
	ID     string    `json:"id"`
	Title  string    `json:"title"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	AllDay bool      `json:"allDay"`
}

// TaskUpdate reports the local status of a task the provider created.
type TaskUpdate struct {
	ExternalID  string     `json:"externalId"`
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// PushResponse is the body of a successful push.
type PushResponse struct {
	Message string `json:"message,omitempty"`
}

// ErrorResponse is the body of a failed call.
type ErrorResponse struct {
	Error string `json:"error"`
}
