package firebase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	"lifedash/internal/domain/entity"
)

// NewStore returns the Firestore backed entity repositories.
func NewStore(c *Client) entity.Store {
	return entity.Store{
		Transactions: &TransactionRepository{c: c},
		Events:       &EventRepository{c: c},
		Tasks:        &TaskRepository{c: c},
		Subjects:     &SubjectRepository{c: c},
		Syllabi:      &SyllabusRepository{c: c},
		Wellness:     &WellnessRepository{c: c},
		Habits:       &HabitRepository{c: c},
		Goals:        &GoalRepository{c: c},
	}
}

func getDoc[D any](ctx context.Context, ref *firestore.DocumentRef) (*D, error) {
	snap, err := ref.Get(ctx)
	if isNotFound(err) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var d D
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", ref.Parent.ID, err)
	}
	return &d, nil
}

func queryDocs[D any](ctx context.Context, q firestore.Query) ([]*D, []string, error) {
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, nil, err
	}
	docs := make([]*D, 0, len(snaps))
	ids := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		var d D
		if err := snap.DataTo(&d); err != nil {
			return nil, nil, fmt.Errorf("failed to decode %s: %w", snap.Ref.Parent.ID, err)
		}
		docs = append(docs, &d)
		ids = append(ids, snap.Ref.ID)
	}
	return docs, ids, nil
}

// Amounts are stored as strings to keep decimal precision.
type transactionDoc struct {
	Description string    `firestore:"description"`
	Merchant    string    `firestore:"merchant"`
	Account     string    `firestore:"account"`
	Amount      string    `firestore:"amount"`
	Currency    string    `firestore:"currency"`
	Date        time.Time `firestore:"date"`
	Category    string    `firestore:"category"`
	Tags        []string  `firestore:"tags"`
	NeedsReview bool      `firestore:"needsReview"`
	GoalID      string    `firestore:"goalId"`
	Source      string    `firestore:"source"`
	ExternalID  string    `firestore:"externalId"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

type TransactionRepository struct{ c *Client }

func (r *TransactionRepository) Upsert(ctx context.Context, tx *entity.Transaction) error {
	_, err := r.c.userCollection(tx.UserID, colTransactions).Doc(tx.ID).Set(ctx, &transactionDoc{
		Description: tx.Description,
		Merchant:    tx.Merchant,
		Account:     tx.Account,
		Amount:      tx.Amount.String(),
		Currency:    tx.Currency,
		Date:        tx.Date,
		Category:    tx.Category,
		Tags:        tx.Tags,
		NeedsReview: tx.NeedsReview,
		GoalID:      tx.GoalID,
		Source:      tx.Source,
		ExternalID:  tx.ExternalID,
		CreatedAt:   tx.CreatedAt,
		UpdatedAt:   tx.UpdatedAt,
	})
	return err
}

func (r *TransactionRepository) GetByID(ctx context.Context, userID, id string) (*entity.Transaction, error) {
	d, err := getDoc[transactionDoc](ctx, r.c.userCollection(userID, colTransactions).Doc(id))
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", d.Amount, err)
	}
	return &entity.Transaction{
		ID:          id,
		UserID:      userID,
		Description: d.Description,
		Merchant:    d.Merchant,
		Account:     d.Account,
		Amount:      amount,
		Currency:    d.Currency,
		Date:        d.Date,
		Category:    d.Category,
		Tags:        d.Tags,
		NeedsReview: d.NeedsReview,
		GoalID:      d.GoalID,
		Source:      d.Source,
		ExternalID:  d.ExternalID,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

type eventDoc struct {
	Title       string    `firestore:"title"`
	Description string    `firestore:"description"`
	Location    string    `firestore:"location"`
	Start       time.Time `firestore:"start"`
	End         time.Time `firestore:"end"`
	AllDay      bool      `firestore:"allDay"`
	Kind        string    `firestore:"kind"`
	SubjectID   string    `firestore:"subjectId"`
	Source      string    `firestore:"source"`
	ExternalID  string    `firestore:"externalId"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func (d *eventDoc) toDomain(userID, id string) *entity.CalendarEvent {
	return &entity.CalendarEvent{
		ID: id, UserID: userID, Title: d.Title, Description: d.Description, Location: d.Location,
		Start: d.Start, End: d.End, AllDay: d.AllDay, Kind: d.Kind, SubjectID: d.SubjectID,
		Source: d.Source, ExternalID: d.ExternalID, UpdatedAt: d.UpdatedAt,
	}
}

type EventRepository struct{ c *Client }

func (r *EventRepository) Upsert(ctx context.Context, ev *entity.CalendarEvent) error {
	_, err := r.c.userCollection(ev.UserID, colEvents).Doc(ev.ID).Set(ctx, &eventDoc{
		Title: ev.Title, Description: ev.Description, Location: ev.Location,
		Start: ev.Start, End: ev.End, AllDay: ev.AllDay, Kind: ev.Kind, SubjectID: ev.SubjectID,
		Source: ev.Source, ExternalID: ev.ExternalID, UpdatedAt: ev.UpdatedAt,
	})
	return err
}

func (r *EventRepository) GetByID(ctx context.Context, userID, id string) (*entity.CalendarEvent, error) {
	d, err := getDoc[eventDoc](ctx, r.c.userCollection(userID, colEvents).Doc(id))
	if err != nil {
		return nil, err
	}
	return d.toDomain(userID, id), nil
}

func (r *EventRepository) ListBetween(ctx context.Context, userID string, from, to time.Time) ([]*entity.CalendarEvent, error) {
	q := r.c.userCollection(userID, colEvents).
		Where("start", ">=", from).
		Where("start", "<", to).
		OrderBy("start", firestore.Asc)
	docs, ids, err := queryDocs[eventDoc](ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]*entity.CalendarEvent, len(docs))
	for i, d := range docs {
		out[i] = d.toDomain(userID, ids[i])
	}
	return out, nil
}

type taskDoc struct {
	Title       string     `firestore:"title"`
	Notes       string     `firestore:"notes"`
	DueDate     *time.Time `firestore:"dueDate"`
	Status      string     `firestore:"status"`
	Priority    string     `firestore:"priority"`
	SubjectID   string     `firestore:"subjectId"`
	Source      string     `firestore:"source"`
	ExternalID  string     `firestore:"externalId"`
	CompletedAt *time.Time `firestore:"completedAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
}

func (d *taskDoc) toDomain(userID, id string) *entity.Task {
	return &entity.Task{
		ID: id, UserID: userID, Title: d.Title, Notes: d.Notes, DueDate: d.DueDate, Status: d.Status,
		Priority: d.Priority, SubjectID: d.SubjectID, Source: d.Source, ExternalID: d.ExternalID,
		CompletedAt: d.CompletedAt, UpdatedAt: d.UpdatedAt,
	}
}

type TaskRepository struct{ c *Client }

func (r *TaskRepository) Upsert(ctx context.Context, t *entity.Task) error {
	_, err := r.c.userCollection(t.UserID, colTasks).Doc(t.ID).Set(ctx, &taskDoc{
		Title: t.Title, Notes: t.Notes, DueDate: t.DueDate, Status: t.Status, Priority: t.Priority,
		SubjectID: t.SubjectID, Source: t.Source, ExternalID: t.ExternalID,
		CompletedAt: t.CompletedAt, UpdatedAt: t.UpdatedAt,
	})
	return err
}

func (r *TaskRepository) GetByID(ctx context.Context, userID, id string) (*entity.Task, error) {
	d, err := getDoc[taskDoc](ctx, r.c.userCollection(userID, colTasks).Doc(id))
	if err != nil {
		return nil, err
	}
	return d.toDomain(userID, id), nil
}

func (r *TaskRepository) ListBySource(ctx context.Context, userID, source string) ([]*entity.Task, error) {
	docs, ids, err := queryDocs[taskDoc](ctx, r.c.userCollection(userID, colTasks).Where("source", "==", source))
	if err != nil {
		return nil, err
	}
	out := make([]*entity.Task, len(docs))
	for i, d := range docs {
		out[i] = d.toDomain(userID, ids[i])
	}
	return out, nil
}

type subjectDoc struct {
	Name       string    `firestore:"name"`
	Color      string    `firestore:"color"`
	Teacher    string    `firestore:"teacher"`
	Source     string    `firestore:"source"`
	ExternalID string    `firestore:"externalId"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

type SubjectRepository struct{ c *Client }

func (r *SubjectRepository) Upsert(ctx context.Context, s *entity.Subject) error {
	_, err := r.c.userCollection(s.UserID, colSubjects).Doc(s.ID).Set(ctx, &subjectDoc{
		Name: s.Name, Color: s.Color, Teacher: s.Teacher, Source: s.Source, ExternalID: s.ExternalID, UpdatedAt: s.UpdatedAt,
	})
	return err
}

type syllabusDoc struct {
	SubjectID  string    `firestore:"subjectId"`
	Title      string    `firestore:"title"`
	Topics     []string  `firestore:"topics"`
	Source     string    `firestore:"source"`
	ExternalID string    `firestore:"externalId"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

type SyllabusRepository struct{ c *Client }

func (r *SyllabusRepository) Upsert(ctx context.Context, s *entity.Syllabus) error {
	_, err := r.c.userCollection(s.UserID, colSyllabi).Doc(s.ID).Set(ctx, &syllabusDoc{
		SubjectID: s.SubjectID, Title: s.Title, Topics: s.Topics, Source: s.Source, ExternalID: s.ExternalID, UpdatedAt: s.UpdatedAt,
	})
	return err
}

type wellnessDoc struct {
	Sleep     *entity.Sleep    `firestore:"sleep"`
	Activity  *entity.Activity `firestore:"activity"`
	Stress    *entity.Stress   `firestore:"stress"`
	Period    *entity.Period   `firestore:"period"`
	UpdatedAt time.Time        `firestore:"updatedAt"`
}

// WellnessRepository keeps one document per day at users/{uid}/wellness/{date}.
type WellnessRepository struct{ c *Client }

func (r *WellnessRepository) Upsert(ctx context.Context, userID, date string, patch entity.WellnessPatch) error {
	ref := r.c.userCollection(userID, colWellness).Doc(date)
	return r.c.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap := &entity.WellnessSnapshot{UserID: userID, Date: date}

		doc, err := tx.Get(ref)
		switch {
		case isNotFound(err):
		case err != nil:
			return err
		default:
			var d wellnessDoc
			if err := doc.DataTo(&d); err != nil {
				return fmt.Errorf("failed to decode wellness: %w", err)
			}
			snap.Sleep, snap.Activity, snap.Stress, snap.Period = d.Sleep, d.Activity, d.Stress, d.Period
		}

		patch.ApplyTo(snap)
		return tx.Set(ref, &wellnessDoc{
			Sleep:     snap.Sleep,
			Activity:  snap.Activity,
			Stress:    snap.Stress,
			Period:    snap.Period,
			UpdatedAt: time.Now().UTC(),
		})
	})
}

func (r *WellnessRepository) Get(ctx context.Context, userID, date string) (*entity.WellnessSnapshot, error) {
	d, err := getDoc[wellnessDoc](ctx, r.c.userCollection(userID, colWellness).Doc(date))
	if errors.Is(err, entity.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entity.WellnessSnapshot{
		UserID: userID, Date: date, Sleep: d.Sleep, Activity: d.Activity, Stress: d.Stress, Period: d.Period, UpdatedAt: d.UpdatedAt,
	}, nil
}

type habitDoc struct {
	Name            string     `firestore:"name"`
	Frequency       string     `firestore:"frequency"`
	Active          bool       `firestore:"active"`
	Streak          int        `firestore:"streak"`
	LastCompletedAt *time.Time `firestore:"lastCompletedAt"`
}

type HabitRepository struct{ c *Client }

func (r *HabitRepository) ListActive(ctx context.Context, userID string) ([]*entity.Habit, error) {
	docs, ids, err := queryDocs[habitDoc](ctx, r.c.userCollection(userID, colHabits).Where("active", "==", true))
	if err != nil {
		return nil, err
	}
	out := make([]*entity.Habit, len(docs))
	for i, d := range docs {
		out[i] = &entity.Habit{
			ID: ids[i], UserID: userID, Name: d.Name, Frequency: d.Frequency,
			Active: d.Active, Streak: d.Streak, LastCompletedAt: d.LastCompletedAt,
		}
	}
	return out, nil
}

type goalDoc struct {
	Title    string     `firestore:"title"`
	Target   float64    `firestore:"target"`
	Progress float64    `firestore:"progress"`
	Deadline *time.Time `firestore:"deadline"`
	Active   bool       `firestore:"active"`
}

type GoalRepository struct{ c *Client }

func (r *GoalRepository) ListActive(ctx context.Context, userID string) ([]*entity.Goal, error) {
	docs, ids, err := queryDocs[goalDoc](ctx, r.c.userCollection(userID, colGoals).Where("active", "==", true))
	if err != nil {
		return nil, err
	}
	out := make([]*entity.Goal, len(docs))
	for i, d := range docs {
		out[i] = &entity.Goal{
			ID: ids[i], UserID: userID, Title: d.Title,
			Target:   decimal.NewFromFloat(d.Target),
			Progress: decimal.NewFromFloat(d.Progress),
			Deadline: d.Deadline, Active: d.Active,
		}
	}
	return out, nil
}
