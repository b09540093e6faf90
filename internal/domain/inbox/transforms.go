package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"lifedash/internal/domain/entity"
	"lifedash/internal/domain/mapping"
)

// Transforms holds the provider independent transforms for each entity type.
type Transforms struct {
	registry     *mapping.Registry
	store        entity.Store
	transactions *entity.TransactionService
}

func NewTransforms(registry *mapping.Registry, store entity.Store, transactions *entity.TransactionService) *Transforms {
	return &Transforms{registry: registry, store: store, transactions: transactions}
}

// RegisterAll installs every generic transform on c.
func (t *Transforms) RegisterAll(c *Consumer) {
	c.RegisterGeneric(EntityTransaction, t.Transaction)
	c.RegisterGeneric(EntityWellnessSnapshot, t.Wellness)
	c.RegisterGeneric(EntityCalendarEvent, t.CalendarEvent)
	c.RegisterGeneric(EntityTask, t.Task)
}

func (t *Transforms) resolve(ctx context.Context, item *Item) (mapping.Resolution, error) {
	return t.registry.Resolve(ctx, mapping.Key{
		UserID:     item.UserID,
		Provider:   item.Provider,
		EntityType: string(item.EntityType),
		ExternalID: item.IdentityKey(),
	}, mapping.ResolveOptions{Checksum: item.Checksum})
}

func decode(item *Item, v any) error {
	if err := json.Unmarshal(item.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", item.EntityType, err)
	}
	return nil
}

type transactionPayload struct {
	Description string           `json:"description"`
	Merchant    string           `json:"merchant"`
	Account     string           `json:"account"`
	Amount      *decimal.Decimal `json:"amount"`
	Currency    string           `json:"currency"`
	Date        time.Time        `json:"date"`
	Category    string           `json:"category"`
	Tags        []string         `json:"tags"`
}

// Transaction ingests a transaction, running auto rules when the mapped
// record does not exist yet.
func (t *Transforms) Transaction(ctx context.Context, item *Item) error {
	var p transactionPayload
	if err := decode(item, &p); err != nil {
		return err
	}
	if strings.TrimSpace(p.Description) == "" || p.Amount == nil {
		return fmt.Errorf("transaction payload requires description and amount")
	}
	if p.Date.IsZero() {
		p.Date = item.CreatedAt
	}

	res, err := t.resolve(ctx, item)
	if err != nil {
		return err
	}

	tx := &entity.Transaction{
		ID:          res.InternalID,
		UserID:      item.UserID,
		Description: strings.TrimSpace(p.Description),
		Merchant:    p.Merchant,
		Account:     p.Account,
		Amount:      *p.Amount,
		Currency:    p.Currency,
		Date:        p.Date,
		Category:    p.Category,
		Tags:        p.Tags,
		Source:      item.Source,
		ExternalID:  item.IdentityKey(),
	}

	isNew := res.Created
	if !isNew {
		existing, err := t.store.Transactions.GetByID(ctx, item.UserID, res.InternalID)
		switch {
		case errors.Is(err, entity.ErrNotFound):
			isNew = true
		case err != nil:
			return fmt.Errorf("failed to load transaction: %w", err)
		default:
			keepLocalFields(tx, existing)
		}
	}

	return t.transactions.Ingest(ctx, tx, isNew)
}

// keepLocalFields carries over what rules or the user set on a stored
// transaction when the payload leaves it empty.
func keepLocalFields(tx, existing *entity.Transaction) {
	tx.CreatedAt = existing.CreatedAt
	if tx.Category == "" {
		tx.Category = existing.Category
	}
	if tx.Tags == nil {
		tx.Tags = existing.Tags
	}
	tx.NeedsReview = existing.NeedsReview
	tx.GoalID = existing.GoalID
}

type wellnessPayload struct {
	Date string `json:"date"`
	entity.WellnessPatch
}

// Wellness merges the given sub-fields into the snapshot of the payload date.
func (t *Transforms) Wellness(ctx context.Context, item *Item) error {
	var p wellnessPayload
	if err := decode(item, &p); err != nil {
		return err
	}
	if _, err := time.Parse(time.DateOnly, p.Date); err != nil {
		return fmt.Errorf("wellness payload requires date as YYYY-MM-DD")
	}
	if p.WellnessPatch.Empty() {
		return fmt.Errorf("wellness payload has no fields")
	}

	key := mapping.Key{
		UserID:     item.UserID,
		Provider:   item.Provider,
		EntityType: string(item.EntityType),
		ExternalID: item.IdentityKey(),
	}
	if err := t.registry.Upsert(ctx, key, p.Date, item.Checksum); err != nil {
		return err
	}
	return t.store.Wellness.Upsert(ctx, item.UserID, p.Date, p.WellnessPatch)
}

type eventPayload struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	Start       time.Time  `json:"start"`
	End         *time.Time `json:"end"`
	AllDay      bool       `json:"allDay"`
	Kind        string     `json:"kind"`
	SubjectID   string     `json:"subjectId"`
}

// CalendarEvent upserts a canonical calendar event.
func (t *Transforms) CalendarEvent(ctx context.Context, item *Item) error {
	var p eventPayload
	if err := decode(item, &p); err != nil {
		return err
	}
	if strings.TrimSpace(p.Title) == "" || p.Start.IsZero() {
		return fmt.Errorf("calendar event payload requires title and start")
	}

	res, err := t.resolve(ctx, item)
	if err != nil {
		return err
	}

	end := p.Start.Add(entity.DefaultEventDuration)
	if p.End != nil && p.End.After(p.Start) {
		end = *p.End
	}
	kind := p.Kind
	if kind == "" {
		kind = entity.EventKindEvent
	}

	return t.store.Events.Upsert(ctx, &entity.CalendarEvent{
		ID:          res.InternalID,
		UserID:      item.UserID,
		Title:       p.Title,
		Description: p.Description,
		Location:    p.Location,
		Start:       p.Start,
		End:         end,
		AllDay:      p.AllDay,
		Kind:        kind,
		SubjectID:   p.SubjectID,
		Source:      item.Source,
		ExternalID:  item.IdentityKey(),
		UpdatedAt:   time.Now().UTC(),
	})
}

type taskPayload struct {
	Title     string     `json:"title"`
	Notes     string     `json:"notes"`
	DueDate   *time.Time `json:"dueDate"`
	Status    string     `json:"status"`
	Priority  string     `json:"priority"`
	SubjectID string     `json:"subjectId"`
}

// Task upserts a canonical task. A payload without status keeps the
// stored status of an existing task.
func (t *Transforms) Task(ctx context.Context, item *Item) error {
	var p taskPayload
	if err := decode(item, &p); err != nil {
		return err
	}
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("task payload requires title")
	}

	res, err := t.resolve(ctx, item)
	if err != nil {
		return err
	}

	task := &entity.Task{
		ID:         res.InternalID,
		UserID:     item.UserID,
		Title:      p.Title,
		Notes:      p.Notes,
		DueDate:    p.DueDate,
		Status:     p.Status,
		Priority:   p.Priority,
		SubjectID:  p.SubjectID,
		Source:     item.Source,
		ExternalID: item.IdentityKey(),
		UpdatedAt:  time.Now().UTC(),
	}

	if !res.Created {
		existing, err := t.store.Tasks.GetByID(ctx, item.UserID, res.InternalID)
		if err != nil && !errors.Is(err, entity.ErrNotFound) {
			return fmt.Errorf("failed to load task: %w", err)
		}
		if existing != nil && task.Status == "" {
			task.Status = existing.Status
			task.CompletedAt = existing.CompletedAt
		}
	}
	if task.Status == "" {
		task.Status = entity.TaskTodo
	}
	if task.Status == entity.TaskDone && task.CompletedAt == nil {
		now := task.UpdatedAt
		task.CompletedAt = &now
	}

	return t.store.Tasks.Upsert(ctx, task)
}
