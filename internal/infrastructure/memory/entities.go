package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"lifedash/internal/domain/entity"
)

// userRecord holds one kind of user scoped record keyed by id.
type userRecord[T any] struct {
	mu      sync.Mutex
	records map[string]map[string]*T
}

func (s *userRecord[T]) put(userID, id string, v *T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records == nil {
		s.records = make(map[string]map[string]*T)
	}
	byID, ok := s.records[userID]
	if !ok {
		byID = make(map[string]*T)
		s.records[userID] = byID
	}
	cp := *v
	byID[id] = &cp
}

func (s *userRecord[T]) get(userID, id string) (*T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.records[userID][id]
	if !ok {
		return nil, false
	}
	cp := *v
	return &cp, true
}

func (s *userRecord[T]) list(userID string, keep func(*T) bool) []*T {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*T
	for _, v := range s.records[userID] {
		if keep(v) {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out
}

func (s *userRecord[T]) count(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records[userID])
}

type TransactionRepository struct{ userRecord[entity.Transaction] }

func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{}
}

func (r *TransactionRepository) Upsert(ctx context.Context, tx *entity.Transaction) error {
	r.put(tx.UserID, tx.ID, tx)
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, userID, id string) (*entity.Transaction, error) {
	if tx, ok := r.get(userID, id); ok {
		return tx, nil
	}
	return nil, entity.ErrNotFound
}

func (r *TransactionRepository) Count(userID string) int { return r.count(userID) }

type EventRepository struct{ userRecord[entity.CalendarEvent] }

func NewEventRepository() *EventRepository {
	return &EventRepository{}
}

func (r *EventRepository) Upsert(ctx context.Context, ev *entity.CalendarEvent) error {
	r.put(ev.UserID, ev.ID, ev)
	return nil
}

func (r *EventRepository) GetByID(ctx context.Context, userID, id string) (*entity.CalendarEvent, error) {
	if ev, ok := r.get(userID, id); ok {
		return ev, nil
	}
	return nil, entity.ErrNotFound
}

func (r *EventRepository) ListBetween(ctx context.Context, userID string, from, to time.Time) ([]*entity.CalendarEvent, error) {
	out := r.list(userID, func(ev *entity.CalendarEvent) bool {
		return !ev.Start.Before(from) && ev.Start.Before(to)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (r *EventRepository) Count(userID string) int { return r.count(userID) }

type TaskRepository struct{ userRecord[entity.Task] }

func NewTaskRepository() *TaskRepository {
	return &TaskRepository{}
}

func (r *TaskRepository) Upsert(ctx context.Context, task *entity.Task) error {
	r.put(task.UserID, task.ID, task)
	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, userID, id string) (*entity.Task, error) {
	if task, ok := r.get(userID, id); ok {
		return task, nil
	}
	return nil, entity.ErrNotFound
}

func (r *TaskRepository) ListBySource(ctx context.Context, userID, source string) ([]*entity.Task, error) {
	out := r.list(userID, func(task *entity.Task) bool { return task.Source == source })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *TaskRepository) Count(userID string) int { return r.count(userID) }

type SubjectRepository struct{ userRecord[entity.Subject] }

func NewSubjectRepository() *SubjectRepository {
	return &SubjectRepository{}
}

func (r *SubjectRepository) Upsert(ctx context.Context, subject *entity.Subject) error {
	r.put(subject.UserID, subject.ID, subject)
	return nil
}

func (r *SubjectRepository) Get(userID, id string) (*entity.Subject, bool) { return r.get(userID, id) }

type SyllabusRepository struct{ userRecord[entity.Syllabus] }

func NewSyllabusRepository() *SyllabusRepository {
	return &SyllabusRepository{}
}

func (r *SyllabusRepository) Upsert(ctx context.Context, syllabus *entity.Syllabus) error {
	r.put(syllabus.UserID, syllabus.ID, syllabus)
	return nil
}

func (r *SyllabusRepository) Get(userID, id string) (*entity.Syllabus, bool) { return r.get(userID, id) }

type WellnessRepository struct{ userRecord[entity.WellnessSnapshot] }

func NewWellnessRepository() *WellnessRepository {
	return &WellnessRepository{}
}

func (r *WellnessRepository) Upsert(ctx context.Context, userID, date string, patch entity.WellnessPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.records == nil {
		r.records = make(map[string]map[string]*entity.WellnessSnapshot)
	}
	byDate, ok := r.records[userID]
	if !ok {
		byDate = make(map[string]*entity.WellnessSnapshot)
		r.records[userID] = byDate
	}
	snap, ok := byDate[date]
	if !ok {
		snap = &entity.WellnessSnapshot{UserID: userID, Date: date}
		byDate[date] = snap
	}
	patch.ApplyTo(snap)
	snap.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *WellnessRepository) Get(ctx context.Context, userID, date string) (*entity.WellnessSnapshot, error) {
	snap, ok := r.get(userID, date)
	if !ok {
		return nil, nil
	}
	return snap, nil
}

type HabitRepository struct{ userRecord[entity.Habit] }

func NewHabitRepository() *HabitRepository {
	return &HabitRepository{}
}

// Put stores a habit. Habits are managed outside the sync engine.
func (r *HabitRepository) Put(h *entity.Habit) { r.put(h.UserID, h.ID, h) }

func (r *HabitRepository) ListActive(ctx context.Context, userID string) ([]*entity.Habit, error) {
	out := r.list(userID, func(h *entity.Habit) bool { return h.Active })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type GoalRepository struct{ userRecord[entity.Goal] }

func NewGoalRepository() *GoalRepository {
	return &GoalRepository{}
}

// Put stores a goal. Goals are managed outside the sync engine.
func (r *GoalRepository) Put(g *entity.Goal) { r.put(g.UserID, g.ID, g) }

func (r *GoalRepository) ListActive(ctx context.Context, userID string) ([]*entity.Goal, error) {
	out := r.list(userID, func(g *entity.Goal) bool { return g.Active })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Entities groups the concrete entity repositories so tests and seeding
// code can reach the helpers the domain interfaces do not expose.
type Entities struct {
	Transactions *TransactionRepository
	Events       *EventRepository
	Tasks        *TaskRepository
	Subjects     *SubjectRepository
	Syllabi      *SyllabusRepository
	Wellness     *WellnessRepository
	Habits       *HabitRepository
	Goals        *GoalRepository
}

func NewEntities() *Entities {
	return &Entities{
		Transactions: NewTransactionRepository(),
		Events:       NewEventRepository(),
		Tasks:        NewTaskRepository(),
		Subjects:     NewSubjectRepository(),
		Syllabi:      NewSyllabusRepository(),
		Wellness:     NewWellnessRepository(),
		Habits:       NewHabitRepository(),
		Goals:        NewGoalRepository(),
	}
}

// Store exposes the repositories through the domain interfaces.
func (e *Entities) Store() entity.Store {
	return entity.Store{
		Transactions: e.Transactions,
		Events:       e.Events,
		Tasks:        e.Tasks,
		Subjects:     e.Subjects,
		Syllabi:      e.Syllabi,
		Wellness:     e.Wellness,
		Habits:       e.Habits,
		Goals:        e.Goals,
	}
}
