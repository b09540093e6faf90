package studysync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"lifedash/internal/domain/entity"
	"lifedash/internal/domain/mapping"
	"lifedash/internal/infrastructure/studyplanner"
)

// Mapping entity types used for study planner records.
const (
	EntitySubject  = "subject"
	EntitySyllabus = "syllabus"
	EntitySession  = "session"
	EntityTask     = "task"
	EntityExam     = "exam"
)

const maxReportedFailures = 10

var errMissingID = errors.New("remote item has no id")

// Pull fetches the remote collections and applies them. Subjects go first
// so the other collections can reference them. A failing item is counted
// and skipped; only a failing pull call is returned as an error.
func (a *Adapter) Pull(ctx context.Context, userID string, creds studyplanner.Credentials) (PullResult, error) {
	ctx, span := tracer.Start(ctx, "studysync.pull")
	defer span.End()

	data, err := a.client.Pull(ctx, creds)
	if err != nil {
		span.RecordError(err)
		return PullResult{}, err
	}

	var (
		res      PullResult
		failures []string
	)
	// counter may be nil when err is set.
	record := func(counter *int, kind, externalID string, created bool, err error) {
		if err != nil {
			res.Failed++
			log.Printf("User %s: failed to apply %s %q: %v", userID, kind, externalID, err)
			if len(failures) < maxReportedFailures {
				failures = append(failures, fmt.Sprintf("%s %s: %v", kind, externalID, err))
			}
			return
		}
		*counter++
		if created {
			res.Created++
		}
	}

	for _, r := range data.Rejected {
		record(nil, r.Collection, r.ExternalID, false, r.Err)
	}
	for _, s := range data.Subjects {
		created, err := a.upsertSubject(ctx, userID, s)
		record(&res.Subjects, EntitySubject, s.Key(), created, err)
	}
	for _, s := range data.Syllabi {
		created, err := a.upsertSyllabus(ctx, userID, s)
		record(&res.Syllabi, EntitySyllabus, s.Key(), created, err)
	}
	for _, e := range data.Events {
		created, err := a.upsertSession(ctx, userID, e, e.Key())
		record(&res.Sessions, EntitySession, e.Key(), created, err)
	}
	for _, t := range data.Tasks {
		created, err := a.upsertTask(ctx, userID, t, t.Key())
		record(&res.Tasks, EntityTask, t.Key(), created, err)
	}
	for _, x := range data.ExamEvents {
		created, err := a.upsertExam(ctx, userID, x)
		record(&res.Exams, EntityExam, x.Key(), created, err)
	}

	if res.Failed > 0 {
		a.logs.Warn(ctx, userID, Provider, fmt.Sprintf("%d pulled items could not be applied", res.Failed),
			map[string]any{"errors": failures})
	}
	log.Printf("User %s: pulled %d items from %s (%d new, %d failed)", userID, res.Total(), Provider, res.Created, res.Failed)
	return res, nil
}

func (a *Adapter) resolve(ctx context.Context, userID, entityType, externalID string) (mapping.Resolution, error) {
	if externalID == "" {
		return mapping.Resolution{}, errMissingID
	}
	return a.registry.Resolve(ctx, mapping.Key{
		UserID:     userID,
		Provider:   Provider,
		EntityType: entityType,
		ExternalID: externalID,
	}, mapping.ResolveOptions{})
}

// subjectRef translates a remote subject id to the local subject id. Unknown
// subjects yield an empty reference.
func (a *Adapter) subjectRef(ctx context.Context, userID, remoteID string) string {
	if remoteID == "" {
		return ""
	}
	m, err := a.registry.Find(ctx, mapping.Key{UserID: userID, Provider: Provider, EntityType: EntitySubject, ExternalID: remoteID})
	if err != nil {
		log.Printf("User %s: failed to look up subject %q: %v", userID, remoteID, err)
		return ""
	}
	if m == nil {
		return ""
	}
	return m.InternalID
}

func (a *Adapter) upsertSubject(ctx context.Context, userID string, s studyplanner.RemoteSubject) (bool, error) {
	if strings.TrimSpace(s.Name) == "" {
		return false, fmt.Errorf("subject has no name")
	}
	res, err := a.resolve(ctx, userID, EntitySubject, s.Key())
	if err != nil {
		return false, err
	}
	return res.Created, a.store.Subjects.Upsert(ctx, &entity.Subject{
		ID:         res.InternalID,
		UserID:     userID,
		Name:       s.Name,
		Color:      s.Color,
		Teacher:    s.Teacher,
		Source:     Provider,
		ExternalID: s.Key(),
		UpdatedAt:  a.now().UTC(),
	})
}

func (a *Adapter) upsertSyllabus(ctx context.Context, userID string, s studyplanner.RemoteSyllabus) (bool, error) {
	res, err := a.resolve(ctx, userID, EntitySyllabus, s.Key())
	if err != nil {
		return false, err
	}
	topics := s.Topics
	if topics == nil {
		topics = []string{}
	}
	return res.Created, a.store.Syllabi.Upsert(ctx, &entity.Syllabus{
		ID:         res.InternalID,
		UserID:     userID,
		SubjectID:  a.subjectRef(ctx, userID, s.SubjectID),
		Title:      s.Title,
		Topics:     topics,
		Source:     Provider,
		ExternalID: s.Key(),
		UpdatedAt:  a.now().UTC(),
	})
}

func (a *Adapter) upsertSession(ctx context.Context, userID string, e studyplanner.RemoteEvent, externalID string) (bool, error) {
	if strings.TrimSpace(e.Title) == "" || e.Start.IsZero() {
		return false, fmt.Errorf("event requires title and start")
	}
	res, err := a.resolve(ctx, userID, EntitySession, externalID)
	if err != nil {
		return false, err
	}
	return res.Created, a.store.Events.Upsert(ctx, &entity.CalendarEvent{
		ID:          res.InternalID,
		UserID:      userID,
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		Start:       e.Start,
		End:         eventEnd(e.Start, e.End),
		AllDay:      e.AllDay,
		Kind:        entity.EventKindSession,
		SubjectID:   a.subjectRef(ctx, userID, e.SubjectID),
		Source:      Provider,
		ExternalID:  externalID,
		UpdatedAt:   a.now().UTC(),
	})
}

// upsertTask applies a remote task. Status and completion are owned locally
// once the task exists, so updates leave them alone.
func (a *Adapter) upsertTask(ctx context.Context, userID string, t studyplanner.RemoteTask, externalID string) (bool, error) {
	if strings.TrimSpace(t.Title) == "" {
		return false, fmt.Errorf("task has no title")
	}
	res, err := a.resolve(ctx, userID, EntityTask, externalID)
	if err != nil {
		return false, err
	}

	now := a.now().UTC()
	task := &entity.Task{
		ID:         res.InternalID,
		UserID:     userID,
		Title:      t.Title,
		Notes:      t.Notes,
		DueDate:    t.DueDate,
		Priority:   t.Priority,
		SubjectID:  a.subjectRef(ctx, userID, t.SubjectID),
		Source:     Provider,
		ExternalID: externalID,
		UpdatedAt:  now,
	}

	var existing *entity.Task
	if !res.Created {
		existing, err = a.store.Tasks.GetByID(ctx, userID, res.InternalID)
		if err != nil && !errors.Is(err, entity.ErrNotFound) {
			return false, fmt.Errorf("failed to load task: %w", err)
		}
	}

	if existing != nil {
		task.Status = existing.Status
		task.CompletedAt = existing.CompletedAt
	} else {
		task.Status = normalizeStatus(t.Status)
		if task.Status == entity.TaskDone {
			task.CompletedAt = &now
		}
	}

	return res.Created, a.store.Tasks.Upsert(ctx, task)
}

func (a *Adapter) upsertExam(ctx context.Context, userID string, x studyplanner.RemoteExam) (bool, error) {
	start, end, allDay, err := ExamSchedule(x, a.loc)
	if err != nil {
		return false, err
	}
	res, err := a.resolve(ctx, userID, EntityExam, x.Key())
	if err != nil {
		return false, err
	}

	title := x.Title
	if strings.TrimSpace(title) == "" {
		title = "Exam"
	}
	return res.Created, a.store.Events.Upsert(ctx, &entity.CalendarEvent{
		ID:         res.InternalID,
		UserID:     userID,
		Title:      title,
		Location:   x.Location,
		Start:      start,
		End:        end,
		AllDay:     allDay,
		Kind:       entity.EventKindExam,
		SubjectID:  a.subjectRef(ctx, userID, x.SubjectID),
		Source:     Provider,
		ExternalID: x.Key(),
		UpdatedAt:  a.now().UTC(),
	})
}

func normalizeStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "done", "completed", "complete":
		return entity.TaskDone
	case "in_progress", "in-progress", "doing", "started":
		return entity.TaskInProgress
	default:
		return entity.TaskTodo
	}
}
