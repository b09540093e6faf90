package inbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifedash/internal/domain/autorule"
	"lifedash/internal/domain/entity"
	"lifedash/internal/domain/inbox"
	"lifedash/internal/domain/mapping"
	"lifedash/internal/domain/syncjob"
	"lifedash/internal/domain/synclog"
	"lifedash/internal/infrastructure/memory"
)

type harness struct {
	entities *memory.Entities
	mappings *memory.MappingRepository
	items    *memory.InboxRepository
	rules    *autorule.Service
	inbox    *inbox.Service
	consumer *inbox.Consumer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		entities: memory.NewEntities(),
		mappings: memory.NewMappingRepository(),
		items:    memory.NewInboxRepository(),
	}
	h.rules = autorule.NewService(memory.NewRuleRepository())
	h.inbox = inbox.NewService(h.items)
	h.consumer = inbox.NewConsumer(h.items, 10, time.Minute)

	txs := entity.NewTransactionService(h.entities.Transactions, h.rules)
	inbox.NewTransforms(mapping.NewRegistry(h.mappings), h.entities.Store(), txs).RegisterAll(h.consumer)
	return h
}

func (h *harness) enqueue(t *testing.T, entityType inbox.EntityType, payload string, externalID string) string {
	t.Helper()
	opts := inbox.EnqueueOptions{Source: "bank-import"}
	if externalID != "" {
		opts.ExternalID = &externalID
	}
	id, err := h.inbox.Enqueue(context.Background(), "u1", "bank", entityType, json.RawMessage(payload), opts)
	require.NoError(t, err)
	return id
}

func TestTransforms_TransactionIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.rules.Create(ctx, autorule.CreateRuleParams{
		UserID:     "u1",
		Name:       "Coffee",
		MatchType:  autorule.MatchAll,
		Conditions: []autorule.RawCondition{{Field: "merchant", Operator: "contains", Value: "starbucks"}},
		Actions:    []autorule.RawAction{{Type: "categorize", Value: "Coffee"}, {Type: "add_tag", Value: "caffeine"}},
	})
	require.NoError(t, err)

	payload := `{"description":"STARBUCKS 042","merchant":"Starbucks","amount":"5.40","date":"2024-05-01T08:00:00Z"}`
	h.enqueue(t, inbox.EntityTransaction, payload, "bank-tx-1")
	h.enqueue(t, inbox.EntityTransaction, payload, "bank-tx-1")

	res, err := h.consumer.Drain(ctx, inbox.ClaimFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, inbox.BatchResult{Claimed: 2, Processed: 2}, res)
	assert.Equal(t, 1, h.entities.Transactions.Count("u1"))
	assert.Equal(t, 1, h.mappings.Len())

	m, err := h.mappings.Find(ctx, mapping.Key{UserID: "u1", Provider: "bank", EntityType: "transaction", ExternalID: "bank-tx-1"})
	require.NoError(t, err)
	require.NotNil(t, m)

	tx, err := h.entities.Transactions.GetByID(ctx, "u1", m.InternalID)
	require.NoError(t, err)
	assert.Equal(t, "Coffee", tx.Category)
	assert.Equal(t, []string{"caffeine"}, tx.Tags)
	assert.Equal(t, "bank-import", tx.Source)
}

func TestTransforms_WellnessMergesByDate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.enqueue(t, inbox.EntityWellnessSnapshot, `{"date":"2024-05-01","sleep":{"hours":6.5}}`, "")
	h.enqueue(t, inbox.EntityWellnessSnapshot, `{"date":"2024-05-01","activity":{"steps":8000}}`, "")
	h.enqueue(t, inbox.EntityWellnessSnapshot, `{"date":"May 1st","sleep":{"hours":1}}`, "")

	res, err := h.consumer.Drain(ctx, inbox.ClaimFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Failed)

	snap, err := h.entities.Wellness.Get(ctx, "u1", "2024-05-01")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 6.5, snap.Sleep.Hours)
	assert.Equal(t, 8000, snap.Activity.Steps)
}

func TestTransforms_TaskKeepsLocalStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.enqueue(t, inbox.EntityTask, `{"title":"Read chapter 3","status":"done"}`, "task-9")
	_, err := h.consumer.Drain(ctx, inbox.ClaimFilter{})
	require.NoError(t, err)

	h.enqueue(t, inbox.EntityTask, `{"title":"Read chapter 3 and 4"}`, "task-9")
	_, err = h.consumer.Drain(ctx, inbox.ClaimFilter{})
	require.NoError(t, err)

	tasks, err := h.entities.Tasks.ListBySource(ctx, "u1", "bank-import")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Read chapter 3 and 4", tasks[0].Title)
	assert.Equal(t, entity.TaskDone, tasks[0].Status)
	assert.NotNil(t, tasks[0].CompletedAt)
}

func TestTransforms_CalendarEventDefaultsEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.enqueue(t, inbox.EntityCalendarEvent, `{"title":"Dentist","start":"2024-05-02T14:00:00Z"}`, "")
	_, err := h.consumer.Drain(ctx, inbox.ClaimFilter{})
	require.NoError(t, err)

	item, err := h.inbox.Get(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, inbox.StatusProcessed, item.Status)

	events, err := h.entities.Events.ListBetween(ctx, "u1",
		time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, entity.DefaultEventDuration, events[0].End.Sub(events[0].Start))
	assert.Equal(t, entity.EventKindEvent, events[0].Kind)
}

func TestConsumer_RunJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	jobs := syncjob.NewService(memory.NewJobRepository(), nil, 0)
	logs := synclog.NewService(memory.NewLogRepository())

	h.enqueue(t, inbox.EntityTask, `{"title":"ok"}`, "")
	failedID := h.enqueue(t, inbox.EntityTask, `{"notes":"no title"}`, "")

	job, err := jobs.Enqueue(ctx, "u1", "bank", syncjob.ReasonWebhook)
	require.NoError(t, err)
	require.NoError(t, h.consumer.RunJob(ctx, jobs, logs, job))

	done, err := jobs.Get(ctx, "u1", job.ID)
	require.NoError(t, err)
	assert.Equal(t, syncjob.StatusPartial, done.Status)
	require.NotNil(t, done.Summary)
	assert.Equal(t, "Processed 2 inbox items, 1 failed", *done.Summary)

	failed, err := h.inbox.Get(ctx, "u1", failedID)
	require.NoError(t, err)
	assert.Equal(t, inbox.StatusFailed, failed.Status)
	require.NotNil(t, failed.SyncJobID)
	assert.Equal(t, job.ID, *failed.SyncJobID)

	entries, err := logs.Recent(ctx, "u1", "bank", 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "Processed 2 inbox items, 1 failed", entries[0].Message)
}

// startFailingJobs refuses to start jobs, as a store outage would.
type startFailingJobs struct {
	*syncjob.Service
}

func (startFailingJobs) Start(ctx context.Context, userID, id string) (*syncjob.Job, error) {
	return nil, errors.New("job store unavailable")
}

func TestConsumer_RunJob_StartFailureFailsJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	jobs := syncjob.NewService(memory.NewJobRepository(), nil, 0)
	logs := synclog.NewService(memory.NewLogRepository())

	job, err := jobs.Enqueue(ctx, "u1", "bank", syncjob.ReasonWebhook)
	require.NoError(t, err)
	require.Error(t, h.consumer.RunJob(ctx, startFailingJobs{jobs}, logs, job))

	done, err := jobs.Get(ctx, "u1", job.ID)
	require.NoError(t, err)
	assert.Equal(t, syncjob.StatusFailed, done.Status)
	_, idle := jobs.State("u1", "bank").(syncjob.Idle)
	assert.True(t, idle)
}
