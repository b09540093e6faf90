package studysync

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifedash/internal/domain/credential"
	"lifedash/internal/domain/entity"
	"lifedash/internal/domain/integration"
	"lifedash/internal/domain/mapping"
	"lifedash/internal/domain/syncjob"
	"lifedash/internal/domain/synclog"
	"lifedash/internal/infrastructure/crypto"
	"lifedash/internal/infrastructure/memory"
	"lifedash/internal/infrastructure/studyplanner"
)

// MockClient implements studyplanner.ClientInterface for testing
type MockClient struct {
	PullFunc func(ctx context.Context, creds studyplanner.Credentials) (*studyplanner.PullData, error)
	PushFunc func(ctx context.Context, creds studyplanner.Credentials, payload studyplanner.PushPayload) (*studyplanner.PushResponse, error)

	mu     sync.Mutex
	pulls  int
	pushes []studyplanner.PushPayload
}

func (m *MockClient) Pull(ctx context.Context, creds studyplanner.Credentials) (*studyplanner.PullData, error) {
	m.mu.Lock()
	m.pulls++
	m.mu.Unlock()
	if m.PullFunc != nil {
		return m.PullFunc(ctx, creds)
	}
	return &studyplanner.PullData{}, nil
}

func (m *MockClient) Push(ctx context.Context, creds studyplanner.Credentials, payload studyplanner.PushPayload) (*studyplanner.PushResponse, error) {
	m.mu.Lock()
	m.pushes = append(m.pushes, payload)
	m.mu.Unlock()
	if m.PushFunc != nil {
		return m.PushFunc(ctx, creds, payload)
	}
	return &studyplanner.PushResponse{}, nil
}

func (m *MockClient) lastPush(t *testing.T) studyplanner.PushPayload {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.pushes, "no push was sent")
	return m.pushes[len(m.pushes)-1]
}

type failingHabits struct{}

func (failingHabits) ListActive(ctx context.Context, userID string) ([]*entity.Habit, error) {
	return nil, errors.New("habits table unavailable")
}

var testNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	adapter  *Adapter
	client   *MockClient
	entities *memory.Entities
	registry *mapping.Registry
	jobs     *syncjob.Service
	logs     *synclog.Service
}

func newFixture(t *testing.T, client *MockClient, withCreds bool, mutate func(*entity.Store)) *fixture {
	t.Helper()

	enc, err := crypto.NewEncryptor(strings.Repeat("k", 32))
	require.NoError(t, err)
	creds := credential.NewService(memory.NewCredentialRepository(), enc)
	if withCreds {
		require.NoError(t, creds.Save(context.Background(), "u1", Provider, "ana@example.com", "tok-1"))
	}

	f := &fixture{
		client:   client,
		entities: memory.NewEntities(),
		registry: mapping.NewRegistry(memory.NewMappingRepository()),
		jobs:     syncjob.NewService(memory.NewJobRepository(), syncjob.NewGuard(), 0),
		logs:     synclog.NewService(memory.NewLogRepository()),
	}
	store := f.entities.Store()
	if mutate != nil {
		mutate(&store)
	}
	f.adapter = NewAdapter(creds, client, f.registry, store, f.jobs, f.logs, Config{})
	f.adapter.now = func() time.Time { return testNow }
	return f
}

func (f *fixture) run(t *testing.T) (*syncjob.Job, error) {
	t.Helper()
	ctx := context.Background()
	job, err := f.jobs.Enqueue(ctx, "u1", Provider, syncjob.ReasonManual)
	require.NoError(t, err)

	runErr := f.adapter.Run(ctx, job)
	done, err := f.jobs.Get(ctx, "u1", job.ID)
	require.NoError(t, err)
	return done, runErr
}

func (f *fixture) messages(t *testing.T) []string {
	t.Helper()
	entries, err := f.logs.Recent(context.Background(), "u1", Provider, 0)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		out = append(out, e.Message)
	}
	return out
}

func taskData(title, status string) *studyplanner.PullData {
	return &studyplanner.PullData{
		Tasks: []studyplanner.RemoteTask{{RemoteID: studyplanner.RemoteID{ID: "t1"}, Title: title, Status: status}},
	}
}

func TestAdapter_Run_UpdatesMappedTask(t *testing.T) {
	title := "Essay"
	client := &MockClient{
		PullFunc: func(ctx context.Context, creds studyplanner.Credentials) (*studyplanner.PullData, error) {
			assert.Equal(t, "ana@example.com", creds.Email)
			assert.Equal(t, "tok-1", creds.SyncToken)
			return taskData(title, "todo"), nil
		},
	}
	f := newFixture(t, client, true, nil)
	ctx := context.Background()
	key := mapping.Key{UserID: "u1", Provider: Provider, EntityType: EntityTask, ExternalID: "t1"}

	job, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, syncjob.StatusSucceeded, job.Status)
	require.NotNil(t, job.Summary)
	assert.Equal(t, "Synced 0 sessions, 1 tasks, 0 exams, 0 subjects, 0 syllabi; push ok", *job.Summary)

	first, err := f.registry.Find(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, first)

	title = "Essay v2"
	job, err = f.run(t)
	require.NoError(t, err)
	assert.Equal(t, syncjob.StatusSucceeded, job.Status)

	second, err := f.registry.Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, first.InternalID, second.InternalID)

	task, err := f.entities.Tasks.GetByID(ctx, "u1", first.InternalID)
	require.NoError(t, err)
	assert.Equal(t, "Essay v2", task.Title)
	assert.Equal(t, Provider, task.Source)
	assert.Equal(t, 1, f.entities.Tasks.Count("u1"))

	assert.Contains(t, f.messages(t), "Sync started")
}

func TestAdapter_Pull_IsIdempotent(t *testing.T) {
	start := testNow.Add(24 * time.Hour)
	data := &studyplanner.PullData{
		Subjects: []studyplanner.RemoteSubject{{RemoteID: studyplanner.RemoteID{ID: "s1"}, Name: "Biology"}},
		Syllabi:  []studyplanner.RemoteSyllabus{{RemoteID: studyplanner.RemoteID{ID: "y1"}, SubjectID: "s1", Title: "Bio 101"}},
		Events:   []studyplanner.RemoteEvent{{RemoteID: studyplanner.RemoteID{ExternalID: "e1"}, Title: "Cells", Start: start, SubjectID: "s1"}},
		Tasks:    []studyplanner.RemoteTask{{RemoteID: studyplanner.RemoteID{ID: "t1"}, Title: "Lab report", SubjectID: "s1"}},
		ExamEvents: []studyplanner.RemoteExam{
			{RemoteID: studyplanner.RemoteID{ID: "x1"}, Title: "Midterm", Date: "2024-05-10", StartTime: "09:00"},
		},
	}
	client := &MockClient{
		PullFunc: func(ctx context.Context, creds studyplanner.Credentials) (*studyplanner.PullData, error) {
			return data, nil
		},
	}
	f := newFixture(t, client, true, nil)
	ctx := context.Background()

	first, err := f.adapter.Pull(ctx, "u1", studyplanner.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, PullResult{Sessions: 1, Tasks: 1, Exams: 1, Subjects: 1, Syllabi: 1, Created: 5}, first)

	second, err := f.adapter.Pull(ctx, "u1", studyplanner.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, 5, second.Total())
	assert.Zero(t, second.Created)

	assert.Equal(t, 2, f.entities.Events.Count("u1"))
	assert.Equal(t, 1, f.entities.Tasks.Count("u1"))

	subject, err := f.registry.Find(ctx, mapping.Key{UserID: "u1", Provider: Provider, EntityType: EntitySubject, ExternalID: "s1"})
	require.NoError(t, err)
	require.NotNil(t, subject)

	tasks, err := f.entities.Tasks.ListBySource(ctx, "u1", Provider)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, subject.InternalID, tasks[0].SubjectID)

	session, err := f.registry.Find(ctx, mapping.Key{UserID: "u1", Provider: Provider, EntityType: EntitySession, ExternalID: "e1"})
	require.NoError(t, err)
	ev, err := f.entities.Events.GetByID(ctx, "u1", session.InternalID)
	require.NoError(t, err)
	assert.Equal(t, entity.EventKindSession, ev.Kind)
	assert.Equal(t, start.Add(entity.DefaultEventDuration), ev.End)
}

func TestAdapter_Pull_KeepsLocalTaskStatus(t *testing.T) {
	client := &MockClient{
		PullFunc: func(ctx context.Context, creds studyplanner.Credentials) (*studyplanner.PullData, error) {
			return taskData("Essay", "todo"), nil
		},
	}
	f := newFixture(t, client, true, nil)
	ctx := context.Background()

	_, err := f.adapter.Pull(ctx, "u1", studyplanner.Credentials{})
	require.NoError(t, err)

	tasks, err := f.entities.Tasks.ListBySource(ctx, "u1", Provider)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	done := tasks[0]
	done.Status = entity.TaskDone
	done.CompletedAt = &testNow
	require.NoError(t, f.entities.Tasks.Upsert(ctx, done))

	_, err = f.run(t)
	require.NoError(t, err)

	task, err := f.entities.Tasks.GetByID(ctx, "u1", done.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TaskDone, task.Status)

	payload := client.lastPush(t)
	require.Len(t, payload.TaskUpdates, 1)
	assert.Equal(t, "t1", payload.TaskUpdates[0].ExternalID)
	assert.Equal(t, entity.TaskDone, payload.TaskUpdates[0].Status)
}

func TestAdapter_Pull_CountsBadItems(t *testing.T) {
	client := &MockClient{
		PullFunc: func(ctx context.Context, creds studyplanner.Credentials) (*studyplanner.PullData, error) {
			return &studyplanner.PullData{
				Tasks: []studyplanner.RemoteTask{
					{RemoteID: studyplanner.RemoteID{ID: "t1"}, Title: "ok"},
					{Title: "no id"},
				},
				ExamEvents: []studyplanner.RemoteExam{{RemoteID: studyplanner.RemoteID{ID: "x1"}, Date: "soon"}},
			}, nil
		},
	}
	f := newFixture(t, client, true, nil)

	job, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, syncjob.StatusPartial, job.Status)
	assert.Contains(t, *job.Summary, "1 tasks")
	assert.Contains(t, *job.Summary, "(2 failed)")
}

func TestAdapter_Pull_CountsRejectedItems(t *testing.T) {
	client := &MockClient{
		PullFunc: func(ctx context.Context, creds studyplanner.Credentials) (*studyplanner.PullData, error) {
			data := taskData("Essay", "todo")
			data.Rejected = []studyplanner.RejectedItem{
				{Collection: "events", ExternalID: "e1", Err: errors.New("cannot parse start")},
			}
			return data, nil
		},
	}
	f := newFixture(t, client, true, nil)

	job, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, syncjob.StatusPartial, job.Status)
	assert.Contains(t, *job.Summary, "1 tasks")
	assert.Contains(t, *job.Summary, "(1 failed)")
}

func TestAdapter_Run_PushOmitsFailedDomain(t *testing.T) {
	client := &MockClient{}
	f := newFixture(t, client, true, func(s *entity.Store) { s.Habits = failingHabits{} })
	f.entities.Goals.Put(&entity.Goal{ID: "g1", UserID: "u1", Title: "Read", Active: true})

	job, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, syncjob.StatusPartial, job.Status)
	assert.Contains(t, *job.Summary, "push sent without habits")

	payload := client.lastPush(t)
	assert.Nil(t, payload.Habits)
	require.NotNil(t, payload.Wellness)
	assert.Equal(t, "2024-05-01", payload.Wellness.Date)
	assert.Len(t, payload.Goals, 1)
	assert.NotNil(t, payload.Events)
	assert.NotNil(t, payload.TaskUpdates)

	found := false
	for _, m := range f.messages(t) {
		if strings.Contains(m, "habits") {
			found = true
		}
	}
	assert.True(t, found, "habits failure should be logged")
}

func TestAdapter_Run_PushFailureIsPartial(t *testing.T) {
	client := &MockClient{
		PushFunc: func(ctx context.Context, creds studyplanner.Credentials, payload studyplanner.PushPayload) (*studyplanner.PushResponse, error) {
			return nil, &integration.TransportError{Op: "push", StatusCode: 503}
		},
	}
	f := newFixture(t, client, true, nil)

	job, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, syncjob.StatusPartial, job.Status)
	assert.Contains(t, *job.Summary, "push skipped: push failed (status 503)")
}

func TestAdapter_Run_PullFailureFailsJob(t *testing.T) {
	client := &MockClient{
		PullFunc: func(ctx context.Context, creds studyplanner.Credentials) (*studyplanner.PullData, error) {
			return nil, &integration.TransportError{Op: "pull", StatusCode: 401, Message: "invalid sync token"}
		},
	}
	f := newFixture(t, client, true, nil)

	job, err := f.run(t)
	require.Error(t, err)
	assert.True(t, integration.IsTransport(err))
	assert.Equal(t, syncjob.StatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "invalid sync token")
	assert.Empty(t, client.pushes)

	_, idle := f.jobs.State("u1", Provider).(syncjob.Idle)
	assert.True(t, idle)
}

func TestAdapter_Run_MissingCredentials(t *testing.T) {
	client := &MockClient{}
	f := newFixture(t, client, false, nil)

	job, err := f.run(t)
	require.Error(t, err)
	assert.True(t, integration.IsConfiguration(err))
	assert.Equal(t, syncjob.StatusFailed, job.Status)
	assert.Zero(t, client.pulls)
}

func TestAdapter_PushOnly_SharesInflightPush(t *testing.T) {
	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	client := &MockClient{
		PushFunc: func(ctx context.Context, creds studyplanner.Credentials, payload studyplanner.PushPayload) (*studyplanner.PushResponse, error) {
			if calls.Add(1) == 1 {
				close(entered)
			}
			<-release
			return &studyplanner.PushResponse{Message: "ok"}, nil
		},
	}
	f := newFixture(t, client, true, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.adapter.PushOnly(context.Background(), "u1")
	}()
	<-entered

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.adapter.PushOnly(context.Background(), "u1")
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestAdapter_PushOnly_SwallowsErrors(t *testing.T) {
	client := &MockClient{}
	f := newFixture(t, client, false, nil)

	f.adapter.PushOnly(context.Background(), "u1")
	assert.Empty(t, client.pushes)
}

func TestAssemble(t *testing.T) {
	results := []DomainResult{
		gathered(DomainHabits, func(p *studyplanner.PushPayload) { p.Habits = []studyplanner.HabitPush{} }),
		failed(DomainGoals, errors.New("boom")),
	}

	payload, failures := Assemble(results)
	assert.NotNil(t, payload.Habits)
	assert.Nil(t, payload.Goals)
	require.Len(t, failures, 1)
	assert.Equal(t, DomainGoals, failures[0].Domain)
}

// startFailingJobs refuses to start jobs, as a store outage would.
type startFailingJobs struct {
	*syncjob.Service
}

func (startFailingJobs) Start(ctx context.Context, userID, id string) (*syncjob.Job, error) {
	return nil, errors.New("job store unavailable")
}

func TestAdapter_Run_StartFailureReleasesPair(t *testing.T) {
	client := &MockClient{}
	f := newFixture(t, client, true, nil)
	adapter := NewAdapter(f.adapter.creds, client, f.registry, f.entities.Store(), startFailingJobs{f.jobs}, f.logs, Config{})
	ctx := context.Background()

	job, err := f.jobs.Enqueue(ctx, "u1", Provider, syncjob.ReasonManual)
	require.NoError(t, err)
	require.Error(t, adapter.Run(ctx, job))

	done, err := f.jobs.Get(ctx, "u1", job.ID)
	require.NoError(t, err)
	assert.Equal(t, syncjob.StatusFailed, done.Status)
	assert.Zero(t, client.pulls)

	_, err = f.jobs.Enqueue(ctx, "u1", Provider, syncjob.ReasonManual)
	assert.NoError(t, err, "retry should not be blocked")
}
