package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifedash/internal/domain/entity"
	"lifedash/internal/domain/inbox"
	"lifedash/internal/domain/mapping"
	"lifedash/internal/domain/syncjob"
	"lifedash/internal/domain/synclog"
)

func TestMappingRepository_ResolveIsAtomic(t *testing.T) {
	repo := NewMappingRepository()
	key := mapping.Key{UserID: "u1", Provider: "studyplanner", EntityType: "task", ExternalID: "t1"}
	now := time.Now()

	var wg sync.WaitGroup
	ids := make([]string, 20)
	created := make([]bool, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, c, err := repo.Resolve(context.Background(), key, fmt.Sprintf("id-%d", i), nil, now)
			if !assert.NoError(t, err) {
				return
			}
			ids[i], created[i] = m.InternalID, c
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := range ids {
		assert.Equal(t, ids[0], ids[i])
		if created[i] {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, repo.Len())
}

func TestMappingRepository_UpsertKeepsChecksumWhenNil(t *testing.T) {
	repo := NewMappingRepository()
	ctx := context.Background()
	key := mapping.Key{UserID: "u1", Provider: "p", EntityType: "event", ExternalID: "e1"}
	sum := "abc"
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(ctx, key, "E1", &sum, t0))
	require.NoError(t, repo.Upsert(ctx, key, "E2", nil, t0.Add(time.Hour)))

	m, err := repo.Find(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "E2", m.InternalID)
	assert.Equal(t, "abc", *m.Checksum)
	assert.Equal(t, t0, m.CreatedAt)
	assert.Equal(t, t0.Add(time.Hour), m.UpdatedAt)

	missing, err := repo.Find(ctx, mapping.Key{UserID: "u1", Provider: "p", EntityType: "event", ExternalID: "nope"})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestJobRepository_Transition(t *testing.T) {
	repo := NewJobRepository()
	svc := syncjob.NewService(repo, nil, 0)
	ctx := context.Background()

	job, err := svc.Enqueue(ctx, "u1", "studyplanner", syncjob.ReasonManual)
	require.NoError(t, err)

	active, err := repo.FindActive(ctx, "u1", "studyplanner")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, job.ID, active.ID)

	_, err = svc.Start(ctx, "u1", job.ID)
	require.NoError(t, err)
	done, err := svc.Succeed(ctx, "u1", job.ID, "ok")
	require.NoError(t, err)
	assert.Equal(t, syncjob.StatusSucceeded, done.Status)

	_, err = svc.Fail(ctx, "u1", job.ID, fmt.Errorf("late"))
	assert.ErrorIs(t, err, syncjob.ErrInvalidTransition)

	_, err = repo.GetByID(ctx, "u2", job.ID)
	assert.ErrorIs(t, err, syncjob.ErrJobNotFound)

	active, err = repo.FindActive(ctx, "u1", "studyplanner")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestJobRepository_CreateRejectsSecondActiveJob(t *testing.T) {
	repo := NewJobRepository()
	ctx := context.Background()
	job := func(id string, status syncjob.Status) *syncjob.Job {
		return &syncjob.Job{ID: id, UserID: "u1", Provider: "studyplanner", Reason: syncjob.ReasonManual, Status: status}
	}

	require.NoError(t, repo.Create(ctx, job("j1", syncjob.StatusRunning)))
	assert.ErrorIs(t, repo.Create(ctx, job("j2", syncjob.StatusQueued)), syncjob.ErrActiveJobExists)
	assert.NoError(t, repo.Create(ctx, job("j3", syncjob.StatusSucceeded)))
}

func TestLogRepository_RecentAndWatch(t *testing.T) {
	repo := NewLogRepository()
	svc := synclog.NewService(repo)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := svc.Watch(ctx, "u1", "studyplanner", 2)
	require.NoError(t, err)
	assert.Empty(t, <-feed)

	for i := 1; i <= 3; i++ {
		_, err := svc.Append(ctx, "u1", "studyplanner", synclog.LevelInfo, fmt.Sprintf("entry %d", i), nil)
		require.NoError(t, err)
	}
	svc.Info(ctx, "u2", "studyplanner", "other user", nil)

	recent, err := svc.Recent(ctx, "u1", "", 0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "entry 3", recent[0].Message)

	deadline := time.After(time.Second)
	for {
		select {
		case window := <-feed:
			if len(window) == 2 && window[0].Message == "entry 3" {
				assert.Equal(t, "entry 2", window[1].Message)
				return
			}
		case <-deadline:
			t.Fatal("watch did not deliver the latest window")
		}
	}
}

func TestInboxRepository_ClaimOnceAndFinalize(t *testing.T) {
	repo := NewInboxRepository()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, &inbox.Item{
			ID: fmt.Sprintf("i%d", i), UserID: "u1", Provider: "p",
			EntityType: inbox.EntityTask, Status: inbox.StatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	select {
	case <-repo.Notifications():
	default:
		t.Fatal("Create should signal Notifications")
	}

	var mu sync.Mutex
	seen := map[string]int{}
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items, err := repo.Claim(ctx, inbox.ClaimFilter{Limit: 2, SyncJobID: "job-1"})
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for _, it := range items {
				seen[it.ID]++
				assert.Equal(t, inbox.StatusProcessing, it.Status)
				assert.NotNil(t, it.SyncJobID)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 5)
	for id, n := range seen {
		assert.Equal(t, 1, n, "item %s claimed more than once", id)
	}

	require.NoError(t, repo.Complete(ctx, "u1", "i0", inbox.StatusProcessed, nil, base))
	err := repo.Complete(ctx, "u1", "i0", inbox.StatusFailed, nil, base)
	assert.ErrorIs(t, err, inbox.ErrItemNotProcessing)

	item, err := repo.GetByID(ctx, "u1", "i0")
	require.NoError(t, err)
	assert.Equal(t, inbox.StatusProcessed, item.Status)
}

func TestWellnessRepository_MergesFields(t *testing.T) {
	repo := NewWellnessRepository()
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, "u1", "2024-05-01", entity.WellnessPatch{Sleep: &entity.Sleep{Hours: 7.5}}))
	require.NoError(t, repo.Upsert(ctx, "u1", "2024-05-01", entity.WellnessPatch{Stress: &entity.Stress{Level: 4}}))

	snap, err := repo.Get(ctx, "u1", "2024-05-01")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 7.5, snap.Sleep.Hours)
	assert.Equal(t, 4, snap.Stress.Level)

	none, err := repo.Get(ctx, "u1", "2024-05-02")
	require.NoError(t, err)
	assert.Nil(t, none)
}
