package firebase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifedash/internal/domain/autorule"
	"lifedash/internal/domain/entity"
	"lifedash/internal/domain/inbox"
	"lifedash/internal/domain/mapping"
	"lifedash/internal/domain/syncjob"
)

// newTestClient connects to the Firestore emulator. Each test uses a fresh
// user id so runs do not interfere.
func newTestClient(t *testing.T) (*Client, string) {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	fs, err := firestore.NewClient(context.Background(), "lifedash-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = fs.Close() })
	return NewClientFrom(fs), "user-" + uuid.NewString()
}

func TestMappingRepository_ConcurrentResolve(t *testing.T) {
	c, userID := newTestClient(t)
	repo := NewMappingRepository(c)
	key := mapping.Key{UserID: userID, Provider: "studyplanner", EntityType: "task", ExternalID: "a/b"}
	now := time.Now().UTC().Truncate(time.Millisecond)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	created := make([]bool, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, c, err := repo.Resolve(context.Background(), key, fmt.Sprintf("id-%d", i), nil, now)
			if assert.NoError(t, err) {
				ids[i], created[i] = m.InternalID, c
			}
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

	found, err := repo.Find(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, ids[0], found.InternalID)
}

func TestJobRepository_TransitionAndFindActive(t *testing.T) {
	c, userID := newTestClient(t)
	svc := syncjob.NewService(NewJobRepository(c), nil, 0)
	ctx := context.Background()

	job, err := svc.Enqueue(ctx, userID, "studyplanner", syncjob.ReasonManual)
	require.NoError(t, err)

	active, err := NewJobRepository(c).FindActive(ctx, userID, "studyplanner")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, job.ID, active.ID)
	assert.Equal(t, userID, active.UserID)

	_, err = svc.Start(ctx, userID, job.ID)
	require.NoError(t, err)
	done, err := svc.Succeed(ctx, userID, job.ID, "Synced 0 sessions")
	require.NoError(t, err)
	assert.Equal(t, syncjob.StatusSucceeded, done.Status)

	_, err = svc.Fail(ctx, userID, job.ID, fmt.Errorf("late"))
	assert.ErrorIs(t, err, syncjob.ErrInvalidTransition)

	active, err = NewJobRepository(c).FindActive(ctx, userID, "studyplanner")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestJobRepository_CreateRejectsSecondActiveJob(t *testing.T) {
	c, userID := newTestClient(t)
	repo := NewJobRepository(c)
	ctx := context.Background()
	job := func(status syncjob.Status) *syncjob.Job {
		return &syncjob.Job{ID: uuid.NewString(), UserID: userID, Provider: "studyplanner",
			Reason: syncjob.ReasonManual, Status: status, CreatedAt: time.Now().UTC()}
	}

	require.NoError(t, repo.Create(ctx, job(syncjob.StatusQueued)))
	assert.ErrorIs(t, repo.Create(ctx, job(syncjob.StatusQueued)), syncjob.ErrActiveJobExists)
}

func TestInboxRepository_ClaimAndComplete(t *testing.T) {
	c, userID := newTestClient(t)
	repo := NewInboxRepository(c)
	svc := inbox.NewService(repo)
	ctx := context.Background()

	id, err := svc.Enqueue(ctx, userID, "bank", inbox.EntityTransaction, json.RawMessage(`{"description":"x","amount":"1"}`), inbox.EnqueueOptions{})
	require.NoError(t, err)

	claimed, err := repo.Claim(ctx, inbox.ClaimFilter{UserID: userID, SyncJobID: "job-1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, id, claimed[0].ID)
	assert.Equal(t, inbox.StatusProcessing, claimed[0].Status)

	again, err := repo.Claim(ctx, inbox.ClaimFilter{UserID: userID, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, repo.Complete(ctx, userID, id, inbox.StatusProcessed, nil, time.Now()))
	assert.ErrorIs(t, repo.Complete(ctx, userID, id, inbox.StatusFailed, nil, time.Now()), inbox.ErrItemNotProcessing)

	item, err := repo.GetByID(ctx, userID, id)
	require.NoError(t, err)
	assert.Equal(t, inbox.StatusProcessed, item.Status)
	require.NotNil(t, item.SyncJobID)
	assert.Equal(t, "job-1", *item.SyncJobID)
}

func TestRuleRepository_RoundTrip(t *testing.T) {
	c, userID := newTestClient(t)
	svc := autorule.NewService(NewRuleRepository(c))
	ctx := context.Background()

	_, err := svc.Create(ctx, autorule.CreateRuleParams{
		UserID:     userID,
		Name:       "Coffee",
		MatchType:  autorule.MatchAll,
		Conditions: []autorule.RawCondition{{Field: "amount", Operator: "greater_than", Value: 3}},
		Actions:    []autorule.RawAction{{Type: "categorize", Value: "Coffee"}},
	})
	require.NoError(t, err)

	patch, err := svc.Apply(ctx, userID, autorule.Record{Description: "latte", Amount: decimal.NewFromInt(5)})
	require.NoError(t, err)
	require.NotNil(t, patch)
	require.NotNil(t, patch.Category)
	assert.Equal(t, "Coffee", *patch.Category)

	rules, err := svc.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Len(t, rules[0].Conditions, 1)
	assert.Equal(t, "greater_than", rules[0].Conditions[0].Op.Name())
	assert.NotNil(t, rules[0].LastTriggeredAt)
}

func TestWellnessRepository_Merge(t *testing.T) {
	c, userID := newTestClient(t)
	repo := NewStore(c).Wellness
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, userID, "2024-05-01", entity.WellnessPatch{Sleep: &entity.Sleep{Hours: 7}}))
	require.NoError(t, repo.Upsert(ctx, userID, "2024-05-01", entity.WellnessPatch{Stress: &entity.Stress{Level: 4}}))

	snap, err := repo.Get(ctx, userID, "2024-05-01")
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.NotNil(t, snap.Sleep)
	assert.Equal(t, 7.0, snap.Sleep.Hours)
	assert.Equal(t, 4, snap.Stress.Level)

	missing, err := repo.Get(ctx, userID, "2024-05-02")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
