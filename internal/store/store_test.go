package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidforge/vidforge/internal/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewWithClient(rdb)
}

func newPendingJob(id string) *types.Job {
	now := time.Now().UTC()
	return &types.Job{
		ID:     id,
		Status: types.JobStatusPending,
		Params: types.GenerationParams{
			Country:     "US",
			Platform:    "youtube",
			Genre:       "horror",
			ContentType: "story",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateAndGetJob(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	job := newPendingJob("job-1")
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, types.JobStatusPending, got.Status)
	assert.Equal(t, "horror", got.Params.Genre)

	ids, err := s.ListIDs(ctx, PendingListKey())
	require.NoError(t, err)
	assert.Equal(t, []string{"job-1"}, ids)
}

func TestGetJobNotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.GetJob(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestClaimPending(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateJob(ctx, newPendingJob("job-1")))
	require.NoError(t, s.CreateJob(ctx, newPendingJob("job-2")))

	id, err := s.ClaimPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-1", id, "FIFO order")

	pending, err := s.ListIDs(ctx, PendingListKey())
	require.NoError(t, err)
	assert.Equal(t, []string{"job-2"}, pending)

	processing, err := s.ListIDs(ctx, ProcessingListKey())
	require.NoError(t, err)
	assert.Equal(t, []string{"job-1"}, processing)
}

func TestClaimPendingEmpty(t *testing.T) {
	s := testStore(t)

	id, err := s.ClaimPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestClaimPendingConcurrent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	const jobs = 20
	for i := 0; i < jobs; i++ {
		require.NoError(t, s.CreateJob(ctx, newPendingJob(string(rune('a'+i)))))
	}

	var mu sync.Mutex
	claimed := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				id, err := s.ClaimPending(ctx)
				if err != nil || id == "" {
					return
				}
				mu.Lock()
				claimed[id]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, jobs, "every job claimed exactly once")
	for id, n := range claimed {
		assert.Equal(t, 1, n, "job %s claimed more than once", id)
	}
}

func TestSaveJobMoveToFailed(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	job := newPendingJob("job-1")
	require.NoError(t, s.CreateJob(ctx, job))
	_, err := s.ClaimPending(ctx)
	require.NoError(t, err)

	job.Status = types.JobStatusFailed
	job.Error = "step failed"
	require.NoError(t, s.SaveJobMoveToFailed(ctx, job))

	processing, err := s.ListIDs(ctx, ProcessingListKey())
	require.NoError(t, err)
	assert.Empty(t, processing)

	failed, err := s.ListIDs(ctx, FailedListKey())
	require.NoError(t, err)
	assert.Equal(t, []string{"job-1"}, failed)

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusFailed, got.Status)
}

func TestSaveJobRequeue(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	job := newPendingJob("job-1")
	require.NoError(t, s.CreateJob(ctx, job))
	_, err := s.ClaimPending(ctx)
	require.NoError(t, err)
	job.Status = types.JobStatusFailed
	require.NoError(t, s.SaveJobMoveToFailed(ctx, job))

	job.Status = types.JobStatusPending
	job.RetryCount = 1
	require.NoError(t, s.SaveJobRequeue(ctx, job))

	failed, err := s.ListIDs(ctx, FailedListKey())
	require.NoError(t, err)
	assert.Empty(t, failed)

	pending, err := s.ListIDs(ctx, PendingListKey())
	require.NoError(t, err)
	assert.Equal(t, []string{"job-1"}, pending)
}

func TestDeleteJob(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	job := newPendingJob("job-1")
	job.RenderID = "rnd-1"
	require.NoError(t, s.CreateJob(ctx, job))
	_, err := s.BindRender(ctx, "rnd-1", "job-1")
	require.NoError(t, err)

	require.NoError(t, s.DeleteJob(ctx, job))

	_, err = s.GetJob(ctx, "job-1")
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = s.JobIDByRender(ctx, "rnd-1")
	assert.ErrorIs(t, err, types.ErrNotFound)

	pending, err := s.ListIDs(ctx, PendingListKey())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestBindRender(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	created, err := s.BindRender(ctx, "rnd-1", "job-1")
	require.NoError(t, err)
	assert.True(t, created)

	// First writer wins
	created, err = s.BindRender(ctx, "rnd-1", "job-2")
	require.NoError(t, err)
	assert.False(t, created)

	id, err := s.JobIDByRender(ctx, "rnd-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)

	require.NoError(t, s.UnbindRender(ctx, "rnd-1"))
	_, err = s.JobIDByRender(ctx, "rnd-1")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestListJobsAndCountStatuses(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	statuses := []types.JobStatus{
		types.JobStatusPending,
		types.JobStatusProcessing,
		types.JobStatusRendering,
		types.JobStatusCompleted,
		types.JobStatusFailed,
	}
	for i, status := range statuses {
		job := newPendingJob(string(rune('a' + i)))
		job.Status = status
		require.NoError(t, s.SaveJob(ctx, job))
	}

	jobs, err := s.ListJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, len(statuses))

	stats, err := s.CountStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Total)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.Processing)
	assert.Equal(t, int64(1), stats.Rendering)
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(0), stats.Cancelled)
}

func TestStuckProcessing(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	fresh := newPendingJob("fresh")
	require.NoError(t, s.CreateJob(ctx, fresh))
	_, err := s.ClaimPending(ctx)
	require.NoError(t, err)
	fresh.Status = types.JobStatusProcessing
	fresh.UpdatedAt = now
	require.NoError(t, s.SaveJob(ctx, fresh))

	stale := newPendingJob("stale")
	require.NoError(t, s.CreateJob(ctx, stale))
	_, err = s.ClaimPending(ctx)
	require.NoError(t, err)
	stale.Status = types.JobStatusProcessing
	stale.UpdatedAt = now.Add(-30 * time.Minute)
	require.NoError(t, s.SaveJob(ctx, stale))

	stuck, err := s.StuckProcessing(ctx, 10*time.Minute, now)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, "stale", stuck[0].ID)
}

func TestPauseFlag(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	paused, err := s.IsPaused(ctx)
	require.NoError(t, err)
	assert.False(t, paused)

	require.NoError(t, s.SetPaused(ctx, true))
	paused, err = s.IsPaused(ctx)
	require.NoError(t, err)
	assert.True(t, paused)

	require.NoError(t, s.SetPaused(ctx, false))
	paused, err = s.IsPaused(ctx)
	require.NoError(t, err)
	assert.False(t, paused)
}
