package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidforge/vidforge/internal/types"
)

func TestPutGet(t *testing.T) {
	c := New()

	c.Put(JobKey("job-1"), "value", ActiveJobTTL)

	v, fresh, found := c.Get(JobKey("job-1"))
	require.True(t, found)
	assert.True(t, fresh)
	assert.Equal(t, "value", v)

	_, _, found = c.Get(JobKey("missing"))
	assert.False(t, found)
}

func TestExpiredEntryIsStaleButPresent(t *testing.T) {
	c := New()

	c.Put("k", "stale-value", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	v, fresh, found := c.Get("k")
	require.True(t, found, "expired entries stay available for fallback")
	assert.False(t, fresh)
	assert.Equal(t, "stale-value", v)
}

func TestInvalidate(t *testing.T) {
	c := New()

	c.Put("a", 1, ActiveJobTTL)
	c.Put("b", 2, ActiveJobTTL)
	c.Put("c", 3, ActiveJobTTL)

	c.Invalidate("a", "b")

	_, _, found := c.Get("a")
	assert.False(t, found)
	_, _, found = c.Get("b")
	assert.False(t, found)
	_, _, found = c.Get("c")
	assert.True(t, found)
}

func TestPutIfEpoch(t *testing.T) {
	c := New()

	epoch := c.Epoch("k")
	require.True(t, c.PutIfEpoch("k", epoch, "v1", ActiveJobTTL))

	v, _, found := c.Get("k")
	require.True(t, found)
	assert.Equal(t, "v1", v)

	// An invalidation between capture and store drops the write
	epoch = c.Epoch("k")
	c.Invalidate("k")
	assert.False(t, c.PutIfEpoch("k", epoch, "v2", ActiveJobTTL))
	_, _, found = c.Get("k")
	assert.False(t, found, "outdated fill must not repopulate the key")

	// A fresh capture after the invalidation stores again
	require.True(t, c.PutIfEpoch("k", c.Epoch("k"), "v3", ActiveJobTTL))
	v, _, found = c.Get("k")
	require.True(t, found)
	assert.Equal(t, "v3", v)
}

func TestEpochIsPerKey(t *testing.T) {
	c := New()

	epochA := c.Epoch("a")
	epochB := c.Epoch("b")
	c.Invalidate("a")

	assert.False(t, c.PutIfEpoch("a", epochA, 1, ActiveJobTTL))
	assert.True(t, c.PutIfEpoch("b", epochB, 2, ActiveJobTTL))
}

func TestClear(t *testing.T) {
	c := New()
	c.Put("a", 1, ActiveJobTTL)
	c.Put("b", 2, ActiveJobTTL)

	epoch := c.Epoch("a")
	c.Clear()
	assert.Zero(t, c.Len())
	assert.False(t, c.PutIfEpoch("a", epoch, 3, ActiveJobTTL), "clear counts as invalidation")
}

func TestEvict(t *testing.T) {
	c := New()

	c.Put("old", 1, time.Millisecond)
	c.Put("live", 2, time.Minute)
	time.Sleep(5 * time.Millisecond)

	removed := c.Evict()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Len())

	_, _, found := c.Get("live")
	assert.True(t, found)
}

func TestJobTTL(t *testing.T) {
	assert.Equal(t, ActiveJobTTL, JobTTL(types.JobStatusPending))
	assert.Equal(t, ActiveJobTTL, JobTTL(types.JobStatusProcessing))
	assert.Equal(t, ActiveJobTTL, JobTTL(types.JobStatusRendering))
	assert.Equal(t, TerminalJobTTL, JobTTL(types.JobStatusCompleted))
	assert.Equal(t, TerminalJobTTL, JobTTL(types.JobStatusFailed))
	assert.Equal(t, TerminalJobTTL, JobTTL(types.JobStatusCancelled))
}

func TestLoadDeduplicates(t *testing.T) {
	c := New()

	var calls int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]interface{}, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Load("stats", func() (interface{}, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return "computed", nil
			})
			require.NoError(t, err)
			results[i] = v
		}(i)
	}

	// Give the goroutines time to pile onto the same key
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "only one caller computes")
	for _, v := range results {
		assert.Equal(t, "computed", v)
	}
}

func TestLoadPropagatesError(t *testing.T) {
	c := New()

	wantErr := errors.New("boom")
	_, err := c.Load("k", func() (interface{}, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}
