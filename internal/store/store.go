// Package store persists jobs in Redis: one JSON record per job plus
// status-partitioned index lists for O(1) dequeue and admin listing, and
// a render-id index for webhook lookups.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vidforge/vidforge/internal/types"
)

// Default connection options
const (
	DefaultAddr     = "localhost:6379"
	DefaultDB       = 0
	DefaultPoolSize = 10
)

// Options represents Redis connection configuration options
type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

func setDefaults(opts Options) Options {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = DefaultPoolSize
	}
	return opts
}

// Store is the single source of truth for jobs. It is owned by the queue
// service; nothing else writes through it.
type Store struct {
	rdb *redis.Client
}

// New creates a Store with the given options and verifies connectivity.
func New(ctx context.Context, opts Options) (*Store, error) {
	opts = setDefaults(opts)
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return &Store{rdb: rdb}, nil
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// storeErr tags transient redis failures so read paths can recognize
// them and fall back to cache.
func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", types.ErrStoreUnavailable, op, err)
}

// CreateJob writes the job record and appends it to the pending list in
// one round trip.
func (s *Store) CreateJob(ctx context.Context, job *types.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, 0)
	pipe.RPush(ctx, PendingListKey(), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("create job", err)
	}
	return nil
}

// GetJob retrieves one job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*types.Job, error) {
	data, err := s.rdb.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: job %s", types.ErrNotFound, id)
	}
	if err != nil {
		return nil, storeErr("get job", err)
	}
	var job types.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// SaveJob persists the full job record. The stored record matches the
// passed object after the call completes.
func (s *Store) SaveJob(ctx context.Context, job *types.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	if err := s.rdb.Set(ctx, jobKey(job.ID), data, 0).Err(); err != nil {
		return storeErr("save job", err)
	}
	return nil
}

// SaveJobMoveToFailed persists the record and moves the id from the
// processing list to the failed list in a single pipeline. Hot path for
// failure webhooks.
func (s *Store) SaveJobMoveToFailed(ctx context.Context, job *types.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, 0)
	pipe.LRem(ctx, ProcessingListKey(), 0, job.ID)
	pipe.RPush(ctx, FailedListKey(), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("fail job", err)
	}
	return nil
}

// SaveJobRemoveProcessing persists the record and drops the id from the
// processing list. Used on completion and cancellation of claimed jobs.
func (s *Store) SaveJobRemoveProcessing(ctx context.Context, job *types.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, 0)
	pipe.LRem(ctx, ProcessingListKey(), 0, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("complete job", err)
	}
	return nil
}

// SaveJobRemovePending persists the record and drops the id from the
// pending list. Used when cancelling a job that was never claimed.
func (s *Store) SaveJobRemovePending(ctx context.Context, job *types.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, 0)
	pipe.LRem(ctx, PendingListKey(), 0, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("cancel pending job", err)
	}
	return nil
}

// SaveJobRequeue persists the record, drops the id from the failed list
// and re-appends it to the pending list. Used by retry.
func (s *Store) SaveJobRequeue(ctx context.Context, job *types.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, 0)
	pipe.LRem(ctx, FailedListKey(), 0, job.ID)
	pipe.RPush(ctx, PendingListKey(), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("requeue job", err)
	}
	return nil
}

// ClaimPending atomically moves the head of the pending list to the
// processing list and returns the claimed job id. LMOVE guarantees no id
// is handed to two concurrent callers. Returns "" when the list is empty.
func (s *Store) ClaimPending(ctx context.Context) (string, error) {
	id, err := s.rdb.LMove(ctx, PendingListKey(), ProcessingListKey(), "LEFT", "RIGHT").Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", storeErr("claim pending", err)
	}
	return id, nil
}

// DeleteJob removes the job record, its list entries, and its render
// index entry.
func (s *Store) DeleteJob(ctx context.Context, job *types.Job) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, jobKey(job.ID))
	pipe.LRem(ctx, PendingListKey(), 0, job.ID)
	pipe.LRem(ctx, ProcessingListKey(), 0, job.ID)
	pipe.LRem(ctx, FailedListKey(), 0, job.ID)
	if job.RenderID != "" {
		pipe.Del(ctx, renderIndexKey(job.RenderID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("delete job", err)
	}
	return nil
}

// BindRender records renderID -> jobID if no binding exists yet.
// Reports whether this call created the binding; resubmitting the same
// identifier is a no-op.
func (s *Store) BindRender(ctx context.Context, renderID, jobID string) (bool, error) {
	created, err := s.rdb.SetNX(ctx, renderIndexKey(renderID), jobID, 0).Result()
	if err != nil {
		return false, storeErr("bind render", err)
	}
	return created, nil
}

// UnbindRender drops a renderID binding. Used when a failed job is
// retried so the old render's late webhooks cannot touch the new attempt.
func (s *Store) UnbindRender(ctx context.Context, renderID string) error {
	if err := s.rdb.Del(ctx, renderIndexKey(renderID)).Err(); err != nil {
		return storeErr("unbind render", err)
	}
	return nil
}

// JobIDByRender resolves a render identifier to the owning job id.
func (s *Store) JobIDByRender(ctx context.Context, renderID string) (string, error) {
	id, err := s.rdb.Get(ctx, renderIndexKey(renderID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: render %s", types.ErrNotFound, renderID)
	}
	if err != nil {
		return "", storeErr("render lookup", err)
	}
	return id, nil
}

// ListIDs returns the ids on one of the status index lists.
func (s *Store) ListIDs(ctx context.Context, listKey string) ([]string, error) {
	ids, err := s.rdb.LRange(ctx, listKey, 0, -1).Result()
	if err != nil {
		return nil, storeErr("list ids", err)
	}
	return ids, nil
}

// ListJobs scans every job record. Admin listing and stats only; the hot
// paths never scan.
func (s *Store) ListJobs(ctx context.Context) ([]*types.Job, error) {
	var jobs []*types.Job
	iter := s.rdb.Scan(ctx, 0, jobScanPattern(), 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.rdb.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // deleted between scan and get
		}
		if err != nil {
			return nil, storeErr("list jobs", err)
		}
		var job types.Job
		if err := json.Unmarshal(data, &job); err != nil {
			continue
		}
		jobs = append(jobs, &job)
	}
	if err := iter.Err(); err != nil {
		return nil, storeErr("list jobs", err)
	}
	return jobs, nil
}

// CountStatuses tallies jobs by status across the whole store.
func (s *Store) CountStatuses(ctx context.Context) (types.QueueStats, error) {
	jobs, err := s.ListJobs(ctx)
	if err != nil {
		return types.QueueStats{}, err
	}
	var stats types.QueueStats
	for _, job := range jobs {
		stats.Total++
		switch job.Status {
		case types.JobStatusPending:
			stats.Pending++
		case types.JobStatusProcessing:
			stats.Processing++
		case types.JobStatusRendering:
			stats.Rendering++
		case types.JobStatusCompleted:
			stats.Completed++
		case types.JobStatusFailed:
			stats.Failed++
		case types.JobStatusCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

// StuckProcessing returns claimed jobs whose last update is older than
// the threshold. The liveness sweep turns these into failures.
func (s *Store) StuckProcessing(ctx context.Context, olderThan time.Duration, now time.Time) ([]*types.Job, error) {
	ids, err := s.ListIDs(ctx, ProcessingListKey())
	if err != nil {
		return nil, err
	}
	cutoff := now.Add(-olderThan)
	var stuck []*types.Job
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if job.UpdatedAt.Before(cutoff) {
			stuck = append(stuck, job)
		}
	}
	return stuck, nil
}

// SetPaused toggles the dequeue pause flag.
func (s *Store) SetPaused(ctx context.Context, paused bool) error {
	var err error
	if paused {
		err = s.rdb.Set(ctx, pausedKey(), "1", 0).Err()
	} else {
		err = s.rdb.Del(ctx, pausedKey()).Err()
	}
	if err != nil {
		return storeErr("set paused", err)
	}
	return nil
}

// IsPaused reports whether dequeuing is paused.
func (s *Store) IsPaused(ctx context.Context) (bool, error) {
	n, err := s.rdb.Exists(ctx, pausedKey()).Result()
	if err != nil {
		return false, storeErr("paused check", err)
	}
	return n > 0, nil
}
