// Package cache is a read-through, write-invalidated cache in front of
// the job store. Entries are proactively deleted on every authoritative
// mutation, so a client re-reading right after a webhook never observes
// pre-mutation data. The cache is derived and disposable; clearing it
// costs latency, never correctness.
package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vidforge/vidforge/internal/types"
)

// TTL classes. Active jobs need near-real-time fidelity; terminal jobs
// are immutable and can be held much longer. Stats polling is cushioned
// by the realtime hub carrying the live burden.
const (
	ActiveJobTTL   = 5 * time.Second
	TerminalJobTTL = 300 * time.Second
	StatsTTL       = 45 * time.Second

	// StatsKey is the cache key for the aggregate queue stats
	StatsKey = "stats"
)

// JobTTL returns the TTL class for a job in the given status.
func JobTTL(status types.JobStatus) time.Duration {
	if status.Terminal() {
		return TerminalJobTTL
	}
	return ActiveJobTTL
}

// JobKey builds the cache key for one job.
func JobKey(id string) string {
	return "job:" + id
}

type entry struct {
	value    interface{}
	storedAt time.Time
	ttl      time.Duration
}

// Cache is an owned, mutex-guarded map with per-entry TTLs plus a
// singleflight group so concurrent misses on the same key compute once.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	epochs  map[string]uint64
	group   singleflight.Group
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		epochs:  make(map[string]uint64),
	}
}

// Put stores a value under key with the given TTL class.
func (c *Cache) Put(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, storedAt: time.Now(), ttl: ttl}
}

// Get returns the cached value and whether it is still fresh. A present
// but expired entry is returned with fresh=false so read paths can fall
// back to it when the store is unreachable.
func (c *Cache) Get(key string) (interface{}, bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, false
	}
	fresh := time.Since(e.storedAt) < e.ttl
	return e.value, fresh, true
}

// Epoch returns the key's invalidation epoch. Fill paths capture it
// before reading the store and pass it to PutIfEpoch, so a fill racing
// an invalidation cannot re-cache pre-mutation data.
func (c *Cache) Epoch(key string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epochs[key]
}

// PutIfEpoch stores the value only if no invalidation of key happened
// since epoch was captured. Reports whether the value was stored.
func (c *Cache) PutIfEpoch(key string, epoch uint64, value interface{}, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epochs[key] != epoch {
		return false
	}
	c.entries[key] = entry{value: value, storedAt: time.Now(), ttl: ttl}
	return true
}

// Invalidate removes the entry immediately and advances the key's epoch.
// Called on every successful mutation of the underlying key.
func (c *Cache) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
		c.epochs[key]++
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		delete(c.entries, key)
		c.epochs[key]++
	}
}

// Len returns the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Evict removes entries older than twice their TTL class. Best-effort
// housekeeping to bound memory, not correctness-relevant.
func (c *Cache) Evict() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.storedAt) > 2*e.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Load deduplicates concurrent loads of the same key: while one caller
// computes, the rest wait and share the result.
func (c *Cache) Load(key string, fn func() (interface{}, error)) (interface{}, error) {
	v, err, _ := c.group.Do(key, fn)
	return v, err
}
