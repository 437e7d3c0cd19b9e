// Package hub maintains live subscriber connections and broadcasts job
// and queue deltas to them. Subscriber registries are owned collections:
// created on first subscribe, pruned on disconnect or write failure.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/vidforge/vidforge/internal/logger"
	"github.com/vidforge/vidforge/internal/types"
)

// DefaultHeartbeatInterval paces keepalives on idle connections.
const DefaultHeartbeatInterval = 30 * time.Second

// Subscriber is one live outbound connection. The websocket transport
// and test fakes both satisfy it.
type Subscriber interface {
	WriteJSON(v interface{}) error
}

// Hub broadcasts state deltas to a global stream and to per-job streams.
type Hub struct {
	mu     sync.RWMutex
	global map[Subscriber]struct{}
	jobs   map[string]map[Subscriber]struct{}
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{
		global: make(map[Subscriber]struct{}),
		jobs:   make(map[string]map[Subscriber]struct{}),
	}
}

// SubscribeGlobal registers a subscriber on the global queue stream.
func (h *Hub) SubscribeGlobal(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.global[sub] = struct{}{}
}

// UnsubscribeGlobal removes a global subscriber.
func (h *Hub) UnsubscribeGlobal(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.global, sub)
}

// SubscribeJob registers a subscriber on one job's stream.
func (h *Hub) SubscribeJob(jobID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.jobs[jobID] == nil {
		h.jobs[jobID] = make(map[Subscriber]struct{})
	}
	h.jobs[jobID][sub] = struct{}{}
}

// UnsubscribeJob removes a per-job subscriber, dropping the registry when
// it empties.
func (h *Hub) UnsubscribeJob(jobID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.jobs[jobID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.jobs, jobID)
		}
	}
}

// PublishJob pushes a delta to every subscriber of the job. Best-effort
// and non-blocking per subscriber: a failed write prunes that subscriber
// and does not affect the rest.
func (h *Hub) PublishJob(jobID string, delta types.JobDelta) {
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.jobs[jobID]))
	for sub := range h.jobs[jobID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.WriteJSON(delta); err != nil {
			logger.Debugf("Pruning dead job subscriber for %s: %v", jobID, err)
			h.UnsubscribeJob(jobID, sub)
		}
	}
}

// PublishGlobal pushes a payload to every global subscriber.
func (h *Hub) PublishGlobal(payload interface{}) {
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.global))
	for sub := range h.global {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.WriteJSON(payload); err != nil {
			logger.Debugf("Pruning dead global subscriber: %v", err)
			h.UnsubscribeGlobal(sub)
		}
	}
}

// Subscribers reports the current connection counts (global, per-job sum).
func (h *Hub) Subscribers() (int, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	jobSubs := 0
	for _, subs := range h.jobs {
		jobSubs += len(subs)
	}
	return len(h.global), jobSubs
}

// RunHeartbeat sends periodic heartbeats on every stream until ctx is
// done. When statsFn is non-nil its snapshot rides along on the global
// stream; snapshot errors are skipped, not fatal.
func (h *Hub) RunHeartbeat(ctx context.Context, interval time.Duration, statsFn func() (types.QueueStats, error)) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb := types.Heartbeat{Type: types.DeltaHeartbeat, Timestamp: time.Now()}
			h.PublishGlobal(hb)

			h.mu.RLock()
			jobIDs := make([]string, 0, len(h.jobs))
			for id := range h.jobs {
				jobIDs = append(jobIDs, id)
			}
			h.mu.RUnlock()
			for _, id := range jobIDs {
				h.publishJobRaw(id, hb)
			}

			if statsFn != nil {
				if stats, err := statsFn(); err == nil {
					h.PublishGlobal(types.StatsDelta{Type: types.DeltaQueueStatus, Stats: stats})
				}
			}
		}
	}
}

// publishJobRaw is PublishJob for non-delta payloads (heartbeats).
func (h *Hub) publishJobRaw(jobID string, payload interface{}) {
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.jobs[jobID]))
	for sub := range h.jobs[jobID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.WriteJSON(payload); err != nil {
			h.UnsubscribeJob(jobID, sub)
		}
	}
}
