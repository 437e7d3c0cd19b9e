package handlers

import (
	"context"
	"sync"
	"time"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/vidforge/vidforge/internal/hub"
	"github.com/vidforge/vidforge/internal/logger"
	"github.com/vidforge/vidforge/internal/services"
	"github.com/vidforge/vidforge/internal/types"
)

// StreamHandler serves the realtime websocket streams.
type StreamHandler struct {
	hub   *hub.Hub
	queue *services.Queue
}

// NewStreamHandler creates a new instance of StreamHandler
func NewStreamHandler(h *hub.Hub, queue *services.Queue) *StreamHandler {
	return &StreamHandler{hub: h, queue: queue}
}

// streamWriteWait bounds one broadcast write; a peer that stalls past it
// errors out and the hub prunes the subscription.
const streamWriteWait = 5 * time.Second

// wsSubscriber serializes writes to one websocket connection; the hub
// broadcasts and the heartbeat loop write concurrently.
type wsSubscriber struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSubscriber) WriteJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return s.conn.WriteJSON(v)
}

// Upgrade gates the websocket routes: non-upgrade requests get a 426.
func (h *StreamHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// QueueStream subscribes the connection to the global queue stream.
func (h *StreamHandler) QueueStream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		sub := &wsSubscriber{conn: conn}

		// Initial snapshot so dashboards render without waiting a cycle
		if stats, err := h.queue.Stats(context.Background()); err == nil {
			_ = sub.WriteJSON(types.StatsDelta{Type: types.DeltaQueueStatus, Stats: stats})
		}

		h.hub.SubscribeGlobal(sub)
		defer func() {
			h.hub.UnsubscribeGlobal(sub)
			_ = conn.Close()
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
}

// JobStream subscribes the connection to one job's stream.
func (h *StreamHandler) JobStream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		jobID := conn.Params("id")
		sub := &wsSubscriber{conn: conn}

		job, _, err := h.queue.Get(context.Background(), jobID)
		if err != nil {
			logger.Debugf("Stream subscribe for unknown job %s: %v", jobID, err)
			_ = sub.WriteJSON(WebhookResponse{Success: false, Message: "job not found"})
			_ = conn.Close()
			return
		}

		// Current state first, deltas after
		_ = sub.WriteJSON(types.JobDelta{
			Type:       types.DeltaStepUpdate,
			JobID:      job.ID,
			StepNumber: job.CurrentStepNumber,
			StepName:   job.CurrentStep,
			Progress:   job.Progress,
			Status:     job.Status,
			Error:      job.Error,
			VideoURL:   job.VideoURL,
			Timestamp:  time.Now(),
		})

		h.hub.SubscribeJob(jobID, sub)
		defer func() {
			h.hub.UnsubscribeJob(jobID, sub)
			_ = conn.Close()
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
}
