// Package broadcast fans a stream of alerts out to live subscribers
// (push-over-websocket clients) and keeps a bounded recent-history ring
// for late joiners and status endpoints.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/duetto/duetto/internal/alert"
)

// historyCapacity is the number of most-recent alerts retained for
// newly attached subscribers and status queries.
const historyCapacity = 100

// Sink is a subscriber's bidirectional message endpoint. Send delivers
// one already-serialized alert; an error marks the subscriber dead.
type Sink interface {
	Send(payload []byte) error
}

// Handle identifies an attached subscriber for later Detach calls.
type Handle uuid.UUID

// Hub maintains the dynamic subscriber set and the recent-history ring.
// Attach/Detach/Broadcast serialize only around the subscriber set;
// the network sends that Broadcast triggers happen outside that lock.
type Hub struct {
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[Handle]Sink

	histMu  sync.Mutex
	history []alert.Alert
}

// NewHub constructs an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:      logger,
		subscribers: make(map[Handle]Sink),
	}
}

// Attach registers sink and returns a handle for later Detach. Handshake
// (e.g. the websocket upgrade) is expected to already be complete by the
// time Attach is called.
func (h *Hub) Attach(sink Sink) Handle {
	handle := Handle(uuid.New())

	h.mu.Lock()
	h.subscribers[handle] = sink
	h.mu.Unlock()

	h.logger.Info("subscriber attached", "handle", handle, "count", h.Count())
	return handle
}

// Detach removes a subscriber. Idempotent.
func (h *Hub) Detach(handle Handle) {
	h.mu.Lock()
	_, existed := h.subscribers[handle]
	delete(h.subscribers, handle)
	h.mu.Unlock()

	if existed {
		h.logger.Info("subscriber detached", "handle", handle, "count", h.Count())
	}
}

// Count returns the current number of attached subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Recent returns up to the last historyCapacity alerts, newest first.
func (h *Hub) Recent() []alert.Alert {
	h.histMu.Lock()
	defer h.histMu.Unlock()
	out := make([]alert.Alert, len(h.history))
	copy(out, h.history)
	return out
}

// Broadcast serializes a once and sends it to every subscriber in turn
// on the calling goroutine. Any subscriber whose send fails is removed.
// There is no per-subscriber queue: a slow Send delays delivery to the
// subscribers after it and the return of Broadcast.
func (h *Hub) Broadcast(a alert.Alert) {
	h.recordHistory(a)

	h.mu.RLock()
	targets := make(map[Handle]Sink, len(h.subscribers))
	for handle, sink := range h.subscribers {
		targets[handle] = sink
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	payload, err := json.Marshal(a)
	if err != nil {
		h.logger.Error("marshal alert for broadcast", "error", err)
		return
	}

	var dead []Handle
	for handle, sink := range targets {
		if err := sink.Send(payload); err != nil {
			dead = append(dead, handle)
		}
	}

	for _, handle := range dead {
		h.Detach(handle)
	}
}

func (h *Hub) recordHistory(a alert.Alert) {
	h.histMu.Lock()
	defer h.histMu.Unlock()

	h.history = append([]alert.Alert{a}, h.history...)
	if len(h.history) > historyCapacity {
		h.history = h.history[:historyCapacity]
	}
}
