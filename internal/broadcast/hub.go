// Package broadcast fans classroom state changes out to a dynamic set of
// subscribers: TCP sessions, dashboard WebSocket clients, anything that can
// accept an encoded protocol line.
package broadcast

import (
	"sync"

	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/protocol"
)

// Subscriber is one fan-out target. Send must be safe for concurrent use;
// a Send error marks this delivery failed but has no other effect here.
// Removal is the owner's job (the session registry close path).
type Subscriber interface {
	ID() string
	Send(line []byte) error
}

// EventPublisher mirrors published events to an external channel (Redis)
// so other instances or consumers can observe them. Optional.
type EventPublisher interface {
	PublishEvent(event string, payload []byte) error
}

// Hub delivers messages to all current subscribers. Subscription changes
// are safe concurrently with delivery: Publish iterates a snapshot of the
// set, so a subscriber removed mid-publish simply gets one last delivery
// attempt.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]Subscriber
	events EventPublisher
	logger *zap.Logger
}

// NewHub creates a hub. events may be nil.
func NewHub(logger *zap.Logger, events EventPublisher) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{subs: make(map[string]Subscriber), events: events, logger: logger}
}

// Subscribe registers a subscriber, replacing any previous one with the
// same id.
func (h *Hub) Subscribe(s Subscriber) {
	h.mu.Lock()
	h.subs[s.ID()] = s
	h.mu.Unlock()
}

// Unsubscribe removes a subscriber by id.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Count returns the current subscriber count.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish encodes one message and delivers it to every subscriber. A
// failing subscriber is logged and skipped; it never aborts delivery to
// the rest and is not unsubscribed here.
func (h *Hub) Publish(typ string, fields map[string]any) {
	line, err := protocol.Encode(typ, fields)
	if err != nil {
		h.logger.Error("encode broadcast", zap.String("type", typ), zap.Error(err))
		return
	}

	h.mu.RLock()
	snapshot := make([]Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		snapshot = append(snapshot, s)
	}
	h.mu.RUnlock()

	for _, s := range snapshot {
		if err := s.Send(line); err != nil {
			h.logger.Warn("broadcast delivery failed",
				zap.String("subscriber", s.ID()), zap.String("type", typ), zap.Error(err))
		}
	}

	if h.events != nil {
		if err := h.events.PublishEvent(typ, line); err != nil {
			h.logger.Warn("event mirror publish failed", zap.String("type", typ), zap.Error(err))
		}
	}
}
