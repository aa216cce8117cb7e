package chat

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/broadcast"
	"github.com/classpulse/backend/internal/protocol"
)

const (
	// HistoryLimit caps the retained transcript. Older messages fall
	// off the front once the cap is reached.
	HistoryLimit = 100
	// MaxMessageLen is the per-message character limit. Longer input
	// is truncated, not rejected.
	MaxMessageLen = 500
)

// Message is one accepted chat line.
type Message struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Manager owns the session transcript and pushes accepted messages
// through the hub so every connected client sees them.
type Manager struct {
	mu       sync.Mutex
	messages []Message
	nextID   int
	enabled  bool

	hub    *broadcast.Hub
	logger *zap.Logger
}

func NewManager(hub *broadcast.Hub, logger *zap.Logger) *Manager {
	return &Manager{
		nextID:  1,
		enabled: true,
		hub:     hub,
		logger:  logger,
	}
}

// Post validates, stores, and broadcasts a chat message. Input is
// trimmed and truncated to MaxMessageLen characters.
func (m *Manager) Post(username, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmpty
	}
	if runes := []rune(text); len(runes) > MaxMessageLen {
		text = string(runes[:MaxMessageLen])
	}

	m.mu.Lock()
	if !m.enabled {
		m.mu.Unlock()
		return Message{}, ErrDisabled
	}
	msg := Message{
		ID:        m.nextID,
		Username:  username,
		Message:   text,
		Timestamp: time.Now(),
	}
	m.nextID++
	m.messages = append(m.messages, msg)
	if len(m.messages) > HistoryLimit {
		m.messages = m.messages[len(m.messages)-HistoryLimit:]
	}
	m.mu.Unlock()

	m.hub.Publish(protocol.TypeChat, map[string]any{
		"id":        msg.ID,
		"username":  msg.Username,
		"message":   msg.Message,
		"timestamp": msg.Timestamp.UnixMilli(),
	})
	return msg, nil
}

// History returns up to limit most recent messages in chronological
// order. limit <= 0 returns the full transcript.
func (m *Manager) History(limit int) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// Clear drops the transcript and tells connected clients to do the
// same.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.messages = nil
	m.mu.Unlock()

	m.hub.Publish(protocol.TypeChatCleared, nil)
	m.logger.Info("chat transcript cleared")
}

// SetEnabled toggles whether new messages are accepted. History is
// kept either way.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	m.enabled = enabled
	m.mu.Unlock()
	m.logger.Info("chat toggled", zap.Bool("enabled", enabled))
}

func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}
