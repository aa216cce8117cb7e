package session

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// sendQueueSize bounds the per-session outbound buffer. A session
	// that falls this far behind starts losing broadcasts rather than
	// stalling the sender.
	sendQueueSize = 256

	writeWait = 10 * time.Second
)

// Session is one connected student on the line protocol. Writes go
// through an outbound queue drained by a single writer goroutine, so
// callers never block on a slow peer.
type Session struct {
	id   string
	name string
	conn net.Conn

	outbound chan []byte
	done     chan struct{}
	once     sync.Once

	mu       sync.Mutex
	answered map[string]bool

	logger *zap.Logger
}

func newSession(name string, conn net.Conn, logger *zap.Logger) *Session {
	return &Session{
		id:       uuid.New().String(),
		name:     name,
		conn:     conn,
		outbound: make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
		answered: make(map[string]bool),
		logger:   logger,
	}
}

func (s *Session) ID() string   { return s.id }
func (s *Session) Name() string { return s.name }

// Send queues an already-framed line for delivery. It never blocks:
// when the queue is full the line is dropped and logged, and a closed
// session reports ErrClosed so the hub can skip it.
func (s *Session) Send(line []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	select {
	case s.outbound <- line:
		return nil
	case <-s.done:
		return ErrClosed
	default:
		s.logger.Warn("session send queue full, dropping message",
			zap.String("session_id", s.id),
			zap.String("name", s.name))
		return nil
	}
}

// HasAnswered reports whether this session already answered the poll
// question identified by key.
func (s *Session) HasAnswered(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answered[key]
}

// MarkAnswered records that this session answered the given poll
// question.
func (s *Session) MarkAnswered(key string) {
	s.mu.Lock()
	s.answered[key] = true
	s.mu.Unlock()
}

// Close tears the connection down once. Safe to call from any
// goroutine.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// writePump drains the outbound queue onto the connection. A write
// failure closes the session; the read loop observes the closed
// connection and cleans up registration.
func (s *Session) writePump() {
	for {
		select {
		case line := <-s.outbound:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if _, err := s.conn.Write(line); err != nil {
				s.logger.Info("session write failed, closing",
					zap.String("session_id", s.id),
					zap.String("name", s.name),
					zap.Error(err))
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}
