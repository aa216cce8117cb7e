// Package qa is the question-and-answer mailbox: students drop
// questions in, the instructor answers or discards them from the
// dashboard.
package qa

import (
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/broadcast"
)

// MaxQuestionLen caps a submitted question. Longer input is truncated.
const MaxQuestionLen = 500

var (
	ErrEmpty    = errors.New("question is empty")
	ErrNotFound = errors.New("question not found")
)

// Question is one mailbox entry.
type Question struct {
	ID          int        `json:"id"`
	StudentName string     `json:"studentName"`
	Text        string     `json:"text"`
	Answer      string     `json:"answer,omitempty"`
	SubmittedAt time.Time  `json:"submittedAt"`
	AnsweredAt  *time.Time `json:"answeredAt,omitempty"`
}

// Manager owns the mailbox.
type Manager struct {
	mu     sync.Mutex
	byID   map[int]*Question
	order  []int
	nextID int

	hub    *broadcast.Hub
	logger *zap.Logger
}

func NewManager(hub *broadcast.Hub, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{byID: make(map[int]*Question), nextID: 1, hub: hub, logger: logger}
}

// Submit stores a new question and announces it so the instructor
// dashboard updates live.
func (m *Manager) Submit(studentName, text string) (*Question, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmpty
	}
	if runes := []rune(text); len(runes) > MaxQuestionLen {
		text = string(runes[:MaxQuestionLen])
	}

	m.mu.Lock()
	q := &Question{
		ID:          m.nextID,
		StudentName: studentName,
		Text:        text,
		SubmittedAt: time.Now(),
	}
	m.nextID++
	m.byID[q.ID] = q
	m.order = append(m.order, q.ID)
	m.mu.Unlock()

	m.hub.Publish("qaQuestion", map[string]any{
		"id":          q.ID,
		"studentName": q.StudentName,
		"text":        q.Text,
	})
	return q, nil
}

// Answer attaches the instructor's answer and broadcasts the pair.
func (m *Manager) Answer(id int, answer string) (*Question, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, ErrEmpty
	}

	m.mu.Lock()
	q, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	now := time.Now()
	q.Answer = answer
	q.AnsweredAt = &now
	m.mu.Unlock()

	m.hub.Publish("qaAnswered", map[string]any{
		"id":     q.ID,
		"text":   q.Text,
		"answer": q.Answer,
	})
	return q, nil
}

// Delete discards one question.
func (m *Manager) Delete(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	for i, qid := range m.order {
		if qid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Clear empties the mailbox.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.byID = make(map[int]*Question)
	m.order = nil
	m.mu.Unlock()
	m.logger.Info("qa mailbox cleared")
}

// List returns questions in submission order. unansweredOnly filters
// answered ones out.
func (m *Manager) List(unansweredOnly bool) []*Question {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Question, 0, len(m.order))
	for _, id := range m.order {
		q := m.byID[id]
		if unansweredOnly && q.Answer != "" {
			continue
		}
		out = append(out, q)
	}
	return out
}
