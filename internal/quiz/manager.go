// Package quiz implements timed multi-question quizzes: a DRAFT -> READY ->
// RUNNING -> ENDED lifecycle per quiz, and a single process-wide Runtime
// holding the live state of the running quiz.
package quiz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/questionbank"
)

// Status is the quiz lifecycle state.
type Status string

const (
	StatusDraft   Status = "DRAFT"
	StatusReady   Status = "READY"
	StatusRunning Status = "RUNNING"
	StatusEnded   Status = "ENDED"
)

// Quiz is a quiz definition: an ordered list of question-bank references
// plus timing and scoring settings. Zero time budgets mean no limit.
type Quiz struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	QuestionIDs     []string  `json:"questionIds"`
	PerQuestionTime int       `json:"perQuestionTime,omitempty"` // seconds
	TotalTime       int       `json:"totalTime,omitempty"`       // seconds
	PerCorrectScore int       `json:"perCorrectScore"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Manager owns all quiz definitions and the one active runtime. At most one
// quiz is RUNNING process-wide.
type Manager struct {
	mu      sync.Mutex
	quizzes map[string]*Quiz
	active  *Runtime
	logger  *zap.Logger
}

// NewManager creates a quiz manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{quizzes: make(map[string]*Quiz), logger: logger}
}

// Create registers a new quiz in DRAFT.
func (m *Manager) Create(title, description string, questionIDs []string, perQuestionTime, totalTime, perCorrectScore int) (*Quiz, error) {
	if len(questionIDs) == 0 {
		return nil, ErrNoQuestions
	}
	if perCorrectScore <= 0 {
		perCorrectScore = 1
	}
	q := &Quiz{
		ID:              "quiz-" + uuid.NewString()[:8],
		Title:           title,
		Description:     description,
		QuestionIDs:     append([]string(nil), questionIDs...),
		PerQuestionTime: perQuestionTime,
		TotalTime:       totalTime,
		PerCorrectScore: perCorrectScore,
		Status:          StatusDraft,
		CreatedAt:       time.Now(),
	}
	m.mu.Lock()
	m.quizzes[q.ID] = q
	m.mu.Unlock()
	m.logger.Info("quiz created", zap.String("quiz_id", q.ID), zap.String("title", title), zap.Int("questions", len(questionIDs)))
	return q, nil
}

// Get returns a quiz by id.
func (m *Manager) Get(id string) (*Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quizzes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return q, nil
}

// List returns every quiz definition.
func (m *Manager) List() []*Quiz {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Quiz, 0, len(m.quizzes))
	for _, q := range m.quizzes {
		out = append(out, q)
	}
	return out
}

// Update rewrites a quiz definition. Running and ended quizzes are
// immutable.
func (m *Manager) Update(id, title, description string, questionIDs []string, perQuestionTime, totalTime, perCorrectScore int) (*Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quizzes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if q.Status == StatusRunning || q.Status == StatusEnded {
		return nil, fmt.Errorf("%w: status %s", ErrImmutable, q.Status)
	}
	if title != "" {
		q.Title = title
	}
	if description != "" {
		q.Description = description
	}
	if len(questionIDs) > 0 {
		q.QuestionIDs = append([]string(nil), questionIDs...)
	}
	if perQuestionTime > 0 {
		q.PerQuestionTime = perQuestionTime
	}
	if totalTime > 0 {
		q.TotalTime = totalTime
	}
	if perCorrectScore > 0 {
		q.PerCorrectScore = perCorrectScore
	}
	m.logger.Info("quiz updated", zap.String("quiz_id", id))
	return q, nil
}

// Delete removes a quiz. A running quiz cannot be deleted.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quizzes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if q.Status == StatusRunning {
		return fmt.Errorf("%w: quiz is running", ErrImmutable)
	}
	delete(m.quizzes, id)
	m.logger.Info("quiz deleted", zap.String("quiz_id", id))
	return nil
}

// MarkReady flips a quiz to READY.
func (m *Manager) MarkReady(id string) (*Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quizzes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if q.Status == StatusRunning || q.Status == StatusEnded {
		return nil, fmt.Errorf("%w: status %s", ErrImmutable, q.Status)
	}
	q.Status = StatusReady
	return q, nil
}

// Launch resolves the quiz's questions against the bank and allocates the
// runtime. Launching the quiz that is already running returns the active
// runtime; launching while a different quiz runs is a conflict.
func (m *Manager) Launch(ctx context.Context, id string, bank questionbank.Bank) (*Runtime, error) {
	m.mu.Lock()
	q, ok := m.quizzes[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if m.active != nil {
		rt := m.active
		m.mu.Unlock()
		if q.Status == StatusRunning && rt.QuizID == id {
			return rt, nil
		}
		return nil, ErrQuizRunning
	}
	m.mu.Unlock()

	// Resolve all questions up front so a dangling reference fails the
	// launch instead of the middle of the quiz.
	questions := make([]*questionbank.Question, 0, len(q.QuestionIDs))
	for _, qid := range q.QuestionIDs {
		question, err := bank.Get(ctx, qid)
		if err != nil {
			return nil, fmt.Errorf("resolve question %s: %w", qid, err)
		}
		questions = append(questions, question)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return nil, ErrQuizRunning
	}
	rt := newRuntime(q, questions)
	m.active = rt
	q.Status = StatusRunning
	m.logger.Info("quiz launched", zap.String("quiz_id", id), zap.Int("questions", len(questions)))
	return rt, nil
}

// ActiveRuntime returns the live runtime, or nil when no quiz is running.
func (m *Manager) ActiveRuntime() *Runtime {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// End stops the running quiz, marks it ENDED and discards the runtime. The
// final leaderboard is returned for broadcasting.
func (m *Manager) End() ([]LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, ErrNoActiveQuiz
	}
	rt := m.active
	rt.end()
	if q, ok := m.quizzes[rt.QuizID]; ok {
		q.Status = StatusEnded
	}
	m.active = nil
	board := rt.Leaderboard()
	m.logger.Info("quiz ended", zap.String("quiz_id", rt.QuizID), zap.Int("participants", len(board)))
	return board, nil
}
