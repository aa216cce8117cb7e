package questionbank

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Bank is the question store consumed by the quiz engine and the dashboard.
type Bank interface {
	Add(ctx context.Context, q *Question) error
	// AddBatch validates every question before storing any; one invalid
	// question rejects the whole batch.
	AddBatch(ctx context.Context, qs []*Question) ([]string, error)
	Get(ctx context.Context, id string) (*Question, error)
	List(ctx context.Context) ([]*Question, error)
	// Search filters by free-text query over the question text, an exact
	// tag, and a difficulty. Empty arguments match everything.
	Search(ctx context.Context, query, tag, difficulty string) ([]*Question, error)
	Update(ctx context.Context, q *Question) error
	Delete(ctx context.Context, id string) error
}

// NewQuestionID mints a bank-wide unique question id.
func NewQuestionID() string {
	return "q-" + uuid.NewString()[:8]
}

// Memory is the in-process Bank used when no database is configured (and
// by the engine tests). Insertion order is preserved for listings.
type Memory struct {
	mu    sync.RWMutex
	byID  map[string]*Question
	order []string
}

// NewMemory creates an empty in-memory bank.
func NewMemory() *Memory {
	return &Memory{byID: make(map[string]*Question)}
}

// Add validates and stores one question, assigning an id when absent.
func (m *Memory) Add(_ context.Context, q *Question) error {
	if q.ID == "" {
		q.ID = NewQuestionID()
	}
	if q.Difficulty == "" {
		q.Difficulty = DifficultyMedium
	}
	if err := q.Validate(); err != nil {
		return err
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[q.ID]; !exists {
		m.order = append(m.order, q.ID)
	}
	m.byID[q.ID] = q
	return nil
}

// AddBatch stores all questions or none.
func (m *Memory) AddBatch(ctx context.Context, qs []*Question) ([]string, error) {
	for i, q := range qs {
		if q.Difficulty == "" {
			q.Difficulty = DifficultyMedium
		}
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
	}
	ids := make([]string, 0, len(qs))
	for _, q := range qs {
		if err := m.Add(ctx, q); err != nil {
			return nil, err
		}
		ids = append(ids, q.ID)
	}
	return ids, nil
}

// Get returns a question by id.
func (m *Memory) Get(_ context.Context, id string) (*Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return q, nil
}

// List returns all questions in insertion order.
func (m *Memory) List(_ context.Context) ([]*Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Question, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id])
	}
	return out, nil
}

// Search filters the bank in insertion order.
func (m *Memory) Search(ctx context.Context, query, tag, difficulty string) ([]*Question, error) {
	all, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Question, 0, len(all))
	for _, q := range all {
		if query != "" && !strings.Contains(strings.ToLower(q.Text), strings.ToLower(query)) {
			continue
		}
		if tag != "" && !q.HasTag(tag) {
			continue
		}
		if difficulty != "" && !strings.EqualFold(q.Difficulty, difficulty) {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

// Update replaces a stored question after validation.
func (m *Memory) Update(_ context.Context, q *Question) error {
	if err := q.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[q.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, q.ID)
	}
	m.byID[q.ID] = q
	return nil
}

// Delete removes a question by id.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.byID, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}
