// Package vote implements date/option votes: four unique options, optional
// revoting, and an at-most-one recorded choice per student invariant.
package vote

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State is the vote lifecycle state.
type State string

const (
	StateCreated State = "CREATED"
	StateOpen    State = "OPEN"
	StateClosed  State = "CLOSED"
)

// OptionCount is fixed at four, matching polls.
const OptionCount = 4

// Vote holds one vote's state. recordVote-style mutations run under the
// vote's mutex so a revote's decrement+increment is never observable
// half-applied.
type Vote struct {
	ID          string
	Question    string
	Options     [OptionCount]string
	AllowRevote bool
	// Deadline is informational display text only; it is never enforced.
	Deadline  string
	CreatedAt time.Time

	mu        sync.Mutex
	state     State
	counts    [OptionCount]int
	byStudent map[string]int
}

// Snapshot is an immutable view for broadcasting and status queries.
// Winners is only populated once the vote is CLOSED.
type Snapshot struct {
	ID          string               `json:"id"`
	Question    string               `json:"question"`
	Options     [OptionCount]string  `json:"options"`
	State       State                `json:"state"`
	AllowRevote bool                 `json:"allowRevote"`
	Deadline    string               `json:"deadline,omitempty"`
	Counts      [OptionCount]int     `json:"counts"`
	Percentages [OptionCount]float64 `json:"percent"`
	Winners     []int                `json:"winnerIndexes,omitempty"`
}

// Engine owns all votes by id.
type Engine struct {
	mu     sync.Mutex
	votes  map[string]*Vote
	seq    atomic.Int64
	logger *zap.Logger
}

// NewEngine creates a vote engine.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{votes: make(map[string]*Vote), logger: logger}
}

// Create validates and registers a new vote. Votes are stricter than polls:
// the four options must also be pairwise unique.
func (e *Engine) Create(question string, options []string, allowRevote bool, deadline string) (*Vote, error) {
	if len(options) != OptionCount {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidOptions, len(options))
	}
	var opts [OptionCount]string
	seen := make(map[string]bool, OptionCount)
	for i, o := range options {
		o = strings.TrimSpace(o)
		if o == "" {
			return nil, fmt.Errorf("%w: option %d is empty", ErrInvalidOptions, i)
		}
		if seen[o] {
			return nil, fmt.Errorf("%w: duplicate option %q", ErrInvalidOptions, o)
		}
		seen[o] = true
		opts[i] = o
	}

	v := &Vote{
		ID:          fmt.Sprintf("v%d", e.seq.Add(1)),
		Question:    question,
		Options:     opts,
		AllowRevote: allowRevote,
		Deadline:    deadline,
		CreatedAt:   time.Now(),
		state:       StateCreated,
		byStudent:   make(map[string]int),
	}
	e.mu.Lock()
	e.votes[v.ID] = v
	e.mu.Unlock()

	e.logger.Info("vote created", zap.String("vote_id", v.ID), zap.Bool("allow_revote", allowRevote))
	return v, nil
}

// Get returns a vote by id.
func (e *Engine) Get(id string) (*Vote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.votes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return v, nil
}

// All returns every vote, newest last.
func (e *Engine) All() []*Vote {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Vote, 0, len(e.votes))
	for _, v := range e.votes {
		out = append(out, v)
	}
	return out
}

// Open transitions a vote to OPEN.
func (e *Engine) Open(id string) (*Vote, error) {
	v, err := e.Get(id)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	v.state = StateOpen
	v.mu.Unlock()
	e.logger.Info("vote opened", zap.String("vote_id", id))
	return v, nil
}

// Close transitions a vote to CLOSED.
func (e *Engine) Close(id string) (*Vote, error) {
	v, err := e.Get(id)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	v.state = StateClosed
	v.mu.Unlock()
	e.logger.Info("vote closed", zap.String("vote_id", id))
	return v, nil
}

// Cast records a student's choice. The read of the student's prior choice,
// the allow/deny decision, and the counter adjustments happen in one
// critical section keyed by the vote, so concurrent casts from the same
// student cannot interleave.
func (e *Engine) Cast(id, student string, choice int) error {
	v, err := e.Get(id)
	if err != nil {
		return err
	}
	if choice < 0 || choice >= OptionCount {
		return fmt.Errorf("%w: %d", ErrInvalidChoice, choice)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != StateOpen {
		return fmt.Errorf("%w: state %s", ErrNotOpen, v.state)
	}
	if prev, voted := v.byStudent[student]; voted {
		if !v.AllowRevote {
			return ErrRevoteNotAllowed
		}
		v.counts[prev]--
	}
	v.byStudent[student] = choice
	v.counts[choice]++
	return nil
}

// Snapshot returns a consistent view of the vote.
func (v *Vote) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := Snapshot{
		ID:          v.ID,
		Question:    v.Question,
		Options:     v.Options,
		State:       v.state,
		AllowRevote: v.AllowRevote,
		Deadline:    v.Deadline,
		Counts:      v.counts,
	}
	total := 0
	for _, c := range v.counts {
		total += c
	}
	if total > 0 {
		for i, c := range v.counts {
			s.Percentages[i] = float64(c) * 100 / float64(total)
		}
	}
	if v.state == StateClosed {
		s.Winners = winners(v.counts)
	}
	return s
}

// State returns the vote's lifecycle state.
func (v *Vote) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Winners returns the option indexes holding the maximum count, empty when
// nobody has voted.
func (v *Vote) Winners() []int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return winners(v.counts)
}

// VoterCount returns the number of distinct students with a recorded
// choice.
func (v *Vote) VoterCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.byStudent)
}

func winners(counts [OptionCount]int) []int {
	max := 0
	for _, c := range counts {
		if c > max {
			max = c
		}
	}
	win := []int{}
	if max == 0 {
		return win
	}
	for i, c := range counts {
		if c == max {
			win = append(win, i)
		}
	}
	return win
}
