// Package poll implements the instructor poll state machine: a single
// current poll with four options, per-option counters and a
// CREATED -> ACTIVE -> CLOSED lifecycle.
package poll

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State is the poll lifecycle state.
type State string

const (
	StateCreated State = "CREATED"
	StateActive  State = "ACTIVE"
	StateClosed  State = "CLOSED"
)

// OptionCount is fixed by the classroom UI: every poll has four options.
const OptionCount = 4

// Poll holds one poll's state. All mutation goes through its mutex; reads
// used for broadcasting take a consistent Snapshot.
type Poll struct {
	ID             string
	Question       string
	Options        [OptionCount]string
	CorrectIndex   int
	TimeoutSeconds int
	CreatedAt      time.Time

	mu       sync.Mutex
	state    State
	revealed bool
	counts   [OptionCount]int
	answered map[string]bool
}

// Snapshot is an immutable view of a poll for broadcasting and status
// queries.
type Snapshot struct {
	ID             string               `json:"id"`
	Question       string               `json:"question"`
	Options        [OptionCount]string  `json:"options"`
	State          State                `json:"state"`
	Revealed       bool                 `json:"revealed"`
	CorrectIndex   int                  `json:"correctIndex"`
	TimeoutSeconds int                  `json:"timeoutSeconds,omitempty"`
	Counts         [OptionCount]int     `json:"counts"`
	Percentages    [OptionCount]float64 `json:"percent"`
	Winners        []int                `json:"winners"`
}

// Engine owns all polls and the swappable current-poll reference. Creating
// a new poll replaces the current reference; older polls stay reachable by
// id for status queries.
type Engine struct {
	mu      sync.Mutex
	polls   map[string]*Poll
	current atomic.Pointer[Poll]
	seq     atomic.Int64
	logger  *zap.Logger
}

// NewEngine creates a poll engine.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{polls: make(map[string]*Poll), logger: logger}
}

// Create validates and registers a new poll and makes it the current one.
// Exactly four non-empty options are required; unlike votes, duplicate
// option text is allowed.
func (e *Engine) Create(question string, options []string, correctIndex, timeoutSeconds int) (*Poll, error) {
	if len(options) != OptionCount {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidOptions, len(options))
	}
	var opts [OptionCount]string
	for i, o := range options {
		o = strings.TrimSpace(o)
		if o == "" {
			return nil, fmt.Errorf("%w: option %d is empty", ErrInvalidOptions, i)
		}
		opts[i] = o
	}
	if correctIndex < 0 || correctIndex >= OptionCount {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCorrectIndex, correctIndex)
	}

	p := &Poll{
		ID:             fmt.Sprintf("p%d", e.seq.Add(1)),
		Question:       question,
		Options:        opts,
		CorrectIndex:   correctIndex,
		TimeoutSeconds: timeoutSeconds,
		CreatedAt:      time.Now(),
		state:          StateCreated,
		answered:       make(map[string]bool),
	}

	e.mu.Lock()
	e.polls[p.ID] = p
	e.mu.Unlock()
	e.current.Store(p)

	e.logger.Info("poll created", zap.String("poll_id", p.ID), zap.String("question", question))
	return p, nil
}

// Current returns the current poll, or nil when none has been created.
func (e *Engine) Current() *Poll {
	return e.current.Load()
}

// Get returns a poll by id.
func (e *Engine) Get(id string) (*Poll, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.polls[id]
	return p, ok
}

// Start flips the current poll to ACTIVE. Starting an already-active poll
// is a no-op returning the same poll.
func (e *Engine) Start() (*Poll, error) {
	p := e.current.Load()
	if p == nil {
		return nil, ErrNoPoll
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StateCreated, StateActive:
		p.state = StateActive
	case StateClosed:
		return nil, fmt.Errorf("%w: poll %s is closed", ErrNotActive, p.ID)
	}
	e.logger.Info("poll started", zap.String("poll_id", p.ID))
	return p, nil
}

// End flips the current poll to CLOSED. Further tallies are rejected.
func (e *Engine) End() (*Poll, error) {
	p := e.current.Load()
	if p == nil {
		return nil, ErrNoPoll
	}
	p.mu.Lock()
	p.state = StateClosed
	p.mu.Unlock()
	e.logger.Info("poll ended", zap.String("poll_id", p.ID))
	return p, nil
}

// Reveal marks the current poll's correct answer as revealed. The engine
// does not require the poll to be closed first; that is instructor
// discipline, not an invariant.
func (e *Engine) Reveal() (*Poll, error) {
	p := e.current.Load()
	if p == nil {
		return nil, ErrNoPoll
	}
	p.mu.Lock()
	p.revealed = true
	p.mu.Unlock()
	e.logger.Info("poll answer revealed", zap.String("poll_id", p.ID))
	return p, nil
}

// Tally records one answer for the given poll. It rejects tallies against
// anything but the current, active poll. One-vote-per-student is enforced
// by the caller through the session's answered marker.
func (e *Engine) Tally(pollID string, choice int) error {
	p := e.current.Load()
	if p == nil {
		return ErrNoPoll
	}
	if p.ID != pollID {
		return fmt.Errorf("%w: %s", ErrNotCurrent, pollID)
	}
	if choice < 0 || choice >= OptionCount {
		return fmt.Errorf("%w: %d", ErrInvalidChoice, choice)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateActive {
		return fmt.Errorf("%w: state %s", ErrNotActive, p.state)
	}
	p.counts[choice]++
	return nil
}

// TallyStudent records one answer keyed by student name, for callers with
// no session of their own (the HTTP surface). The answered check and the
// count increment happen under the same lock.
func (e *Engine) TallyStudent(pollID, student string, choice int) error {
	p := e.current.Load()
	if p == nil {
		return ErrNoPoll
	}
	if p.ID != pollID {
		return fmt.Errorf("%w: %s", ErrNotCurrent, pollID)
	}
	if choice < 0 || choice >= OptionCount {
		return fmt.Errorf("%w: %d", ErrInvalidChoice, choice)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateActive {
		return fmt.Errorf("%w: state %s", ErrNotActive, p.state)
	}
	if p.answered[student] {
		return ErrAlreadyAnswered
	}
	p.answered[student] = true
	p.counts[choice]++
	return nil
}

// Snapshot returns a consistent view of the poll. CorrectIndex is -1
// until the answer has been revealed.
func (p *Poll) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Snapshot{
		ID:             p.ID,
		Question:       p.Question,
		Options:        p.Options,
		State:          p.state,
		Revealed:       p.revealed,
		CorrectIndex:   -1,
		TimeoutSeconds: p.TimeoutSeconds,
		Counts:         p.counts,
	}
	if p.revealed {
		s.CorrectIndex = p.CorrectIndex
	}
	total := 0
	for _, c := range p.counts {
		total += c
	}
	if total > 0 {
		for i, c := range p.counts {
			s.Percentages[i] = float64(c) * 100 / float64(total)
		}
	}
	s.Winners = winners(p.counts)
	return s
}

// State returns the poll's lifecycle state.
func (p *Poll) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Winners returns the option indexes currently holding the maximum count.
func (p *Poll) Winners() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return winners(p.counts)
}

// winners returns the indexes holding the maximum count. All-zero counters
// produce an empty set: nobody wins a poll nobody answered.
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
