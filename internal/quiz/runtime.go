package quiz

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/classpulse/backend/internal/questionbank"
)

// Runtime is the live execution state of the one running quiz: current
// question cursor, per-question submissions, cumulative scores. It is
// created by Manager.Launch and discarded by Manager.End.
type Runtime struct {
	QuizID          string
	Title           string
	PerCorrectScore int
	perQuestionTime int
	totalTime       int

	questions []*questionbank.Question
	startedAt time.Time

	mu            sync.Mutex
	currentIndex  int // -1 before the first question
	questionStart time.Time
	submissions   []map[string]int // question index -> student -> choice
	scores        map[string]int
	scoreOrder    []string // first-submission order, the leaderboard tiebreak
	revealed      bool
	ended         bool
}

// LeaderboardEntry is one scored student.
type LeaderboardEntry struct {
	Student string `json:"student"`
	Score   int    `json:"score"`
}

func newRuntime(q *Quiz, questions []*questionbank.Question) *Runtime {
	rt := &Runtime{
		QuizID:          q.ID,
		Title:           q.Title,
		PerCorrectScore: q.PerCorrectScore,
		perQuestionTime: q.PerQuestionTime,
		totalTime:       q.TotalTime,
		questions:       questions,
		startedAt:       time.Now(),
		currentIndex:    -1,
		submissions:     make([]map[string]int, len(questions)),
		scores:          make(map[string]int),
	}
	return rt
}

// StartFirstQuestion opens question 0 for submissions.
func (r *Runtime) StartFirstQuestion() (*questionbank.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return nil, ErrQuizEnded
	}
	r.currentIndex = 0
	r.questionStart = time.Now()
	r.revealed = false
	r.submissions[0] = make(map[string]int)
	return r.questions[0], nil
}

// NextQuestion advances to the next question, resetting the reveal flag,
// the start timestamp and the submission map. The second return value is
// false when the question list is exhausted; that is completion, not an
// error.
func (r *Runtime) NextQuestion() (*questionbank.Question, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended || r.currentIndex+1 >= len(r.questions) {
		return nil, false
	}
	r.currentIndex++
	r.questionStart = time.Now()
	r.revealed = false
	r.submissions[r.currentIndex] = make(map[string]int)
	return r.questions[r.currentIndex], true
}

// CurrentQuestion returns the active question and its zero-based index.
func (r *Runtime) CurrentQuestion() (*questionbank.Question, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.currentIndex < 0 || r.currentIndex >= len(r.questions) {
		return nil, -1, false
	}
	return r.questions[r.currentIndex], r.currentIndex, true
}

// SubmitAnswer records a student's choice for the current question. First
// submission wins; repeats are rejected without touching the score. A
// correct answer adds PerCorrectScore; an incorrect one still registers the
// student in the score table with zero.
func (r *Runtime) SubmitAnswer(student string, choice int) (correct bool, err error) {
	if choice < 0 || choice >= questionbank.OptionCount {
		return false, fmt.Errorf("%w: %d", ErrInvalidChoice, choice)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return false, ErrQuizEnded
	}
	if r.currentIndex < 0 || r.currentIndex >= len(r.questions) {
		return false, ErrNoActiveQuestion
	}
	subs := r.submissions[r.currentIndex]
	if _, dup := subs[student]; dup {
		return false, ErrAlreadyAnswered
	}
	subs[student] = choice

	if _, seen := r.scores[student]; !seen {
		r.scores[student] = 0
		r.scoreOrder = append(r.scoreOrder, student)
	}
	question := r.questions[r.currentIndex]
	if choice == question.CorrectIndex {
		r.scores[student] += r.PerCorrectScore
		return true, nil
	}
	return false, nil
}

// RevealCurrentQuestion flags the active question's answer as revealed.
// Broadcasting is the caller's job.
func (r *Runtime) RevealCurrentQuestion() {
	r.mu.Lock()
	r.revealed = true
	r.mu.Unlock()
}

// CurrentQuestionRevealed reports the reveal flag.
func (r *Runtime) CurrentQuestionRevealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revealed
}

// CurrentCounts returns per-option submission counts for the active
// question.
func (r *Runtime) CurrentCounts() [questionbank.OptionCount]int {
	var counts [questionbank.OptionCount]int
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.currentIndex < 0 || r.currentIndex >= len(r.questions) {
		return counts
	}
	for _, choice := range r.submissions[r.currentIndex] {
		counts[choice]++
	}
	return counts
}

// Leaderboard returns all scored students ordered by descending score.
// The sort is stable with first-submission order as the tiebreak, so two
// calls with no intervening submissions agree.
func (r *Runtime) Leaderboard() []LeaderboardEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	board := make([]LeaderboardEntry, 0, len(r.scoreOrder))
	for _, student := range r.scoreOrder {
		board = append(board, LeaderboardEntry{Student: student, Score: r.scores[student]})
	}
	sort.SliceStable(board, func(i, j int) bool { return board[i].Score > board[j].Score })
	return board
}

// Score returns a student's cumulative score.
func (r *Runtime) Score(student string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scores[student]
}

// ParticipantCount returns the number of students who submitted at least
// one answer.
func (r *Runtime) ParticipantCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scores)
}

// TotalQuestions returns the quiz length.
func (r *Runtime) TotalQuestions() int { return len(r.questions) }

// Ended reports whether the quiz has been ended.
func (r *Runtime) Ended() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}

// IsQuestionTimeExceeded reports whether the active question has outlived
// its budget. The question's own limit wins over the quiz default; no
// budget means never exceeded. The engine never auto-advances; an external
// caller polls this and drives NextQuestion.
func (r *Runtime) IsQuestionTimeExceeded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.currentIndex < 0 || r.currentIndex >= len(r.questions) {
		return false
	}
	limit := r.questions[r.currentIndex].TimeLimitSeconds
	if limit == 0 {
		limit = r.perQuestionTime
	}
	if limit == 0 {
		return false
	}
	return time.Since(r.questionStart) > time.Duration(limit)*time.Second
}

// IsQuizTimeExceeded reports whether the whole quiz has outlived its total
// budget.
func (r *Runtime) IsQuizTimeExceeded() bool {
	if r.totalTime == 0 {
		return false
	}
	return time.Since(r.startedAt) > time.Duration(r.totalTime)*time.Second
}

// RemainingQuestionSeconds returns seconds left on the active question, or
// -1 when no budget applies.
func (r *Runtime) RemainingQuestionSeconds() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.currentIndex < 0 || r.currentIndex >= len(r.questions) {
		return -1
	}
	limit := r.questions[r.currentIndex].TimeLimitSeconds
	if limit == 0 {
		limit = r.perQuestionTime
	}
	if limit == 0 {
		return -1
	}
	remaining := limit - int(time.Since(r.questionStart).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (r *Runtime) end() {
	r.mu.Lock()
	r.ended = true
	r.mu.Unlock()
}
