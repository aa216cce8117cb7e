// Package questionbank stores reusable MCQ questions for quizzes. The bank
// is an interface with an in-memory implementation and a Postgres
// repository; the quiz engine only needs lookup by id.
package questionbank

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Difficulty levels. Free-form strings are rejected at validation.
const (
	DifficultyEasy   = "EASY"
	DifficultyMedium = "MEDIUM"
	DifficultyHard   = "HARD"
)

// OptionCount is fixed at four options per question.
const OptionCount = 4

// Validation and lookup errors.
var (
	ErrInvalidQuestion = errors.New("invalid question")
	ErrNotFound        = errors.New("question not found")
)

// Question is one multiple-choice question.
type Question struct {
	ID               string              `json:"id"`
	Text             string              `json:"text"`
	Options          [OptionCount]string `json:"options"`
	CorrectIndex     int                 `json:"correctIndex"`
	Tags             []string            `json:"tags,omitempty"`
	Difficulty       string              `json:"difficulty"`
	TimeLimitSeconds int                 `json:"timeLimitSeconds,omitempty"` // 0 = no per-question limit
	CreatedAt        time.Time           `json:"createdAt"`
}

// Validate checks the invariants every stored question must satisfy:
// non-empty text, four non-empty options, correct index in range, known
// difficulty.
func (q *Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidQuestion)
	}
	for i, o := range q.Options {
		if strings.TrimSpace(o) == "" {
			return fmt.Errorf("%w: option %d is empty", ErrInvalidQuestion, i)
		}
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= OptionCount {
		return fmt.Errorf("%w: correct index %d out of range", ErrInvalidQuestion, q.CorrectIndex)
	}
	switch q.Difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
	default:
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidQuestion, q.Difficulty)
	}
	if q.TimeLimitSeconds < 0 {
		return fmt.Errorf("%w: negative time limit", ErrInvalidQuestion)
	}
	return nil
}

// HasTag reports whether the question carries the given tag
// (case-insensitive).
func (q *Question) HasTag(tag string) bool {
	for _, t := range q.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
