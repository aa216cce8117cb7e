package quiz

import "errors"

var (
	// ErrNoQuestions is returned when a quiz is created or updated with an
	// empty question list.
	ErrNoQuestions = errors.New("quiz requires at least one question")
	// ErrNotFound is returned for an unknown quiz id.
	ErrNotFound = errors.New("quiz not found")
	// ErrQuizRunning is returned when launching while another quiz is
	// already running.
	ErrQuizRunning = errors.New("another quiz is already running")
	// ErrImmutable is returned for update/delete attempts against a
	// running or ended quiz.
	ErrImmutable = errors.New("quiz can no longer be modified")
	// ErrNoActiveQuiz is returned by runtime-directed operations when no
	// quiz is running.
	ErrNoActiveQuiz = errors.New("no quiz is running")
	// ErrQuizEnded is returned for submissions after the quiz ended.
	ErrQuizEnded = errors.New("quiz has ended")
	// ErrNoActiveQuestion is returned for submissions before the first
	// question starts.
	ErrNoActiveQuestion = errors.New("no question is active")
	// ErrAlreadyAnswered is returned for a second submission to the same
	// question; the first submission wins.
	ErrAlreadyAnswered = errors.New("already answered this question")
	// ErrInvalidChoice is returned for a choice outside [0,3].
	ErrInvalidChoice = errors.New("choice out of range")
)
