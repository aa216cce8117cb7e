package poll

import "errors"

var (
	// ErrInvalidOptions is returned when a poll is created with anything
	// other than four non-empty options.
	ErrInvalidOptions = errors.New("poll requires exactly four non-empty options")
	// ErrInvalidCorrectIndex is returned when the correct-answer index is
	// outside [0,3].
	ErrInvalidCorrectIndex = errors.New("correct index out of range")
	// ErrInvalidChoice is returned for a tally choice outside [0,3].
	ErrInvalidChoice = errors.New("choice out of range")
	// ErrNoPoll is returned when no poll has been created yet.
	ErrNoPoll = errors.New("no poll exists")
	// ErrNotCurrent is returned when a tally targets a poll that is no
	// longer the current one.
	ErrNotCurrent = errors.New("poll is not the current poll")
	// ErrNotActive is returned when a tally targets a poll that is not
	// accepting answers.
	ErrNotActive = errors.New("poll is not active")
	// ErrAlreadyAnswered is returned by TallyStudent when the named student
	// has already answered the poll.
	ErrAlreadyAnswered = errors.New("already answered this poll")
)
