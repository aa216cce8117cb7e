package vote

import "errors"

var (
	// ErrInvalidOptions is returned when a vote is created without exactly
	// four unique, non-empty options.
	ErrInvalidOptions = errors.New("vote requires exactly four unique non-empty options")
	// ErrInvalidChoice is returned for a choice index outside [0,3].
	ErrInvalidChoice = errors.New("choice out of range")
	// ErrNotFound is returned for an unknown vote id.
	ErrNotFound = errors.New("vote not found")
	// ErrNotOpen is returned when casting against a vote that is not OPEN.
	ErrNotOpen = errors.New("vote is not open")
	// ErrRevoteNotAllowed is returned when a student with a recorded choice
	// votes again on a vote that disallows revoting.
	ErrRevoteNotAllowed = errors.New("revote not allowed")
)
