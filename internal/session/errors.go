package session

import "errors"

var (
	// ErrClosed is returned when sending to a closed session.
	ErrClosed = errors.New("session closed")
	// ErrNotJoined is the reply reason for protocol messages received
	// before a successful join.
	ErrNotJoined = errors.New("join required before any other message")
	// ErrEmptyName is returned for a join without a display name.
	ErrEmptyName = errors.New("display name required")
)
