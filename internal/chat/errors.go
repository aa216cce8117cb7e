package chat

import "errors"

var (
	ErrDisabled = errors.New("chat is disabled")
	ErrEmpty    = errors.New("chat message is empty")
)
