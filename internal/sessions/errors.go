package sessions

import "errors"

var (
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrNotFound          = errors.New("session not found")
)
