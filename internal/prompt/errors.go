package prompt

import "errors"

var (
	ErrBusy           = errors.New("another prompt is awaiting an answer")
	ErrNotFound       = errors.New("no pending prompt with that id")
	ErrUnknownTrigger = errors.New("unknown prompt trigger")
	ErrCancelled      = errors.New("prompt cancelled")
)
