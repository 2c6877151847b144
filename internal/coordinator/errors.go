package coordinator

import "errors"

var (
	// ErrPairFailed is returned by Pair when the relay could not pair with the URI in time.
	ErrPairFailed = errors.New("pairing failed")

	// ErrNotRunning is returned by operations that need the run loops.
	ErrNotRunning = errors.New("coordinator is not running")

	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("coordinator is already running")
)
