package rpc

import (
	"errors"
	"fmt"
)

var (
	ErrPromptRejected    = errors.New("user rejected the prompt")
	ErrInvalidParams     = errors.New("invalid rpc params")
	ErrUnsupportedMethod = errors.New("unsupported rpc method")
	ErrInvalidNetwork    = errors.New("request network does not match wallet network")
)

// SendNanoContractTxError is a failure to build or push a nano contract
// transaction after the user confirmed it. The coordinator offers a retry.
type SendNanoContractTxError struct {
	Err error
}

func (e *SendNanoContractTxError) Error() string {
	return fmt.Sprintf("send nano contract tx: %v", e.Err)
}

func (e *SendNanoContractTxError) Unwrap() error { return e.Err }

// CreateTokenError is a failure to create a token after the user confirmed it.
// The coordinator offers a retry.
type CreateTokenError struct {
	Err error
}

func (e *CreateTokenError) Error() string {
	return fmt.Sprintf("create token: %v", e.Err)
}

func (e *CreateTokenError) Unwrap() error { return e.Err }
