package session

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyExists   = errors.New("session already exists")
	ErrNotFound        = errors.New("session not found")
	ErrNotConnected    = errors.New("session is not connected")
	ErrInvalidArgument = errors.New("invalid argument")
)

// TransportError wraps a failure reported by the underlying transport so
// callers can distinguish protocol failures from facade-level ones.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func transportErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err}
}
