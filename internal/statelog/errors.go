package statelog

import "errors"

// ErrState is the root of every error raised by the state subsystem.
// Typed errors in internal/state and internal/store match it via errors.Is.
var ErrState = errors.New("state error")

// ErrMalformed reports serialized log data that could not be decoded.
var ErrMalformed = errors.New("malformed state log")

// malformedError wraps a decode failure so it matches both ErrMalformed and
// ErrState.
type malformedError struct {
	msg string
	err error
}

func (e *malformedError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *malformedError) Unwrap() error {
	return e.err
}

func (e *malformedError) Is(target error) bool {
	return target == ErrMalformed || target == ErrState
}

func malformed(msg string, err error) error {
	return &malformedError{msg: msg, err: err}
}
