package config

import (
	"errors"
	"fmt"
)

// ErrConfiguration marks every problem found while loading a depfile.
var ErrConfiguration = errors.New("invalid configuration")

// Error is a fatal configuration problem. Path locates the offending entry,
// e.g. `layers[1].collectors[0]`.
type Error struct {
	File    string
	Path    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports ErrConfiguration as matching every configuration Error.
func (e *Error) Is(target error) bool { return target == ErrConfiguration }

func errorf(path, format string, args ...any) *Error {
	return &Error{Path: path, Message: fmt.Sprintf(format, args...)}
}
