package parse

import (
	"errors"
	"fmt"
)

// ErrParseFailed indicates that no syntax tree usable for extraction could be
// produced for a file. Check with errors.Is.
var ErrParseFailed = errors.New("parse failed")

// Error provides detailed information about a parse failure.
type Error struct {
	// File is the discovery-relative path of the file.
	File string
	// Line is the 1-indexed line of the first syntax error, 0 if unknown.
	Line int
	// Message describes the failure.
	Message string
	// Cause is the underlying error, if any.
	Cause error
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports ErrParseFailed as matching every parse Error.
func (e *Error) Is(target error) bool {
	return target == ErrParseFailed
}
