// Package failure defines the failure taxonomy shared by the harness packages.
//
// Every error a harness component returns to its caller maps to one Class, so
// tests and the CLI can tell a malformed fixture from a broken child process or
// an expectation mismatch without parsing messages.
package failure

import (
	"errors"
	"fmt"
)

// Class is a stable failure category.
type Class string

const (
	// MalformedInput covers unterminated quotes, bad unit paths, duplicate units
	// and unparsable fixtures.
	MalformedInput Class = "MALFORMED_INPUT"
	// ChildProcessFailure covers verifier children that crashed or hung twice in a row.
	ChildProcessFailure Class = "CHILD_PROCESS_FAILURE"
	// ComparisonMismatch is a failed expectation: actual text differs from the baseline.
	ComparisonMismatch Class = "COMPARISON_MISMATCH"
	InternalError      Class = "INTERNAL_ERROR"
)

// ExitCode returns the process exit code the CLI uses for this class.
func (c Class) ExitCode() int {
	switch c {
	case ComparisonMismatch:
		return 1
	case InternalError, ChildProcessFailure:
		return 10
	default:
		return 2
	}
}

// Error is the structured error carried through the harness.
type Error struct {
	Class   Class
	Offset  int // byte offset into the offending input, -1 when not applicable
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Cause != nil {
		if msg == "" {
			msg = e.Cause.Error()
		} else {
			msg += ": " + e.Cause.Error()
		}
	}
	if e.Offset >= 0 {
		return fmt.Sprintf("%s at byte %d: %s", e.Class, e.Offset, msg)
	}
	return fmt.Sprintf("%s: %s", e.Class, msg)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match an *Error against its Class.
func (e *Error) Is(target error) bool {
	var c classError
	if errors.As(target, &c) {
		return e.Class == Class(c)
	}
	return false
}

// New creates an Error of the given class.
func New(class Class, offset int, message string) *Error {
	return &Error{Class: class, Offset: offset, Message: message}
}

// Newf is New with a format string and no offset.
func Newf(class Class, format string, args ...any) *Error {
	return &Error{Class: class, Offset: -1, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error wrapping cause.
func Wrap(class Class, offset int, message string, cause error) *Error {
	return &Error{Class: class, Offset: offset, Message: message, Cause: cause}
}

// classError lets a bare Class act as an errors.Is target.
type classError Class

func (c classError) Error() string { return string(c) }

// Target returns a value usable with errors.Is to test for a class:
//
//	errors.Is(err, failure.Target(failure.MalformedInput))
func Target(class Class) error { return classError(class) }

// ClassOf reports the class of the first *Error in err's chain.
func ClassOf(err error) (Class, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Class, true
	}
	return "", false
}
