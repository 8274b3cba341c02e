// Package errlist collects several errors into one, for teardown paths that
// must keep going after the first failure.
package errlist

import "fmt"

// List wraps multiple errors as a single error.
type List []error

func (errs List) Error() string {
	switch len(errs) {
	case 0:
		return "<no errors>"
	case 1:
		return errs[0].Error()
	}
	return fmt.Sprintf("%s (and %d more errors)", errs[0].Error(), len(errs[1:]))
}

// Unwrap exposes the members to errors.Is and errors.As.
func (errs List) Unwrap() []error {
	return errs
}

// ErrOrNil returns nil if the List is empty, or the List otherwise.
func (errs List) ErrOrNil() error {
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Append adds err to the list. Nested Lists are flattened and nil is ignored.
func (errs List) Append(err error) List {
	if err == nil {
		return errs
	}
	if l, ok := err.(List); ok {
		return append(errs, l...)
	}
	return append(errs, err)
}
