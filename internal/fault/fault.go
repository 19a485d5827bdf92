package fault

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// An error tagged with a kind.
type Error struct {
	kind  error // Sentinel describing the category of failure.
	cause error // Underlying error, with a stack trace attached.
}

// Returns "<kind>: <cause>".
func (e *Error) Error() string {
	if e.cause == nil {
		return e.kind.Error()
	}
	return e.kind.Error() + ": " + e.cause.Error()
}

// Returns both the kind and the cause so [errors.Is] and [errors.As] can
// match either of them.
func (e *Error) Unwrap() []error {
	return []error{e.kind, e.cause}
}

// Implements [fmt.Formatter].
//
// The "%+v" verb prints the cause with its stack trace.
func (e *Error) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "%s: %+v", e.kind, e.cause)
		return
	}
	fmt.Fprint(s, e.Error())
}

// Returns the kind the error was tagged with.
func (e *Error) Kind() error {
	return e.kind
}

// Tags err with kind.
//
// Returns nil when err is nil. When err already matches kind it is returned
// unchanged, so wrapping the same kind at several layers does not repeat the
// prefix.
func Wrap(kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return &Error{kind: kind, cause: pkgerrors.WithStack(err)}
}

// Creates an error of the given kind from a format string.
//
// The format supports "%w" in the same way as [fmt.Errorf].
func Wrapf(kind error, format string, args ...any) error {
	return &Error{kind: kind, cause: pkgerrors.WithStack(fmt.Errorf(format, args...))}
}

// Returns the kind of err, or nil when err was not created by this package.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return nil
}
