// Package errs defines the error taxonomy from spec.md §7 as
// sentinel-wrapped typed errors usable with errors.Is/errors.As.
package errs

import "fmt"

// Kind identifies a taxonomy member independent of its message.
type Kind string

const (
	InvalidInputs    Kind = "InvalidInputs"
	WorkerCallFailed Kind = "WorkerCallFailed"
	WorkerTimeout    Kind = "WorkerTimeout"
	SchemaViolation  Kind = "SchemaViolation"
	CircuitOpen      Kind = "CircuitOpen"
	BudgetExhausted  Kind = "BudgetExhausted"
	DataLeakage      Kind = "DataLeakage"
	Fatal            Kind = "Fatal"
)

// Error is a taxonomy member wrapping an underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, errs.New(Kind, "")) match on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs an Error of the given Kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given Kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the Kind of err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
