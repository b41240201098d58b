// Package errors defines the typed failures surfaced by the approvals service.
// Every failure carries a Code so transports can map it without string matching.
package errors

import (
	stderrors "errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Code classifies a failure.
type Code string

const (
	ErrCodeNotFound        Code = "NOT_FOUND"
	ErrCodeValidation      Code = "VALIDATION"
	ErrCodeNotAuthorized   Code = "NOT_AUTHORIZED"
	ErrCodeInvalidState    Code = "INVALID_STATE"
	ErrCodeConflict        Code = "CONFLICT"
	ErrCodeUnavailable     Code = "UNAVAILABLE"
	ErrCodeForbidden       Code = "FORBIDDEN"
	ErrCodeUnauthenticated Code = "UNAUTHENTICATED"
	ErrCodeInternal        Code = "INTERNAL"
)

// Error is the service-wide error type.
type Error struct {
	Code    Code
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error with the given code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap annotates err with a code and message. The cause keeps a stack trace
// for %+v formatting in logs.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: pkgerrors.WithStack(err)}
}

// NotFound reports an unknown resource id.
func NotFound(resource, id string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %q not found", resource, id)}
}

// InvalidInput reports a malformed input field.
func InvalidInput(field, message string) *Error {
	return &Error{Code: ErrCodeValidation, Message: message, Field: field}
}

// NotAuthorized reports an actor that may not act on the current step.
func NotAuthorized(message string) *Error {
	return &Error{Code: ErrCodeNotAuthorized, Message: message}
}

// InvalidState reports an operation attempted from a state that forbids it.
func InvalidState(message string) *Error {
	return &Error{Code: ErrCodeInvalidState, Message: message}
}

// Conflict reports a lost optimistic-concurrency race.
func Conflict(message string) *Error {
	return &Error{Code: ErrCodeConflict, Message: message}
}

// Unavailable reports a transient collaborator failure. Callers may retry.
func Unavailable(err error, message string) *Error {
	return Wrap(err, ErrCodeUnavailable, message)
}

// Forbidden reports a missing capability, e.g. administrator.
func Forbidden(message string) *Error {
	return &Error{Code: ErrCodeForbidden, Message: message}
}

// Unauthenticated reports a missing or invalid caller identity.
func Unauthenticated(message string) *Error {
	return &Error{Code: ErrCodeUnauthenticated, Message: message}
}

// CodeOf returns the code of the first *Error in err's chain, or
// ErrCodeInternal when there is none.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// As is re-exported so callers importing this package need not alias the stdlib.
func As(err error, target any) bool { return stderrors.As(err, target) }
