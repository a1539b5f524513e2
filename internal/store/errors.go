package store

import (
	"fmt"

	ledgererrors "github.com/listenupapp/ledger-server/internal/errors"
)

// Error is a storage error carrying the ledger error code it maps to.
type Error struct {
	Code    ledgererrors.Code // Ledger error code
	Message string            // Caller-facing message
	Err     error             // Underlying error (optional)
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches storage errors with the same code, and the ledger sentinel of that
// code, so callers can test with either package.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case *Error:
		return e.Code == t.Code
	case *ledgererrors.Error:
		return e.Code == t.Code
	}
	return false
}

// WithMessage returns a new error with a custom message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{
		Code:    e.Code,
		Message: msg,
		Err:     e.Err,
	}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// Sentinel errors.
var (
	ErrNotFound = &Error{
		Code:    ledgererrors.CodeNotFound,
		Message: "resource not found",
	}

	ErrAlreadyExists = &Error{
		Code:    ledgererrors.CodeConflict,
		Message: "resource already exists",
	}

	ErrInvalidInput = &Error{
		Code:    ledgererrors.CodeValidation,
		Message: "invalid input",
	}
)
