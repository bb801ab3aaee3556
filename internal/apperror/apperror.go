// Package apperror defines the error taxonomy shared by every layer.
//
// Repositories and services return *AppError values wrapping one of the
// sentinel errors below; the HTTP layer maps the sentinel to a status code
// with errors.Is and shows AppError.Message to the caller. Anything that is
// not an *AppError is treated as an internal failure and its text is never
// sent to the client.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
	ErrInternal   = errors.New("internal")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New returns an AppError of the given kind with a caller-facing message.
// kind should be one of the sentinel errors of this package.
func New(kind error, message string) *AppError {
	return &AppError{
		Err:     kind,
		Message: message,
	}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Internal returns an AppError for a failure the caller cannot act on.
// The message must be generic: the underlying cause is logged by whoever
// creates the error, not carried here.
func Internal(message string) *AppError {
	return &AppError{
		Err:     ErrInternal,
		Message: message,
	}
}
