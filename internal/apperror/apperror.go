// Package apperror defines the typed failures that services return and the
// request layer maps to HTTP responses.
//
// ERROR TAXONOMY:
//
//	ErrValidation   → 400 (malformed or empty input)
//	ErrUnauthorized → 401 (missing/expired token, wrong password)
//	ErrForbidden    → 403 (authenticated but lacking role or ownership)
//	ErrNotFound     → 404 (absent, or filtered to appear absent)
//	ErrConflict     → 409 (uniqueness violation)
//
// Anything that does not wrap one of these sentinels is a server error.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
)

type AppError struct {
	Err     error  // sentinel this error wraps
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound reports a missing entity. id is formatted with %v so both
// integer keys and slugs/names read naturally.
func NotFound(resource string, id any) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %v", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Unauthorized is returned for bad credentials and wrong library passwords.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Conflict reports a uniqueness violation on the named field.
func Conflict(resource, field string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s with this %s already exists", resource, field),
		Field:   field,
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
