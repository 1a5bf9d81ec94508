// Package apperror defines the domain error taxonomy shared by all
// services. Handlers translate these into HTTP status codes in exactly
// one place (handler.writeError); services never import net/http.
package apperror

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
	ErrTooLarge     = errors.New("payload too large")
)

type AppError struct {
	Err     error  // sentinel the handler switches on
	Message string // Human-readable error message
	Field   string // Optional: field causing the error

	// RetryAfter is set for rate-limited errors: the remaining
	// cooldown before the operation may be retried.
	RetryAfter time.Duration
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource string, id uint64) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %d", resource, id),
	}
}

// NotFoundNamed is NotFound for entities addressed by something other
// than a numeric id (e.g. an unverified account looked up by email).
func NotFoundNamed(resource string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource string, id uint64) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %d", resource, id),
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

// Unauthorized covers not-logged-in and invalid or expired tokens.
// The message stays vague on purpose: responses never distinguish a
// wrong password from an unknown account.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// RateLimited carries the remaining wait so clients can back off for
// exactly the right duration rather than guessing.
func RateLimited(remaining time.Duration) *AppError {
	return &AppError{
		Err:        ErrRateLimited,
		Message:    fmt.Sprintf("request too frequent, try after %s", remaining),
		RetryAfter: remaining,
	}
}

func PayloadTooLarge(limit int64) *AppError {
	return &AppError{
		Err:     ErrTooLarge,
		Message: fmt.Sprintf("payload exceeds the %d byte limit", limit),
	}
}
