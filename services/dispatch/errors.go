package dispatch

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a terminal dispatch failure.
type ErrorKind string

const (
	// ErrKindAllExhausted means every eligible provider, including the
	// secondary, failed. The last provider error is carried as the cause.
	ErrKindAllExhausted ErrorKind = "all_providers_exhausted"

	// ErrKindConfiguration means dispatch could not run at all: no eligible
	// providers, missing credentials, or an unusable translation setup.
	ErrKindConfiguration ErrorKind = "configuration_error"
)

// Error is the terminal error returned by the dispatcher.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap implements error unwrapping.
func (e *Error) Unwrap() error {
	return e.Cause
}

// newAllExhaustedError wraps the last provider error after the ladder and
// the secondary have both been tried.
func newAllExhaustedError(lastErr error) *Error {
	return &Error{
		Kind:    ErrKindAllExhausted,
		Message: "all providers exhausted",
		Cause:   lastErr,
	}
}

// newConfigurationError builds a fatal configuration error.
func newConfigurationError(message string, cause error) *Error {
	return &Error{
		Kind:    ErrKindConfiguration,
		Message: message,
		Cause:   cause,
	}
}

// IsAllExhausted reports whether err is a terminal exhaustion error.
func IsAllExhausted(err error) bool {
	var dispErr *Error
	return errors.As(err, &dispErr) && dispErr.Kind == ErrKindAllExhausted
}

// IsConfiguration reports whether err is a fatal configuration error.
func IsConfiguration(err error) bool {
	var dispErr *Error
	return errors.As(err, &dispErr) && dispErr.Kind == ErrKindConfiguration
}
