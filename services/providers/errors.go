package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a failed provider attempt for the dispatch loop.
type ErrorKind string

const (
	// ErrKindRateLimited means the provider returned HTTP 429.
	ErrKindRateLimited ErrorKind = "rate_limited"

	// ErrKindTimeout means the attempt hit its deadline.
	ErrKindTimeout ErrorKind = "timeout"

	// ErrKindProvider covers every other provider-side failure: 4xx/5xx,
	// malformed responses, network errors.
	ErrKindProvider ErrorKind = "provider_error"

	// ErrKindConfiguration means the provider cannot be called at all
	// (missing credentials). Fatal, never retried on another provider.
	ErrKindConfiguration ErrorKind = "configuration_error"
)

// Error is the typed error returned by provider adapters.
type Error struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Provider that produced the error.
	Provider string

	// StatusCode is the HTTP status, when applicable.
	StatusCode int

	// Message is a human readable description.
	Message string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Unwrap implements error unwrapping.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewRateLimitError builds a rate-limit error for a provider.
func NewRateLimitError(provider string) *Error {
	return &Error{
		Kind:       ErrKindRateLimited,
		Provider:   provider,
		StatusCode: 429,
		Message:    "rate limit exceeded",
	}
}

// NewTimeoutError builds a timeout error for a provider.
func NewTimeoutError(provider string, cause error) *Error {
	return &Error{
		Kind:     ErrKindTimeout,
		Provider: provider,
		Message:  "request timed out",
		Cause:    cause,
	}
}

// NewProviderError builds a generic provider failure.
func NewProviderError(provider string, statusCode int, message string, cause error) *Error {
	return &Error{
		Kind:       ErrKindProvider,
		Provider:   provider,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}

// NewConfigurationError builds a fatal configuration error.
func NewConfigurationError(provider, message string) *Error {
	return &Error{
		Kind:     ErrKindConfiguration,
		Provider: provider,
		Message:  message,
	}
}

// KindOf extracts the error kind, classifying untyped errors on the way:
// context deadlines and net timeouts become ErrKindTimeout, everything else
// ErrKindProvider.
func KindOf(err error) ErrorKind {
	var provErr *Error
	if errors.As(err, &provErr) {
		return provErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrKindTimeout
	}
	return ErrKindProvider
}

// IsRetryable reports whether the dispatch loop may move on to the next
// provider after this error.
func IsRetryable(err error) bool {
	return KindOf(err) != ErrKindConfiguration
}
