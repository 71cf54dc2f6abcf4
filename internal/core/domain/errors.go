package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedProvider indicates no provider is registered for a platform type
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrUnsupportedFetchMode indicates the provider cannot serve the requested fetch mode
	ErrUnsupportedFetchMode = errors.New("unsupported fetch mode")

	// ErrUnsupportedAuthType indicates the provider cannot use the configured auth type
	ErrUnsupportedAuthType = errors.New("unsupported auth type")

	// ErrLockTimeout indicates a per-configuration lock could not be acquired in time
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrMalformedTrigger indicates an inbound trigger payload could not be decoded
	ErrMalformedTrigger = errors.New("malformed trigger message")
)

// Provider error kinds. A *ProviderError matches exactly one of these with errors.Is.
var (
	ErrAuthenticationFailure = errors.New("authentication failure")
	ErrRateLimited           = errors.New("rate limited")
	ErrTransientNetwork      = errors.New("transient network failure")
	ErrMalformedResponse     = errors.New("malformed response")
	ErrCVDownloadFailure     = errors.New("cv download failure")
	ErrSecurityViolation     = errors.New("security violation")
)

// ErrorKind classifies a failure for propagation and reporting.
type ErrorKind string

const (
	ErrorKindAuthentication ErrorKind = "authentication_failure"
	ErrorKindRateLimited    ErrorKind = "rate_limited"
	ErrorKindTransient      ErrorKind = "transient_network_failure"
	ErrorKindMalformed      ErrorKind = "malformed_response"
	ErrorKindCVDownload     ErrorKind = "cv_download_failure"
	ErrorKindSecurity       ErrorKind = "security_violation"
	ErrorKindConfiguration  ErrorKind = "configuration"
	ErrorKindInternal       ErrorKind = "internal"
)

func (k ErrorKind) sentinel() error {
	switch k {
	case ErrorKindAuthentication:
		return ErrAuthenticationFailure
	case ErrorKindRateLimited:
		return ErrRateLimited
	case ErrorKindTransient:
		return ErrTransientNetwork
	case ErrorKindMalformed:
		return ErrMalformedResponse
	case ErrorKindCVDownload:
		return ErrCVDownloadFailure
	case ErrorKindSecurity:
		return ErrSecurityViolation
	default:
		return nil
	}
}

// ProviderError is returned by providers and the API client for any failed
// outbound call. Sample holds a truncated response body for malformed payloads.
type ProviderError struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Sample     string
	Err        error
}

// NewProviderError creates a ProviderError of the given kind.
func NewProviderError(kind ErrorKind, op string, err error) *ProviderError {
	return &ProviderError{Kind: kind, Op: op, Err: err}
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *ProviderError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf classifies any error into an ErrorKind.
// Deadline and network timeouts are transient; everything unknown is internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	switch {
	case errors.Is(err, ErrUnsupportedProvider),
		errors.Is(err, ErrUnsupportedFetchMode),
		errors.Is(err, ErrUnsupportedAuthType),
		errors.Is(err, ErrInvalidInput):
		return ErrorKindConfiguration
	case errors.Is(err, ErrLockTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorKindTransient
	}
	return ErrorKindInternal
}

// IsRetryable reports whether the same call may be retried within an attempt.
func IsRetryable(err error) bool {
	return KindOf(err) == ErrorKindTransient
}
