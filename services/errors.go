package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the kind of failure, independent of which provider
// or component produced it
type ErrorType string

const (
	ErrorTypeMissingCredential   ErrorType = "missing_credential"
	ErrorTypeInvalidCredential   ErrorType = "invalid_credential"
	ErrorTypeRateLimited         ErrorType = "rate_limited"
	ErrorTypeBadRequest          ErrorType = "bad_request"
	ErrorTypeModelNotFound       ErrorType = "model_not_found"
	ErrorTypeUpstreamUnavailable ErrorType = "upstream_unavailable"
	ErrorTypeJobNotFound         ErrorType = "job_not_found"
	ErrorTypeUnknownProvider     ErrorType = "unknown_provider"
	ErrorTypeUnknown             ErrorType = "unknown"
)

// DomainError represents a classified error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError of the same kind, so the sentinels below work
// with errors.Is regardless of message.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Retryable reports whether the caller may retry the same request unchanged
func (e *DomainError) Retryable() bool {
	return e.Type == ErrorTypeRateLimited || e.Type == ErrorTypeUpstreamUnavailable
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Sentinels for errors.Is checks. Never mutate these; use NewDomainError to
// build an instance that carries details.
var (
	ErrMissingCredential   = NewDomainError(ErrorTypeMissingCredential, "credential required", nil)
	ErrInvalidCredential   = NewDomainError(ErrorTypeInvalidCredential, "invalid credential", nil)
	ErrRateLimited         = NewDomainError(ErrorTypeRateLimited, "rate limited by provider", nil)
	ErrBadRequest          = NewDomainError(ErrorTypeBadRequest, "bad request", nil)
	ErrModelNotFound       = NewDomainError(ErrorTypeModelNotFound, "model not found", nil)
	ErrUpstreamUnavailable = NewDomainError(ErrorTypeUpstreamUnavailable, "provider unavailable", nil)
	ErrJobNotFound         = NewDomainError(ErrorTypeJobNotFound, "job not found", nil)
	ErrUnknownProvider     = NewDomainError(ErrorTypeUnknownProvider, "unknown provider", nil)
	ErrUnknown             = NewDomainError(ErrorTypeUnknown, "unknown error", nil)
)

// KindOf returns the ErrorType of a domain error. Errors that were never
// classified report ErrorTypeUnknown; nil reports the empty type.
func KindOf(err error) ErrorType {
	if err == nil {
		return ""
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ErrorTypeUnknown
}

// IsRetryable checks if an error is safe to retry after backoff
func IsRetryable(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Retryable()
	}
	return false
}

// IsCredentialError checks if an error requires the caller to supply or
// re-enter a credential
func IsCredentialError(err error) bool {
	kind := KindOf(err)
	return kind == ErrorTypeMissingCredential || kind == ErrorTypeInvalidCredential
}

// IsNotFoundError checks if the error refers to something that does not exist
func IsNotFoundError(err error) bool {
	switch KindOf(err) {
	case ErrorTypeJobNotFound, ErrorTypeUnknownProvider, ErrorTypeModelNotFound:
		return true
	}
	return false
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// Summary returns a human-readable detail string for err without the kind
// prefix. Foreign errors are returned verbatim.
func Summary(err error) string {
	if err == nil {
		return ""
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		if domainErr.Err != nil {
			return fmt.Sprintf("%s: %v", domainErr.Message, domainErr.Err)
		}
		return domainErr.Message
	}
	return err.Error()
}

// Classify wraps a foreign error as ErrorTypeUnknown. Errors that are already
// classified are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	return NewDomainError(ErrorTypeUnknown, "unclassified error", err)
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// BadRequest builds a bad_request error with a formatted message
func BadRequest(format string, args ...interface{}) *DomainError {
	return NewDomainError(ErrorTypeBadRequest, fmt.Sprintf(format, args...), nil)
}
