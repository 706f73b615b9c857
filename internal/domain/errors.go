package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"

	// Retrieval stage failure classes. Only DIMENSION_MISMATCH and
	// MISSING_CREDENTIALS are fatal to a request; the rest degrade it.
	ErrCodeProviderTimeout     = "PROVIDER_TIMEOUT"
	ErrCodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	ErrCodeDimensionMismatch   = "DIMENSION_MISMATCH"
	ErrCodeNoNamespace         = "NO_NAMESPACE"
	ErrCodeNoGroupContext      = "NO_GROUP_CONTEXT"
	ErrCodeMissingCredentials  = "MISSING_CREDENTIALS"
)

// Validation errors
var (
	ErrMissingTwinID = NewDomainError(ErrCodeValidation, "missing twin id")
	ErrEmptyQuery    = NewDomainError(ErrCodeValidation, "query text cannot be empty")
)

// Not found errors
var (
	ErrTwinNotFound           = NewDomainError(ErrCodeNotFound, "twin not found")
	ErrVerifiedAnswerNotFound = NewDomainError(ErrCodeNotFound, "verified answer not found")
)

// Retrieval errors
var (
	ErrDimensionMismatch   = NewDomainError(ErrCodeDimensionMismatch, "embedding dimensions do not match the configured index")
	ErrProviderTimeout     = NewDomainError(ErrCodeProviderTimeout, "provider call timed out")
	ErrProviderUnavailable = NewDomainError(ErrCodeProviderUnavailable, "provider unavailable")
	ErrNoNamespaceResolved = NewDomainError(ErrCodeNoNamespace, "no namespace resolved for twin")
	ErrNoGroupContext      = NewDomainError(ErrCodeNoGroupContext, "requester has no resolvable group context")
	ErrMissingAPIKey       = NewDomainError(ErrCodeMissingCredentials, "embedding provider api key not configured")
)

// Fatal reports whether err is a configuration-class error that must be
// surfaced to the caller instead of degrading the request.
func Fatal(err error) bool {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	switch domainErr.Code {
	case ErrCodeDimensionMismatch, ErrCodeMissingCredentials:
		return true
	default:
		return false
	}
}
