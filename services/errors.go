package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeBadRequest         ErrorType = "bad_request"
	ErrorTypeValidation         ErrorType = "validation"
	ErrorTypeInvalidCredentials ErrorType = "invalid_credentials"
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeUnauthorized       ErrorType = "unauthorized"
	ErrorTypeInvalidToken       ErrorType = "invalid_token"
	ErrorTypeTokenRevoked       ErrorType = "token_revoked"
	ErrorTypeRateLimit          ErrorType = "rate_limit"
	ErrorTypeConflict           ErrorType = "conflict"
	ErrorTypeInternal           ErrorType = "internal"
)

// DomainError represents a structured error with additional context
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

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error.
// Call it on errors built with NewDomainError, never on the shared variables below.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
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

// Domain error variables

var (
	// Bad Request Errors
	ErrMissingCredentials  = NewDomainError(ErrorTypeBadRequest, "Email and password are required", nil)
	ErrMissingRefreshToken = NewDomainError(ErrorTypeBadRequest, "Refresh token is required", nil)
	ErrPasswordTooLong     = NewDomainError(ErrorTypeBadRequest, "Password must be at most 72 bytes", nil)

	// Validation Errors
	ErrInvalidInput = NewDomainError(ErrorTypeValidation, "invalid input", nil)

	// Authentication Errors
	ErrInvalidCredentials = NewDomainError(ErrorTypeInvalidCredentials, "Invalid email or password", nil)
	ErrUnauthorized       = NewDomainError(ErrorTypeUnauthorized, "Unauthorized", nil)
	ErrInvalidToken       = NewDomainError(ErrorTypeInvalidToken, "Invalid token", nil)
	ErrInvalidRefresh     = NewDomainError(ErrorTypeInvalidToken, "Invalid refresh token", nil)
	ErrTokenRevoked       = NewDomainError(ErrorTypeTokenRevoked, "Token has been revoked", nil)

	// Not Found Errors
	ErrUserNotFound = NewDomainError(ErrorTypeNotFound, "user not found", nil)

	// Rate Limit Errors
	ErrRateLimitExceeded = NewDomainError(ErrorTypeRateLimit, "Too many requests, please try again later", nil)

	// Conflict Errors
	ErrDuplicateEmail = NewDomainError(ErrorTypeConflict, "User already exists", nil)

	// Internal Errors
	ErrInternal = NewDomainError(ErrorTypeInternal, "internal server error", nil)
)

// Error type checking helper functions

func hasType(err error, types ...ErrorType) bool {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	for _, t := range types {
		if domainErr.Type == t {
			return true
		}
	}
	return false
}

// IsBadRequestError checks if an error is a missing-input error
func IsBadRequestError(err error) bool {
	return hasType(err, ErrorTypeBadRequest)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsInvalidCredentialsError checks if an error is a failed credential check
func IsInvalidCredentialsError(err error) bool {
	return hasType(err, ErrorTypeInvalidCredentials)
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return hasType(err, ErrorTypeUnauthorized)
}

// IsInvalidTokenError reports failed verification, refresh mismatch, or revocation
func IsInvalidTokenError(err error) bool {
	return hasType(err, ErrorTypeInvalidToken, ErrorTypeTokenRevoked)
}

// IsTokenRevokedError checks if an error is a revoked access token
func IsTokenRevokedError(err error) bool {
	return hasType(err, ErrorTypeTokenRevoked)
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	return hasType(err, ErrorTypeRateLimit)
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return hasType(err, ErrorTypeConflict)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorMessage returns the client-safe message of a domain error, or empty string otherwise
func GetErrorMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapInvalidToken keeps the verification cause while presenting the generic token message
func WrapInvalidToken(base *DomainError, cause error) error {
	return NewDomainError(base.Type, base.Message, cause)
}
