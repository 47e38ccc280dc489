package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeDuplicate  ErrorType = "duplicate"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeExternal   ErrorType = "external"
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

// WithDetail adds a detail to the error
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

// NewValidationError creates a validation error carrying a client-facing message
func NewValidationError(message string) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, nil)
}

// NewNotFoundError creates a not found error carrying a client-facing message
func NewNotFoundError(message string) *DomainError {
	return NewDomainError(ErrorTypeNotFound, message, nil)
}

// NewDuplicateRuleError reports a policy rule id collision
func NewDuplicateRuleError(id string) *DomainError {
	return NewDomainError(ErrorTypeDuplicate, fmt.Sprintf("Rule with id '%s' already exists", id), nil).
		WithDetail("ruleId", id)
}

// NewRuleNotFoundError reports an unknown policy rule id
func NewRuleNotFoundError(id string) *DomainError {
	return NewDomainError(ErrorTypeNotFound, fmt.Sprintf("Rule '%s' not found", id), nil).
		WithDetail("ruleId", id)
}

// Error type checking helper functions

func hasType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool { return hasType(err, ErrorTypeNotFound) }

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool { return hasType(err, ErrorTypeValidation) }

// IsDuplicateError checks if an error is a duplicate rule error
func IsDuplicateError(err error) bool { return hasType(err, ErrorTypeDuplicate) }

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool { return hasType(err, ErrorTypeInternal) }

// IsExternalError checks if an error is an upstream provider error
func IsExternalError(err error) bool { return hasType(err, ErrorTypeExternal) }

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorMessage returns the client-facing message of a domain error, or err.Error() otherwise
func GetErrorMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal wraps an error as an upstream provider error
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}
