// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All errors crossing the domain boundary should use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal      = "INTERNAL_ERROR"
	CodeDatabase      = "DATABASE_ERROR"
	CodeConfiguration = "CONFIGURATION_ERROR"
	CodeDataIntegrity = "DATA_INTEGRITY_VIOLATION"

	// Validation errors (400)
	CodeValidation = "VALIDATION_ERROR"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict   = "CONFLICT"
	CodeDuplicate  = "DUPLICATE_ENTRY"
	CodeContention = "CONTENTION"
)

// AppError is the standard error type for the module.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (table, column, attempts, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewConfiguration creates a setup-time configuration error.
// It is never retried: the process must not start with a broken sequence definition.
func NewConfiguration(message string) *AppError {
	return &AppError{
		Code:       CodeConfiguration,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewContention creates an error for lock wait timeouts, deadlocks and exhausted
// optimistic retries. The enclosing write failed and may be retried as a whole.
func NewContention(table string) *AppError {
	return &AppError{
		Code:       CodeContention,
		Message:    "Concurrent writers are contending for the sequence. Please retry.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"table": table},
	}
}

// NewDataIntegrity creates a non-retryable error that requires data cleanup.
func NewDataIntegrity(message string) *AppError {
	return &AppError{
		Code:       CodeDataIntegrity,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewDuplicate creates a duplicate entry error (409)
func NewDuplicate(entity, field, value string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// HasCode reports whether the first AppError in the chain carries code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsDuplicate checks if error is CodeDuplicate
func IsDuplicate(err error) bool {
	return HasCode(err, CodeDuplicate)
}

// IsContention checks if error is CodeContention
func IsContention(err error) bool {
	return HasCode(err, CodeContention)
}

// IsDataIntegrity checks if error is CodeDataIntegrity
func IsDataIntegrity(err error) bool {
	return HasCode(err, CodeDataIntegrity)
}

// IsConfiguration checks if error is CodeConfiguration
func IsConfiguration(err error) bool {
	return HasCode(err, CodeConfiguration)
}
