// Package errors defines the structured error taxonomy of the matching
// engine. Exclusions (pairs filtered out during scoring) are not errors and
// live in the matching package; everything here represents a real failure.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// ErrorTypeTransientLookup covers profile/location fetches that timed
	// out or failed; the pair is skipped for the run and retried on the
	// next scheduled run.
	ErrorTypeTransientLookup ErrorType = "transient_lookup"
	// ErrorTypePersistence covers match cache upserts that failed; logged
	// with the pair key, processing continues.
	ErrorTypePersistence ErrorType = "persistence"
	// ErrorTypeConfiguration covers missing required dependencies; fatal to
	// the job, not to the process.
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeDatabase      ErrorType = "database"
	ErrorTypeCache         ErrorType = "cache"
	ErrorTypeNotification  ErrorType = "notification"
	ErrorTypeInternal      ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type          ErrorType              `json:"type"`
	Code          string                 `json:"code"`
	Message       string                 `json:"message"`
	Details       string                 `json:"details,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Cause         error                  `json:"-"` // Original error, not serialized
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// ToJSON converts the error to JSON format
func (e *AppError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// NewAppErrorWithCause creates a new application error with an underlying cause
func NewAppErrorWithCause(errorType ErrorType, code, message string, cause error) *AppError {
	err := NewAppError(errorType, code, message)
	err.Cause = cause
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// WithCorrelationID adds a correlation ID to the error
func (e *AppError) WithCorrelationID(correlationID string) *AppError {
	e.CorrelationID = correlationID
	return e
}

// WithMetadata adds metadata to the error
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Common error constructors

// NewTransientLookupError marks a bounded external read (profile, location)
// that failed or timed out for this run.
func NewTransientLookupError(source string, cause error) *AppError {
	return NewAppErrorWithCause(ErrorTypeTransientLookup, "TRANSIENT_LOOKUP_FAILURE",
		fmt.Sprintf("Lookup failed: %s", source), cause).
		WithMetadata("source", source)
}

// NewPersistenceError marks a failed match cache write, keyed by the pair it
// was writing.
func NewPersistenceError(userID, matchedUserID string, cause error) *AppError {
	return NewAppErrorWithCause(ErrorTypePersistence, "PERSISTENCE_FAILURE",
		"Match cache upsert failed", cause).
		WithMetadata("user_id", userID).
		WithMetadata("matched_user_id", matchedUserID)
}

// NewConfigurationError marks a missing required dependency. Jobs treat this
// as fatal and report zero progress.
func NewConfigurationError(message string) *AppError {
	return NewAppError(ErrorTypeConfiguration, "CONFIGURATION_ERROR", message)
}

// NewValidationError creates a validation error
func NewValidationError(field, message string) *AppError {
	return NewAppError(ErrorTypeValidation, "VALIDATION_ERROR", message).
		WithMetadata("field", field)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrorTypeNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource)).
		WithMetadata("resource", resource)
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *AppError {
	return NewAppErrorWithCause(ErrorTypeDatabase, "DATABASE_ERROR",
		fmt.Sprintf("Database operation failed: %s", operation), cause).
		WithMetadata("operation", operation)
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *AppError {
	return NewAppErrorWithCause(ErrorTypeCache, "CACHE_ERROR",
		fmt.Sprintf("Cache operation failed: %s", operation), cause).
		WithMetadata("operation", operation)
}

// NewNotificationError creates a notification transport error
func NewNotificationError(operation string, cause error) *AppError {
	return NewAppErrorWithCause(ErrorTypeNotification, "NOTIFICATION_ERROR",
		fmt.Sprintf("Notification dispatch failed: %s", operation), cause).
		WithMetadata("operation", operation)
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *AppError {
	return NewAppErrorWithCause(ErrorTypeInternal, "INTERNAL_ERROR", message, cause)
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// GetErrorType returns the error type if it's an AppError
func GetErrorType(err error) (ErrorType, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type, true
	}
	return "", false
}

// IsConfigurationError reports whether err should abort a job outright.
func IsConfigurationError(err error) bool {
	return IsErrorType(err, ErrorTypeConfiguration)
}
