// Package dto defines API request/response types and error handling.
//
// Every response uses the same envelope: {"success":true,"data":...} on
// success and {"success":false,"error":"...","code":"..."} on failure.
// Failures also carry an HTTP status code.
//
// Error handling follows a structured pattern:
//   - ErrorCode provides machine-readable error classification
//   - APIError wraps errors with HTTP status codes and details
//   - Constructor functions (NotFound, BadRequest, etc.) create common errors
package dto

import (
	"fmt"
	"maps"
	"net/http"
	"strconv"
)

// ErrorCode defines specific error types for the API.
type ErrorCode string

const (
	// ErrorCodeValidationFailed is returned when input data fails validation.
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrorCodeMissingField is returned when a required field is missing.
	ErrorCodeMissingField ErrorCode = "MISSING_FIELD"
	// ErrorCodeInvalidFormat is returned when a field has an invalid format.
	ErrorCodeInvalidFormat ErrorCode = "INVALID_FORMAT"

	// ErrorCodeTableNotFound is returned when a table is not found.
	ErrorCodeTableNotFound ErrorCode = "TABLE_NOT_FOUND"
	// ErrorCodeInvalidRecord is returned when a record is not a JSON object or
	// holds a value that is neither text nor a number.
	ErrorCodeInvalidRecord ErrorCode = "INVALID_RECORD"
	// ErrorCodeInvalidKey is returned when an upsert has no usable key.
	ErrorCodeInvalidKey ErrorCode = "INVALID_KEY"
	// ErrorCodeUnknownAction is returned for an unrecognized write action.
	ErrorCodeUnknownAction ErrorCode = "UNKNOWN_ACTION"

	// ErrorCodeStorageError is returned when a storage operation fails.
	ErrorCodeStorageError ErrorCode = "STORAGE_ERROR"
	// ErrorCodeInternal is returned when an unexpected server error occurs.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrorCodeNotImplemented is returned when a feature is disabled.
	ErrorCodeNotImplemented ErrorCode = "NOT_IMPLEMENTED"
	// ErrorCodeUnauthorized is returned when authentication is missing or invalid.
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrorCodePayloadTooLarge is returned when the request body is too big.
	ErrorCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
	// ErrorCodeRateLimitExceeded is returned when a client is throttled.
	ErrorCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
)

// ErrorWithStatus is an error that includes an HTTP status code and error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
	Details() map[string]any
}

// APIError is a concrete error type with status code and optional details.
type APIError struct {
	statusCode int
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// NewAPIError creates a new APIError with the given status code and message.
func NewAPIError(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{
		statusCode: statusCode,
		code:       code,
		message:    message,
	}
}

// WithDetails adds details to the error.
func (e *APIError) WithDetails(details map[string]any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	maps.Copy(e.details, details)
	return e
}

// WithDetail adds a single detail to the error.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *APIError) Wrap(err error) *APIError {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// StatusCode returns the HTTP status code.
func (e *APIError) StatusCode() int {
	return e.statusCode
}

// Code returns the error code.
func (e *APIError) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *APIError) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *APIError) Unwrap() error {
	return e.wrappedErr
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeValidationFailed, message)
}

// MissingField creates a 400 Bad Request error for a missing field.
func MissingField(fieldName string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeMissingField, "Missing required field: "+fieldName).
		WithDetail("field", fieldName)
}

// InvalidField creates a 400 Bad Request error for a malformed field.
func InvalidField(fieldName, reason string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeInvalidFormat, "Invalid "+fieldName+": "+reason).
		WithDetail("field", fieldName)
}

// TableNotFound creates a 404 error for an unknown table.
func TableNotFound(table string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrorCodeTableNotFound, "table not found: "+table).
		WithDetail("table", table)
}

// InvalidRecord creates a 400 error for a record that cannot be stored.
func InvalidRecord(err error) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeInvalidRecord, "invalid record").Wrap(err)
}

// InvalidKey creates a 400 error for an upsert without a usable key.
func InvalidKey(err error) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeInvalidKey, "invalid key").Wrap(err)
}

// UnknownAction creates a 400 error for an unrecognized write action.
func UnknownAction(action string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeUnknownAction, "Unknown action: "+action).
		WithDetail("action", action)
}

// Unauthorized returns a 401 Unauthorized error.
func Unauthorized() *APIError {
	return NewAPIError(http.StatusUnauthorized, ErrorCodeUnauthorized, "Unauthorized")
}

// PayloadTooLarge creates a 413 error for a request body above limit bytes.
func PayloadTooLarge(limit int64) *APIError {
	return NewAPIError(http.StatusRequestEntityTooLarge, ErrorCodePayloadTooLarge,
		"request body exceeds "+strconv.FormatInt(limit, 10)+" bytes").
		WithDetail("limit", limit)
}

// RateLimitExceeded creates a 429 error.
func RateLimitExceeded(retryAfter int) *APIError {
	return NewAPIError(http.StatusTooManyRequests, ErrorCodeRateLimitExceeded, "rate limit exceeded").
		WithDetail("retry_after", retryAfter)
}

// NotImplemented creates a 501 error for a disabled feature.
func NotImplemented(feature string) *APIError {
	return NewAPIError(http.StatusNotImplemented, ErrorCodeNotImplemented, feature+" is disabled")
}

// StorageError creates a 500 error for a failed storage operation.
func StorageError(err error) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrorCodeStorageError, "storage error").Wrap(err)
}

// Internal returns a 500 Internal Server Error.
func Internal(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrorCodeInternal, message)
}

// InternalWithError creates a 500 error wrapping an underlying error.
func InternalWithError(message string, err error) *APIError {
	return Internal(message).Wrap(err)
}
