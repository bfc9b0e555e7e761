// Package errors defines custom error types and error handling utilities for the
// SentinelIQ risk decision engine. Errors carry a stable code, an HTTP status for
// the thin API surface, and optional metadata for structured logging.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sentineliq/riskd/pkg/constants"
)

// AppError represents a structured application error.
type AppError struct {
	code       constants.ErrorCode
	httpStatus int
	message    string
	cause      error
	metadata   map[string]interface{}
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the stable error code.
func (e *AppError) Code() constants.ErrorCode {
	return e.code
}

// HTTPStatus returns the HTTP status code for this error.
func (e *AppError) HTTPStatus() int {
	return e.httpStatus
}

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause attaches an underlying error.
func (e *AppError) WithCause(cause error) *AppError {
	clone := *e
	clone.cause = cause
	return &clone
}

// WithMetadata attaches a key/value pair of additional context.
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	clone := *e
	clone.metadata = make(map[string]interface{}, len(e.metadata)+1)
	for k, v := range e.metadata {
		clone.metadata[k] = v
	}
	clone.metadata[key] = value
	return &clone
}

// Metadata returns all attached metadata.
func (e *AppError) Metadata() map[string]interface{} {
	return e.metadata
}

// New creates a new AppError with the specified parameters.
func New(code constants.ErrorCode, httpStatus int, message string) *AppError {
	return &AppError{
		code:       code,
		httpStatus: httpStatus,
		message:    message,
	}
}

// ================================================================================
// Domain-Specific Error Constructors
// ================================================================================

// ErrInvalidEvent reports a malformed or incomplete inbound event.
func ErrInvalidEvent(message string) *AppError {
	return New(constants.ErrCodeInvalidEvent, http.StatusBadRequest, message)
}

// ErrMissingField reports a missing required event field.
func ErrMissingField(field string) *AppError {
	return ErrInvalidEvent(fmt.Sprintf("missing required field: %s", field)).
		WithMetadata("field", field)
}

// ErrStoreUnavailable reports that a backing key-value store could not be reached.
// Callers on the decision hot path must treat this as a fail-open condition.
func ErrStoreUnavailable(store string, cause error) *AppError {
	return New(constants.ErrCodeStoreUnavailable, http.StatusServiceUnavailable,
		fmt.Sprintf("%s store unavailable", store)).
		WithCause(cause).
		WithMetadata("store", store)
}

// ErrLedgerAppend reports a failed audit ledger append. Unlike store errors this
// must propagate to the caller: a decision without an audit record is invalid.
func ErrLedgerAppend(cause error) *AppError {
	return New(constants.ErrCodeLedgerAppend, http.StatusInternalServerError,
		"audit ledger append failed").WithCause(cause)
}

// ErrLedgerIntegrity reports a hash-chain mismatch found during verification.
func ErrLedgerIntegrity(sequence uint64) *AppError {
	return New(constants.ErrCodeLedgerIntegrity, http.StatusConflict,
		fmt.Sprintf("ledger hash mismatch at sequence %d", sequence)).
		WithMetadata("sequence", sequence)
}

// ErrEvaluation reports an unexpected failure inside rule evaluation. The
// orchestrator converts this into the fixed fail-open decision at its boundary.
func ErrEvaluation(cause error) *AppError {
	return New(constants.ErrCodeEvaluation, http.StatusInternalServerError,
		"rule evaluation failed").WithCause(cause)
}

// ErrInternal reports an unclassified internal error.
func ErrInternal(message string) *AppError {
	return New(constants.ErrCodeInternal, http.StatusInternalServerError, message)
}

// ErrNotFound reports a missing resource.
func ErrNotFound(resource string) *AppError {
	return New(constants.ErrCodeNotFound, http.StatusNotFound,
		fmt.Sprintf("%s not found", resource)).
		WithMetadata("resource", resource)
}

// ErrEvaluationInProgress reports that another worker holds the idempotency lease.
func ErrEvaluationInProgress(key string) *AppError {
	return New(constants.ErrCodeConflict, http.StatusConflict,
		fmt.Sprintf("evaluation already in progress for key %s", key)).
		WithMetadata("idempotency_key", key)
}

// ================================================================================
// Error Inspection Utilities
// ================================================================================

// AsAppError attempts to extract an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode checks whether err carries the given error code.
func IsCode(err error, code constants.ErrorCode) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code() == code
	}
	return false
}

// IsTransient checks if an error represents a recoverable infrastructure failure.
func IsTransient(err error) bool {
	return IsCode(err, constants.ErrCodeStoreUnavailable)
}

// ================================================================================
// Error Response Builder
// ================================================================================

// ErrorResponse is the JSON structure for error responses on the API surface.
type ErrorResponse struct {
	Error            string                 `json:"error"`
	ErrorDescription string                 `json:"error_description"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// ToErrorResponse converts any error to an ErrorResponse.
func ToErrorResponse(err error) *ErrorResponse {
	if appErr, ok := AsAppError(err); ok {
		return &ErrorResponse{
			Error:            string(appErr.Code()),
			ErrorDescription: appErr.Error(),
			Metadata:         appErr.Metadata(),
		}
	}
	return &ErrorResponse{
		Error:            string(constants.ErrCodeInternal),
		ErrorDescription: "an unexpected error occurred",
	}
}
