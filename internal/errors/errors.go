// Package errors provides error codes shared by the sync core and the host
// bridges (FFI and desktop API), so callers can branch on a stable code
// instead of matching messages.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique error code that can be bridged to the host app.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrConfig     ErrorCode = "CONFIG_INVALID"

	// Local persistence errors
	ErrDatabase  ErrorCode = "DATABASE_ERROR"
	ErrMigration ErrorCode = "MIGRATION_FAILED"
	ErrStore     ErrorCode = "STORE_ERROR"

	// Remote gateway errors
	ErrUnauthenticated    ErrorCode = "UNAUTHENTICATED"
	ErrGatewayConflict    ErrorCode = "GATEWAY_CONFLICT"
	ErrGatewayRejected    ErrorCode = "GATEWAY_REJECTED"
	ErrGatewayUnavailable ErrorCode = "GATEWAY_UNAVAILABLE"

	// Sync errors
	ErrOffline        ErrorCode = "OFFLINE"
	ErrSyncFailed     ErrorCode = "SYNC_FAILED"
	ErrSyncInProgress ErrorCode = "SYNC_IN_PROGRESS"

	// Location errors
	ErrPermission     ErrorCode = "PERMISSION_DENIED"
	ErrLocationFailed ErrorCode = "LOCATION_FAILED"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is reports whether any AppError in err's chain carries code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	for err != nil {
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// CodeOf returns the code of the outermost AppError in err's chain, or
// ErrInternal when err carries none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}
