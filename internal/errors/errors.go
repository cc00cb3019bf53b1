package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeUnauthenticated indicates there is no usable identity or backend session.
	ErrCodeUnauthenticated ErrorCode = "unauthenticated"
	// ErrCodeUnauthorized indicates the identity is known but its role is not accepted.
	ErrCodeUnauthorized ErrorCode = "unauthorized"
	// ErrCodeRoleFetchFailed indicates the role lookup failed; callers fail closed.
	ErrCodeRoleFetchFailed ErrorCode = "role_fetch_failed"
	// ErrCodeSessionEstablish indicates the backend session exchange failed (non-fatal).
	ErrCodeSessionEstablish ErrorCode = "session_establish_failed"
	// ErrCodeNetwork indicates a transport failure or an unavailable backend.
	ErrCodeNetwork ErrorCode = "network"
	// ErrCodeInvalidCredentials indicates the IdP rejected the submitted credentials.
	ErrCodeInvalidCredentials ErrorCode = "invalid_credentials"
	// ErrCodePopupClosed indicates the user abandoned the federated sign-in.
	ErrCodePopupClosed ErrorCode = "popup_closed"
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError with the given code.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Unauthenticated creates a new Unauthenticated error.
func Unauthenticated(message string) *AppError { return New(ErrCodeUnauthenticated, message) }

// Unauthorized creates a new Unauthorized error.
func Unauthorized(message string) *AppError { return New(ErrCodeUnauthorized, message) }

// InvalidCredentials creates a new InvalidCredentials error.
func InvalidCredentials(message string) *AppError { return New(ErrCodeInvalidCredentials, message) }

// PopupClosed creates a new PopupClosed error.
func PopupClosed(message string) *AppError { return New(ErrCodePopupClosed, message) }

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError { return New(ErrCodeNotFound, message) }

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf(format, args...))
}

// Validation creates a new Validation error.
func Validation(message string) *AppError { return New(ErrCodeValidation, message) }

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Field:   field,
	}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError { return New(ErrCodeInternal, message) }

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// WrapTransport marks a transport-level failure (dial, timeout, open circuit) as a
// Network error. Errors that already carry a code are returned unchanged.
func WrapTransport(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	return Wrap(err, ErrCodeNetwork, message)
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsUnauthenticated checks if an error is an Unauthenticated error.
func IsUnauthenticated(err error) bool { return isCode(err, ErrCodeUnauthenticated) }

// IsUnauthorized checks if an error is an Unauthorized error.
func IsUnauthorized(err error) bool { return isCode(err, ErrCodeUnauthorized) }

// IsRoleFetchFailed checks if an error is a RoleFetchFailed error.
func IsRoleFetchFailed(err error) bool { return isCode(err, ErrCodeRoleFetchFailed) }

// IsSessionEstablish checks if an error is a SessionEstablish error.
func IsSessionEstablish(err error) bool { return isCode(err, ErrCodeSessionEstablish) }

// IsNetwork checks if an error is a Network error.
func IsNetwork(err error) bool { return isCode(err, ErrCodeNetwork) }

// IsInvalidCredentials checks if an error is an InvalidCredentials error.
func IsInvalidCredentials(err error) bool { return isCode(err, ErrCodeInvalidCredentials) }

// IsPopupClosed checks if an error is a PopupClosed error.
func IsPopupClosed(err error) bool { return isCode(err, ErrCodePopupClosed) }

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool { return isCode(err, ErrCodeNotFound) }

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool { return isCode(err, ErrCodeValidation) }

// IsInternal checks if an error is an Internal error.
func IsInternal(err error) bool { return isCode(err, ErrCodeInternal) }

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
