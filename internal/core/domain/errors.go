package domain

import (
	"fmt"
	"net/http"
)

// ErrorCode represents categorized error types.
// These codes are stable and can be used for programmatic error handling.
type ErrorCode string

const (
	// ErrCodeNoAccess means role resolution matched nothing and no default
	// role is configured. User-visible, non-retryable.
	ErrCodeNoAccess ErrorCode = "no_access"

	// ErrCodeInvalidInput means a required mapped attribute (especially the
	// username) was absent or the resolved account is not usable.
	ErrCodeInvalidInput ErrorCode = "invalid_input"

	// ErrCodeCreationFailed means the user store rejected an account
	// creation or update. Terminal, never retried here.
	ErrCodeCreationFailed ErrorCode = "account_creation_failed"

	// ErrCodeValidation means a configuration failed validation on save.
	ErrCodeValidation ErrorCode = "validation_error"
)

// String returns the error code as a string.
func (c ErrorCode) String() string {
	return string(c)
}

// HTTPStatus returns the HTTP status code for this error code.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrCodeNoAccess:
		return http.StatusForbidden
	case ErrCodeInvalidInput, ErrCodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Title returns a user-friendly title for this error code.
func (c ErrorCode) Title() string {
	switch c {
	case ErrCodeNoAccess:
		return "Access Denied"
	case ErrCodeInvalidInput:
		return "Invalid Login Data"
	case ErrCodeCreationFailed:
		return "Account Provisioning Failed"
	case ErrCodeValidation:
		return "Invalid Configuration"
	default:
		return "Error"
	}
}

// AppError is a structured error with code, message, and optional cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NoAccessError creates a no_access error.
func NoAccessError() *AppError {
	return &AppError{
		Code:    ErrCodeNoAccess,
		Message: "You do not have sufficient access.",
	}
}

// InvalidInputError creates an invalid_input error.
func InvalidInputError(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidInput, Message: message}
}

// CreationError creates an account_creation_failed error with optional cause.
func CreationError(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeCreationFailed, Message: message, Cause: cause}
}

// ValidationError creates a validation_error.
func ValidationError(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

// JSONErrorResponse is the standard JSON error format for API endpoints.
type JSONErrorResponse struct {
	Error JSONErrorDetail `json:"error"`
}

// JSONErrorDetail contains error details.
type JSONErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewJSONErrorResponse creates a JSON error response from an AppError.
func NewJSONErrorResponse(err *AppError) JSONErrorResponse {
	return JSONErrorResponse{
		Error: JSONErrorDetail{
			Code:    err.Code.String(),
			Message: err.Message,
		},
	}
}
