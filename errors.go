package caddyshib

import (
	"github.com/bshelton229/caddy-shibboleth/internal/core/domain"
)

// Re-export error types from the domain package
type ErrorCode = domain.ErrorCode
type AppError = domain.AppError
type JSONErrorResponse = domain.JSONErrorResponse
type JSONErrorDetail = domain.JSONErrorDetail

// Re-export error code constants
const (
	ErrCodeNoAccess       = domain.ErrCodeNoAccess
	ErrCodeInvalidInput   = domain.ErrCodeInvalidInput
	ErrCodeCreationFailed = domain.ErrCodeCreationFailed
	ErrCodeValidation     = domain.ErrCodeValidation
)

// Re-export error constructors
var (
	NoAccessError        = domain.NoAccessError
	InvalidInputError    = domain.InvalidInputError
	CreationError        = domain.CreationError
	ValidationError      = domain.ValidationError
	NewJSONErrorResponse = domain.NewJSONErrorResponse
)
