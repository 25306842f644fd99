package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error codes. These are part of the HTTP error envelope, keep them stable.
const (
	CodeValidation  = "VALIDATION"
	CodeAuth        = "AUTH"
	CodeEntitlement = "ENTITLEMENT"
	CodeExtraction  = "EXTRACTION"
	CodeModel       = "MODEL"
	CodeWebhook     = "WEBHOOK"
	CodeConfig      = "CONFIG"
	CodeInternal    = "INTERNAL"
)

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("insufficient entitlement")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
	ErrExtraction   = errors.New("extraction failed")
	ErrModel        = errors.New("model call failed")
	ErrWebhook      = errors.New("webhook rejected")
	ErrConfig       = errors.New("invalid configuration")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewValidationError(message string) *AppError {
	return NewAppError(CodeValidation, message, ErrValidation)
}

func NewAuthError(message string) *AppError {
	return NewAppError(CodeAuth, message, ErrUnauthorized)
}

// EntitlementError is returned when an authenticated caller asks for more than their tier allows.
// Upgrade is a caller-facing hint on how to lift the limit.
type EntitlementError struct {
	Message string
	Upgrade string
}

func (e *EntitlementError) Error() string {
	return fmt.Sprintf("%s: %s", CodeEntitlement, e.Message)
}

func (e *EntitlementError) Is(target error) bool {
	return target == ErrForbidden
}

func NewEntitlementError(message, upgrade string) *EntitlementError {
	return &EntitlementError{Message: message, Upgrade: upgrade}
}

func NewWebhookError(message string, cause error) *AppError {
	if cause == nil {
		cause = ErrWebhook
	} else {
		cause = fmt.Errorf("%w: %w", ErrWebhook, cause)
	}
	return NewAppError(CodeWebhook, message, cause)
}

func NewConfigError(message string) *AppError {
	return NewAppError(CodeConfig, message, ErrConfig)
}
