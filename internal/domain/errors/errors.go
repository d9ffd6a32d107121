// Package errors provides domain-specific errors for the cropcare application.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common domain error conditions.
var (
	ErrValidation                = errors.New("validation failed")
	ErrNotFound                  = errors.New("not found")
	ErrTransientNetwork          = errors.New("network unavailable")
	ErrOffline                   = errors.New("device is offline")
	ErrRateLimited               = errors.New("rate limited")
	ErrQuotaExceeded             = errors.New("quota exceeded")
	ErrServiceError              = errors.New("service error")
	ErrStorageQuotaExceeded      = errors.New("local storage quota exceeded")
	ErrPermanentOperationFailure = errors.New("operation exceeded retry ceiling")
	ErrUpload                    = errors.New("image upload failed")
	ErrCamera                    = errors.New("camera unavailable")
	ErrSessionExpired            = errors.New("session expired")
	ErrUnauthorized              = errors.New("not authenticated")
	ErrConfiguration             = errors.New("invalid configuration")
)

// ErrorCode categorizes errors for handling and reporting.
type ErrorCode string

const (
	CodeValidation       ErrorCode = "VALIDATION"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeConfiguration    ErrorCode = "CONFIG"
	CodeNetwork          ErrorCode = "NETWORK"
	CodeRateLimited      ErrorCode = "RATE_LIMITED"
	CodeQuotaExceeded    ErrorCode = "QUOTA_EXCEEDED"
	CodeService          ErrorCode = "SERVICE"
	CodeStorageQuota     ErrorCode = "STORAGE_QUOTA"
	CodePermanentFailure ErrorCode = "PERMANENT_FAILURE"
	CodeUpload           ErrorCode = "UPLOAD"
	CodeCamera           ErrorCode = "CAMERA"
	CodeAuth             ErrorCode = "AUTH"
)

// codeSentinels lets errors.Is match a CropcareError against the sentinel for its code.
var codeSentinels = map[ErrorCode]error{
	CodeValidation:       ErrValidation,
	CodeNotFound:         ErrNotFound,
	CodeConfiguration:    ErrConfiguration,
	CodeNetwork:          ErrTransientNetwork,
	CodeRateLimited:      ErrRateLimited,
	CodeQuotaExceeded:    ErrQuotaExceeded,
	CodeService:          ErrServiceError,
	CodeStorageQuota:     ErrStorageQuotaExceeded,
	CodePermanentFailure: ErrPermanentOperationFailure,
	CodeUpload:           ErrUpload,
	CodeCamera:           ErrCamera,
	CodeAuth:             ErrUnauthorized,
}

// CropcareError wraps errors with additional context for debugging and handling.
type CropcareError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error returns a formatted error string including the code, message, and cause if present.
func (e *CropcareError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for use with errors.Is and errors.As.
func (e *CropcareError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel error associated with this error's code.
func (e *CropcareError) Is(target error) bool {
	sentinel, ok := codeSentinels[e.Code]
	return ok && sentinel == target
}

// NewError creates a new CropcareError with the given code, message, and optional cause.
func NewError(code ErrorCode, message string, cause error) *CropcareError {
	return &CropcareError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// WithContext adds a key-value pair to the error's context and returns the error.
func WithContext(err *CropcareError, key string, value any) *CropcareError {
	if err.Context == nil {
		err.Context = make(map[string]any)
	}
	err.Context[key] = value
	return err
}

// Is reports whether err matches target using errors.Is semantics.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// CodeOf returns the code of the first CropcareError in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var ce *CropcareError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsTransient reports whether err is a connectivity failure worth retrying later.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientNetwork) || errors.Is(err, ErrOffline)
}

// Validation is shorthand for a VALIDATION error without a cause.
func Validation(format string, args ...any) *CropcareError {
	return NewError(CodeValidation, fmt.Sprintf(format, args...), nil)
}

// UserMessage returns the text shown to a farmer for an interactive failure.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return "Too many requests right now. Please wait a moment and try again."
	case errors.Is(err, ErrQuotaExceeded):
		return "The AI service quota has been used up. Please try again later or contact support."
	case errors.Is(err, ErrOffline), errors.Is(err, ErrTransientNetwork):
		return "You appear to be offline. Check your connection and try again."
	case errors.Is(err, ErrUpload):
		return "The photo could not be uploaded. Please try again."
	case errors.Is(err, ErrCamera):
		return "The camera could not be used. Check camera access and try again."
	case errors.Is(err, ErrSessionExpired), errors.Is(err, ErrUnauthorized):
		return "Your session has expired. Please sign in again."
	case errors.Is(err, ErrValidation):
		return "Please check your input and try again."
	default:
		return "Something went wrong. Please try again."
	}
}
