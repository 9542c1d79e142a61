package errors

import (
	"errors"
	"fmt"
)

// Standard error types
var (
	ErrNotFound        = errors.New("resource not found")
	ErrBadRequest      = errors.New("bad request")
	ErrConflict        = errors.New("resource conflict")
	ErrInternal        = errors.New("internal error")
	ErrValidation      = errors.New("validation error")
	ErrDetectorFailure = errors.New("detector failure")
	ErrSessionNotFound = errors.New("verification session not found")
	ErrSessionExpired  = errors.New("verification session expired")
	ErrPatientLocked   = errors.New("patient locked out")
	ErrChainIntegrity  = errors.New("audit chain integrity violation")
)

// AppError represents an application error with context
type AppError struct {
	Err     error             `json:"-"`
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string) *AppError {
	return &AppError{
		Err:     err,
		Code:    code,
		Message: message,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found", resource),
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:     ErrBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Code:    "CONFLICT",
		Message: message,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:     ErrInternal,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Code:    "VALIDATION_ERROR",
		Message: "validation failed",
		Details: details,
	}
}

// DetectorFailure marks a detector as degraded. The pipeline maps these to
// fail-open or fail-closed behavior depending on the detector.
func DetectorFailure(detector string, err error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %v", ErrDetectorFailure, err),
		Code:    "DETECTOR_FAILURE",
		Message: fmt.Sprintf("%s detector failed", detector),
	}
}

func PatientLocked(minutesRemaining int) *AppError {
	return &AppError{
		Err:     ErrPatientLocked,
		Code:    "PATIENT_LOCKED",
		Message: fmt.Sprintf("patient locked out for %d more minutes", minutesRemaining),
	}
}

func ChainIntegrity(index int, eventID string) *AppError {
	return &AppError{
		Err:     ErrChainIntegrity,
		Code:    "CHAIN_INTEGRITY",
		Message: fmt.Sprintf("hash mismatch at event %d (id=%s)", index, eventID),
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
