package services

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("no data found")
	ErrAuditWrite           = errors.New("audit write failed")
	ErrSerialization        = errors.New("serialization failed")
	ErrGeneratorUnavailable = errors.New("question generator unavailable")
	ErrConsentRequired      = errors.New("consent is required before candidate data is stored")
	ErrSessionNotFound      = errors.New("interview session not found")
	ErrSessionEnded         = errors.New("interview session has ended")
	ErrLockUnavailable      = errors.New("candidate lock unavailable")
)

// ValidationError reports a bad field value. Inside an interview it becomes a re-prompt.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
