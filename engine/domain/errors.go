package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrParse               = errors.New("unparseable model output")
	ErrCollaboratorTimeout = errors.New("collaborator timed out")
	ErrValidation          = errors.New("validation failed")
	ErrEmptyMessage        = errors.New("message is empty")
	ErrMessageTooLong      = errors.New("message too long")
	ErrMessageInjection    = errors.New("message contains suspicious content")
	ErrMissingChatID       = errors.New("chat id is required")
	ErrMissingUserID       = errors.New("user id is required")
	ErrInvalidCoordinates  = errors.New("invalid coordinates")
	ErrInvariant           = errors.New("response invariant violated")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// Is lets every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// ParseError reports model output that could not be turned into a response.
type ParseError struct {
	Reason  string
	Raw     string
	Wrapped error
}

func (e *ParseError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("parse: %s: %v", e.Reason, e.Wrapped)
	}
	return "parse: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Wrapped }

// Is lets every ParseError match ErrParse.
func (e *ParseError) Is(target error) bool { return target == ErrParse }
