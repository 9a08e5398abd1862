package shared

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound indicates the resource does not exist for the caller's tenant.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden indicates the actor lacks the privilege for the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict indicates a uniqueness or state conflict that could not be resolved.
	ErrConflict = errors.New("conflict")
	// ErrInvalidTransition indicates a status change missing from the state table.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates field level failures.
type ValidationError struct {
	Fields []FieldError `json:"errors"`
}

// Add appends a field failure.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// HasErrors reports whether any field failed.
func (e *ValidationError) HasErrors() bool {
	return e != nil && len(e.Fields) > 0
}

// OrNil returns the error only when fields were collected.
func (e *ValidationError) OrNil() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
