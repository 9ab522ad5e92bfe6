package invoice

import (
	"errors"
	"fmt"
	"strings"
)

// Common invoice record errors
var (
	// ErrNotFound is returned when no invoice exists for the given identifier.
	ErrNotFound = errors.New("invoice not found")

	// ErrConflict is returned when another invoice already references the same file.
	ErrConflict = errors.New("invoice with this file ID already exists")

	// ErrInvalidID is returned when an identifier is not a 24 character hex string.
	ErrInvalidID = errors.New("invalid invoice ID")
)

// FieldError describes one violated field constraint.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError represents errors in invoice data validation. It lists
// every violated constraint, not just the first.
type ValidationError struct {
	Fields []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// IsValidation reports whether err is a client input error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) || errors.Is(err, ErrInvalidID)
}
