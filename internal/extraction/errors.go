package extraction

import (
	"errors"
	"fmt"
)

// Common extraction errors
var (
	// ErrProviderNotConfigured is returned when a known provider has no
	// credentials in this deployment.
	ErrProviderNotConfigured = errors.New("extraction provider is not configured")

	// ErrEmptyResponse is returned when a provider's response carries no
	// document to map.
	ErrEmptyResponse = errors.New("model returned an empty response")

	// ErrModelCall is returned when the upstream model call fails.
	ErrModelCall = errors.New("model call failed")
)

// ExtractionError wraps failures of an extraction provider.
type ExtractionError struct {
	// Op is the operation that failed (e.g., "ExtractInvoiceData").
	Op string

	// Provider is the provider name ("gemini", "groq", "documentai").
	Provider string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extraction: %s failed", e.Op)
	if e.Provider != "" {
		msg += fmt.Sprintf(" (provider: %s)", e.Provider)
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// WrapExtractionError wraps an error as an ExtractionError if it isn't already one.
func WrapExtractionError(op, provider string, err error, details string) error {
	if err == nil {
		return nil
	}

	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		return err
	}

	return &ExtractionError{Op: op, Provider: provider, Err: err, Details: details}
}
