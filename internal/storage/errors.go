package storage

import (
	"errors"
	"fmt"
)

// Common storage errors
var (
	// ErrFileNotFound is returned when the file ID is unknown to the provider.
	// IDs are not portable between providers, so an ID issued by another
	// backend is reported the same way.
	ErrFileNotFound = errors.New("file not found")

	// ErrEmptyFile is returned when an upload carries no bytes.
	ErrEmptyFile = errors.New("file is empty")

	// ErrMissingCredentials is returned when a provider is constructed without
	// the credentials it needs.
	ErrMissingCredentials = errors.New("missing storage credentials")
)

// StorageError wraps failures of the underlying storage medium.
type StorageError struct {
	// Op is the operation that failed (e.g., "Upload", "Download").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string

	// FileID is the affected file, if known.
	FileID string
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	msg := fmt.Sprintf("storage: %s failed", e.Op)
	if e.FileID != "" {
		msg += fmt.Sprintf(" (file: %s)", e.FileID)
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// WrapStorageError wraps an error as a StorageError if it isn't already one.
func WrapStorageError(op, fileID string, err error, details string) error {
	if err == nil {
		return nil
	}

	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return err
	}

	return &StorageError{Op: op, Err: err, Details: details, FileID: fileID}
}
