// Package storage persists uploaded PDF files behind a single Provider
// interface.
//
// Two providers are available:
//   - GridFSProvider stores files in a MongoDB GridFS bucket on the shared
//     database handle. File IDs are GridFS ObjectIDs.
//   - BlobProvider stores files in an S3-compatible object store. File IDs are
//     content addressed (a SHA-256 prefix of the bytes) with a random suffix,
//     so uploading the same bytes twice still yields two distinct IDs.
//
// The provider is chosen once at process start (see config.StorageProvider)
// and injected into every consumer. File IDs are opaque and only meaningful to
// the provider that issued them.
//
// Every call is a live round trip to the backing store; nothing is cached.
package storage

import (
	"context"
	"time"
)

// Provider defines the interface for binary file persistence.
type Provider interface {
	// Upload stores data and returns metadata with a newly generated file ID.
	Upload(ctx context.Context, data []byte, fileName, mimeType string) (*FileMetadata, error)

	// Download returns the stored bytes or ErrFileNotFound.
	Download(ctx context.Context, fileID string) ([]byte, error)

	// Delete removes the file. Deleting an unknown file returns ErrFileNotFound.
	Delete(ctx context.Context, fileID string) error

	// GetFileInfo returns metadata without reading the content.
	GetFileInfo(ctx context.Context, fileID string) (*FileMetadata, error)

	// Name identifies the backend ("gridfs", "blob").
	Name() string
}

// FileMetadata describes a stored file.
type FileMetadata struct {
	FileID     string    `json:"fileId"`
	FileName   string    `json:"fileName"`
	FileSize   int64     `json:"fileSize"`
	MimeType   string    `json:"mimeType"`
	UploadedAt time.Time `json:"uploadedAt"`
}
