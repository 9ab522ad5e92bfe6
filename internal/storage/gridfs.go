package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"invoicer/internal/database"
	"invoicer/internal/logger"
)

// DefaultBucket is the GridFS bucket holding uploaded PDFs.
const DefaultBucket = "pdfs"

// GridFSProvider implements Provider on a MongoDB GridFS bucket.
type GridFSProvider struct {
	db         database.Provider
	bucketName string
	now        func() time.Time
	log        zerolog.Logger
}

var _ Provider = (*GridFSProvider)(nil)

// gridFSFile is the files-collection document written by the driver.
type gridFSFile struct {
	ID         bson.ObjectID  `bson:"_id"`
	Length     int64          `bson:"length"`
	UploadDate time.Time      `bson:"uploadDate"`
	Filename   string         `bson:"filename"`
	Metadata   gridFSMetadata `bson:"metadata"`
}

type gridFSMetadata struct {
	ContentType  string `bson:"contentType"`
	OriginalName string `bson:"originalName"`
}

// NewGridFSProvider creates a provider storing files in the given bucket.
func NewGridFSProvider(db database.Provider, bucketName string) *GridFSProvider {
	if bucketName == "" {
		bucketName = DefaultBucket
	}
	return &GridFSProvider{
		db:         db,
		bucketName: bucketName,
		now:        time.Now,
		log:        logger.WithComponent("storage-gridfs"),
	}
}

// Name implements Provider.
func (p *GridFSProvider) Name() string { return "gridfs" }

func (p *GridFSProvider) bucket(ctx context.Context) (*mongo.GridFSBucket, error) {
	db, err := p.db.Database(ctx)
	if err != nil {
		return nil, err
	}
	return db.GridFSBucket(options.GridFSBucket().SetName(p.bucketName)), nil
}

// Upload implements Provider.
func (p *GridFSProvider) Upload(ctx context.Context, data []byte, fileName, mimeType string) (*FileMetadata, error) {
	const op = "Upload"

	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	bucket, err := p.bucket(ctx)
	if err != nil {
		return nil, WrapStorageError(op, "", err, "database unavailable")
	}

	uploadOpts := options.GridFSUpload().SetMetadata(gridFSMetadata{
		ContentType:  mimeType,
		OriginalName: fileName,
	})
	id, err := bucket.UploadFromStream(ctx, fileName, bytes.NewReader(data), uploadOpts)
	if err != nil {
		return nil, WrapStorageError(op, "", err, "GridFS upload failed")
	}

	meta := &FileMetadata{
		FileID:     id.Hex(),
		FileName:   fileName,
		FileSize:   int64(len(data)),
		MimeType:   mimeType,
		UploadedAt: p.now().UTC().Truncate(time.Millisecond),
	}

	p.log.Info().
		Str("file_id", meta.FileID).
		Str("file_name", fileName).
		Int64("size", meta.FileSize).
		Msg("Stored file in GridFS")

	return meta, nil
}

// Download implements Provider.
func (p *GridFSProvider) Download(ctx context.Context, fileID string) ([]byte, error) {
	const op = "Download"

	oid, err := bson.ObjectIDFromHex(fileID)
	if err != nil {
		return nil, ErrFileNotFound
	}

	bucket, err := p.bucket(ctx)
	if err != nil {
		return nil, WrapStorageError(op, fileID, err, "database unavailable")
	}

	stream, err := bucket.OpenDownloadStream(ctx, oid)
	if err != nil {
		if errors.Is(err, mongo.ErrFileNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, WrapStorageError(op, fileID, err, "open download stream")
	}
	defer func() {
		if closeErr := stream.Close(); closeErr != nil {
			p.log.Warn().Err(closeErr).Str("file_id", fileID).Msg("Failed to close GridFS stream")
		}
	}()

	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, WrapStorageError(op, fileID, err, "read GridFS stream")
	}
	return data, nil
}

// Delete implements Provider.
func (p *GridFSProvider) Delete(ctx context.Context, fileID string) error {
	const op = "Delete"

	oid, err := bson.ObjectIDFromHex(fileID)
	if err != nil {
		return ErrFileNotFound
	}

	bucket, err := p.bucket(ctx)
	if err != nil {
		return WrapStorageError(op, fileID, err, "database unavailable")
	}

	if err := bucket.Delete(ctx, oid); err != nil {
		if errors.Is(err, mongo.ErrFileNotFound) {
			return ErrFileNotFound
		}
		return WrapStorageError(op, fileID, err, "GridFS delete failed")
	}

	p.log.Info().Str("file_id", fileID).Msg("Deleted file from GridFS")
	return nil
}

// GetFileInfo implements Provider.
func (p *GridFSProvider) GetFileInfo(ctx context.Context, fileID string) (*FileMetadata, error) {
	const op = "GetFileInfo"

	oid, err := bson.ObjectIDFromHex(fileID)
	if err != nil {
		return nil, ErrFileNotFound
	}

	bucket, err := p.bucket(ctx)
	if err != nil {
		return nil, WrapStorageError(op, fileID, err, "database unavailable")
	}

	cursor, err := bucket.Find(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return nil, WrapStorageError(op, fileID, err, "GridFS find failed")
	}
	var files []gridFSFile
	if err := cursor.All(ctx, &files); err != nil {
		return nil, WrapStorageError(op, fileID, err, "decode GridFS file")
	}
	if len(files) == 0 {
		return nil, ErrFileNotFound
	}

	f := files[0]
	name := f.Metadata.OriginalName
	if name == "" {
		name = f.Filename
	}
	return &FileMetadata{
		FileID:     f.ID.Hex(),
		FileName:   name,
		FileSize:   f.Length,
		MimeType:   f.Metadata.ContentType,
		UploadedAt: f.UploadDate.UTC(),
	}, nil
}
