package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"invoicer/internal/logger"
)

const (
	blobKeyPrefix = "pdfs/"

	metaOriginalName = "Original-Name"
	metaUploadedAt   = "Uploaded-At"
	metaSHA256       = "Sha256"
)

var blobIDRe = regexp.MustCompile(`^[0-9a-f]{24}-[0-9a-f]{8}$`)

// BlobConfig holds S3-compatible object store settings.
type BlobConfig struct {
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string
	Endpoint        string // empty for AWS S3
}

// BlobProvider implements Provider on an S3-compatible object store.
type BlobProvider struct {
	client s3iface.S3API
	bucket string
	now    func() time.Time
	log    zerolog.Logger
}

var _ Provider = (*BlobProvider)(nil)

// NewBlobProvider creates a provider with static credentials.
func NewBlobProvider(cfg BlobConfig) (*BlobProvider, error) {
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.Bucket == "" {
		return nil, ErrMissingCredentials
	}

	awsCfg := &aws.Config{
		Region:      aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, WrapStorageError("NewBlobProvider", "", err, "create session")
	}

	return NewBlobProviderWithClient(s3.New(sess), cfg.Bucket), nil
}

// NewBlobProviderWithClient creates a provider with an explicit client (for testing).
func NewBlobProviderWithClient(client s3iface.S3API, bucket string) *BlobProvider {
	return &BlobProvider{
		client: client,
		bucket: bucket,
		now:    time.Now,
		log:    logger.WithComponent("storage-blob"),
	}
}

// Name implements Provider.
func (p *BlobProvider) Name() string { return "blob" }

// ContentID derives a file ID from the content digest plus a random suffix.
func ContentID(data []byte) string {
	sum := sha256.Sum256(data)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return hex.EncodeToString(sum[:])[:24] + "-" + suffix
}

func objectKey(fileID string) string {
	return blobKeyPrefix + fileID
}

// Upload implements Provider.
func (p *BlobProvider) Upload(ctx context.Context, data []byte, fileName, mimeType string) (*FileMetadata, error) {
	const op = "Upload"

	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	fileID := ContentID(data)
	sum := sha256.Sum256(data)
	uploadedAt := p.now().UTC().Truncate(time.Millisecond)

	_, err := p.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(objectKey(fileID)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(mimeType),
		Metadata: map[string]*string{
			metaOriginalName: aws.String(url.QueryEscape(fileName)),
			metaUploadedAt:   aws.String(uploadedAt.Format(time.RFC3339Nano)),
			metaSHA256:       aws.String(hex.EncodeToString(sum[:])),
		},
	})
	if err != nil {
		return nil, WrapStorageError(op, fileID, err, "put object")
	}

	p.log.Info().
		Str("file_id", fileID).
		Str("file_name", fileName).
		Int("size", len(data)).
		Msg("Stored file in blob storage")

	return &FileMetadata{
		FileID:     fileID,
		FileName:   fileName,
		FileSize:   int64(len(data)),
		MimeType:   mimeType,
		UploadedAt: uploadedAt,
	}, nil
}

// Download implements Provider.
func (p *BlobProvider) Download(ctx context.Context, fileID string) ([]byte, error) {
	const op = "Download"

	if !blobIDRe.MatchString(fileID) {
		return nil, ErrFileNotFound
	}

	out, err := p.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(objectKey(fileID)),
	})
	if err != nil {
		if isBlobNotFound(err) {
			return nil, ErrFileNotFound
		}
		return nil, WrapStorageError(op, fileID, err, "get object")
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, WrapStorageError(op, fileID, err, "read object body")
	}
	return data, nil
}

// Delete implements Provider. S3 deletes are silent for missing keys, so the
// object is looked up first.
func (p *BlobProvider) Delete(ctx context.Context, fileID string) error {
	const op = "Delete"

	if _, err := p.GetFileInfo(ctx, fileID); err != nil {
		return err
	}

	_, err := p.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(objectKey(fileID)),
	})
	if err != nil {
		return WrapStorageError(op, fileID, err, "delete object")
	}

	p.log.Info().Str("file_id", fileID).Msg("Deleted file from blob storage")
	return nil
}

// GetFileInfo implements Provider.
func (p *BlobProvider) GetFileInfo(ctx context.Context, fileID string) (*FileMetadata, error) {
	const op = "GetFileInfo"

	if !blobIDRe.MatchString(fileID) {
		return nil, ErrFileNotFound
	}

	out, err := p.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(objectKey(fileID)),
	})
	if err != nil {
		if isBlobNotFound(err) {
			return nil, ErrFileNotFound
		}
		return nil, WrapStorageError(op, fileID, err, "head object")
	}

	meta := &FileMetadata{
		FileID:   fileID,
		FileName: fileID + ".pdf",
		FileSize: aws.Int64Value(out.ContentLength),
		MimeType: aws.StringValue(out.ContentType),
	}
	if name := metadataValue(out.Metadata, metaOriginalName); name != "" {
		if decoded, err := url.QueryUnescape(name); err == nil {
			meta.FileName = decoded
		}
	}
	if ts := metadataValue(out.Metadata, metaUploadedAt); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			meta.UploadedAt = t
		}
	}
	if meta.UploadedAt.IsZero() && out.LastModified != nil {
		meta.UploadedAt = out.LastModified.UTC()
	}
	return meta, nil
}

// metadataValue looks up user metadata case-insensitively; S3 canonicalizes keys.
func metadataValue(md map[string]*string, key string) string {
	for k, v := range md {
		if strings.EqualFold(k, key) {
			return aws.StringValue(v)
		}
	}
	return ""
}

func isBlobNotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
