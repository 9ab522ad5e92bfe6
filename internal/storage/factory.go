package storage

import (
	"invoicer/internal/config"
	"invoicer/internal/database"
	"invoicer/internal/logger"
)

// New selects the provider for this process from configuration. The choice
// is made once at startup; see config.StorageProvider.
func New(cfg *config.Config, db database.Provider) (Provider, error) {
	log := logger.WithComponent("storage")

	switch cfg.StorageProvider() {
	case config.StorageBlob:
		p, err := NewBlobProvider(BlobConfig{
			AccessKeyID:     cfg.BlobAccessKeyID,
			SecretAccessKey: cfg.BlobSecretAccessKey,
			Bucket:          cfg.BlobBucket,
			Region:          cfg.BlobRegion,
			Endpoint:        cfg.BlobEndpoint,
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("bucket", cfg.BlobBucket).Msg("Using blob storage")
		return p, nil
	default:
		if db == nil {
			return nil, ErrMissingCredentials
		}
		log.Info().Str("bucket", DefaultBucket).Msg("Using GridFS storage")
		return NewGridFSProvider(db, DefaultBucket), nil
	}
}
