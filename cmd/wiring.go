package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"invoicer/internal/config"
	"invoicer/internal/database"
	"invoicer/internal/repository"
)

// openDatabase connects the MongoDB handle unless the memory driver is
// selected, in which case it returns nil.
func openDatabase(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*database.Mongo, error) {
	if cfg.DatabaseDriver == config.DriverMemory {
		log.Warn().Msg("Using in-memory invoice store; records are lost on exit")
		return nil, nil
	}

	db := database.NewMongo(database.Config{
		URI:            cfg.MongoURI,
		Name:           cfg.MongoDatabase,
		ConnectTimeout: cfg.MongoConnectTimeout,
		SocketTimeout:  cfg.MongoSocketTimeout,
	})
	if err := db.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	return db, nil
}

// openRepository selects the invoice store matching the database handle.
func openRepository(ctx context.Context, db *database.Mongo) (repository.Repository, error) {
	if db == nil {
		return repository.NewMemoryRepository(), nil
	}

	repo := repository.NewMongoRepository(db)
	if err := repo.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func closeDatabase(db *database.Mongo, log zerolog.Logger) {
	if db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultDisconnectTimeout)
	defer cancel()
	if err := db.Disconnect(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to disconnect from MongoDB")
	}
}
