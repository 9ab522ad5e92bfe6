// Package database owns the MongoDB client shared by the invoice repository
// and the GridFS storage provider.
//
// The handle is created once by the serve command, connected explicitly and
// disconnected on shutdown. Consumers receive it as a Provider and ask for
// the database on every operation; when the connected flag has been cleared
// (initial state, or a failed health ping) Database reconnects before
// returning. The driver's client is safe for concurrent use, so no lock is
// held during queries.
package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"invoicer/internal/logger"
)

// ErrNotConfigured is returned when no connection URI was supplied.
var ErrNotConfigured = errors.New("database: MongoDB URI is not configured")

// Provider hands out the application database, connecting lazily.
type Provider interface {
	Database(ctx context.Context) (*mongo.Database, error)
}

// Config holds MongoDB connection settings.
type Config struct {
	URI            string
	Name           string
	ConnectTimeout time.Duration
	SocketTimeout  time.Duration
}

// Mongo is an explicitly owned MongoDB connection handle.
type Mongo struct {
	cfg       Config
	mu        sync.Mutex
	client    *mongo.Client
	connected atomic.Bool
	log       zerolog.Logger
}

var _ Provider = (*Mongo)(nil)

// NewMongo creates an unconnected handle.
func NewMongo(cfg Config) *Mongo {
	return &Mongo{
		cfg: cfg,
		log: logger.WithComponent("database"),
	}
}

// Connect establishes the client and verifies it with a ping. It is a no-op
// when already connected.
func (m *Mongo) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected.Load() {
		return nil
	}
	if m.cfg.URI == "" {
		return ErrNotConfigured
	}

	if m.client == nil {
		opts := options.Client().
			ApplyURI(m.cfg.URI).
			SetConnectTimeout(m.cfg.ConnectTimeout).
			SetServerSelectionTimeout(m.cfg.ConnectTimeout).
			SetTimeout(m.cfg.SocketTimeout)

		client, err := mongo.Connect(opts)
		if err != nil {
			return fmt.Errorf("database: connect: %w", err)
		}
		m.client = client
	}

	pingCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	if err := m.client.Ping(pingCtx, readpref.Primary()); err != nil {
		return fmt.Errorf("database: ping: %w", err)
	}

	m.connected.Store(true)
	m.log.Info().
		Str("database", m.cfg.Name).
		Msg("Connected to MongoDB")
	return nil
}

// Database returns the application database, reconnecting if the handle is
// not marked connected.
func (m *Mongo) Database(ctx context.Context) (*mongo.Database, error) {
	if !m.connected.Load() {
		m.log.Debug().Msg("Database handle not connected, connecting")
		if err := m.Connect(ctx); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client == nil {
		return nil, errors.New("database: not connected")
	}
	return client.Database(m.cfg.Name), nil
}

// Connected reports the connection flag.
func (m *Mongo) Connected() bool {
	return m.connected.Load()
}

// Ping checks connectivity. A failure clears the connected flag so the next
// Database call reconnects.
func (m *Mongo) Ping(ctx context.Context) error {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	if client == nil {
		return errors.New("database: not connected")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		m.connected.Store(false)
		m.log.Warn().Err(err).Msg("MongoDB ping failed, marking handle disconnected")
		return fmt.Errorf("database: ping: %w", err)
	}
	return nil
}

// Disconnect closes the client. It is safe to call on an unconnected handle.
func (m *Mongo) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connected.Store(false)
	if m.client == nil {
		return nil
	}
	err := m.client.Disconnect(ctx)
	m.client = nil
	if err != nil {
		return fmt.Errorf("database: disconnect: %w", err)
	}
	m.log.Info().Msg("Disconnected from MongoDB")
	return nil
}
