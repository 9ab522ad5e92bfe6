package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"invoicer/internal/api"
	"invoicer/internal/extraction"
	"invoicer/internal/logger"
	"invoicer/internal/ocr"
	"invoicer/internal/storage"
)

const (
	defaultDisconnectTimeout = 10 * time.Second
	startupTimeout           = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the invoice HTTP API.

The server connects to MongoDB (unless DATABASE_DRIVER=memory), selects the
file storage backend (GridFS, or S3-compatible blob storage when APP_ENV is
production and BLOB_* credentials are set), registers every AI provider with
credentials and serves /api until SIGINT or SIGTERM.

Environment variables are documented in .env.example.`,
	Example: `  # Serve on the configured HTTP_ADDR (default :3001)
  invoicer serve

  # Serve on another address
  invoicer serve --addr :8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default: HTTP_ADDR)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	log := logger.WithComponent("serve")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.HTTPAddr
	}

	startCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	db, err := openDatabase(startCtx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	// A nil *database.Mongo must stay a nil interface for the providers.
	var (
		store  storage.Provider
		health api.HealthChecker
	)
	if db != nil {
		store, err = storage.New(cfg, db)
		health = db
	} else {
		store, err = storage.New(cfg, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to create storage provider: %w", err)
	}

	repo, err := openRepository(startCtx, db)
	if err != nil {
		return err
	}

	text, err := ocr.New(startCtx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create OCR service: %w", err)
	}
	defer text.Close()

	registry, err := extraction.NewRegistryFromConfig(startCtx, cfg, store, text)
	if err != nil {
		return fmt.Errorf("failed to create extraction providers: %w", err)
	}
	defer registry.Close()

	server := api.NewServer(api.Options{
		MaxFileSize: cfg.MaxFileSize,
		CORSOrigins: cfg.CORSOrigins,
		JWTSecret:   cfg.JWTSecret,
	}, api.Deps{
		Storage:    store,
		Extractor:  extraction.NewService(registry, cfg.AITimeout),
		Repository: repo,
		Database:   health,
	})

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.AITimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", addr).
			Str("storage", store.Name()).
			Str("database", cfg.DatabaseDriver).
			Strs("models", registry.Names()).
			Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-sigCtx.Done():
	}

	log.Info().Dur("grace", cfg.ShutdownGrace).Msg("Shutting down HTTP server")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	log.Info().Msg("HTTP server stopped")
	return nil
}
