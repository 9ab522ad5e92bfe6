// Package api exposes the invoice workflow over HTTP.
//
// Every JSON response uses the Response envelope. Handlers decode input, call
// one collaborator and translate its error with writeError; they hold no
// state of their own between requests.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"invoicer/internal/extraction"
	"invoicer/internal/logger"
	"invoicer/internal/repository"
	"invoicer/internal/storage"
)

// Extractor runs AI extraction for a stored file.
type Extractor interface {
	Extract(ctx context.Context, fileID, model string) (*extraction.Result, error)
}

// HealthChecker reports database connectivity.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Options holds the HTTP-facing settings.
type Options struct {
	MaxFileSize int64
	CORSOrigins []string
	JWTSecret   string
}

// Deps are the collaborators injected into the server.
type Deps struct {
	Storage    storage.Provider
	Extractor  Extractor
	Repository repository.Repository
	Database   HealthChecker // nil when running without MongoDB
}

// Server routes API requests to the injected collaborators.
type Server struct {
	opts Options
	deps Deps
	log  zerolog.Logger
}

// NewServer creates a server.
func NewServer(opts Options, deps Deps) *Server {
	return &Server{
		opts: opts,
		deps: deps,
		log:  logger.WithComponent("api"),
	}
}

// Handler builds the router with its middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(recoverer)
	r.Use(securityHeaders)
	r.Use(corsMiddleware(s.opts.CORSOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusNotFound, "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)

		r.Group(func(r chi.Router) {
			if s.opts.JWTSecret != "" {
				r.Use(bearerAuth([]byte(s.opts.JWTSecret)))
			}

			r.Route("/upload", func(r chi.Router) {
				r.Post("/", s.uploadFile)
				r.Get("/{fileId}", s.fileInfo)
				r.Get("/{fileId}/download", s.downloadFile)
				r.Get("/{fileId}/view", s.viewFile)
				r.Delete("/{fileId}", s.deleteFile)
			})

			r.Post("/extract", s.extract)

			r.Route("/invoices", func(r chi.Router) {
				r.Get("/", s.listInvoices)
				r.Post("/", s.createInvoice)
				r.Get("/export", s.exportInvoices)
				r.Get("/{id}", s.getInvoice)
				r.Put("/{id}", s.updateInvoice)
				r.Delete("/{id}", s.deleteInvoice)
			})
		})
	})

	s.log.Debug().
		Bool("auth", s.opts.JWTSecret != "").
		Strs("cors_origins", s.opts.CORSOrigins).
		Int64("max_file_size", s.opts.MaxFileSize).
		Msg("Router configured")
	return r
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Storage  string `json:"storage"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Database: "disabled"}
	if s.deps.Storage != nil {
		resp.Storage = s.deps.Storage.Name()
	}

	if db := s.deps.Database; db != nil {
		resp.Database = "connected"
		if err := db.Ping(r.Context()); err != nil {
			logger.Ctx(r.Context()).Warn().Err(err).Msg("Database ping failed")
			resp.Status = "degraded"
			resp.Database = "disconnected"
			writeJSON(w, http.StatusServiceUnavailable, Response{Success: false, Data: resp, Error: "Database unavailable"})
			return
		}
	}

	writeData(w, http.StatusOK, resp)
}
