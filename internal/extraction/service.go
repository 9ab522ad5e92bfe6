// Package extraction turns a stored PDF into normalized invoice data with an
// AI model chosen per call.
//
// Providers:
//   - gemini: Google Gemini through its OpenAI-compatible endpoint
//   - groq: Groq-hosted models through the OpenAI-compatible API
//   - documentai: Google Document AI invoice parser
//
// Gemini and Groq share TextProvider: the PDF's text is embedded in a fixed
// prompt, the model is asked for JSON at low temperature, and the reply goes
// through invoice.Normalizer. Document AI maps parser entities into the same
// shape. Every provider therefore returns canonical ExtractedData.
//
// Providers are built once at startup from configuration (NewRegistryFromConfig)
// and resolved by name on every Extract call. No call is retried.
package extraction

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"invoicer/internal/invoice"
	"invoicer/internal/logger"
	"invoicer/pkg/models"
)

// Provider extracts invoice data for a stored file.
type Provider interface {
	Name() string
	ExtractInvoiceData(ctx context.Context, fileID string) (*models.ExtractedData, error)
}

// Result is the outcome of one extraction call.
type Result struct {
	ExtractedData  models.ExtractedData `json:"extractedData"`
	ProcessingTime int64                `json:"processingTime"` // milliseconds
	Model          string               `json:"model"`
}

// Service resolves providers per call and measures the run.
type Service struct {
	registry *Registry
	timeout  time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewService creates a service. A positive timeout bounds every provider call.
func NewService(registry *Registry, timeout time.Duration) *Service {
	return &Service{
		registry: registry,
		timeout:  timeout,
		now:      time.Now,
		log:      logger.WithComponent("extraction"),
	}
}

// Registry returns the providers this service resolves against.
func (s *Service) Registry() *Registry { return s.registry }

// Extract runs the named provider against a stored file.
func (s *Service) Extract(ctx context.Context, fileID, model string) (*Result, error) {
	fileID = strings.TrimSpace(fileID)
	model = strings.ToLower(strings.TrimSpace(model))

	var fields []invoice.FieldError
	if fileID == "" {
		fields = append(fields, invoice.FieldError{Field: "fileId", Message: "fileId is required"})
	}
	if model == "" {
		fields = append(fields, invoice.FieldError{Field: "model", Message: "model is required"})
	}
	if len(fields) > 0 {
		return nil, &invoice.ValidationError{Fields: fields}
	}

	provider, err := s.registry.Get(model)
	if err != nil {
		return nil, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := s.now()
	data, err := provider.ExtractInvoiceData(ctx, fileID)
	elapsed := s.now().Sub(start)
	if err != nil {
		s.log.Error().
			Err(err).
			Str("file_id", fileID).
			Str("model", model).
			Dur("duration", elapsed).
			Msg("Extraction failed")
		return nil, err
	}

	s.log.Info().
		Str("file_id", fileID).
		Str("model", model).
		Str("vendor", data.Vendor.Name).
		Str("number", data.Invoice.Number).
		Int("line_items", len(data.Invoice.LineItems)).
		Int64("processing_ms", elapsed.Milliseconds()).
		Msg("Extraction completed")

	return &Result{
		ExtractedData:  *data,
		ProcessingTime: elapsed.Milliseconds(),
		Model:          model,
	}, nil
}
