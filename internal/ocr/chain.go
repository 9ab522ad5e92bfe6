package ocr

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"

	"invoicer/internal/config"
	"invoicer/internal/logger"
)

// Chain tries services in order and returns the first non-empty result.
type Chain struct {
	services []OCRService
	closers  []io.Closer
	log      zerolog.Logger
}

var _ OCRService = (*Chain)(nil)

// NewChain creates a chain over the given services.
func NewChain(services ...OCRService) *Chain {
	c := &Chain{
		services: services,
		log:      logger.WithComponent("ocr"),
	}
	for _, s := range services {
		if closer, ok := s.(io.Closer); ok {
			c.closers = append(c.closers, closer)
		}
	}
	return c
}

// New builds the text-extraction chain for this process: the text layer
// first, then Vision when enabled.
func New(ctx context.Context, cfg *config.Config) (*Chain, error) {
	services := []OCRService{NewTextLayerService()}
	if cfg.VisionOCREnabled {
		vision, err := NewGoogleVisionOCRService(ctx, cfg.GoogleClientOptions()...)
		if err != nil {
			return nil, err
		}
		services = append(services, vision)
	}
	return NewChain(services...), nil
}

// ProcessPDF extracts text from a PDF document.
func (c *Chain) ProcessPDF(ctx context.Context, pdfData io.Reader) (string, error) {
	result, err := c.ProcessPDFWithMetadata(ctx, pdfData)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// ProcessPDFWithMetadata runs each service on its own copy of the bytes.
// Oversized input or bytes without a PDF header are rejected before any
// service runs. A service failure, including a PDF the text layer cannot
// parse, falls through to the next service; ErrPDFTooLarge from a service
// stops the chain.
func (c *Chain) ProcessPDFWithMetadata(ctx context.Context, pdfData io.Reader) (*OCRResult, error) {
	const op = "Chain"

	pdfBytes, err := readPDF(op, pdfData)
	if err != nil {
		return nil, err
	}

	lastErr := WrapOCRError(op, ErrEmptyDocument, "no text services configured")
	for i, svc := range c.services {
		result, err := svc.ProcessPDFWithMetadata(ctx, bytes.NewReader(pdfBytes))
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, WrapOCRError(op, ctx.Err(), "")
		}
		if errors.Is(err, ErrPDFTooLarge) {
			return nil, err
		}
		c.log.Debug().Err(err).Int("stage", i).Msg("Text extraction stage failed, trying next")
		lastErr = err
	}
	return nil, lastErr
}

// Close releases services holding client connections.
func (c *Chain) Close() error {
	var errs []error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
