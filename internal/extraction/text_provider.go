package extraction

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"invoicer/internal/invoice"
	"invoicer/internal/logger"
	"invoicer/internal/ocr"
	"invoicer/internal/storage"
	"invoicer/pkg/models"
)

// TextProvider implements Provider as a text pipeline: stored bytes, plain
// text, prompt, chat model, Normalizer.
type TextProvider struct {
	completer  Completer
	storage    storage.Provider
	text       ocr.OCRService
	normalizer *invoice.Normalizer
	maxChars   int
	log        zerolog.Logger
}

var _ Provider = (*TextProvider)(nil)

// NewTextProvider creates a provider around a chat completer.
func NewTextProvider(completer Completer, store storage.Provider, text ocr.OCRService, maxChars int) *TextProvider {
	return &TextProvider{
		completer:  completer,
		storage:    store,
		text:       text,
		normalizer: invoice.NewNormalizer(),
		maxChars:   maxChars,
		log:        logger.WithComponent("extraction-" + completer.Name()),
	}
}

// Name implements Provider.
func (p *TextProvider) Name() string { return p.completer.Name() }

// ExtractInvoiceData implements Provider. Malformed model output never fails
// the call; the Normalizer degrades it to defaults.
func (p *TextProvider) ExtractInvoiceData(ctx context.Context, fileID string) (*models.ExtractedData, error) {
	const op = "ExtractInvoiceData"

	data, err := p.storage.Download(ctx, fileID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	text, err := p.text.ProcessPDF(ctx, bytes.NewReader(data))
	switch {
	case errors.Is(err, ocr.ErrEmptyDocument):
		p.log.Warn().Str("file_id", fileID).Msg("Document has no readable text, prompting with empty text")
		text = ""
	case err != nil:
		return nil, WrapExtractionError(op, p.Name(), err, "text extraction")
	}

	p.log.Debug().
		Str("file_id", fileID).
		Int("text_length", len(text)).
		Dur("duration", time.Since(start)).
		Msg("Extracted document text")

	raw, err := p.completer.Complete(ctx, systemPrompt, BuildPrompt(text, p.maxChars))
	if err != nil {
		return nil, WrapExtractionError(op, p.Name(), err, "")
	}

	result := p.normalizer.Normalize(raw)
	return &result, nil
}
