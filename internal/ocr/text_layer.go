package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"

	"invoicer/internal/logger"
)

// SourceTextLayer identifies text read from the embedded PDF text layer.
const SourceTextLayer = "text-layer"

// TextLayerService implements OCRService by reading the PDF's own text
// objects. Scanned documents yield ErrEmptyDocument.
type TextLayerService struct {
	now func() time.Time
	log zerolog.Logger
}

var _ OCRService = (*TextLayerService)(nil)

// NewTextLayerService creates a text-layer reader.
func NewTextLayerService() *TextLayerService {
	return &TextLayerService{
		now: time.Now,
		log: logger.WithComponent("ocr-text-layer"),
	}
}

// ProcessPDF extracts text from a PDF document.
func (s *TextLayerService) ProcessPDF(ctx context.Context, pdfData io.Reader) (string, error) {
	result, err := s.ProcessPDFWithMetadata(ctx, pdfData)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// ProcessPDFWithMetadata extracts text page by page.
func (s *TextLayerService) ProcessPDFWithMetadata(ctx context.Context, pdfData io.Reader) (*OCRResult, error) {
	const op = "TextLayer"
	start := s.now()

	pdfBytes, err := readPDF(op, pdfData)
	if err != nil {
		return nil, err
	}

	text, pages, err := s.extract(ctx, pdfBytes)
	if err != nil {
		return nil, WrapOCRError(op, err, "")
	}
	if strings.TrimSpace(text) == "" {
		return nil, WrapOCRError(op, ErrEmptyDocument, fmt.Sprintf("%d pages without text", pages))
	}

	done := s.now()
	s.log.Debug().
		Int("pages", pages).
		Int("chars", len(text)).
		Msg("Read PDF text layer")

	return &OCRResult{
		Text:               text,
		PageCount:          pages,
		Confidence:         1,
		Source:             SourceTextLayer,
		ProcessedAt:        done,
		ProcessingDuration: done.Sub(start),
	}, nil
}

// extract walks all pages. The parser panics on some malformed inputs, which
// is reported as ErrInvalidPDF.
func (s *TextLayerService) extract(ctx context.Context, data []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidPDF, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	var sb strings.Builder
	pages = reader.NumPage()
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", 0, fmt.Errorf("page %d: %w", i, err)
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(pageSeparator(i))
		}
		sb.WriteString(pageText)
	}
	return sb.String(), pages, nil
}
