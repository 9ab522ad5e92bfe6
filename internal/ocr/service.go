// Package ocr turns stored PDF bytes into plain text for the extraction
// prompt.
//
// Two services implement OCRService:
//   - TextLayerService reads the embedded text layer of digitally generated
//     PDFs. It needs no credentials and runs locally.
//   - GoogleVisionOCRService runs Google Cloud Vision DOCUMENT_TEXT_DETECTION
//     for scanned documents without a text layer.
//
// Chain combines them: the first service that returns non-empty text wins.
// New builds the chain from configuration; Vision is only added when
// VISION_OCR_ENABLED is set.
//
// Cloud Vision API Limitations:
//   - Maximum file size: 20MB for synchronous processing
//   - Maximum pages: 5 pages for synchronous processing
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"
)

const (
	// MaxFileSizeBytes is the maximum file size for synchronous processing (20MB)
	MaxFileSizeBytes = 20 * 1024 * 1024

	// MaxPagesSync is the maximum number of pages Vision handles synchronously
	MaxPagesSync = 5
)

// OCRService defines the interface for PDF text extraction services.
type OCRService interface {
	// ProcessPDF extracts text from a PDF document.
	// Returns the concatenated text from all pages.
	ProcessPDF(ctx context.Context, pdfData io.Reader) (string, error)

	// ProcessPDFWithMetadata extracts text from a PDF document with additional metadata.
	ProcessPDFWithMetadata(ctx context.Context, pdfData io.Reader) (*OCRResult, error)
}

// OCRResult contains the results of text extraction with metadata.
type OCRResult struct {
	// Text is the extracted text content from all pages, in reading order.
	Text string `json:"text"`

	// PageCount is the number of pages that were processed.
	PageCount int `json:"page_count"`

	// Confidence is the average confidence score (0.0 to 1.0). The text layer
	// is exact and reports 1.
	Confidence float32 `json:"confidence"`

	// Source names the service that produced the text.
	Source string `json:"source"`

	// ProcessedAt is the timestamp when processing completed.
	ProcessedAt time.Time `json:"processed_at"`

	// LanguageCodes contains the detected languages in the document.
	LanguageCodes []string `json:"language_codes,omitempty"`

	// ProcessingDuration is how long processing took.
	ProcessingDuration time.Duration `json:"processing_duration"`
}

// readPDF reads and sanity checks the document bytes.
func readPDF(op string, pdfData io.Reader) ([]byte, error) {
	pdfBytes, err := io.ReadAll(pdfData)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to read PDF data")
	}
	if len(pdfBytes) > MaxFileSizeBytes {
		return nil, WrapOCRError(op, ErrPDFTooLarge, fmt.Sprintf("file size: %d bytes", len(pdfBytes)))
	}
	if !bytes.HasPrefix(pdfBytes, []byte("%PDF")) {
		return nil, WrapOCRError(op, ErrInvalidPDF, "missing PDF header")
	}
	return pdfBytes, nil
}

// pageSeparator is written between pages of multi-page documents.
func pageSeparator(page int) string {
	return fmt.Sprintf("\n\n--- Page %d ---\n\n", page)
}
