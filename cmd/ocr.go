package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"invoicer/internal/config"
	"invoicer/internal/logger"
	"invoicer/internal/ocr"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [pdf-file]",
	Short: "Extract the text of a PDF the way the extraction pipeline sees it",
	Long: `Extract text from a PDF with the same OCR chain the AI extraction uses.

The embedded text layer is read first. When it is empty and Google Cloud
Vision is enabled (VISION_OCR_ENABLED=true or --vision), the document is
sent to Vision DOCUMENT_TEXT_DETECTION instead. Vision handles up to 5 pages
and 20MB synchronously.

Vision requires credentials:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string`,
	Example: `  # Print the text layer of invoice.pdf
  invoicer ocr invoice.pdf

  # Save extracted text to file
  invoicer ocr invoice.pdf -o extracted.txt

  # Fall back to Cloud Vision for scans and output JSON with metadata
  invoicer ocr scan.pdf --vision --json`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

// OCROutput represents the JSON output structure when --json flag is used
type OCROutput struct {
	Text               string    `json:"text"`
	Source             string    `json:"source"`
	PageCount          int       `json:"page_count,omitempty"`
	Confidence         float32   `json:"confidence,omitempty"`
	LanguageCodes      []string  `json:"language_codes,omitempty"`
	ProcessedAt        time.Time `json:"processed_at,omitempty"`
	ProcessingDuration string    `json:"processing_duration,omitempty"`
	FileName           string    `json:"file_name"`
	FileSize           int64     `json:"file_size"`
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	ocrCmd.Flags().Bool("json", false, "Output as JSON with metadata")
	ocrCmd.Flags().Bool("vision", false, "Enable the Google Cloud Vision fallback")
	ocrCmd.Flags().Duration("timeout", 5*time.Minute, "Processing timeout")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	useVision, _ := cmd.Flags().GetBool("vision")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	pdfPath := args[0]

	log.Info().
		Str("file", pdfPath).
		Str("output", outputPath).
		Bool("json", jsonOutput).
		Bool("vision", useVision).
		Dur("timeout", timeout).
		Msg("Starting OCR processing")

	fileInfo, err := validatePDFFile(pdfPath, log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeout, log)
	defer cancel()

	chain, err := createOCRChain(ctx, useVision, log)
	if err != nil {
		return err
	}
	defer chain.Close()

	pdfFile, err := os.Open(pdfPath)
	if err != nil {
		log.Error().
			Err(err).
			Str("file", pdfPath).
			Msg("Failed to open PDF file")
		return fmt.Errorf("failed to open PDF file: %w", err)
	}
	defer func() {
		if closeErr := pdfFile.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close PDF file")
		}
	}()

	result, err := chain.ProcessPDFWithMetadata(ctx, pdfFile)
	if err != nil {
		return handleOCRError(err, log)
	}

	log.Info().
		Str("source", result.Source).
		Int("page_count", result.PageCount).
		Float32("confidence", result.Confidence).
		Dur("duration", result.ProcessingDuration).
		Int("text_length", len(result.Text)).
		Msg("OCR processing completed successfully")

	if !jsonOutput {
		return writeOutput([]byte(result.Text+"\n"), outputPath, log)
	}

	data, err := json.MarshalIndent(OCROutput{
		Text:               result.Text,
		Source:             result.Source,
		PageCount:          result.PageCount,
		Confidence:         result.Confidence,
		LanguageCodes:      result.LanguageCodes,
		ProcessedAt:        result.ProcessedAt,
		ProcessingDuration: result.ProcessingDuration.String(),
		FileName:           filepath.Base(fileInfo.Name()),
		FileSize:           fileInfo.Size(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to create JSON output: %w", err)
	}
	return writeOutput(append(data, '\n'), outputPath, log)
}

// createOCRChain builds the text layer service plus Vision when requested.
// Settings unrelated to OCR are not validated.
func createOCRChain(ctx context.Context, useVision bool, log zerolog.Logger) (*ocr.Chain, error) {
	cfg := config.Read()
	if useVision {
		cfg.VisionOCREnabled = true
	}

	chain, err := ocr.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create OCR service")
		return nil, fmt.Errorf("failed to create OCR service: %w", err)
	}
	return chain, nil
}

// handleOCRError provides user-friendly error messages for OCR failures
func handleOCRError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("OCR processing failed")

	errStr := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("OCR processing timed out. Try increasing --timeout or processing a smaller file")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("OCR processing was canceled")
	case errors.Is(err, ocr.ErrPDFTooLarge):
		return fmt.Errorf("PDF file is too large (maximum 20MB). Try compressing or splitting the file")
	case errors.Is(err, ocr.ErrTooManyPages):
		return fmt.Errorf("PDF has too many pages for Vision (maximum 5 pages). Try splitting into smaller files")
	case errors.Is(err, ocr.ErrInvalidPDF):
		return fmt.Errorf("invalid or corrupted PDF file. Please check the file integrity")
	case errors.Is(err, ocr.ErrEmptyDocument):
		return fmt.Errorf("no readable text found in the document. Scanned PDFs need --vision")
	case strings.Contains(errStr, "Unauthenticated") ||
		strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "transport: per-RPC creds failed"):
		return fmt.Errorf("Google Cloud authentication failed. Set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS: %w", err)
	case strings.Contains(errStr, "PERMISSION_DENIED"):
		return fmt.Errorf("permission denied. Please ensure your service account has the 'Cloud Vision API User' role")
	default:
		return fmt.Errorf("OCR processing failed: %w", err)
	}
}
