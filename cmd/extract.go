package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"invoicer/internal/config"
	"invoicer/internal/extraction"
	"invoicer/internal/logger"
	"invoicer/internal/ocr"
	"invoicer/internal/storage"
)

var extractCmd = &cobra.Command{
	Use:   "extract [pdf-file]",
	Short: "Extract invoice data from a local PDF with an AI model",
	Long: `Run the AI extraction pipeline against a local PDF without uploading it.

The file goes through the same provider the HTTP API would use for the
chosen model and the normalized result is printed as JSON.

Models:
  gemini      - requires GEMINI_API_KEY
  groq        - requires GROQ_API_KEY
  documentai  - requires GOOGLE_CLOUD_PROJECT and DOCUMENT_AI_PROCESSOR_ID`,
	Example: `  # Extract with Gemini and print the result
  invoicer extract invoice.pdf

  # Use Groq and save the result
  invoicer extract invoice.pdf --model groq -o invoice.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("model", "m", extraction.ProviderGemini, "AI model: gemini, groq or documentai")
	extractCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	extractCmd.Flags().Duration("timeout", 5*time.Minute, "Processing timeout")
}

func runExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("extract")

	model, _ := cmd.Flags().GetString("model")
	outputPath, _ := cmd.Flags().GetString("output")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	pdfPath := args[0]

	if _, err := validatePDFFile(pdfPath, log); err != nil {
		return err
	}
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return fmt.Errorf("failed to read PDF file: %w", err)
	}

	ctx, cancel := createContextWithTimeout(timeout, log)
	defer cancel()

	cfg := config.Read()
	store := newLocalFile(filepath.Base(pdfPath), data)

	text, err := ocr.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create OCR service: %w", err)
	}
	defer text.Close()

	registry, err := extraction.NewRegistryFromConfig(ctx, cfg, store, text)
	if err != nil {
		return fmt.Errorf("%w\nSet GEMINI_API_KEY, GROQ_API_KEY or the Document AI settings", err)
	}
	defer registry.Close()

	log.Info().
		Str("file", pdfPath).
		Str("model", model).
		Strs("available", registry.Names()).
		Msg("Starting extraction")

	result, err := extraction.NewService(registry, timeout).Extract(ctx, localFileID, model)
	if err != nil {
		if errors.Is(err, extraction.ErrProviderNotConfigured) {
			return fmt.Errorf("model %q is not configured; available: %v", model, registry.Names())
		}
		return fmt.Errorf("extraction failed: %w", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to create JSON output: %w", err)
	}
	return writeOutput(append(out, '\n'), outputPath, log)
}

const localFileID = "local"

// localFile serves a single in-memory PDF to the extraction providers.
type localFile struct {
	meta storage.FileMetadata
	data []byte
}

func newLocalFile(name string, data []byte) *localFile {
	return &localFile{
		meta: storage.FileMetadata{
			FileID:     localFileID,
			FileName:   name,
			FileSize:   int64(len(data)),
			MimeType:   http.DetectContentType(data),
			UploadedAt: time.Now().UTC(),
		},
		data: data,
	}
}

func (l *localFile) Name() string { return "local" }

func (l *localFile) Upload(context.Context, []byte, string, string) (*storage.FileMetadata, error) {
	return nil, storage.WrapStorageError("Upload", "", errors.ErrUnsupported, "local files are read-only")
}

func (l *localFile) Download(_ context.Context, fileID string) ([]byte, error) {
	if fileID != localFileID {
		return nil, storage.ErrFileNotFound
	}
	return l.data, nil
}

func (l *localFile) Delete(context.Context, string) error {
	return storage.ErrFileNotFound
}

func (l *localFile) GetFileInfo(_ context.Context, fileID string) (*storage.FileMetadata, error) {
	if fileID != localFileID {
		return nil, storage.ErrFileNotFound
	}
	meta := l.meta
	return &meta, nil
}
