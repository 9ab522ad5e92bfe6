package api

import (
	"context"
	"errors"
	"net/http"

	"invoicer/internal/extraction"
	"invoicer/internal/invoice"
	"invoicer/internal/logger"
	"invoicer/internal/ocr"
	"invoicer/internal/storage"
)

// Messages returned for the common error kinds.
const (
	msgInvoiceNotFound = "Invoice not found"
	msgFileNotFound    = "File not found"
	msgConflict        = "Invoice with this file ID already exists"
	msgInvalidID       = "Invalid invoice ID"
	msgInternal        = "Internal server error"
	msgUnauthorized    = "Unauthorized"
)

// writeError maps a domain error to its status code and envelope. Only this
// function inspects error kinds.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message, details := classify(err)

	ev := logger.Ctx(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		ev = logger.Ctx(r.Context()).Error()
	}
	ev.Err(err).Int("status", status).Msg("Request failed")

	writeFailure(w, status, message, details)
}

func classify(err error) (int, string, []invoice.FieldError) {
	var (
		validationErr *invoice.ValidationError
		extractionErr *extraction.ExtractionError
		storageErr    *storage.StorageError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Error(), validationErr.Fields
	case errors.Is(err, invoice.ErrInvalidID):
		return http.StatusBadRequest, msgInvalidID, nil
	case errors.Is(err, ocr.ErrPDFTooLarge), errors.Is(err, ocr.ErrTooManyPages), errors.Is(err, ocr.ErrInvalidPDF):
		return http.StatusBadRequest, err.Error(), nil
	case errors.Is(err, invoice.ErrNotFound):
		return http.StatusNotFound, msgInvoiceNotFound, nil
	case errors.Is(err, storage.ErrFileNotFound):
		return http.StatusNotFound, msgFileNotFound, nil
	case errors.Is(err, invoice.ErrConflict):
		return http.StatusConflict, msgConflict, nil
	case errors.Is(err, extraction.ErrProviderNotConfigured):
		return http.StatusServiceUnavailable, err.Error(), nil
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "Extraction timed out", nil
	case errors.As(err, &extractionErr):
		return http.StatusInternalServerError, "Extraction failed: " + extractionErr.Error(), nil
	case errors.As(err, &storageErr):
		return http.StatusInternalServerError, "Storage failure: " + storageErr.Op + " failed", nil
	default:
		return http.StatusInternalServerError, msgInternal, nil
	}
}
