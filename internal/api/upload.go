package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"invoicer/internal/invoice"
	"invoicer/internal/logger"
)

const (
	pdfMimeType = "application/pdf"
	formField   = "pdf"

	// multipartOverhead leaves room for boundaries and headers around the file.
	multipartOverhead = 1 << 20
)

var pdfHeader = []byte("%PDF")

const msgOnlyPDF = "Only PDF files are allowed"

func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxFileSize+multipartOverhead)
	if err := r.ParseMultipartForm(s.opts.MaxFileSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeFailure(w, http.StatusBadRequest, s.tooLargeMessage(), nil)
			return
		}
		writeFailure(w, http.StatusBadRequest, "Invalid multipart form", nil)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(formField)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "No file uploaded", nil)
		return
	}
	defer file.Close()

	mimeType, _, _ := mime.ParseMediaType(header.Header.Get("Content-Type"))
	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") || mimeType != pdfMimeType {
		writeFailure(w, http.StatusBadRequest, msgOnlyPDF, nil)
		return
	}
	if header.Size > s.opts.MaxFileSize {
		writeFailure(w, http.StatusBadRequest, s.tooLargeMessage(), nil)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}
	if !hasPDFHeader(data) {
		writeFailure(w, http.StatusBadRequest, msgOnlyPDF, nil)
		return
	}

	meta, err := s.deps.Storage.Upload(r.Context(), data, header.Filename, pdfMimeType)
	if err != nil {
		writeError(w, r, err)
		return
	}

	logger.Ctx(r.Context()).Info().
		Str("file_id", meta.FileID).
		Str("file_name", meta.FileName).
		Int64("size", meta.FileSize).
		Msg("File uploaded")
	writeData(w, http.StatusCreated, meta)
}

// hasPDFHeader applies the same check as text extraction.
func hasPDFHeader(data []byte) bool {
	return bytes.HasPrefix(data, pdfHeader)
}

func (s *Server) tooLargeMessage() string {
	return fmt.Sprintf("File too large: maximum size is %d bytes", s.opts.MaxFileSize)
}

func fileID(r *http.Request) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, "fileId"))
	if id == "" {
		return "", invoice.NewValidationError("fileId", "fileId is required")
	}
	return id, nil
}

func (s *Server) fileInfo(w http.ResponseWriter, r *http.Request) {
	id, err := fileID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	meta, err := s.deps.Storage.GetFileInfo(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, meta)
}

func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request) {
	s.serveFile(w, r, "attachment")
}

// viewFile serves the PDF for embedding in the UI: framing is limited to
// this origin and the configured CORS origins.
func (s *Server) viewFile(w http.ResponseWriter, r *http.Request) {
	w.Header().Del("X-Frame-Options")
	ancestors := append([]string{"'self'"}, s.opts.CORSOrigins...)
	w.Header().Set("Content-Security-Policy", "frame-ancestors "+strings.Join(ancestors, " "))
	s.serveFile(w, r, "inline")
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, disposition string) {
	id, err := fileID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	meta, err := s.deps.Storage.GetFileInfo(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := s.deps.Storage.Download(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	contentType := meta.MimeType
	if contentType == "" {
		contentType = pdfMimeType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": meta.FileName}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	id, err := fileID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Storage.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	logger.Ctx(r.Context()).Info().Str("file_id", id).Msg("File deleted")
	writeMessage(w, http.StatusOK, "File deleted")
}
