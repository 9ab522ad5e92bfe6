package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"invoicer/internal/export"
	"invoicer/internal/extraction"
	"invoicer/internal/invoice"
	"invoicer/internal/logger"
	"invoicer/internal/repository"
	"invoicer/pkg/models"
)

const maxJSONBody = 1 << 20

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return invoice.NewValidationError("body", "request body is required")
		}
		return invoice.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	return nil
}

type extractRequest struct {
	FileID string `json:"fileId"`
	Model  string `json:"model"`
	Save   bool   `json:"save,omitempty"`
}

type extractResponse struct {
	extraction.Result
	Invoice *models.Invoice `json:"invoice,omitempty"`
}

func (s *Server) extract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.deps.Extractor.Extract(r.Context(), req.FileID, req.Model)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := extractResponse{Result: *result}
	if req.Save {
		saved, err := s.saveExtraction(r, req.FileID, result.ExtractedData)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp.Invoice = saved
	}

	writeData(w, http.StatusOK, resp)
}

// saveExtraction persists extracted data as a new invoice for the file.
func (s *Server) saveExtraction(r *http.Request, fileID string, data models.ExtractedData) (*models.Invoice, error) {
	var fileName string
	if meta, err := s.deps.Storage.GetFileInfo(r.Context(), fileID); err == nil {
		fileName = meta.FileName
	} else {
		logger.Ctx(r.Context()).Warn().Err(err).Str("file_id", fileID).Msg("File name unavailable for extracted invoice")
	}

	return s.deps.Repository.Create(r.Context(), &models.Invoice{
		FileID:   fileID,
		FileName: fileName,
		Vendor:   data.Vendor,
		Invoice:  data.Invoice,
	})
}

// searchParams reads list parameters on top of the defaults. Malformed or
// out-of-range values are rejected.
func searchParams(r *http.Request) (repository.SearchParams, error) {
	q := r.URL.Query()
	params := repository.DefaultSearchParams()
	params.Query = q.Get("q")

	var fields []invoice.FieldError
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"page", &params.Page},
		{"limit", &params.Limit},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			fields = append(fields, invoice.FieldError{Field: p.name, Message: p.name + " must be an integer"})
			continue
		}
		*p.dst = n
	}
	if v := q.Get("sortBy"); v != "" {
		params.SortBy = v
	}
	if v := q.Get("sortOrder"); v != "" {
		params.SortOrder = v
	}

	if len(fields) > 0 {
		return params, &invoice.ValidationError{Fields: fields}
	}
	return params, params.Validate()
}

func (s *Server) listInvoices(w http.ResponseWriter, r *http.Request) {
	params, err := searchParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.deps.Repository.Search(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    res.Items,
		Pagination: &Pagination{
			Page:  res.Page,
			Limit: res.Limit,
			Total: res.Total,
			Pages: res.Pages,
		},
	})
}

func (s *Server) createInvoice(w http.ResponseWriter, r *http.Request) {
	var in models.Invoice
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	created, err := s.deps.Repository.Create(r.Context(), &in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, created)
}

func (s *Server) getInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := s.deps.Repository.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, inv)
}

func (s *Server) updateInvoice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := repository.ValidateID(id); err != nil {
		writeError(w, r, err)
		return
	}

	var patch models.InvoicePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	if patch.IsEmpty() {
		writeError(w, r, invoice.NewValidationError("body", "no fields to update"))
		return
	}

	updated, err := s.deps.Repository.Update(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, updated)
}

func (s *Server) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Repository.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Invoice deleted")
}

func (s *Server) exportInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := export.Collect(r.Context(), s.deps.Repository, r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, invoices); err != nil {
		writeError(w, r, err)
		return
	}

	name := fmt.Sprintf("invoices-%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", export.XLSXContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
