package api

import (
	"encoding/json"
	"net/http"

	"invoicer/internal/invoice"
)

// Response is the envelope shared by every JSON endpoint.
type Response struct {
	Success    bool                 `json:"success"`
	Data       interface{}          `json:"data,omitempty"`
	Error      string               `json:"error,omitempty"`
	Message    string               `json:"message,omitempty"`
	Pagination *Pagination          `json:"pagination,omitempty"`
	Details    []invoice.FieldError `json:"details,omitempty"`
}

// Pagination describes the page returned by a list endpoint.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, Response{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Success: true, Message: message})
}

func writeFailure(w http.ResponseWriter, status int, message string, details []invoice.FieldError) {
	writeJSON(w, status, Response{Success: false, Error: message, Details: details})
}
