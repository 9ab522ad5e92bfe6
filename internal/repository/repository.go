// Package repository persists invoices.
//
// Two stores implement Repository with identical semantics:
//   - MongoRepository on the shared MongoDB handle (collection "invoices",
//     unique index on fileId)
//   - MemoryRepository for tests and DATABASE_DRIVER=memory
//
// Every write validates the full record first (invoice.Validate) and never
// partially applies. Create assigns id and createdAt; Update deep-merges a
// patch, keeps createdAt and sets an updatedAt strictly greater than the
// previous timestamp. Concurrent updates of the same record are
// last-write-wins.
package repository

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"invoicer/internal/invoice"
	"invoicer/pkg/models"
)

// Repository stores invoice records.
type Repository interface {
	Create(ctx context.Context, inv *models.Invoice) (*models.Invoice, error)
	Update(ctx context.Context, id string, patch models.InvoicePatch) (*models.Invoice, error)
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*models.Invoice, error)
	Search(ctx context.Context, params SearchParams) (*SearchResult, error)
}

// Search defaults and bounds.
const (
	DefaultPage      = 1
	DefaultLimit     = 10
	MaxLimit         = 100
	DefaultSortBy    = "createdAt"
	SortAscending    = "asc"
	SortDescending   = "desc"
	DefaultSortOrder = SortDescending
)

// sortFields are the accepted sortBy values. They equal the document paths
// in both stores.
var sortFields = []string{
	"createdAt",
	"updatedAt",
	"fileName",
	"vendor.name",
	"invoice.number",
	"invoice.date",
	"invoice.total",
}

// SearchParams selects one page of invoices.
type SearchParams struct {
	Query     string // case-insensitive substring of vendor.name or invoice.number
	Page      int    // 1-based
	Limit     int    // 1..100
	SortBy    string
	SortOrder string // "asc" or "desc"
}

// DefaultSearchParams returns the first page sorted by newest first.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		Page:      DefaultPage,
		Limit:     DefaultLimit,
		SortBy:    DefaultSortBy,
		SortOrder: DefaultSortOrder,
	}
}

// Validate checks bounds and fills empty sort settings. Out of range values
// are rejected, never clamped.
func (p *SearchParams) Validate() error {
	p.Query = strings.TrimSpace(p.Query)
	if p.SortBy == "" {
		p.SortBy = DefaultSortBy
	}
	p.SortOrder = strings.ToLower(p.SortOrder)
	if p.SortOrder == "" {
		p.SortOrder = DefaultSortOrder
	}

	var fields []invoice.FieldError
	if p.Page < 1 {
		fields = append(fields, invoice.FieldError{Field: "page", Message: "page must be at least 1"})
	}
	if p.Limit < 1 || p.Limit > MaxLimit {
		fields = append(fields, invoice.FieldError{Field: "limit", Message: fmt.Sprintf("limit must be between 1 and %d", MaxLimit)})
	} else if p.Page > 1 && int64(p.Page-1) > math.MaxInt64/int64(p.Limit) {
		// The offset (page-1)*limit must fit in an int64.
		fields = append(fields, invoice.FieldError{Field: "page", Message: "page is out of range"})
	}
	if !slices.Contains(sortFields, p.SortBy) {
		fields = append(fields, invoice.FieldError{Field: "sortBy", Message: "sortBy must be one of: " + strings.Join(SortFields(), ", ")})
	}
	if p.SortOrder != SortAscending && p.SortOrder != SortDescending {
		fields = append(fields, invoice.FieldError{Field: "sortOrder", Message: "sortOrder must be asc or desc"})
	}
	if len(fields) > 0 {
		return &invoice.ValidationError{Fields: fields}
	}
	return nil
}

func (p SearchParams) skip() int64 {
	return int64(p.Page-1) * int64(p.Limit)
}

// SortFields lists the accepted sortBy values.
func SortFields() []string {
	return slices.Clone(sortFields)
}

// SearchResult is one page of matches plus totals for the whole predicate.
type SearchResult struct {
	Items []models.Invoice `json:"items"`
	Total int64            `json:"total"`
	Pages int              `json:"pages"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

func newSearchResult(items []models.Invoice, total int64, p SearchParams) *SearchResult {
	if items == nil {
		items = []models.Invoice{}
	}
	pages := int((total + int64(p.Limit) - 1) / int64(p.Limit))
	return &SearchResult{Items: items, Total: total, Pages: pages, Page: p.Page, Limit: p.Limit}
}

// ValidateID checks the store identifier format before any lookup.
func ValidateID(id string) error {
	if _, err := bson.ObjectIDFromHex(id); err != nil {
		return invoice.ErrInvalidID
	}
	return nil
}

// prepareCreate builds the record to insert. Server-owned fields supplied by
// the caller are ignored.
func prepareCreate(in *models.Invoice, id string, now time.Time) (models.Invoice, error) {
	if in == nil {
		return models.Invoice{}, invoice.NewValidationError("invoice", "invoice is required")
	}
	rec := in.Clone()
	rec.ID = id
	rec.CreatedAt = now.UTC().Truncate(time.Millisecond)
	rec.UpdatedAt = nil
	applyRecordDefaults(&rec)

	if err := invoice.Validate(&rec); err != nil {
		return models.Invoice{}, err
	}
	return rec, nil
}

// prepareUpdate merges the patch into the stored record and stamps it.
func prepareUpdate(existing models.Invoice, patch models.InvoicePatch, now time.Time) (models.Invoice, error) {
	rec := patch.Apply(existing.Clone())
	rec.ID = existing.ID
	rec.CreatedAt = existing.CreatedAt
	applyRecordDefaults(&rec)

	if err := invoice.Validate(&rec); err != nil {
		return models.Invoice{}, err
	}

	updated := nextUpdatedAt(existing, now)
	rec.UpdatedAt = &updated
	return rec, nil
}

func applyRecordDefaults(rec *models.Invoice) {
	rec.FileID = strings.TrimSpace(rec.FileID)
	if rec.Invoice.Currency == "" {
		rec.Invoice.Currency = invoice.DefaultCurrency
	}
	if rec.Invoice.LineItems == nil {
		rec.Invoice.LineItems = []models.LineItem{}
	}
}

// nextUpdatedAt returns now at millisecond precision, bumped past the last
// recorded change when the clock has not advanced.
func nextUpdatedAt(existing models.Invoice, now time.Time) time.Time {
	t := now.UTC().Truncate(time.Millisecond)
	last := existing.CreatedAt
	if existing.UpdatedAt != nil {
		last = *existing.UpdatedAt
	}
	if !t.After(last) {
		t = last.Add(time.Millisecond)
	}
	return t
}
