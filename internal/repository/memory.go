package repository

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"

	"invoicer/internal/invoice"
	"invoicer/internal/logger"
	"invoicer/pkg/models"
)

// MemoryRepository keeps invoices in process memory.
type MemoryRepository struct {
	mu     sync.RWMutex
	byID   map[string]models.Invoice
	byFile map[string]string // fileId -> id
	now    func() time.Time
	log    zerolog.Logger
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty store.
func NewMemoryRepository() *MemoryRepository {
	return NewMemoryRepositoryWithClock(time.Now)
}

// NewMemoryRepositoryWithClock creates an empty store with an explicit clock.
func NewMemoryRepositoryWithClock(now func() time.Time) *MemoryRepository {
	return &MemoryRepository{
		byID:   make(map[string]models.Invoice),
		byFile: make(map[string]string),
		now:    now,
		log:    logger.WithComponent("repository-memory"),
	}
}

// Create implements Repository.
func (r *MemoryRepository) Create(_ context.Context, in *models.Invoice) (*models.Invoice, error) {
	rec, err := prepareCreate(in, bson.NewObjectID().Hex(), r.now())
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byFile[rec.FileID]; taken {
		return nil, invoice.ErrConflict
	}
	r.byID[rec.ID] = rec
	r.byFile[rec.FileID] = rec.ID

	r.log.Debug().Str("id", rec.ID).Str("file_id", rec.FileID).Msg("Created invoice")
	out := rec.Clone()
	return &out, nil
}

// Update implements Repository.
func (r *MemoryRepository) Update(_ context.Context, id string, patch models.InvoicePatch) (*models.Invoice, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[id]
	if !ok {
		return nil, invoice.ErrNotFound
	}
	rec, err := prepareUpdate(existing, patch, r.now())
	if err != nil {
		return nil, err
	}
	if owner, taken := r.byFile[rec.FileID]; taken && owner != id {
		return nil, invoice.ErrConflict
	}

	delete(r.byFile, existing.FileID)
	r.byFile[rec.FileID] = id
	r.byID[id] = rec

	out := rec.Clone()
	return &out, nil
}

// Delete implements Repository.
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[id]
	if !ok {
		return invoice.ErrNotFound
	}
	delete(r.byID, id)
	delete(r.byFile, existing.FileID)
	return nil
}

// FindByID implements Repository.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*models.Invoice, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID[id]
	if !ok {
		return nil, invoice.ErrNotFound
	}
	out := rec.Clone()
	return &out, nil
}

// Search implements Repository. The page and the total come from the same
// filtered snapshot.
func (r *MemoryRepository) Search(_ context.Context, params SearchParams) (*SearchResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	matches := make([]models.Invoice, 0, len(r.byID))
	needle := strings.ToLower(params.Query)
	for _, rec := range r.byID {
		if needle == "" ||
			strings.Contains(strings.ToLower(rec.Vendor.Name), needle) ||
			strings.Contains(strings.ToLower(rec.Invoice.Number), needle) {
			matches = append(matches, rec.Clone())
		}
	}
	r.mu.RUnlock()

	compare := comparator(params.SortBy)
	desc := params.SortOrder == SortDescending
	slices.SortFunc(matches, func(a, b models.Invoice) int {
		c := compare(a, b)
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		if desc {
			return -c
		}
		return c
	})

	total := int64(len(matches))
	start := min(params.skip(), total)
	end := min(start+int64(params.Limit), total)
	return newSearchResult(matches[start:end], total, params), nil
}

// comparator orders records by one sort field. Missing values sort first,
// as they do in MongoDB.
func comparator(field string) func(a, b models.Invoice) int {
	switch field {
	case "updatedAt":
		return func(a, b models.Invoice) int { return compareTimePtr(a.UpdatedAt, b.UpdatedAt) }
	case "fileName":
		return func(a, b models.Invoice) int { return strings.Compare(a.FileName, b.FileName) }
	case "vendor.name":
		return func(a, b models.Invoice) int { return strings.Compare(a.Vendor.Name, b.Vendor.Name) }
	case "invoice.number":
		return func(a, b models.Invoice) int { return strings.Compare(a.Invoice.Number, b.Invoice.Number) }
	case "invoice.date":
		return func(a, b models.Invoice) int { return strings.Compare(a.Invoice.Date, b.Invoice.Date) }
	case "invoice.total":
		return func(a, b models.Invoice) int { return compareFloatPtr(a.Invoice.Total, b.Invoice.Total) }
	default:
		return func(a, b models.Invoice) int { return a.CreatedAt.Compare(b.CreatedAt) }
	}
}

func compareTimePtr(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return a.Compare(*b)
	}
}

func compareFloatPtr(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return cmp.Compare(*a, *b)
	}
}
