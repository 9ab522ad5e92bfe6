package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"invoicer/internal/invoice"
	"invoicer/pkg/models"
)

func ptr[T any](v T) *T { return &v }

func sampleInvoice(fileID, vendor, number string) *models.Invoice {
	return &models.Invoice{
		FileID:   fileID,
		FileName: fileID + ".pdf",
		Vendor:   models.Vendor{Name: vendor, Address: "1 Main St"},
		Invoice: models.InvoiceData{
			Number:   number,
			Date:     "2024-03-01",
			Currency: "EUR",
			Total:    ptr(119.0),
			LineItems: []models.LineItem{
				{Description: "Hosting", UnitPrice: 100, Quantity: 1, Total: 100},
			},
		},
	}
}

// fixedClock returns one instant so updatedAt must be bumped.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCreateAssignsServerFields(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 123456789, time.UTC)
	repo := NewMemoryRepositoryWithClock(fixedClock(now))

	in := sampleInvoice("file-1", "Acme", "INV-1")
	in.ID = "client-supplied"
	in.UpdatedAt = ptr(now.Add(time.Hour))
	in.Invoice.Currency = ""

	got, err := repo.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if ValidateID(got.ID) != nil {
		t.Errorf("ID = %q, want 24 hex characters", got.ID)
	}
	if !got.CreatedAt.Equal(now.Truncate(time.Millisecond)) {
		t.Errorf("CreatedAt = %v", got.CreatedAt)
	}
	if got.UpdatedAt != nil {
		t.Errorf("UpdatedAt = %v, want nil", got.UpdatedAt)
	}
	if got.Invoice.Currency != invoice.DefaultCurrency {
		t.Errorf("Currency = %q, want %q", got.Invoice.Currency, invoice.DefaultCurrency)
	}
}

func TestCreateRejectsDuplicateFileID(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if _, err := repo.Create(ctx, sampleInvoice("file-1", "Acme", "INV-1")); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	_, err := repo.Create(ctx, sampleInvoice("file-1", "Other", "INV-2"))
	if !errors.Is(err, invoice.ErrConflict) {
		t.Fatalf("second Create() error = %v, want ErrConflict", err)
	}
	if err.Error() != "invoice with this file ID already exists" {
		t.Errorf("message = %q", err.Error())
	}

	res, err := repo.Search(ctx, DefaultSearchParams())
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 {
		t.Errorf("Total = %d, want 1", res.Total)
	}
}

func TestConcurrentCreateSameFileID(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Create(ctx, sampleInvoice("shared", "Acme", fmt.Sprintf("INV-%d", i)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, invoice.ErrConflict):
				conflicts++
			default:
				t.Errorf("Create() unexpected error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if created != 1 || conflicts != workers-1 {
		t.Errorf("created = %d, conflicts = %d", created, conflicts)
	}
}

func TestCreateValidation(t *testing.T) {
	repo := NewMemoryRepository()
	in := sampleInvoice("file-1", "", "INV-1")
	in.Invoice.Date = "01/03/2024"

	_, err := repo.Create(context.Background(), in)
	var ve *invoice.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Create() error = %v, want ValidationError", err)
	}
	if len(ve.Fields) < 2 {
		t.Errorf("Fields = %+v, want every violation listed", ve.Fields)
	}
}

func TestUpdateMergesAndStamps(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := NewMemoryRepositoryWithClock(fixedClock(now))
	ctx := context.Background()

	created, err := repo.Create(ctx, sampleInvoice("file-1", "Acme", "INV-1"))
	if err != nil {
		t.Fatal(err)
	}

	first, err := repo.Update(ctx, created.ID, models.InvoicePatch{
		Vendor: &models.VendorPatch{TaxID: ptr("DE123")},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if first.Vendor.Name != "Acme" || first.Vendor.Address != "1 Main St" || first.Vendor.TaxID != "DE123" {
		t.Errorf("Vendor = %+v, want merged fields", first.Vendor)
	}
	if !first.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", created.CreatedAt, first.CreatedAt)
	}
	if first.UpdatedAt == nil || !first.UpdatedAt.After(created.CreatedAt) {
		t.Fatalf("UpdatedAt = %v, want after createdAt", first.UpdatedAt)
	}

	second, err := repo.Update(ctx, created.ID, models.InvoicePatch{FileName: ptr("renamed.pdf")})
	if err != nil {
		t.Fatal(err)
	}
	if !second.UpdatedAt.After(*first.UpdatedAt) {
		t.Errorf("UpdatedAt %v not after %v with a stalled clock", second.UpdatedAt, first.UpdatedAt)
	}
	if second.Vendor.TaxID != "DE123" {
		t.Errorf("earlier patch lost: %+v", second.Vendor)
	}
}

func TestUpdateFailureLeavesRecordUnchanged(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	created, err := repo.Create(ctx, sampleInvoice("file-1", "Acme", "INV-1"))
	if err != nil {
		t.Fatal(err)
	}

	_, err = repo.Update(ctx, created.ID, models.InvoicePatch{
		FileName: ptr("new.pdf"),
		Invoice:  &models.InvoiceDataPatch{Date: ptr("yesterday")},
	})
	if !invoice.IsValidation(err) {
		t.Fatalf("Update() error = %v, want validation error", err)
	}

	got, err := repo.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.FileName != created.FileName || got.Invoice.Date != created.Invoice.Date || got.UpdatedAt != nil {
		t.Errorf("record partially updated: %+v", got)
	}
}

func TestUpdateFileIDConflict(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	a, _ := repo.Create(ctx, sampleInvoice("file-a", "Acme", "INV-1"))
	if _, err := repo.Create(ctx, sampleInvoice("file-b", "Acme", "INV-2")); err != nil {
		t.Fatal(err)
	}

	_, err := repo.Update(ctx, a.ID, models.InvoicePatch{FileID: ptr("file-b")})
	if !errors.Is(err, invoice.ErrConflict) {
		t.Fatalf("Update() error = %v, want ErrConflict", err)
	}

	// Re-asserting its own fileId is not a conflict.
	if _, err := repo.Update(ctx, a.ID, models.InvoicePatch{FileID: ptr("file-a")}); err != nil {
		t.Errorf("Update() same fileId error = %v", err)
	}
}

func TestReturnedRecordsAreIsolated(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	created, _ := repo.Create(ctx, sampleInvoice("file-1", "Acme", "INV-1"))
	created.Vendor.Name = "mutated"
	created.Invoice.LineItems[0].Description = "mutated"

	got, err := repo.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Vendor.Name != "Acme" || got.Invoice.LineItems[0].Description != "Hosting" {
		t.Errorf("store shares memory with caller: %+v", got)
	}
}

func TestIDErrors(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	missing := bson.NewObjectID().Hex()

	tests := []struct {
		name string
		call func(id string) error
		id   string
		want error
	}{
		{"find malformed", func(id string) error { _, err := repo.FindByID(ctx, id); return err }, "abc", invoice.ErrInvalidID},
		{"find missing", func(id string) error { _, err := repo.FindByID(ctx, id); return err }, missing, invoice.ErrNotFound},
		{"update malformed", func(id string) error {
			_, err := repo.Update(ctx, id, models.InvoicePatch{FileName: ptr("x")})
			return err
		}, "zzzzzzzzzzzzzzzzzzzzzzzz", invoice.ErrInvalidID},
		{"update missing", func(id string) error {
			_, err := repo.Update(ctx, id, models.InvoicePatch{FileName: ptr("x")})
			return err
		}, missing, invoice.ErrNotFound},
		{"delete malformed", func(id string) error { return repo.Delete(ctx, id) }, "", invoice.ErrInvalidID},
		{"delete missing", func(id string) error { return repo.Delete(ctx, id) }, missing, invoice.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(tt.id); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDeleteFreesFileID(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	created, _ := repo.Create(ctx, sampleInvoice("file-1", "Acme", "INV-1"))
	if err := repo.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.FindByID(ctx, created.ID); !errors.Is(err, invoice.ErrNotFound) {
		t.Errorf("FindByID() after delete error = %v", err)
	}
	if _, err := repo.Create(ctx, sampleInvoice("file-1", "Acme", "INV-1")); err != nil {
		t.Errorf("Create() with freed fileId error = %v", err)
	}
}

func seed(t *testing.T, repo Repository, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		vendor := "Acme GmbH"
		if i%2 == 1 {
			vendor = "Globex"
		}
		if _, err := repo.Create(context.Background(), sampleInvoice(fmt.Sprintf("file-%02d", i), vendor, fmt.Sprintf("INV-%03d", i))); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSearch(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	repo := NewMemoryRepositoryWithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})
	seed(t, repo, 25)
	ctx := context.Background()

	tests := []struct {
		name      string
		params    SearchParams
		wantTotal int64
		wantPages int
		wantLen   int
		wantFirst string
	}{
		{
			name:      "defaults newest first",
			params:    DefaultSearchParams(),
			wantTotal: 25, wantPages: 3, wantLen: 10, wantFirst: "INV-024",
		},
		{
			name:      "last page",
			params:    SearchParams{Page: 3, Limit: 10, SortBy: "createdAt", SortOrder: "asc"},
			wantTotal: 25, wantPages: 3, wantLen: 5, wantFirst: "INV-020",
		},
		{
			name:      "past the end",
			params:    SearchParams{Page: 9, Limit: 10},
			wantTotal: 25, wantPages: 3, wantLen: 0,
		},
		{
			name:      "vendor substring case-insensitive",
			params:    SearchParams{Query: "acme", Page: 1, Limit: 100},
			wantTotal: 13, wantPages: 1, wantLen: 13,
		},
		{
			name:      "invoice number",
			params:    SearchParams{Query: "inv-01", Page: 1, Limit: 5, SortBy: "invoice.number", SortOrder: "asc"},
			wantTotal: 10, wantPages: 2, wantLen: 5, wantFirst: "INV-010",
		},
		{
			name:      "regex characters are literal",
			params:    SearchParams{Query: "INV.0", Page: 1, Limit: 10},
			wantTotal: 0, wantPages: 0, wantLen: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.Search(ctx, tt.params)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if res.Total != tt.wantTotal || res.Pages != tt.wantPages || len(res.Items) != tt.wantLen {
				t.Errorf("total=%d pages=%d len=%d, want %d/%d/%d",
					res.Total, res.Pages, len(res.Items), tt.wantTotal, tt.wantPages, tt.wantLen)
			}
			if tt.wantFirst != "" && len(res.Items) > 0 && res.Items[0].Invoice.Number != tt.wantFirst {
				t.Errorf("first = %q, want %q", res.Items[0].Invoice.Number, tt.wantFirst)
			}
			if res.Items == nil {
				t.Error("Items is nil, want empty slice")
			}
		})
	}
}

func TestSearchPagesDoNotOverlap(t *testing.T) {
	repo := NewMemoryRepositoryWithClock(fixedClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	seed(t, repo, 7)
	ctx := context.Background()

	seen := map[string]bool{}
	for page := 1; page <= 3; page++ {
		res, err := repo.Search(ctx, SearchParams{Page: page, Limit: 3})
		if err != nil {
			t.Fatal(err)
		}
		for _, item := range res.Items {
			if seen[item.ID] {
				t.Errorf("item %s returned twice", item.ID)
			}
			seen[item.ID] = true
		}
	}
	if len(seen) != 7 {
		t.Errorf("saw %d items across pages, want 7", len(seen))
	}
}

func TestSearchParamsValidate(t *testing.T) {
	tests := []struct {
		name      string
		params    SearchParams
		wantField string
	}{
		{"page zero", SearchParams{Page: 0, Limit: 10}, "page"},
		{"limit zero", SearchParams{Page: 1, Limit: 0}, "limit"},
		{"limit above max", SearchParams{Page: 1, Limit: MaxLimit + 1}, "limit"},
		{"unknown sort field", SearchParams{Page: 1, Limit: 10, SortBy: "vendor.address"}, "sortBy"},
		{"bad order", SearchParams{Page: 1, Limit: 10, SortOrder: "sideways"}, "sortOrder"},
		{"page offset overflows", SearchParams{Page: 1e17, Limit: MaxLimit}, "page"},
		{"max int page", SearchParams{Page: math.MaxInt, Limit: 1}, "page"},
		{"valid", SearchParams{Page: 1, Limit: MaxLimit, SortOrder: "ASC"}, ""},
		{"far page", SearchParams{Page: 1e15, Limit: MaxLimit, SortOrder: "asc"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.params
			err := p.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				if p.SortBy != DefaultSortBy || p.SortOrder != SortAscending {
					t.Errorf("normalized = %+v", p)
				}
				return
			}
			var ve *invoice.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if ve.Fields[0].Field != tt.wantField {
				t.Errorf("field = %q, want %q", ve.Fields[0].Field, tt.wantField)
			}
		})
	}
}

func TestSearchHugePageIsRejected(t *testing.T) {
	repo := NewMemoryRepository()
	if _, err := repo.Create(context.Background(), sampleInvoice("f-1", "Acme", "INV-1")); err != nil {
		t.Fatal(err)
	}

	params := DefaultSearchParams()
	params.Page = 1e17
	params.Limit = MaxLimit
	_, err := repo.Search(context.Background(), params)
	var ve *invoice.ValidationError
	if !errors.As(err, &ve) || ve.Fields[0].Field != "page" {
		t.Fatalf("Search() error = %v, want page ValidationError", err)
	}

	params.Page = 1e15
	res, err := repo.Search(context.Background(), params)
	if err != nil {
		t.Fatalf("Search() far page error = %v", err)
	}
	if len(res.Items) != 0 || res.Total != 1 {
		t.Errorf("far page = %d items, total %d; want 0, 1", len(res.Items), res.Total)
	}
}

func TestSearchFilter(t *testing.T) {
	if f := searchFilter(""); len(f) != 0 {
		t.Errorf("empty query filter = %v, want match-all", f)
	}

	f := searchFilter("a.b*")
	or, ok := f[0].Value.(bson.A)
	if f[0].Key != "$or" || !ok || len(or) != 2 {
		t.Fatalf("filter = %v", f)
	}
	re := or[0].(bson.D)[0].Value.(bson.Regex)
	if re.Pattern != `a\.b\*` || re.Options != "i" {
		t.Errorf("regex = %+v", re)
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	oid := bson.NewObjectID()
	updated := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	in := *sampleInvoice("file-1", "Acme", "INV-1")
	in.ID = oid.Hex()
	in.CreatedAt = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	in.UpdatedAt = &updated
	in.Invoice.LineItems[0].VAT = ptr(19.0)

	raw, err := bson.Marshal(toDocument(in, oid))
	if err != nil {
		t.Fatal(err)
	}
	var doc invoiceDocument
	if err := bson.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}
	out := doc.toModel()

	if out.ID != in.ID || out.Vendor != in.Vendor || !out.UpdatedAt.Equal(updated) {
		t.Errorf("round trip = %+v", out)
	}
	if *out.Invoice.LineItems[0].VAT != 19 || *out.Invoice.Total != 119 {
		t.Errorf("invoice = %+v", out.Invoice)
	}
}
