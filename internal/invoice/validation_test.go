package invoice

import (
	"errors"
	"strings"
	"testing"

	"invoicer/pkg/models"
)

func validInvoice() *models.Invoice {
	return &models.Invoice{
		FileID:   "abc",
		FileName: "acme.pdf",
		Vendor:   models.Vendor{Name: "Acme"},
		Invoice: models.InvoiceData{
			Number:    "INV-1",
			Date:      "2024-01-15",
			Currency:  "USD",
			LineItems: []models.LineItem{},
		},
	}
}

func TestValidate(t *testing.T) {
	neg := -1.0
	over := 150.0

	tests := []struct {
		name       string
		mutate     func(inv *models.Invoice)
		wantFields []string
	}{
		{
			name:   "valid",
			mutate: func(inv *models.Invoice) {},
		},
		{
			name: "valid with line items",
			mutate: func(inv *models.Invoice) {
				inv.Invoice.LineItems = []models.LineItem{{Description: "Widget", UnitPrice: 2, Quantity: 3, Total: 6}}
			},
		},
		{
			name:       "missing required strings",
			mutate:     func(inv *models.Invoice) { inv.FileID = ""; inv.Vendor.Name = ""; inv.Invoice.Number = "" },
			wantFields: []string{"fileId", "invoice.number", "vendor.name"},
		},
		{
			name:       "bad date",
			mutate:     func(inv *models.Invoice) { inv.Invoice.Date = "15/01/2024" },
			wantFields: []string{"invoice.date"},
		},
		{
			name: "ranges",
			mutate: func(inv *models.Invoice) {
				inv.Invoice.TaxPercent = &over
				inv.Invoice.Total = &neg
				inv.Invoice.LineItems = []models.LineItem{{Description: "x", UnitPrice: -1, Quantity: 1, Total: 1}}
			},
			wantFields: []string{"invoice.lineItems[0].unitPrice", "invoice.taxPercent", "invoice.total"},
		},
		{
			name:       "lengths",
			mutate:     func(inv *models.Invoice) { inv.Vendor.TaxID = strings.Repeat("9", 51); inv.Invoice.Currency = "DOLLARS-US-X" },
			wantFields: []string{"invoice.currency", "vendor.taxId"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := validInvoice()
			tt.mutate(inv)

			err := Validate(inv)
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}

			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			got := map[string]bool{}
			for _, f := range ve.Fields {
				got[f.Field] = true
			}
			for _, want := range tt.wantFields {
				if !got[want] {
					t.Errorf("missing field error for %q in %v", want, ve.Fields)
				}
			}
			if !IsValidation(err) {
				t.Error("IsValidation() = false")
			}
		})
	}
}

func TestFieldPath(t *testing.T) {
	tests := map[string]string{
		"":                           "",
		"/vendor/name":               "vendor.name",
		"/invoice/lineItems/2/total": "invoice.lineItems[2].total",
		"/invoice/lineItems/10":      "invoice.lineItems[10]",
	}
	for in, want := range tests {
		if got := fieldPath(in); got != want {
			t.Errorf("fieldPath(%q) = %q, want %q", in, got, want)
		}
	}
}
