// Package export writes invoice records to spreadsheets: an XLSX workbook
// for download and a Google Sheets worksheet for shared bookkeeping.
package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"invoicer/internal/repository"
	"invoicer/pkg/models"
)

// Headers are the column titles shared by both exporters.
var Headers = []string{
	"File Name",
	"Invoice Number",
	"Invoice Date",
	"Vendor",
	"Vendor Tax ID",
	"Currency",
	"Subtotal",
	"Tax %",
	"Tax Amount",
	"Total",
	"PO Number",
	"Line Items",
	"Created At",
}

// timestampLayout formats createdAt in exported rows.
const timestampLayout = "2006-01-02 15:04:05"

// Row is one exported invoice. Amount columns are nil when the invoice does
// not carry them, so the cell stays empty instead of showing 0.
type Row struct {
	FileName   string
	Number     string
	Date       string
	Vendor     string
	VendorTax  string
	Currency   string
	Subtotal   *float64
	TaxPercent *float64
	TaxAmount  *float64
	Total      *float64
	PONumber   string
	LineItems  string
	CreatedAt  string
}

// NewRow flattens an invoice into export columns.
func NewRow(inv models.Invoice) Row {
	return Row{
		FileName:   inv.FileName,
		Number:     inv.Invoice.Number,
		Date:       inv.Invoice.Date,
		Vendor:     inv.Vendor.Name,
		VendorTax:  inv.Vendor.TaxID,
		Currency:   inv.Invoice.Currency,
		Subtotal:   inv.Invoice.Subtotal,
		TaxPercent: inv.Invoice.TaxPercent,
		TaxAmount:  taxAmount(inv.Invoice),
		Total:      inv.Invoice.Total,
		PONumber:   inv.Invoice.PONumber,
		LineItems:  summarizeLineItems(inv.Invoice.LineItems),
		CreatedAt:  inv.CreatedAt.UTC().Format(timestampLayout),
	}
}

// Values returns the row in Headers order. Missing amounts are empty strings.
func (r Row) Values() []interface{} {
	return []interface{}{
		r.FileName,
		r.Number,
		r.Date,
		r.Vendor,
		r.VendorTax,
		r.Currency,
		amountValue(r.Subtotal),
		amountValue(r.TaxPercent),
		amountValue(r.TaxAmount),
		amountValue(r.Total),
		r.PONumber,
		r.LineItems,
		r.CreatedAt,
	}
}

func amountValue(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

// taxAmount is total minus subtotal when both are known.
func taxAmount(d models.InvoiceData) *float64 {
	if d.Subtotal == nil || d.Total == nil {
		return nil
	}
	tax, _ := decimal.NewFromFloat(*d.Total).Sub(decimal.NewFromFloat(*d.Subtotal)).Round(2).Float64()
	return &tax
}

func summarizeLineItems(items []models.LineItem) string {
	parts := make([]string, 0, len(items))
	for _, li := range items {
		qty := decimal.NewFromFloat(li.Quantity).String()
		parts = append(parts, fmt.Sprintf("%s x %s", qty, li.Description))
	}
	return strings.Join(parts, "; ")
}

// Collect pages through every invoice matching query, oldest first.
func Collect(ctx context.Context, repo repository.Repository, query string) ([]models.Invoice, error) {
	const op = "Collect"

	params := repository.SearchParams{
		Query:     query,
		Page:      1,
		Limit:     repository.MaxLimit,
		SortBy:    "createdAt",
		SortOrder: repository.SortAscending,
	}

	var out []models.Invoice
	for {
		res, err := repo.Search(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("%s: search page %d: %w", op, params.Page, err)
		}
		out = append(out, res.Items...)
		if params.Page >= res.Pages {
			return out, nil
		}
		params.Page++
	}
}
