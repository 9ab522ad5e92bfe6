package models

import "time"

// Vendor is the issuing party embedded in an Invoice.
type Vendor struct {
	Name    string `json:"name"`              // Vendor/supplier name
	Address string `json:"address,omitempty"` // Postal address as printed on the document
	TaxID   string `json:"taxId,omitempty"`   // VAT / tax registration number
}

// LineItem is a single billed position. Discount and VAT are percentages.
type LineItem struct {
	Description string   `json:"description"`
	UnitPrice   float64  `json:"unitPrice"`
	Quantity    float64  `json:"quantity"`
	Total       float64  `json:"total"`
	Discount    *float64 `json:"discount,omitempty"`
	VAT         *float64 `json:"vat,omitempty"`
}

// InvoiceData holds the document-level invoice fields.
type InvoiceData struct {
	Number     string     `json:"number"`
	Date       string     `json:"date"` // YYYY-MM-DD
	Currency   string     `json:"currency,omitempty"`
	Subtotal   *float64   `json:"subtotal,omitempty"`
	TaxPercent *float64   `json:"taxPercent,omitempty"`
	Total      *float64   `json:"total,omitempty"`
	PONumber   string     `json:"poNumber,omitempty"`
	PODate     string     `json:"poDate,omitempty"`
	LineItems  []LineItem `json:"lineItems"`
}

// Invoice is the aggregate record stored by the repository.
type Invoice struct {
	// Identity
	ID       string `json:"id"`       // Store identifier (24 hex characters)
	FileID   string `json:"fileId"`   // Weak reference to the stored PDF, unique per invoice
	FileName string `json:"fileName"` // Original upload name

	// Owned sections
	Vendor  Vendor      `json:"vendor"`
	Invoice InvoiceData `json:"invoice"`

	// Timestamps
	CreatedAt time.Time  `json:"createdAt"`           // Set once on create
	UpdatedAt *time.Time `json:"updatedAt,omitempty"` // Absent until the first update
}

// ExtractedData is the canonical output of the extraction pipeline.
type ExtractedData struct {
	Vendor  Vendor      `json:"vendor"`
	Invoice InvoiceData `json:"invoice"`
}

// VendorPatch carries the vendor fields to overwrite on update.
type VendorPatch struct {
	Name    *string `json:"name,omitempty"`
	Address *string `json:"address,omitempty"`
	TaxID   *string `json:"taxId,omitempty"`
}

// InvoiceDataPatch carries the invoice fields to overwrite on update.
// LineItems replaces the whole sequence when present.
type InvoiceDataPatch struct {
	Number     *string     `json:"number,omitempty"`
	Date       *string     `json:"date,omitempty"`
	Currency   *string     `json:"currency,omitempty"`
	Subtotal   *float64    `json:"subtotal,omitempty"`
	TaxPercent *float64    `json:"taxPercent,omitempty"`
	Total      *float64    `json:"total,omitempty"`
	PONumber   *string     `json:"poNumber,omitempty"`
	PODate     *string     `json:"poDate,omitempty"`
	LineItems  *[]LineItem `json:"lineItems,omitempty"`
}

// InvoicePatch is a partial update. Nil sections are left untouched.
type InvoicePatch struct {
	FileID   *string           `json:"fileId,omitempty"`
	FileName *string           `json:"fileName,omitempty"`
	Vendor   *VendorPatch      `json:"vendor,omitempty"`
	Invoice  *InvoiceDataPatch `json:"invoice,omitempty"`
}

// IsEmpty reports whether the patch carries no changes.
func (p InvoicePatch) IsEmpty() bool {
	return p.FileID == nil && p.FileName == nil && p.Vendor == nil && p.Invoice == nil
}

// Apply merges the patch into a copy of inv and returns it.
func (p InvoicePatch) Apply(inv Invoice) Invoice {
	if p.FileID != nil {
		inv.FileID = *p.FileID
	}
	if p.FileName != nil {
		inv.FileName = *p.FileName
	}
	if v := p.Vendor; v != nil {
		if v.Name != nil {
			inv.Vendor.Name = *v.Name
		}
		if v.Address != nil {
			inv.Vendor.Address = *v.Address
		}
		if v.TaxID != nil {
			inv.Vendor.TaxID = *v.TaxID
		}
	}
	if d := p.Invoice; d != nil {
		if d.Number != nil {
			inv.Invoice.Number = *d.Number
		}
		if d.Date != nil {
			inv.Invoice.Date = *d.Date
		}
		if d.Currency != nil {
			inv.Invoice.Currency = *d.Currency
		}
		if d.Subtotal != nil {
			inv.Invoice.Subtotal = d.Subtotal
		}
		if d.TaxPercent != nil {
			inv.Invoice.TaxPercent = d.TaxPercent
		}
		if d.Total != nil {
			inv.Invoice.Total = d.Total
		}
		if d.PONumber != nil {
			inv.Invoice.PONumber = *d.PONumber
		}
		if d.PODate != nil {
			inv.Invoice.PODate = *d.PODate
		}
		if d.LineItems != nil {
			inv.Invoice.LineItems = append([]LineItem(nil), (*d.LineItems)...)
		}
	}
	return inv
}

// Clone returns a deep copy of the invoice.
func (inv Invoice) Clone() Invoice {
	out := inv
	out.Invoice.LineItems = append([]LineItem{}, inv.Invoice.LineItems...)
	if inv.UpdatedAt != nil {
		t := *inv.UpdatedAt
		out.UpdatedAt = &t
	}
	return out
}
