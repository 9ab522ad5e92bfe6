// Package invoice holds the invoice domain rules shared by every backend:
// the error taxonomy, record validation and the normalizer that turns raw
// language-model output into a canonical invoice payload.
//
// Normalization never fails. Model output is untrusted, so anything that
// cannot be parsed degrades to a defaulted but well-formed result:
//   - vendor.name defaults to "Unknown Vendor"
//   - invoice.number defaults to "DOC-" followed by four random digits
//   - invoice.date defaults to today (YYYY-MM-DD)
//   - invoice.currency defaults to "USD"
//   - invoice.lineItems defaults to an empty list
//
// Line totals derived from model output are recomputed as
// unitPrice × quantity × (1 − discount/100) × (1 + vat/100), rounded to cents.
package invoice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"invoicer/internal/logger"
	"invoicer/pkg/models"
)

const (
	DefaultVendorName = "Unknown Vendor"
	DefaultCurrency   = "USD"
	DateLayout        = "2006-01-02"
)

var (
	fenceRe         = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\\r?\\n?(.*?)```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	amountCleanRe   = regexp.MustCompile(`[^0-9.,\-]`)

	// Layouts accepted for invoice dates besides YYYY-MM-DD.
	dateLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006/01/02",
		"02.01.2006",
		"January 2, 2006",
		"Jan 2, 2006",
		"2 January 2006",
		"2 Jan 2006",
	}
)

// Normalizer repairs and defaults raw extraction output.
type Normalizer struct {
	now  func() time.Time
	intn func(n int) int
	log  zerolog.Logger
}

// NewNormalizer creates a normalizer using the wall clock and a random source.
func NewNormalizer() *Normalizer {
	return NewNormalizerWithDeps(time.Now, rand.IntN)
}

// NewNormalizerWithDeps creates a normalizer with an explicit clock and random source.
func NewNormalizerWithDeps(now func() time.Time, intn func(n int) int) *Normalizer {
	return &Normalizer{
		now:  now,
		intn: intn,
		log:  logger.WithComponent("normalizer"),
	}
}

// Normalize converts raw model text into canonical extracted data.
func (n *Normalizer) Normalize(raw string) models.ExtractedData {
	root, ok := parseObject(raw)
	if !ok {
		n.log.Warn().
			Int("raw_length", len(raw)).
			Msg("Model output is not a JSON object, falling back to defaults")
		root = map[string]interface{}{}
	}

	vendor := asObject(root["vendor"])
	inv := asObject(root["invoice"])

	out := models.ExtractedData{
		Vendor: models.Vendor{
			Name:    str(vendor["name"]),
			Address: str(pick(vendor, "address")),
			TaxID:   str(pick(vendor, "taxId", "tax_id", "vatId", "vat_id")),
		},
		Invoice: models.InvoiceData{
			Number:     str(pick(inv, "number", "invoiceNumber", "invoice_number")),
			Date:       n.normalizeDate("invoice.date", str(pick(inv, "date", "invoiceDate", "invoice_date"))),
			Currency:   normalizeCurrency(str(inv["currency"])),
			Subtotal:   num(inv["subtotal"]),
			TaxPercent: num(pick(inv, "taxPercent", "tax_percent")),
			Total:      num(inv["total"]),
			PONumber:   str(pick(inv, "poNumber", "po_number")),
			PODate:     n.normalizeDate("invoice.poDate", str(pick(inv, "poDate", "po_date"))),
			LineItems:  lineItems(pick(inv, "lineItems", "line_items")),
		},
	}

	if out.Vendor.Name == "" {
		out.Vendor.Name = DefaultVendorName
	}
	if out.Invoice.Number == "" {
		out.Invoice.Number = fmt.Sprintf("DOC-%04d", n.intn(10000))
	}
	if out.Invoice.Date == "" {
		out.Invoice.Date = n.now().Format(DateLayout)
	}

	n.log.Debug().
		Str("vendor", out.Vendor.Name).
		Str("number", out.Invoice.Number).
		Int("line_items", len(out.Invoice.LineItems)).
		Msg("Normalized extraction output")

	return out
}

// LineTotal computes unitPrice × quantity × (1 − discount/100) × (1 + vat/100)
// rounded to two decimal places.
func LineTotal(unitPrice, quantity float64, discount, vat *float64) float64 {
	hundred := decimal.NewFromInt(100)
	total := decimal.NewFromFloat(unitPrice).Mul(decimal.NewFromFloat(quantity))
	if discount != nil {
		total = total.Mul(decimal.NewFromInt(1).Sub(decimal.NewFromFloat(*discount).Div(hundred)))
	}
	if vat != nil {
		total = total.Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(*vat).Div(hundred)))
	}
	f, _ := total.Round(2).Float64()
	return f
}

// Round2 rounds half away from zero to two decimal places.
func Round2(f float64) float64 {
	r, _ := decimal.NewFromFloat(f).Round(2).Float64()
	return r
}

// StripFences removes a markdown code fence around the payload, if any.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// parseObject extracts a JSON object from raw model text, repairing common
// defects (fences, surrounding prose, trailing commas) when a direct parse fails.
func parseObject(raw string) (map[string]interface{}, bool) {
	s := StripFences(raw)
	if obj, ok := decodeObject(s); ok {
		return obj, true
	}

	start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	s = trailingCommaRe.ReplaceAllString(s[start:end+1], "$1")
	return decodeObject(s)
}

func decodeObject(s string) (map[string]interface{}, bool) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	obj, ok := v.(map[string]interface{})
	return obj, ok
}

func asObject(v interface{}) map[string]interface{} {
	if obj, ok := v.(map[string]interface{}); ok {
		return obj
	}
	return map[string]interface{}{}
}

// pick returns the first non-nil value among the given keys.
func pick(m map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func str(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return decimal.NewFromFloat(t).String()
	default:
		return ""
	}
}

// num coerces numbers and numeric strings ("$1,234.50", "19%", "1.234,50").
func num(v interface{}) *float64 {
	var d decimal.Decimal
	switch t := v.(type) {
	case json.Number:
		parsed, err := decimal.NewFromString(t.String())
		if err != nil {
			return nil
		}
		d = parsed
	case float64:
		d = decimal.NewFromFloat(t)
	case string:
		parsed, ok := parseAmount(t)
		if !ok {
			return nil
		}
		d = parsed
	default:
		return nil
	}
	f, _ := d.Float64()
	return &f
}

// parseAmount handles both "1,234.50" and "1.234,50" style amounts.
func parseAmount(s string) (decimal.Decimal, bool) {
	cleaned := amountCleanRe.ReplaceAllString(strings.TrimSpace(s), "")
	if cleaned == "" {
		return decimal.Zero, false
	}

	lastDot, lastComma := strings.LastIndex(cleaned, "."), strings.LastIndex(cleaned, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0 && lastComma > lastDot:
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	case lastComma >= 0 && lastDot < 0 && len(cleaned)-lastComma-1 <= 2 && strings.Count(cleaned, ",") == 1:
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	default:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// normalizeDate rewrites recognised date layouts to YYYY-MM-DD and returns ""
// for anything it cannot read. Dropped values are logged.
func (n *Normalizer) normalizeDate(field, s string) string {
	if s == "" {
		return ""
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t.Format(DateLayout)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout)
		}
	}
	n.log.Warn().
		Str("field", field).
		Str("value", s).
		Msg("Unrecognised date format, value dropped")
	return ""
}

func normalizeCurrency(currency string) string {
	normalized := strings.ToUpper(strings.TrimSpace(currency))
	switch normalized {
	case "":
		return DefaultCurrency
	case "$", "US$", "DOLLAR", "DOLLARS":
		return "USD"
	case "€", "EURO", "EUROS":
		return "EUR"
	case "£", "POUND", "POUNDS":
		return "GBP"
	case "¥", "YEN":
		return "JPY"
	case "₹", "RS", "RUPEE", "RUPEES":
		return "INR"
	default:
		return normalized
	}
}

func lineItems(v interface{}) []models.LineItem {
	items := []models.LineItem{}
	arr, ok := v.([]interface{})
	if !ok {
		return items
	}

	for _, raw := range arr {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}

		item := models.LineItem{
			Description: str(pick(obj, "description", "name", "item")),
			Discount:    num(obj["discount"]),
			VAT:         num(pick(obj, "vat", "tax", "taxPercent")),
		}
		unitPrice := num(pick(obj, "unitPrice", "unit_price", "price"))
		quantity := num(pick(obj, "quantity", "qty"))
		total := num(pick(obj, "total", "amount"))

		if quantity != nil {
			item.Quantity = *quantity
		} else {
			item.Quantity = 1
		}

		switch {
		case unitPrice != nil:
			item.UnitPrice = *unitPrice
			item.Total = LineTotal(item.UnitPrice, item.Quantity, item.Discount, item.VAT)
		case total != nil:
			item.Total = *total
			if item.Quantity != 0 {
				item.UnitPrice, _ = decimal.NewFromFloat(*total).
					Div(decimal.NewFromFloat(item.Quantity)).Round(2).Float64()
			}
		}

		items = append(items, item)
	}
	return items
}
