package invoice

import (
	"bytes"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestNormalizer() *Normalizer {
	return NewNormalizerWithDeps(func() time.Time { return fixedNow }, func(int) int { return 42 })
}

func TestNormalizeFencedMalformedLineItems(t *testing.T) {
	n := NewNormalizer()
	raw := "```json\n{\"vendor\":{},\"invoice\":{\"lineItems\":\"not-an-array\"}}\n```"

	got := n.Normalize(raw)

	if got.Vendor.Name != "Unknown Vendor" {
		t.Errorf("vendor.name = %q, want Unknown Vendor", got.Vendor.Name)
	}
	if got.Invoice.LineItems == nil || len(got.Invoice.LineItems) != 0 {
		t.Errorf("lineItems = %#v, want empty non-nil slice", got.Invoice.LineItems)
	}
	if today := time.Now().Format(DateLayout); got.Invoice.Date != today {
		t.Errorf("invoice.date = %q, want %q", got.Invoice.Date, today)
	}
	if got.Invoice.Currency != "USD" {
		t.Errorf("currency = %q, want USD", got.Invoice.Currency)
	}
}

func TestNormalizeDefaults(t *testing.T) {
	inputs := map[string]string{
		"empty":          "",
		"whitespace":     "   \n",
		"prose":          "Sorry, I could not read this document.",
		"array":          `[{"vendor":{"name":"x"}}]`,
		"string json":    `"vendor"`,
		"null sections":  `{"vendor":null,"invoice":null}`,
		"wrong types":    `{"vendor":"Acme","invoice":[1,2,3]}`,
		"null fields":    `{"vendor":{"name":null},"invoice":{"number":null,"date":null,"currency":null,"lineItems":null}}`,
		"blank fields":   `{"vendor":{"name":"  "},"invoice":{"number":"","date":"","currency":" "}}`,
		"bad date":       `{"invoice":{"date":"sometime last week"}}`,
		"truncated":      "```json\n{\"vendor\":{\"name\":",
		"unclosed fence": "```json\n{\"invoice\":{\"lineItems\":{}}}",
	}

	n := newTestNormalizer()
	for name, raw := range inputs {
		t.Run(name, func(t *testing.T) {
			got := n.Normalize(raw)

			if got.Vendor.Name == "" {
				t.Error("vendor.name is empty")
			}
			if got.Invoice.Number == "" {
				t.Errorf("invoice.number = %q", got.Invoice.Number)
			}
			if _, err := time.Parse(DateLayout, got.Invoice.Date); err != nil {
				t.Errorf("invoice.date = %q is not YYYY-MM-DD", got.Invoice.Date)
			}
			if got.Invoice.LineItems == nil {
				t.Error("lineItems is nil")
			}
			if got.Invoice.Currency == "" {
				t.Error("currency is empty")
			}

			// Normalizing the canonical output again changes nothing.
			b, err := json.Marshal(got)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			again := n.Normalize(string(b))
			b2, _ := json.Marshal(again)
			if string(b) != string(b2) {
				t.Errorf("normalization is not idempotent:\n first: %s\nsecond: %s", b, b2)
			}
		})
	}
}

func TestNormalizePlaceholderNumber(t *testing.T) {
	got := newTestNormalizer().Normalize(`{}`)
	if !regexp.MustCompile(`^DOC-\d{4}$`).MatchString(got.Invoice.Number) || got.Invoice.Number != "DOC-0042" {
		t.Errorf("invoice.number = %q, want DOC-0042", got.Invoice.Number)
	}
	if got.Invoice.Date != "2025-03-14" {
		t.Errorf("invoice.date = %q, want 2025-03-14", got.Invoice.Date)
	}
}

func TestNormalizeFullDocument(t *testing.T) {
	raw := "Here is the data you asked for:\n```json\n" + `{
  "vendor": {"name": "Acme GmbH", "address": "Hauptstr. 1, Berlin", "taxId": "DE123456789"},
  "invoice": {
    "number": "INV-2024-001",
    "date": "15.01.2024",
    "currency": "€",
    "subtotal": "1.234,50",
    "taxPercent": "19%",
    "total": 1469.06,
    "poNumber": "PO-77",
    "lineItems": [
      {"description": "Widget", "unitPrice": 10, "quantity": 3, "total": 999},
      {"description": "Service", "unitPrice": "100.00", "quantity": "2", "discount": 10, "vat": 19},
      "garbage",
      {"description": "Flat fee", "total": "50"},
    ]
  }
}` + "\n```"

	got := newTestNormalizer().Normalize(raw)

	if got.Vendor.Name != "Acme GmbH" || got.Vendor.TaxID != "DE123456789" {
		t.Errorf("vendor = %+v", got.Vendor)
	}
	if got.Invoice.Number != "INV-2024-001" {
		t.Errorf("number = %q", got.Invoice.Number)
	}
	if got.Invoice.Date != "2024-01-15" {
		t.Errorf("date = %q, want 2024-01-15", got.Invoice.Date)
	}
	if got.Invoice.Currency != "EUR" {
		t.Errorf("currency = %q, want EUR", got.Invoice.Currency)
	}
	if got.Invoice.Subtotal == nil || *got.Invoice.Subtotal != 1234.5 {
		t.Errorf("subtotal = %v, want 1234.5", got.Invoice.Subtotal)
	}
	if got.Invoice.TaxPercent == nil || *got.Invoice.TaxPercent != 19 {
		t.Errorf("taxPercent = %v, want 19", got.Invoice.TaxPercent)
	}

	items := got.Invoice.LineItems
	if len(items) != 3 {
		t.Fatalf("lineItems = %d, want 3 (non-object entries dropped)", len(items))
	}
	if items[0].Total != 30 {
		t.Errorf("items[0].total = %v, want recomputed 30", items[0].Total)
	}
	// 100 × 2 × 0.9 × 1.19
	if items[1].Total != 214.2 {
		t.Errorf("items[1].total = %v, want 214.2", items[1].Total)
	}
	if items[2].Total != 50 || items[2].Quantity != 1 || items[2].UnitPrice != 50 {
		t.Errorf("items[2] = %+v, want total 50 qty 1 unitPrice 50", items[2])
	}
}

func TestNormalizeKeepsNegativeValues(t *testing.T) {
	got := newTestNormalizer().Normalize(`{"invoice":{"lineItems":[{"description":"refund","unitPrice":-5,"quantity":2}]}}`)
	if len(got.Invoice.LineItems) != 1 || got.Invoice.LineItems[0].Total != -10 {
		t.Errorf("lineItems = %+v, want total -10 passed through", got.Invoice.LineItems)
	}
}

func TestLineTotal(t *testing.T) {
	pct := func(v float64) *float64 { return &v }

	tests := []struct {
		name      string
		unitPrice float64
		quantity  float64
		discount  *float64
		vat       *float64
		want      float64
	}{
		{"plain", 12.5, 4, nil, nil, 50},
		{"discount only", 100, 1, pct(25), nil, 75},
		{"vat only", 100, 1, nil, pct(19), 119},
		{"both", 19.99, 3, pct(5), pct(7), 60.96},
		{"rounding", 0.1, 3, nil, nil, 0.3},
		{"zero quantity", 10, 0, nil, pct(20), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LineTotal(tt.unitPrice, tt.quantity, tt.discount, tt.vat); got != tt.want {
				t.Errorf("LineTotal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"```JSON {\"a\":1}```", `{"a":1}`},
		{`{"a":1}`, `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := StripFences(tt.in); got != tt.want {
			t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeLogsDroppedDate(t *testing.T) {
	var buf bytes.Buffer
	n := newTestNormalizer()
	n.log = zerolog.New(&buf)

	got := n.Normalize(`{"invoice":{"date":"sometime last week","poDate":"31.02.2024"}}`)
	if got.Invoice.Date != fixedNow.Format(DateLayout) || got.Invoice.PODate != "" {
		t.Errorf("date/poDate = %q/%q", got.Invoice.Date, got.Invoice.PODate)
	}

	var entries []map[string]interface{}
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var e map[string]interface{}
		if err := dec.Decode(&e); err != nil {
			t.Fatalf("decode log: %v", err)
		}
		if e["level"] == "warn" && e["field"] != nil {
			entries = append(entries, e)
		}
	}
	if len(entries) != 2 {
		t.Fatalf("dropped-date warnings = %d, want 2: %v", len(entries), entries)
	}
	if entries[0]["field"] != "invoice.date" || entries[0]["value"] != "sometime last week" {
		t.Errorf("first warning = %v", entries[0])
	}
	if entries[1]["field"] != "invoice.poDate" || entries[1]["value"] != "31.02.2024" {
		t.Errorf("second warning = %v", entries[1])
	}

	buf.Reset()
	n.Normalize(`{"invoice":{"date":"2024-05-01"}}`)
	if bytes.Contains(buf.Bytes(), []byte("Unrecognised date")) {
		t.Errorf("valid date logged a warning: %s", buf.String())
	}
}
