package invoice_test

import (
	"fmt"
	"time"

	"invoicer/internal/invoice"
)

// Model replies are often fenced, use snake_case keys and local number formats.
func ExampleNormalizer_Normalize() {
	n := invoice.NewNormalizerWithDeps(time.Now, func(int) int { return 0 })

	raw := "```json\n" + `{
  "vendor": {"name": "Acme GmbH"},
  "invoice": {
    "invoice_number": "INV-7",
    "date": "03.02.2025",
    "currency": "€",
    "total": "1.234,50"
  }
}` + "\n```"

	data := n.Normalize(raw)
	fmt.Println(data.Vendor.Name)
	fmt.Println(data.Invoice.Number, data.Invoice.Date, data.Invoice.Currency, *data.Invoice.Total)
	fmt.Println(len(data.Invoice.LineItems))
	// Output:
	// Acme GmbH
	// INV-7 2025-02-03 EUR 1234.5
	// 0
}

// Unparseable output still yields a well-formed payload.
func ExampleNormalizer_Normalize_defaults() {
	today := func() time.Time { return time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC) }
	n := invoice.NewNormalizerWithDeps(today, func(int) int { return 42 })

	data := n.Normalize("Sorry, I could not read this document.")
	fmt.Println(data.Vendor.Name)
	fmt.Println(data.Invoice.Number, data.Invoice.Date, data.Invoice.Currency)
	// Output:
	// Unknown Vendor
	// DOC-0042 2025-01-15 USD
}

func ExampleLineTotal() {
	discount, vat := 10.0, 19.0
	fmt.Println(invoice.LineTotal(12.5, 4, &discount, &vat))
	fmt.Println(invoice.LineTotal(9.99, 3, nil, nil))
	// Output:
	// 53.55
	// 29.97
}
