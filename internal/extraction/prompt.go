package extraction

import (
	"strings"
	"unicode/utf8"
)

const truncationMarker = "\n[... document truncated ...]"

// systemPrompt frames the model as a deterministic extractor.
const systemPrompt = `You are an invoice data extraction system.
You read the text of a single invoice document and return exactly one JSON object.
Never add explanations, markdown or code fences. Use null for values that are not present in the document.
Never invent values.`

// outputSchema describes the strict response shape expected from the model.
const outputSchema = `{
  "vendor": {
    "name": "string, issuing company",
    "address": "string or null",
    "taxId": "string or null, VAT or tax registration number"
  },
  "invoice": {
    "number": "string, invoice number",
    "date": "string, issue date as YYYY-MM-DD",
    "currency": "string, ISO 4217 code such as USD or EUR",
    "subtotal": "number or null, net amount",
    "taxPercent": "number or null, tax rate in percent",
    "total": "number or null, gross amount",
    "poNumber": "string or null, purchase order number",
    "poDate": "string or null, purchase order date as YYYY-MM-DD",
    "lineItems": [
      {
        "description": "string",
        "unitPrice": "number",
        "quantity": "number",
        "total": "number",
        "discount": "number or null, percent",
        "vat": "number or null, percent"
      }
    ]
  }
}`

// BuildPrompt embeds the document text and the output schema. Text longer
// than maxChars runes is cut and marked as truncated.
func BuildPrompt(documentText string, maxChars int) string {
	text := strings.TrimSpace(documentText)
	if maxChars > 0 && utf8.RuneCountInString(text) > maxChars {
		text = string([]rune(text)[:maxChars]) + truncationMarker
	}

	var sb strings.Builder
	sb.WriteString("Extract the invoice data from the document below.\n\n")
	sb.WriteString("Respond with JSON matching this schema:\n")
	sb.WriteString(outputSchema)
	sb.WriteString("\n\nRules:\n")
	sb.WriteString("- Amounts are plain numbers without currency symbols or thousands separators.\n")
	sb.WriteString("- Dates use the format YYYY-MM-DD.\n")
	sb.WriteString("- lineItems keeps the order of the document; use [] when there are none.\n")
	sb.WriteString("\nDocument text:\n---\n")
	sb.WriteString(text)
	sb.WriteString("\n---\n")
	return sb.String()
}
