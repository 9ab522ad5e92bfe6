package invoice

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"invoicer/pkg/models"
)

const schemaURL = "invoice.schema.json"

// recordSchema describes a storable invoice. Field limits mirror the data model.
const recordSchema = `{
  "type": "object",
  "required": ["fileId", "vendor", "invoice"],
  "properties": {
    "fileId":   {"type": "string", "minLength": 1, "maxLength": 200},
    "fileName": {"type": "string", "maxLength": 255},
    "vendor": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name":    {"type": "string", "minLength": 1, "maxLength": 200},
        "address": {"type": "string", "maxLength": 500},
        "taxId":   {"type": "string", "maxLength": 50}
      }
    },
    "invoice": {
      "type": "object",
      "required": ["number", "date"],
      "properties": {
        "number":     {"type": "string", "minLength": 1, "maxLength": 100},
        "date":       {"type": "string", "format": "date"},
        "currency":   {"type": "string", "maxLength": 10},
        "subtotal":   {"type": "number", "minimum": 0},
        "taxPercent": {"type": "number", "minimum": 0, "maximum": 100},
        "total":      {"type": "number", "minimum": 0},
        "poNumber":   {"type": "string", "maxLength": 100},
        "poDate":     {"type": "string", "format": "date"},
        "lineItems": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["description", "unitPrice", "quantity", "total"],
            "properties": {
              "description": {"type": "string", "minLength": 1, "maxLength": 500},
              "unitPrice":   {"type": "number", "minimum": 0},
              "quantity":    {"type": "number", "minimum": 0},
              "total":       {"type": "number", "minimum": 0},
              "discount":    {"type": "number", "minimum": 0, "maximum": 100},
              "vat":         {"type": "number", "minimum": 0, "maximum": 100}
            }
          }
        }
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error

	missingPropsRe = regexp.MustCompile(`'([^']+)'`)
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		if err := compiler.AddResource(schemaURL, strings.NewReader(recordSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile schema: %w", schemaErr)
		}
	})
	return schema, schemaErr
}

// Validate checks an invoice against the record schema and returns a
// *ValidationError listing every violated field.
func Validate(inv *models.Invoice) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}

	b, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("marshal invoice: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("unmarshal invoice: %w", err)
	}

	err = s.Validate(doc)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return fmt.Errorf("validate invoice: %w", err)
	}

	fields := collectFieldErrors(verr, nil)
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
	return &ValidationError{Fields: fields}
}

// collectFieldErrors flattens the leaf causes of a schema validation error.
func collectFieldErrors(e *jsonschema.ValidationError, out []FieldError) []FieldError {
	if len(e.Causes) > 0 {
		for _, c := range e.Causes {
			out = collectFieldErrors(c, out)
		}
		return out
	}

	field := fieldPath(e.InstanceLocation)
	if strings.HasPrefix(e.Message, "missing properties") {
		for _, m := range missingPropsRe.FindAllStringSubmatch(e.Message, -1) {
			out = append(out, FieldError{Field: joinField(field, m[1]), Message: "is required"})
		}
		return out
	}
	if field == "" {
		field = "invoice"
	}
	return append(out, FieldError{Field: field, Message: e.Message})
}

// fieldPath converts a JSON pointer such as /invoice/lineItems/0/total into
// invoice.lineItems[0].total.
func fieldPath(pointer string) string {
	var b strings.Builder
	for _, seg := range strings.Split(strings.Trim(pointer, "/"), "/") {
		if seg == "" {
			continue
		}
		if isIndex(seg) {
			b.WriteString("[" + seg + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}

func joinField(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func isIndex(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
