package extractor

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/cuongbtq/invoice-verifier/internal/domain"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON []byte

var (
	fencedJSON   = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	nonNumeric   = regexp.MustCompile(`[^\d.\-]`)
	errNoJSON    = errors.New("no JSON object in model output")
	loadSchema   = sync.OnceValues(compileSchema)
	schemaSource = "invoice.schema.json"
)

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaSource, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(schemaSource)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// CleanResponse pulls the JSON object out of model output that may be wrapped
// in a code fence or surrounded by prose
func CleanResponse(text string) (string, error) {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		return m[1], nil
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", errNoJSON
	}
	return text[start : end+1], nil
}

// ParseInvoice validates model output against the invoice schema and maps it
// onto invoice fields. Values that cannot be read become absent fields.
func ParseInvoice(text string) (*domain.Invoice, error) {
	raw, err := CleanResponse(text)
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("model output does not match invoice schema: %w", err)
	}

	inv := &domain.Invoice{
		InvoiceNumber: optString(doc["invoice_number"]),
		Vendor:        optString(doc["vendor"]),
		InvoiceDate:   optString(doc["invoice_date"]),
		DueDate:       optString(doc["due_date"]),
		Currency:      upper(optString(doc["currency"])),
		Subtotal:      optNumber(doc["subtotal"]),
		Tax:           optNumber(doc["tax"]),
		Total:         optNumber(doc["total"]),
		PaymentTerms:  optString(doc["payment_terms"]),
		Summary:       optString(doc["summary"]),
		Flags:         stringList(doc["flags"]),
	}
	if c := optNumber(doc["confidence"]); c != nil {
		clamped := math.Min(1, math.Max(0, *c))
		inv.Confidence = &clamped
	}
	if items, ok := doc["line_items"].([]any); ok {
		for _, it := range items {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			inv.LineItems = append(inv.LineItems, domain.LineItem{
				Description: domain.StringValue(optString(m["description"]), ""),
				Quantity:    optNumber(m["quantity"]),
				UnitPrice:   optNumber(m["unit_price"]),
				Amount:      optNumber(m["amount"]),
			})
		}
	}

	return inv, nil
}

// optString returns a trimmed string, nil when absent or blank
func optString(v any) *string {
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return nil
	}
	if s == "" {
		return nil
	}
	return &s
}

// optNumber reads a JSON number or a formatted amount such as "$29,570.50"
func optNumber(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case string:
		cleaned := nonNumeric.ReplaceAllString(t, "")
		if cleaned == "" {
			return nil
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func upper(s *string) *string {
	if s == nil {
		return nil
	}
	u := strings.ToUpper(*s)
	return &u
}
