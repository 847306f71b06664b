package domain

// Invoice holds fields extracted from a PDF. Extraction is best-effort, so
// every scalar is optional.
type Invoice struct {
	InvoiceNumber *string    `json:"invoice_number,omitempty"`
	Vendor        *string    `json:"vendor,omitempty"`
	InvoiceDate   *string    `json:"invoice_date,omitempty"`
	DueDate       *string    `json:"due_date,omitempty"`
	Currency      *string    `json:"currency,omitempty"`
	Subtotal      *float64   `json:"subtotal,omitempty"`
	Tax           *float64   `json:"tax,omitempty"`
	Total         *float64   `json:"total,omitempty"`
	PaymentTerms  *string    `json:"payment_terms,omitempty"`
	Confidence    *float64   `json:"confidence,omitempty"`
	Summary       *string    `json:"summary,omitempty"`
	LineItems     []LineItem `json:"line_items,omitempty"`
	Flags         []string   `json:"flags,omitempty"`
}

// LineItem is a single billed line
type LineItem struct {
	Description string   `json:"description"`
	Quantity    *float64 `json:"quantity,omitempty"`
	UnitPrice   *float64 `json:"unit_price,omitempty"`
	Amount      *float64 `json:"amount,omitempty"`
}

// IsEmpty reports whether extraction produced no usable field at all
func (i *Invoice) IsEmpty() bool {
	if i == nil {
		return true
	}
	return i.InvoiceNumber == nil && i.Vendor == nil && i.InvoiceDate == nil &&
		i.DueDate == nil && i.Subtotal == nil && i.Tax == nil && i.Total == nil &&
		i.PaymentTerms == nil && len(i.LineItems) == 0
}

// CurrencyOrDefault returns the invoice currency, USD when absent
func (i *Invoice) CurrencyOrDefault() string {
	if i == nil || i.Currency == nil || *i.Currency == "" {
		return "USD"
	}
	return *i.Currency
}

// Clone returns a deep copy
func (i Invoice) Clone() Invoice {
	c := i
	c.InvoiceNumber = cloneString(i.InvoiceNumber)
	c.Vendor = cloneString(i.Vendor)
	c.InvoiceDate = cloneString(i.InvoiceDate)
	c.DueDate = cloneString(i.DueDate)
	c.Currency = cloneString(i.Currency)
	c.PaymentTerms = cloneString(i.PaymentTerms)
	c.Summary = cloneString(i.Summary)
	c.Subtotal = cloneFloat(i.Subtotal)
	c.Tax = cloneFloat(i.Tax)
	c.Total = cloneFloat(i.Total)
	c.Confidence = cloneFloat(i.Confidence)
	if i.LineItems != nil {
		c.LineItems = make([]LineItem, len(i.LineItems))
		for n, li := range i.LineItems {
			c.LineItems[n] = LineItem{
				Description: li.Description,
				Quantity:    cloneFloat(li.Quantity),
				UnitPrice:   cloneFloat(li.UnitPrice),
				Amount:      cloneFloat(li.Amount),
			}
		}
	}
	if i.Flags != nil {
		c.Flags = append([]string(nil), i.Flags...)
	}
	return c
}

// String returns a pointer to s
func String(s string) *string { return &s }

// Float returns a pointer to f
func Float(f float64) *float64 { return &f }

// StringValue dereferences s, returning def when nil or empty
func StringValue(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
