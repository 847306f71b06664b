package verification

import (
	"fmt"

	"github.com/cuongbtq/invoice-verifier/internal/domain"
)

// DateLayout is the only date format extracted invoices are expected to use
const DateLayout = "2006-01-02"

// DefaultTolerance is the absolute tolerance for amount comparisons
const DefaultTolerance = 0.01

// Rules is the fixed set of expected values an invoice is checked against.
// It is loaded once at startup and never mutated.
type Rules struct {
	Version          string  `yaml:"version" json:"version"`
	ExpectedVendor   string  `yaml:"expected_vendor" json:"expected_vendor"`
	ExpectedSubtotal float64 `yaml:"expected_subtotal" json:"expected_subtotal"`
	TaxRate          float64 `yaml:"tax_rate" json:"tax_rate"`
	ExpectedTotal    float64 `yaml:"expected_total" json:"expected_total"`
	NetDays          int     `yaml:"net_days" json:"net_days"`
	// Tolerance is nil when unset; zero means amounts must match exactly
	Tolerance  *float64   `yaml:"tolerance" json:"tolerance"`
	Advisories []Advisory `yaml:"advisories" json:"advisories"`
}

// Advisory is an amount the invoice summary is expected to mention
type Advisory struct {
	Name   string  `yaml:"name" json:"name"`
	Label  string  `yaml:"label" json:"label"`
	Amount float64 `yaml:"amount" json:"amount"`
}

// DefaultAdvisories are the price tags looked for in the invoice summary
func DefaultAdvisories() []Advisory {
	return []Advisory{
		{Name: "hourly_rate", Label: "Hourly rate", Amount: 350},
		{Name: "workshop_fee", Label: "Workshop fee", Amount: 8500},
	}
}

// DefaultRules returns the rule set the service ships with
func DefaultRules() Rules {
	return Rules{
		Version:          "1",
		ExpectedVendor:   "Nexus Path Consulting Group LLC",
		ExpectedSubtotal: 29570.50,
		TaxRate:          0.08875,
		ExpectedTotal:    32194.88,
		NetDays:          30,
		Tolerance:        domain.Float(DefaultTolerance),
		Advisories:       DefaultAdvisories(),
	}
}

// Validate checks the rule set is usable
func (r Rules) Validate() error {
	if r.ExpectedVendor == "" {
		return fmt.Errorf("expected vendor is required")
	}
	if r.ExpectedSubtotal <= 0 {
		return fmt.Errorf("expected subtotal must be greater than 0")
	}
	if r.TaxRate < 0 || r.TaxRate >= 1 {
		return fmt.Errorf("tax rate must be in [0, 1), got %v", r.TaxRate)
	}
	if r.ExpectedTotal <= 0 {
		return fmt.Errorf("expected total must be greater than 0")
	}
	if r.NetDays <= 0 {
		return fmt.Errorf("net days must be greater than 0")
	}
	if r.Tolerance != nil && *r.Tolerance < 0 {
		return fmt.Errorf("tolerance must not be negative")
	}
	for i, a := range r.Advisories {
		if a.Name == "" || a.Amount <= 0 {
			return fmt.Errorf("advisory %d needs a name and an amount greater than 0", i)
		}
	}
	return nil
}

func (r Rules) tolerance() float64 {
	if r.Tolerance == nil {
		return DefaultTolerance
	}
	return *r.Tolerance
}
