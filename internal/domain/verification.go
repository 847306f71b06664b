package domain

// Check names in evaluation order
const (
	CheckVendor       = "vendor"
	CheckSubtotal     = "subtotal"
	CheckTax          = "tax"
	CheckTotal        = "total"
	CheckPaymentTerms = "payment_terms"
)

// CheckResult is the outcome of one verification rule
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// VerificationResult aggregates every rule outcome for an invoice
type VerificationResult struct {
	Checks          []CheckResult `json:"checks"`
	AllChecksPassed bool          `json:"all_checks_passed"`
	ChecksPassed    int           `json:"checks_passed"`
	TotalChecks     int           `json:"total_checks"`
	Flags           []string      `json:"flags"`
	// Notes are advisory and never affect the outcome
	Notes []string `json:"notes,omitempty"`
}

// Check returns the named check result
func (r VerificationResult) Check(name string) (CheckResult, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}

// Clone returns a deep copy
func (r VerificationResult) Clone() VerificationResult {
	c := r
	c.Checks = append([]CheckResult(nil), r.Checks...)
	c.Flags = append([]string(nil), r.Flags...)
	if r.Notes != nil {
		c.Notes = append([]string(nil), r.Notes...)
	}
	return c
}
