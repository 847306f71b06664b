// Package verification checks extracted invoice fields against a fixed rule set.
package verification

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/invoice-verifier/internal/domain"
)

// TotalChecks is the number of rules every invoice is checked against
const TotalChecks = 5

// amounts are compared in millionths to keep the tolerance boundary exact
const amountScale = 1e6

// Verify runs every rule against fields. All rules always run so a single
// invoice reports every discrepancy at once.
func Verify(fields domain.Invoice, rules Rules) domain.VerificationResult {
	checks := []outcome{
		checkVendor(fields, rules),
		checkSubtotal(fields, rules),
		checkTax(fields, rules),
		checkTotal(fields, rules),
		checkPaymentTerms(fields, rules),
	}

	result := domain.VerificationResult{
		Checks:      make([]domain.CheckResult, 0, len(checks)),
		TotalChecks: TotalChecks,
		Flags:       []string{},
	}
	for _, c := range checks {
		result.Checks = append(result.Checks, c.CheckResult)
		if c.Passed {
			result.ChecksPassed++
		} else {
			result.Flags = append(result.Flags, c.flag)
		}
	}
	result.AllChecksPassed = result.ChecksPassed == TotalChecks
	result.Notes = advisoryNotes(fields.Summary, rules.Advisories)

	return result
}

type outcome struct {
	domain.CheckResult
	flag string
}

func pass(name, detail string) outcome {
	return outcome{CheckResult: domain.CheckResult{Name: name, Passed: true, Detail: "✓ " + detail}}
}

func fail(name, detail, flag string) outcome {
	return outcome{CheckResult: domain.CheckResult{Name: name, Passed: false, Detail: "✗ " + detail}, flag: flag}
}

func checkVendor(fields domain.Invoice, rules Rules) outcome {
	if fields.Vendor == nil || strings.TrimSpace(*fields.Vendor) == "" {
		return fail(domain.CheckVendor, "Vendor missing", "vendor field missing")
	}

	got := normalizeName(*fields.Vendor)
	if strings.EqualFold(got, normalizeName(rules.ExpectedVendor)) {
		return pass(domain.CheckVendor, "Vendor matches: "+rules.ExpectedVendor)
	}
	return fail(domain.CheckVendor, "Vendor mismatch",
		fmt.Sprintf("Vendor mismatch: expected '%s', got '%s'", rules.ExpectedVendor, got))
}

func checkSubtotal(fields domain.Invoice, rules Rules) outcome {
	if fields.Subtotal == nil {
		return fail(domain.CheckSubtotal, "Subtotal missing", "subtotal field missing")
	}
	if !WithinTolerance(*fields.Subtotal, rules.ExpectedSubtotal, rules.tolerance()) {
		return fail(domain.CheckSubtotal, "Subtotal mismatch",
			fmt.Sprintf("Subtotal mismatch: expected $%s, got $%s",
				FormatAmount(rules.ExpectedSubtotal), FormatAmount(*fields.Subtotal)))
	}
	return pass(domain.CheckSubtotal, "Subtotal matches: $"+FormatAmount(rules.ExpectedSubtotal))
}

// checkTax validates arithmetic against the extracted subtotal, independent of
// whether that subtotal matches the expected one.
func checkTax(fields domain.Invoice, rules Rules) outcome {
	rate := FormatRate(rules.TaxRate)
	if fields.Tax == nil {
		return fail(domain.CheckTax, "Tax missing", "tax field missing")
	}
	if fields.Subtotal == nil {
		return fail(domain.CheckTax, "Tax could not be checked",
			"Tax calculation could not be checked: subtotal field missing")
	}

	expected := *fields.Subtotal * rules.TaxRate
	if !WithinTolerance(*fields.Tax, expected, rules.tolerance()) {
		return fail(domain.CheckTax, "Tax calculation mismatch",
			fmt.Sprintf("Tax calculation error: expected $%s (%s of $%s), got $%s",
				FormatAmount(expected), rate, FormatAmount(*fields.Subtotal), FormatAmount(*fields.Tax)))
	}
	return pass(domain.CheckTax, fmt.Sprintf("Tax calculation correct: $%s (%s)", FormatAmount(expected), rate))
}

func checkTotal(fields domain.Invoice, rules Rules) outcome {
	if fields.Total == nil {
		return fail(domain.CheckTotal, "Total missing", "total field missing")
	}
	if !WithinTolerance(*fields.Total, rules.ExpectedTotal, rules.tolerance()) {
		return fail(domain.CheckTotal, "Total mismatch",
			fmt.Sprintf("Total mismatch: expected $%s, got $%s",
				FormatAmount(rules.ExpectedTotal), FormatAmount(*fields.Total)))
	}
	return pass(domain.CheckTotal, "Total matches: $"+FormatAmount(rules.ExpectedTotal))
}

func checkPaymentTerms(fields domain.Invoice, rules Rules) outcome {
	invoiceDate, err := parseDate("invoice date", fields.InvoiceDate)
	if err != nil {
		return fail(domain.CheckPaymentTerms, "Could not verify terms", "Payment terms: "+err.Error())
	}
	dueDate, err := parseDate("due date", fields.DueDate)
	if err != nil {
		return fail(domain.CheckPaymentTerms, "Could not verify terms", "Payment terms: "+err.Error())
	}

	expected := invoiceDate.AddDate(0, 0, rules.NetDays)
	if !dueDate.Equal(expected) {
		days := int(dueDate.Sub(invoiceDate).Hours() / 24)
		return fail(domain.CheckPaymentTerms, fmt.Sprintf("Terms mismatch: %d days", days),
			fmt.Sprintf("Payment terms mismatch: expected due date %s (invoice date %s + %d days), got %s",
				expected.Format(DateLayout), invoiceDate.Format(DateLayout), rules.NetDays, dueDate.Format(DateLayout)))
	}
	return pass(domain.CheckPaymentTerms, fmt.Sprintf("Net %d terms confirmed: %s + %d days = %s",
		rules.NetDays, invoiceDate.Format(DateLayout), rules.NetDays, dueDate.Format(DateLayout)))
}

func parseDate(field string, value *string) (time.Time, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return time.Time{}, fmt.Errorf("%s missing", field)
	}
	t, err := time.Parse(DateLayout, strings.TrimSpace(*value))
	if err != nil {
		return time.Time{}, fmt.Errorf("%s %q is not a valid YYYY-MM-DD date", field, *value)
	}
	return t, nil
}

// advisoryNotes reports which advisory amounts the summary mentions
func advisoryNotes(summary *string, advisories []Advisory) []string {
	if len(advisories) == 0 {
		return nil
	}
	text := domain.StringValue(summary, "")
	notes := make([]string, 0, len(advisories))
	for _, a := range advisories {
		label := a.Label
		if label == "" {
			label = a.Name
		}
		if mentionsAmount(text, a.Amount) {
			notes = append(notes, fmt.Sprintf("✓ %s $%s detected", label, FormatAmount(a.Amount)))
		} else {
			notes = append(notes, fmt.Sprintf("⚠ %s $%s not confirmed in summary", label, FormatAmount(a.Amount)))
		}
	}
	return notes
}

// mentionsAmount matches the usual ways an amount is written: $8,500,
// $8500, 8,500.00 or 8500.00
func mentionsAmount(text string, amount float64) bool {
	if text == "" {
		return false
	}
	forms := []string{FormatAmount(amount), strconv.FormatFloat(amount, 'f', 2, 64)}
	if amount == math.Trunc(amount) {
		grouped := FormatAmount(amount)
		forms = append(forms,
			"$"+grouped[:len(grouped)-3],
			"$"+strconv.FormatFloat(amount, 'f', 0, 64),
		)
	}
	for _, f := range forms {
		if strings.Contains(text, f) {
			return true
		}
	}
	return false
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// WithinTolerance reports whether |a-b| <= tol, with both sides rounded to
// millionths so a difference of exactly tol passes.
func WithinTolerance(a, b, tol float64) bool {
	diff := math.Round(math.Abs(a-b) * amountScale)
	return diff <= math.Round(tol*amountScale)
}

// FormatAmount renders f with two decimals and thousands separators
func FormatAmount(f float64) string {
	neg := f < 0
	s := strconv.FormatFloat(math.Abs(f), 'f', 2, 64)
	intPart, frac := s[:len(s)-3], s[len(s)-3:]

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteString(frac)

	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// FormatRate renders a fractional rate as a percentage, e.g. 0.08875 -> 8.875%
func FormatRate(rate float64) string {
	pct := math.Round(rate*100*amountScale) / amountScale
	return strconv.FormatFloat(pct, 'f', -1, 64) + "%"
}
