package pipeline

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cuongbtq/invoice-verifier/internal/domain"
	"github.com/cuongbtq/invoice-verifier/internal/verification"
)

// Message is what gets posted to the team channel alongside the PDF
type Message struct {
	Text     string
	Filename string
	Title    string
}

const divider = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FormatMessage renders the approval request for a verified job
func FormatMessage(job domain.Job, rules verification.Rules, now time.Time) Message {
	inv := job.Invoice
	if inv == nil {
		inv = &domain.Invoice{}
	}
	currency := inv.CurrencyOrDefault()
	number := domain.StringValue(inv.InvoiceNumber, "N/A")

	var b strings.Builder
	b.WriteString("🧾 *Invoice Pending Approval*\n\n")

	b.WriteString("📋 *Invoice Details*\n" + divider + "\n")
	fmt.Fprintf(&b, "Vendor: %s\n", domain.StringValue(inv.Vendor, "N/A"))
	fmt.Fprintf(&b, "Invoice #: %s\n", number)
	fmt.Fprintf(&b, "Invoice Date: %s\n", domain.StringValue(inv.InvoiceDate, "N/A"))
	fmt.Fprintf(&b, "Due Date: %s\n\n", domain.StringValue(inv.DueDate, "N/A"))

	b.WriteString("💰 *Financial Summary*\n" + divider + "\n")
	fmt.Fprintf(&b, "Subtotal: %s %s\n", currency, amount(inv.Subtotal))
	fmt.Fprintf(&b, "Tax (%s): %s %s\n", verification.FormatRate(rules.TaxRate), currency, amount(inv.Tax))
	fmt.Fprintf(&b, "Total Amount: *%s %s*\n\n", currency, amount(inv.Total))

	if v := job.Verification; v != nil {
		emoji, label := "⚠️", "FAILED"
		if v.AllChecksPassed {
			emoji, label = "✅", "PASSED"
		}
		fmt.Fprintf(&b, "%s *Verification Status: %s* (%d/%d checks passed)\n%s\n", emoji, label, v.ChecksPassed, v.TotalChecks, divider)
		for _, c := range v.Checks {
			b.WriteString(c.Detail + "\n")
		}
		for _, n := range v.Notes {
			b.WriteString(n + "\n")
		}
		if len(v.Flags) > 0 {
			b.WriteString("\n⚠️ *Issues Found:*\n")
			for _, f := range v.Flags {
				b.WriteString("  • " + f + "\n")
			}
		}
	}

	b.WriteString("\n📎 PDF Attached Below\n")
	if job.Source.Sender != "" {
		fmt.Fprintf(&b, "📧 From: %s\n", job.Source.Sender)
	}
	if job.Source.Subject != "" {
		fmt.Fprintf(&b, "📬 Subject: %s\n", job.Source.Subject)
	}
	fmt.Fprintf(&b, "⏰ Processed: %s UTC\n", now.UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "🔗 Job ID: %s\n", job.ID)
	b.WriteString("\n*Please review and reply:*\n✅ approve\n❌ reject\n")

	fileNumber := "UNKNOWN"
	if inv.InvoiceNumber != nil && *inv.InvoiceNumber != "" {
		fileNumber = unsafeFilename.ReplaceAllString(*inv.InvoiceNumber, "_")
	}

	return Message{
		Text:     b.String(),
		Filename: "invoice_" + fileNumber + ".pdf",
		Title:    "Invoice " + number,
	}
}

func amount(f *float64) string {
	if f == nil {
		return "N/A"
	}
	return verification.FormatAmount(*f)
}
