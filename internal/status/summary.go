// Package status derives human-readable summaries from job records.
// Every function here is pure.
package status

import (
	"fmt"

	"github.com/cuongbtq/invoice-verifier/internal/domain"
	"github.com/cuongbtq/invoice-verifier/internal/verification"
)

// Section states
const (
	NotReached = "not reached"

	StateExtracted = "extracted"
	StateVerified  = "verified"
	StateFailed    = "failed"
	StatePosted    = "posted"
)

const na = "N/A"

// Summary is the external view of a job
type Summary struct {
	JobID        string              `json:"job_id"`
	Status       domain.Status       `json:"status"`
	Message      string              `json:"message"`
	Invoice      InvoiceSection      `json:"invoice_info"`
	Verification VerificationSection `json:"verification_summary"`
	Notification NotificationSection `json:"notification_summary"`
	Warnings     []string            `json:"warnings"`
}

// Clone returns a copy that shares no slices with s
func (s Summary) Clone() Summary {
	c := s
	c.Warnings = cloneStrings(s.Warnings)
	c.Verification.Flags = cloneStrings(s.Verification.Flags)
	c.Verification.Notes = cloneStrings(s.Verification.Notes)
	if s.Verification.Checks != nil {
		c.Verification.Checks = append([]domain.CheckResult{}, s.Verification.Checks...)
	}
	return c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string{}, in...)
}

// InvoiceSection summarizes extracted fields
type InvoiceSection struct {
	State         string `json:"state"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
	Vendor        string `json:"vendor,omitempty"`
	Total         string `json:"total,omitempty"`
	InvoiceDate   string `json:"date,omitempty"`
	DueDate       string `json:"due_date,omitempty"`
}

// VerificationSection summarizes rule outcomes
type VerificationSection struct {
	State           string               `json:"state"`
	AllChecksPassed bool                 `json:"all_checks_passed"`
	ChecksPassed    string               `json:"checks_passed,omitempty"`
	Checks          []domain.CheckResult `json:"checks,omitempty"`
	Flags           []string             `json:"flags,omitempty"`
	Notes           []string             `json:"notes,omitempty"`
}

// NotificationSection summarizes the channel post
type NotificationSection struct {
	State      string `json:"state"`
	Posted     bool   `json:"posted"`
	Channel    string `json:"channel,omitempty"`
	FileURL    string `json:"file_url,omitempty"`
	MessageRef string `json:"message_ref,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Summarize projects a job into its summary. Partially populated jobs render
// the stages they never reached as "not reached".
func Summarize(job domain.Job) Summary {
	s := Summary{
		JobID:        job.ID,
		Status:       job.Status,
		Invoice:      invoiceSection(job.Invoice),
		Verification: verificationSection(job.Verification),
		Notification: notificationSection(job.Notification),
		Warnings:     []string{},
	}

	if job.Verification != nil {
		s.Warnings = append(s.Warnings, job.Verification.Flags...)
	}
	if n := job.Notification; n != nil && !n.Posted && n.Error != "" {
		s.Warnings = append(s.Warnings, "Notification error: "+n.Error)
	}

	s.Message = message(job)
	return s
}

func message(job domain.Job) string {
	number := na
	total := na
	if job.Invoice != nil {
		number = domain.StringValue(job.Invoice.InvoiceNumber, na)
		total = formatTotal(job.Invoice)
	}

	switch job.Status {
	case domain.StatusQueued:
		return "⏳ Invoice is queued for processing"
	case domain.StatusExtracting, domain.StatusVerifying, domain.StatusNotifying:
		return fmt.Sprintf("⏳ Invoice is being processed (%s)...", job.Status)
	case domain.StatusFailed:
		if v := job.Verification; v != nil {
			return fmt.Sprintf("❌ Invoice %s verified (%d/%d checks passed) but notification failed: %s",
				number, v.ChecksPassed, v.TotalChecks, errorOrUnknown(job.Error))
		}
		return "❌ Processing failed: " + errorOrUnknown(job.Error)
	case domain.StatusDone:
		v := job.Verification
		if v != nil && v.AllChecksPassed {
			return fmt.Sprintf("✅ Invoice %s processed successfully - %s - Verified & Posted", number, total)
		}
		passed, of := 0, verification.TotalChecks
		if v != nil {
			passed, of = v.ChecksPassed, v.TotalChecks
		}
		return fmt.Sprintf("⚠️ Invoice %s processed with warnings - %s - %d/%d checks passed", number, total, passed, of)
	default:
		return fmt.Sprintf("Unknown status %q", job.Status)
	}
}

func invoiceSection(inv *domain.Invoice) InvoiceSection {
	if inv == nil {
		return InvoiceSection{State: NotReached}
	}
	return InvoiceSection{
		State:         StateExtracted,
		InvoiceNumber: domain.StringValue(inv.InvoiceNumber, na),
		Vendor:        domain.StringValue(inv.Vendor, na),
		Total:         formatTotal(inv),
		InvoiceDate:   domain.StringValue(inv.InvoiceDate, na),
		DueDate:       domain.StringValue(inv.DueDate, na),
	}
}

func verificationSection(v *domain.VerificationResult) VerificationSection {
	if v == nil {
		return VerificationSection{State: NotReached}
	}
	state := StateFailed
	if v.AllChecksPassed {
		state = StateVerified
	}
	return VerificationSection{
		State:           state,
		AllChecksPassed: v.AllChecksPassed,
		ChecksPassed:    fmt.Sprintf("%d/%d", v.ChecksPassed, v.TotalChecks),
		Checks:          append([]domain.CheckResult(nil), v.Checks...),
		Flags:           append([]string(nil), v.Flags...),
		Notes:           append([]string(nil), v.Notes...),
	}
}

func notificationSection(n *domain.NotificationResult) NotificationSection {
	if n == nil {
		return NotificationSection{State: NotReached}
	}
	if !n.Posted {
		return NotificationSection{State: StateFailed, Error: n.Error, Channel: channelLabel(n)}
	}
	return NotificationSection{
		State:      StatePosted,
		Posted:     true,
		Channel:    channelLabel(n),
		FileURL:    n.FileURL,
		MessageRef: n.MessageRef,
	}
}

func channelLabel(n *domain.NotificationResult) string {
	if n.ChannelName != "" {
		return "#" + n.ChannelName
	}
	return n.Channel
}

func formatTotal(inv *domain.Invoice) string {
	if inv == nil || inv.Total == nil {
		return na
	}
	return inv.CurrencyOrDefault() + " " + verification.FormatAmount(*inv.Total)
}

func errorOrUnknown(err string) string {
	if err == "" {
		return "unknown error"
	}
	return err
}
