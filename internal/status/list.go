package status

import (
	"time"

	"github.com/cuongbtq/invoice-verifier/internal/domain"
)

// JobListItem is the compact row shown when listing jobs
type JobListItem struct {
	JobID              string        `json:"job_id"`
	Status             domain.Status `json:"status"`
	Origin             domain.Origin `json:"source"`
	Filename           string        `json:"filename"`
	InvoiceNumber      string        `json:"invoice_number"`
	Vendor             string        `json:"vendor"`
	Total              string        `json:"total"`
	VerificationStatus string        `json:"verification_status"`
	NotificationStatus string        `json:"notification_status"`
	Message            string        `json:"message"`
	CreatedAt          string        `json:"created_at"`
	UpdatedAt          string        `json:"updated_at"`
}

// ListItem projects a job into a list row
func ListItem(job domain.Job) JobListItem {
	item := JobListItem{
		JobID:              job.ID,
		Status:             job.Status,
		Origin:             job.Source.Origin,
		Filename:           job.Attachment.Filename,
		InvoiceNumber:      na,
		Vendor:             na,
		Total:              na,
		VerificationStatus: "❓ Unknown",
		NotificationStatus: "➖ N/A",
		CreatedAt:          job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          job.UpdatedAt.Format(time.RFC3339),
	}

	if inv := job.Invoice; inv != nil {
		item.InvoiceNumber = domain.StringValue(inv.InvoiceNumber, na)
		item.Vendor = domain.StringValue(inv.Vendor, na)
		item.Total = formatTotal(inv)
	}

	if v := job.Verification; v != nil {
		item.VerificationStatus = "⚠️ Failed"
		if v.AllChecksPassed {
			item.VerificationStatus = "✅ Verified"
		}
	}

	if n := job.Notification; n != nil {
		item.NotificationStatus = "❌ Failed"
		if n.Posted {
			item.NotificationStatus = "✅ Posted"
		}
	}

	switch {
	case job.Status == domain.StatusDone && job.Verification != nil && job.Verification.AllChecksPassed:
		item.Message = "✅ " + item.InvoiceNumber + " - Verified & Posted"
	case job.Status == domain.StatusDone:
		item.Message = "⚠️ " + item.InvoiceNumber + " - Verification issues"
	case job.Status == domain.StatusFailed:
		item.Message = "❌ " + errorOrUnknown(job.Error)
	default:
		item.Message = "⏳ Processing (" + string(job.Status) + ")"
	}

	return item
}
