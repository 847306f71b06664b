// Package export renders jobs as an XLSX workbook.
package export

import (
	"fmt"
	"time"

	"github.com/cuongbtq/invoice-verifier/internal/domain"
	"github.com/xuri/excelize/v2"
)

const (
	jobsSheet  = "Jobs"
	flagsSheet = "Flags"
)

var jobHeaders = []string{
	"Job ID",
	"Status",
	"Origin",
	"Sender",
	"Subject",
	"Filename",
	"Invoice Number",
	"Vendor",
	"Invoice Date",
	"Due Date",
	"Currency",
	"Subtotal",
	"Tax",
	"Total",
	"Checks Passed",
	"Verified",
	"Posted",
	"File URL",
	"Error",
	"Created At",
}

var flagHeaders = []string{"Job ID", "Invoice Number", "Flag"}

// JobsXLSX returns a workbook with one row per job and one row per
// verification flag
func JobsXLSX(jobs []domain.Job) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", jobsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(flagsSheet); err != nil {
		return nil, fmt.Errorf("create flags sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	if err := writeHeader(f, jobsSheet, jobHeaders, bold); err != nil {
		return nil, err
	}
	if err := writeHeader(f, flagsSheet, flagHeaders, bold); err != nil {
		return nil, err
	}

	flagRow := 2
	for i, job := range jobs {
		if err := writeRow(f, jobsSheet, i+2, jobRow(job)); err != nil {
			return nil, err
		}

		if job.Verification == nil {
			continue
		}
		number := ""
		if job.Invoice != nil {
			number = domain.StringValue(job.Invoice.InvoiceNumber, "")
		}
		for _, flag := range job.Verification.Flags {
			if err := writeRow(f, flagsSheet, flagRow, []any{job.ID, number, flag}); err != nil {
				return nil, err
			}
			flagRow++
		}
	}

	_ = f.SetColWidth(jobsSheet, "A", "A", 38) // job id
	_ = f.SetColWidth(jobsSheet, "D", "F", 28) // sender, subject, filename
	_ = f.SetColWidth(jobsSheet, "H", "H", 34) // vendor
	_ = f.SetColWidth(jobsSheet, "R", "S", 48) // file url, error
	_ = f.SetColWidth(flagsSheet, "A", "A", 38)
	_ = f.SetColWidth(flagsSheet, "C", "C", 80)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	row := make([]any, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	if err := writeRow(f, sheet, 1, row); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func jobRow(job domain.Job) []any {
	inv := job.Invoice
	if inv == nil {
		inv = &domain.Invoice{}
	}

	checks, verified := "", ""
	if v := job.Verification; v != nil {
		checks = fmt.Sprintf("%d/%d", v.ChecksPassed, v.TotalChecks)
		verified = yesNo(v.AllChecksPassed)
	}
	posted, fileURL := "", ""
	if n := job.Notification; n != nil {
		posted = yesNo(n.Posted)
		fileURL = n.FileURL
	}
	currency := ""
	if job.Invoice != nil {
		currency = inv.CurrencyOrDefault()
	}

	return []any{
		job.ID,
		string(job.Status),
		string(job.Source.Origin),
		job.Source.Sender,
		job.Source.Subject,
		job.Attachment.Filename,
		domain.StringValue(inv.InvoiceNumber, ""),
		domain.StringValue(inv.Vendor, ""),
		domain.StringValue(inv.InvoiceDate, ""),
		domain.StringValue(inv.DueDate, ""),
		currency,
		amount(inv.Subtotal),
		amount(inv.Tax),
		amount(inv.Total),
		checks,
		verified,
		posted,
		fileURL,
		job.Error,
		job.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// amount leaves the cell empty for a missing value
func amount(f *float64) any {
	if f == nil {
		return ""
	}
	return *f
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
