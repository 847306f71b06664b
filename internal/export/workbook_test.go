package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/cuongbtq/invoice-verifier/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestJobsXLSX(t *testing.T) {
	created := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)
	jobs := []domain.Job{
		{
			ID:         "job-1",
			Status:     domain.StatusDone,
			Source:     domain.Source{Sender: "billing@nexuspath.example", Subject: "Invoice INV-1", Origin: domain.OriginScheduled},
			Attachment: domain.Attachment{Filename: "inv1.pdf"},
			Invoice: &domain.Invoice{
				InvoiceNumber: domain.String("INV-1"),
				Vendor:        domain.String("Nexus Path Consulting Group LLC"),
				Total:         domain.Float(32194.88),
			},
			Verification: &domain.VerificationResult{
				ChecksPassed:    4,
				TotalChecks:     5,
				AllChecksPassed: false,
				Flags:           []string{"Total mismatch: expected $32,194.88, got $1.00"},
			},
			Notification: &domain.NotificationResult{Posted: true, FileURL: "https://files.example/inv1"},
			CreatedAt:    created,
		},
		{
			ID:         "job-2",
			Status:     domain.StatusFailed,
			Source:     domain.Source{Origin: domain.OriginUpload},
			Attachment: domain.Attachment{Filename: "scan.pdf"},
			Error:      "extraction failed: unreadable",
			CreatedAt:  created.Add(time.Minute),
		},
	}

	data, err := JobsXLSX(jobs)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Jobs", "Flags"}, f.GetSheetList())

	rows, err := f.GetRows("Jobs")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, jobHeaders, rows[0])

	assert.Equal(t, "job-1", rows[1][0])
	assert.Equal(t, "done", rows[1][1])
	assert.Equal(t, "INV-1", rows[1][6])
	assert.Equal(t, "USD", rows[1][10])
	assert.Equal(t, "32194.88", rows[1][13])
	assert.Equal(t, "4/5", rows[1][14])
	assert.Equal(t, "no", rows[1][15])
	assert.Equal(t, "yes", rows[1][16])
	assert.Equal(t, "2026-01-05T14:00:00Z", rows[1][19])

	assert.Equal(t, "job-2", rows[2][0])
	assert.Equal(t, "upload", rows[2][2])
	assert.Equal(t, "extraction failed: unreadable", rows[2][18])

	flags, err := f.GetRows("Flags")
	require.NoError(t, err)
	require.Len(t, flags, 2)
	assert.Equal(t, []string{"job-1", "INV-1", "Total mismatch: expected $32,194.88, got $1.00"}, flags[1])

	styleID, err := f.GetCellStyle("Jobs", "A1")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	require.NotNil(t, style.Font)
	assert.True(t, style.Font.Bold)
}

func TestJobsXLSX_Empty(t *testing.T) {
	data, err := JobsXLSX(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Jobs")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
