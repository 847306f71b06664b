package archive

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cuongbtq/invoice-verifier/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDB struct {
	queries []string
	args    [][]any
	rows    []Row
	err     error
}

func (f *fakeDB) ExecContext(ctx context.Context, query string, args ...any) error {
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	return f.err
}

func (f *fakeDB) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	if f.err != nil {
		return f.err
	}
	*(dest.(*[]Row)) = f.rows
	return nil
}

func terminalJob() domain.Job {
	created := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)
	return domain.Job{
		ID:     "0b5d1c1e-2f7a-4a53-9c57-6f4c3c9d8e21",
		Status: domain.StatusDone,
		Source: domain.Source{MessageID: "<m1@mail>", Sender: "billing@nexuspath.example", Origin: domain.OriginScheduled},
		Attachment: domain.Attachment{
			Filename: "invoice.pdf",
			Checksum: "abc123",
			Size:     2048,
			Data:     []byte("%PDF-1.7"),
		},
		Invoice: &domain.Invoice{
			InvoiceNumber: domain.String("INV-1"),
			Vendor:        domain.String("Nexus Path Consulting Group LLC"),
			Total:         domain.Float(32194.88),
		},
		Verification: &domain.VerificationResult{ChecksPassed: 5, TotalChecks: 5, AllChecksPassed: true},
		Notification: &domain.NotificationResult{Posted: true},
		CreatedAt:    created,
		UpdatedAt:    created.Add(2 * time.Minute),
	}
}

func TestArchiveJob(t *testing.T) {
	db := &fakeDB{}
	repo := NewRepository(db)

	require.NoError(t, repo.ArchiveJob(context.Background(), terminalJob()))
	require.Len(t, db.queries, 1)

	query := db.queries[0]
	assert.True(t, strings.HasPrefix(query, "INSERT INTO invoice_jobs"))
	assert.Contains(t, query, "$17")
	assert.Contains(t, query, "ON CONFLICT (job_id) DO UPDATE")

	args := db.args[0]
	require.Len(t, args, 17)
	assert.Equal(t, "0b5d1c1e-2f7a-4a53-9c57-6f4c3c9d8e21", args[0])
	assert.Equal(t, "done", args[1])
	assert.Equal(t, "scheduled", args[2])
	assert.Equal(t, 5, args[10])
	assert.Equal(t, true, args[11])
	assert.Equal(t, true, args[12])

	var snapshot map[string]any
	require.NoError(t, json.Unmarshal([]byte(args[14].(string)), &snapshot))
	assert.Equal(t, "0b5d1c1e-2f7a-4a53-9c57-6f4c3c9d8e21", snapshot["job_id"])
	assert.NotContains(t, args[14].(string), "%PDF", "attachment bytes never archived")
}

func TestArchiveJob_FailedWithoutResults(t *testing.T) {
	db := &fakeDB{}
	repo := NewRepository(db)

	job := terminalJob()
	job.Status = domain.StatusFailed
	job.Invoice, job.Verification, job.Notification = nil, nil, nil
	job.Error = "extraction failed: timeout"

	require.NoError(t, repo.ArchiveJob(context.Background(), job))
	args := db.args[0]
	assert.Nil(t, args[7])
	assert.Nil(t, args[9])
	assert.Equal(t, 0, args[10])
	assert.Equal(t, "extraction failed: timeout", args[13])
}

func TestArchiveJob_DBError(t *testing.T) {
	repo := NewRepository(&fakeDB{err: errors.New("connection reset")})
	err := repo.ArchiveJob(context.Background(), terminalJob())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, NewRepository(db).EnsureSchema(context.Background()))
	assert.Contains(t, db.queries[0], "CREATE TABLE IF NOT EXISTS invoice_jobs")
}

func TestListRecent(t *testing.T) {
	db := &fakeDB{rows: []Row{{JobID: "a"}, {JobID: "b"}}}
	repo := NewRepository(db)

	rows, err := repo.ListRecent(context.Background(), 0, "")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, "SELECT job_id, status, origin, message_id, sender, filename, invoice_number, vendor, total, checks_passed, all_checks_passed, posted, error, created_at, updated_at FROM invoice_jobs ORDER BY updated_at DESC LIMIT 20", db.queries[0])
	assert.Empty(t, db.args[0])

	_, err = repo.ListRecent(context.Background(), 5, domain.StatusFailed)
	require.NoError(t, err)
	assert.Contains(t, db.queries[1], "WHERE status = $1")
	assert.Contains(t, db.queries[1], "LIMIT 5")
	assert.Equal(t, []any{"failed"}, db.args[1])
}
