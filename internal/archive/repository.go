// Package archive mirrors terminal job snapshots into Postgres.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cuongbtq/invoice-verifier/internal/domain"
)

const table = "invoice_jobs"

const schema = `CREATE TABLE IF NOT EXISTS invoice_jobs (
    job_id            TEXT PRIMARY KEY,
    status            TEXT NOT NULL,
    origin            TEXT NOT NULL,
    message_id        TEXT NOT NULL,
    sender            TEXT NOT NULL DEFAULT '',
    filename          TEXT NOT NULL,
    checksum          TEXT NOT NULL,
    invoice_number    TEXT,
    vendor            TEXT,
    total             NUMERIC(14, 2),
    checks_passed     INTEGER NOT NULL DEFAULT 0,
    all_checks_passed BOOLEAN NOT NULL DEFAULT FALSE,
    posted            BOOLEAN NOT NULL DEFAULT FALSE,
    error             TEXT NOT NULL DEFAULT '',
    snapshot          JSONB NOT NULL,
    created_at        TIMESTAMPTZ NOT NULL,
    updated_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS invoice_jobs_updated_at_idx ON invoice_jobs (updated_at DESC)`

// DB is the subset of the Postgres client the archive needs
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// Row is one archived job
type Row struct {
	JobID           string    `db:"job_id" json:"job_id"`
	Status          string    `db:"status" json:"status"`
	Origin          string    `db:"origin" json:"origin"`
	MessageID       string    `db:"message_id" json:"message_id"`
	Sender          string    `db:"sender" json:"sender"`
	Filename        string    `db:"filename" json:"filename"`
	InvoiceNumber   *string   `db:"invoice_number" json:"invoice_number"`
	Vendor          *string   `db:"vendor" json:"vendor"`
	Total           *float64  `db:"total" json:"total"`
	ChecksPassed    int       `db:"checks_passed" json:"checks_passed"`
	AllChecksPassed bool      `db:"all_checks_passed" json:"all_checks_passed"`
	Posted          bool      `db:"posted" json:"posted"`
	Error           string    `db:"error" json:"error"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Repository writes and reads archived jobs
type Repository struct {
	db DB
	sb sq.StatementBuilderType
}

// NewRepository creates a repository over db
func NewRepository(db DB) *Repository {
	return &Repository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// EnsureSchema creates the archive table when missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure archive schema: %w", err)
	}
	return nil
}

// ArchiveJob upserts the snapshot of a terminal job
func (r *Repository) ArchiveJob(ctx context.Context, job domain.Job) error {
	query, args, err := r.upsert(job)
	if err != nil {
		return err
	}
	if err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("archive job %s: %w", job.ID, err)
	}
	return nil
}

func (r *Repository) upsert(job domain.Job) (string, []any, error) {
	snapshot, err := json.Marshal(job)
	if err != nil {
		return "", nil, fmt.Errorf("marshal job snapshot: %w", err)
	}

	var (
		invoiceNumber, vendor *string
		total                 *float64
		checksPassed          int
		allPassed, posted     bool
	)
	if job.Invoice != nil {
		invoiceNumber, vendor, total = job.Invoice.InvoiceNumber, job.Invoice.Vendor, job.Invoice.Total
	}
	if job.Verification != nil {
		checksPassed, allPassed = job.Verification.ChecksPassed, job.Verification.AllChecksPassed
	}
	if job.Notification != nil {
		posted = job.Notification.Posted
	}

	query, args, err := r.sb.Insert(table).
		Columns(
			"job_id", "status", "origin", "message_id", "sender", "filename", "checksum",
			"invoice_number", "vendor", "total", "checks_passed", "all_checks_passed",
			"posted", "error", "snapshot", "created_at", "updated_at",
		).
		Values(
			job.ID, string(job.Status), string(job.Source.Origin), job.Source.MessageID, job.Source.Sender,
			job.Attachment.Filename, job.Attachment.Checksum,
			invoiceNumber, vendor, total, checksPassed, allPassed,
			posted, job.Error, string(snapshot), job.CreatedAt, job.UpdatedAt,
		).
		Suffix(`ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status,
			invoice_number = EXCLUDED.invoice_number,
			vendor = EXCLUDED.vendor,
			total = EXCLUDED.total,
			checks_passed = EXCLUDED.checks_passed,
			all_checks_passed = EXCLUDED.all_checks_passed,
			posted = EXCLUDED.posted,
			error = EXCLUDED.error,
			snapshot = EXCLUDED.snapshot,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build archive upsert: %w", err)
	}
	return query, args, nil
}

// ListRecent returns up to limit archived jobs, newest first, optionally
// restricted to one status
func (r *Repository) ListRecent(ctx context.Context, limit int, status domain.Status) ([]Row, error) {
	if limit <= 0 {
		limit = 20
	}

	builder := r.sb.Select(
		"job_id", "status", "origin", "message_id", "sender", "filename",
		"invoice_number", "vendor", "total", "checks_passed", "all_checks_passed",
		"posted", "error", "created_at", "updated_at",
	).
		From(table).
		OrderBy("updated_at DESC").
		Limit(uint64(limit))
	if status != "" {
		builder = builder.Where(sq.Eq{"status": string(status)})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build archive query: %w", err)
	}

	var rows []Row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list archived jobs: %w", err)
	}
	return rows, nil
}
