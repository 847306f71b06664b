package pipeline

import (
	"context"

	"github.com/cuongbtq/invoice-verifier/internal/domain"
	"github.com/cuongbtq/invoice-verifier/internal/jobstore"
)

// MailSource lists unread invoice emails and marks them read
type MailSource interface {
	FetchUnreadInvoiceEmails(ctx context.Context, lookbackDays int) ([]domain.Email, error)
	MarkRead(ctx context.Context, messageID string) error
}

// Extractor turns PDF bytes into invoice fields
type Extractor interface {
	Extract(ctx context.Context, pdf []byte, source domain.Source) (*domain.Invoice, error)
}

// Notifier posts a formatted message and the original PDF to the team channel
type Notifier interface {
	Post(ctx context.Context, msg Message, pdf []byte) (domain.NotificationResult, error)
}

// EventPublisher announces jobs that reached a terminal state
type EventPublisher interface {
	PublishJobEvent(ctx context.Context, job domain.Job) error
}

// Archiver mirrors terminal jobs to external storage
type Archiver interface {
	ArchiveJob(ctx context.Context, job domain.Job) error
}

// JobStore is the subset of the job store the pipeline drives
type JobStore interface {
	Create(source domain.Source, attachment domain.Attachment) (domain.Job, bool, error)
	Get(id string) (domain.Job, error)
	Update(id string, mutation jobstore.Mutation) (domain.Job, error)
}

// Sources are the per-run collaborators. On-demand runs build them from the
// caller's credentials, scheduled runs from the process-wide ones.
type Sources struct {
	Mail      MailSource
	Extractor Extractor
}

var _ JobStore = (*jobstore.Store)(nil)
