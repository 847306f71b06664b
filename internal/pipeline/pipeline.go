// Package pipeline drives invoice attachments from the mailbox through
// extraction, verification and notification, recording every stage on the job.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuongbtq/invoice-verifier/internal/domain"
	"github.com/cuongbtq/invoice-verifier/internal/verification"
	"github.com/cuongbtq/invoice-verifier/internal/worker"
)

const (
	// DefaultMaxAttachmentBytes is the largest PDF submitted for extraction
	DefaultMaxAttachmentBytes = 15 << 20
	// DefaultLookbackDays bounds how far back unread mail is searched
	DefaultLookbackDays = 7
	// DefaultSubjectFilter must appear in the subject of an invoice email
	DefaultSubjectFilter = "invoice"
)

// Config holds pipeline dependencies and settings
type Config struct {
	Logger             *slog.Logger
	Store              JobStore
	Rules              verification.Rules
	Notifier           Notifier
	Events             EventPublisher
	Archive            Archiver
	MaxAttachmentBytes int64
	LookbackDays       int
	SubjectFilter      string
	MarkRead           MarkReadPolicy
	ExtractTimeout     time.Duration
	NotifyTimeout      time.Duration
	UploadWorkers      int
	UploadQueueSize    int
	Now                func() time.Time
}

// Pipeline processes invoice emails into jobs
type Pipeline struct {
	logger         *slog.Logger
	store          JobStore
	rules          verification.Rules
	notifier       Notifier
	events         EventPublisher
	archive        Archiver
	maxBytes       int64
	lookbackDays   int
	subjectFilter  string
	markRead       MarkReadPolicy
	extractTimeout time.Duration
	notifyTimeout  time.Duration
	now            func() time.Time
	uploads        *worker.Pool
}

// RunReport summarizes one ingestion run
type RunReport struct {
	Trigger           domain.Origin `json:"trigger"`
	StartedAt         time.Time     `json:"started_at"`
	FinishedAt        time.Time     `json:"finished_at"`
	EmailsFound       int           `json:"emails_found"`
	InvoicesFound     int           `json:"invoices_found"`
	InvoicesProcessed int           `json:"invoices_processed"`
	Succeeded         int           `json:"succeeded"`
	Failed            int           `json:"failed"`
	Duplicates        int           `json:"duplicates"`
	Errors            []string      `json:"errors"`
	JobIDs            []string      `json:"job_ids"`
}

// New creates a pipeline, applying defaults for unset settings
func New(cfg *Config) *Pipeline {
	p := &Pipeline{
		logger:         cfg.Logger.With(slog.String("component", "pipeline")),
		store:          cfg.Store,
		rules:          cfg.Rules,
		notifier:       cfg.Notifier,
		events:         cfg.Events,
		archive:        cfg.Archive,
		maxBytes:       cfg.MaxAttachmentBytes,
		lookbackDays:   cfg.LookbackDays,
		subjectFilter:  strings.ToLower(cfg.SubjectFilter),
		markRead:       cfg.MarkRead,
		extractTimeout: cfg.ExtractTimeout,
		notifyTimeout:  cfg.NotifyTimeout,
		now:            cfg.Now,
	}
	p.uploads = worker.NewPool(&worker.Config{
		Logger:      p.logger,
		Name:        "upload",
		Concurrency: cfg.UploadWorkers,
		QueueSize:   cfg.UploadQueueSize,
	})
	if p.maxBytes <= 0 {
		p.maxBytes = DefaultMaxAttachmentBytes
	}
	if p.lookbackDays <= 0 {
		p.lookbackDays = DefaultLookbackDays
	}
	if p.subjectFilter == "" {
		p.subjectFilter = DefaultSubjectFilter
	}
	if p.markRead == "" {
		p.markRead = MarkReadAfterFetch
	}
	if p.now == nil {
		p.now = func() time.Time { return time.Now().UTC() }
	}
	return p
}

// MaxAttachmentBytes returns the size limit for a single PDF
func (p *Pipeline) MaxAttachmentBytes() int64 {
	return p.maxBytes
}

// Run fetches unread invoice emails and processes every PDF attachment in
// discovery order, one at a time. A failing job never stops the run; only a
// failed mailbox fetch does.
func (p *Pipeline) Run(ctx context.Context, src Sources, trigger domain.Origin) (RunReport, error) {
	report := RunReport{
		Trigger:   trigger,
		StartedAt: p.now(),
		Errors:    []string{},
		JobIDs:    []string{},
	}

	p.logger.Info("Ingestion run started",
		slog.String("trigger", string(trigger)),
		slog.Int("lookback_days", p.lookbackDays),
	)

	emails, err := src.Mail.FetchUnreadInvoiceEmails(ctx, p.lookbackDays)
	if err != nil {
		report.FinishedAt = p.now()
		report.Errors = append(report.Errors, err.Error())
		p.logger.Error("Failed to fetch unread invoice emails", slog.String("error", err.Error()))
		return report, fmt.Errorf("fetch unread invoice emails: %w", err)
	}

	for _, email := range emails {
		if !strings.Contains(strings.ToLower(email.Subject), p.subjectFilter) {
			p.logger.Debug("Skipping email without invoice subject",
				slog.String("message_id", email.MessageID),
				slog.String("subject", email.Subject),
			)
			continue
		}
		report.EmailsFound++
		p.processEmail(ctx, src, trigger, email, &report)
	}

	report.FinishedAt = p.now()

	p.logger.Info("Ingestion run finished",
		slog.String("trigger", string(trigger)),
		slog.Int("emails", report.EmailsFound),
		slog.Int("invoices_found", report.InvoicesFound),
		slog.Int("processed", report.InvoicesProcessed),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", report.Failed),
		slog.Int("duplicates", report.Duplicates),
		slog.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)

	return report, nil
}

func (p *Pipeline) processEmail(ctx context.Context, src Sources, trigger domain.Origin, email domain.Email, report *RunReport) {
	pdfs := pdfAttachments(email.Attachments)
	report.InvoicesFound += len(pdfs)

	if len(pdfs) == 0 {
		p.logger.Info("Invoice email has no PDF attachment",
			slog.String("message_id", email.MessageID),
			slog.String("subject", email.Subject),
		)
	}

	if p.markRead == MarkReadAfterFetch {
		p.markEmailRead(ctx, src.Mail, email.MessageID)
	}

	allDone := true
	source := domain.Source{
		MessageID:  email.MessageID,
		Sender:     email.Sender,
		Subject:    email.Subject,
		ReceivedAt: email.ReceivedAt,
		Origin:     trigger,
	}

	for _, att := range pdfs {
		job, created, err := p.store.Create(source, domain.Attachment{
			Filename: att.Filename,
			Data:     att.Data,
		})
		if err != nil {
			allDone = false
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", att.Filename, err))
			p.logger.Error("Failed to create job",
				slog.String("message_id", email.MessageID),
				slog.String("filename", att.Filename),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !created {
			report.Duplicates++
			duplicatesTotal.Inc()
			p.logger.Info("Attachment already has a job, skipping",
				slog.String("job_id", job.ID),
				slog.String("message_id", email.MessageID),
				slog.String("filename", att.Filename),
			)
			if job.Status != domain.StatusDone {
				allDone = false
			}
			continue
		}

		report.InvoicesProcessed++
		report.JobIDs = append(report.JobIDs, job.ID)

		final := p.Process(ctx, src.Extractor, job)
		if final.Status == domain.StatusDone {
			report.Succeeded++
		} else {
			allDone = false
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("job %s (%s): %s", job.ID, att.Filename, final.Error))
		}
	}

	switch p.markRead {
	case MarkReadAfterTerminal:
		p.markEmailRead(ctx, src.Mail, email.MessageID)
	case MarkReadAfterSuccess:
		if allDone {
			p.markEmailRead(ctx, src.Mail, email.MessageID)
		}
	}
}

// Process drives a queued job to a terminal state and returns its final snapshot.
// Every failure is recorded on the job; nothing is returned to the caller.
func (p *Pipeline) Process(ctx context.Context, extractor Extractor, job domain.Job) (final domain.Job) {
	log := p.logger.With(slog.String("job_id", job.ID))
	pdf := job.Attachment.Data

	defer func() {
		if r := recover(); r != nil {
			log.Error("Job panicked", slog.Any("panic", r))
			final = p.fail(log, job.ID, fmt.Errorf("internal error: %v", r))
		}
		p.finish(ctx, log, final)
	}()

	log.Info("Processing job",
		slog.String("filename", job.Attachment.Filename),
		slog.Int64("size", job.Attachment.Size),
	)

	// Step 1: size guard, no extraction for oversized attachments
	if job.Attachment.Size > p.maxBytes {
		return p.fail(log, job.ID, domain.NewStageError(domain.ErrAttachmentTooLarge, domain.StatusQueued,
			fmt.Errorf("%.1f MB exceeds the %.0f MB limit", megabytes(job.Attachment.Size), megabytes(p.maxBytes))))
	}

	// Step 2: extraction
	if _, err := p.transition(job.ID, domain.StatusExtracting, nil); err != nil {
		return p.current(log, job.ID, err)
	}

	start := time.Now()
	invoice, err := p.extract(ctx, extractor, pdf, job.Source)
	stageDuration.WithLabelValues(string(domain.StatusExtracting)).Observe(time.Since(start).Seconds())
	if err != nil {
		return p.fail(log, job.ID, domain.NewStageError(domain.ErrExtraction, domain.StatusExtracting, err))
	}
	log.Info("Invoice extracted",
		slog.String("invoice_number", domain.StringValue(invoice.InvoiceNumber, "")),
		slog.String("vendor", domain.StringValue(invoice.Vendor, "")),
	)

	// Step 3: verification
	if _, err := p.transition(job.ID, domain.StatusVerifying, func(j *domain.Job) {
		j.Invoice = invoice
	}); err != nil {
		return p.current(log, job.ID, err)
	}

	if invoice.IsEmpty() {
		return p.fail(log, job.ID, domain.NewStageError(domain.ErrVerificationIncomplete, domain.StatusVerifying,
			errors.New("no invoice fields were extracted")))
	}

	result := verification.Verify(*invoice, p.rules)
	checksPassed.Observe(float64(result.ChecksPassed))
	log.Info("Invoice verified",
		slog.Bool("all_checks_passed", result.AllChecksPassed),
		slog.Int("checks_passed", result.ChecksPassed),
		slog.Int("flags", len(result.Flags)),
	)

	// Step 4: notification
	job, err = p.transition(job.ID, domain.StatusNotifying, func(j *domain.Job) {
		j.Verification = &result
	})
	if err != nil {
		return p.current(log, job.ID, err)
	}

	msg := FormatMessage(job, p.rules, p.now())
	start = time.Now()
	posted, err := p.notify(ctx, msg, pdf)
	stageDuration.WithLabelValues(string(domain.StatusNotifying)).Observe(time.Since(start).Seconds())
	if err != nil {
		stageErr := domain.NewStageError(domain.ErrNotification, domain.StatusNotifying, err)
		if posted.Error == "" {
			posted.Error = err.Error()
		}
		posted.Posted = false
		log.Error("Notification failed, keeping extraction and verification results",
			slog.String("error", stageErr.Error()),
		)
		done, uerr := p.store.Update(job.ID, func(j *domain.Job) error {
			j.Notification = &posted
			j.Status = domain.StatusFailed
			j.Error = stageErr.Error()
			return nil
		})
		if uerr != nil {
			return p.current(log, job.ID, uerr)
		}
		return done
	}

	done, err := p.store.Update(job.ID, func(j *domain.Job) error {
		j.Notification = &posted
		j.Status = domain.StatusDone
		return nil
	})
	if err != nil {
		return p.current(log, job.ID, err)
	}

	log.Info("Job completed",
		slog.String("file_url", posted.FileURL),
		slog.String("message_ref", posted.MessageRef),
	)
	return done
}

// Wait blocks until queued uploads finish
func (p *Pipeline) Wait() {
	p.uploads.Wait()
}

// Close stops the upload workers. Uploads not yet started are marked failed.
func (p *Pipeline) Close() {
	p.uploads.Stop()
}

func (p *Pipeline) extract(ctx context.Context, extractor Extractor, pdf []byte, source domain.Source) (*domain.Invoice, error) {
	if extractor == nil {
		return nil, domain.ConfigError("no extractor configured")
	}
	if p.extractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.extractTimeout)
		defer cancel()
	}
	invoice, err := extractor.Extract(ctx, pdf, source)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		invoice = &domain.Invoice{}
	}
	return invoice, nil
}

func (p *Pipeline) notify(ctx context.Context, msg Message, pdf []byte) (domain.NotificationResult, error) {
	if p.notifier == nil {
		return domain.NotificationResult{}, domain.ConfigError("no notifier configured")
	}
	if p.notifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.notifyTimeout)
		defer cancel()
	}
	return p.notifier.Post(ctx, msg, pdf)
}

// transition moves the job to next, applying edit in the same critical section
func (p *Pipeline) transition(id string, next domain.Status, edit func(j *domain.Job)) (domain.Job, error) {
	job, err := p.store.Update(id, func(j *domain.Job) error {
		if edit != nil {
			edit(j)
		}
		j.Status = next
		return nil
	})
	if err != nil {
		return job, err
	}
	p.logger.Debug("Job status updated",
		slog.String("job_id", id),
		slog.String("status", string(next)),
	)
	return job, nil
}

func (p *Pipeline) fail(log *slog.Logger, id string, cause error) domain.Job {
	log.Warn("Job failed", slog.String("error", cause.Error()))

	job, err := p.store.Update(id, func(j *domain.Job) error {
		j.Status = domain.StatusFailed
		j.Error = cause.Error()
		return nil
	})
	if err != nil {
		return p.current(log, id, err)
	}
	return job
}

// current logs a store error and returns whatever the store holds for id
func (p *Pipeline) current(log *slog.Logger, id string, cause error) domain.Job {
	log.Error("Failed to update job", slog.String("error", cause.Error()))
	job, err := p.store.Get(id)
	if err != nil {
		return domain.Job{ID: id, Status: domain.StatusFailed, Error: cause.Error()}
	}
	return job
}

// finish publishes and archives a terminal job. Both are best-effort.
func (p *Pipeline) finish(ctx context.Context, log *slog.Logger, job domain.Job) {
	if !job.Status.IsTerminal() {
		return
	}

	jobsTotal.WithLabelValues(string(job.Status), failureReason(job)).Inc()

	if p.events != nil {
		if err := p.events.PublishJobEvent(ctx, job); err != nil {
			log.Warn("Failed to publish job event", slog.String("error", err.Error()))
		}
	}
	if p.archive != nil {
		if err := p.archive.ArchiveJob(ctx, job); err != nil {
			log.Warn("Failed to archive job", slog.String("error", err.Error()))
		}
	}
}

func (p *Pipeline) markEmailRead(ctx context.Context, mail MailSource, messageID string) {
	if err := mail.MarkRead(ctx, messageID); err != nil {
		p.logger.Warn("Failed to mark email read",
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return
	}
	p.logger.Debug("Email marked read", slog.String("message_id", messageID))
}

// failureReason labels a terminal job by the kind of error it ended with
func failureReason(job domain.Job) string {
	if job.Status == domain.StatusDone {
		return "none"
	}
	for _, k := range []struct {
		err   error
		label string
	}{
		{domain.ErrAttachmentTooLarge, "attachment_too_large"},
		{domain.ErrExtraction, "extraction"},
		{domain.ErrVerificationIncomplete, "verification_incomplete"},
		{domain.ErrNotification, "notification"},
	} {
		if strings.HasPrefix(job.Error, k.err.Error()) {
			return k.label
		}
	}
	return "other"
}

func pdfAttachments(atts []domain.EmailAttachment) []domain.EmailAttachment {
	pdfs := make([]domain.EmailAttachment, 0, len(atts))
	for _, a := range atts {
		if strings.EqualFold(filepath.Ext(a.Filename), ".pdf") {
			pdfs = append(pdfs, a)
		}
	}
	return pdfs
}

func megabytes(n int64) float64 {
	return float64(n) / (1 << 20)
}
