package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cuongbtq/invoice-verifier/internal/domain"
	"github.com/cuongbtq/invoice-verifier/internal/jobstore"
	"github.com/cuongbtq/invoice-verifier/internal/verification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)

type harness struct {
	pipeline  *Pipeline
	store     *jobstore.Store
	notifier  *fakeNotifier
	events    *recordingSink
	archive   *recordingSink
	extractor *fakeExtractor
}

func newHarness(t *testing.T, mutate func(cfg *Config)) *harness {
	t.Helper()
	h := &harness{
		store:    jobstore.New(discardLogger()),
		notifier: &fakeNotifier{},
		events:   &recordingSink{},
		archive:  &recordingSink{},
		extractor: &fakeExtractor{
			results: map[string]*domain.Invoice{},
			errs:    map[string]error{},
			panics:  map[string]bool{},
		},
	}
	cfg := &Config{
		Logger:   discardLogger(),
		Store:    h.store,
		Rules:    verification.DefaultRules(),
		Notifier: h.notifier,
		Events:   h.events,
		Archive:  h.archive,
		Now:      func() time.Time { return fixedNow },
	}
	if mutate != nil {
		mutate(cfg)
	}
	h.pipeline = New(cfg)
	t.Cleanup(h.pipeline.Close)
	return h
}

func goodInvoice(number string) *domain.Invoice {
	return &domain.Invoice{
		InvoiceNumber: domain.String(number),
		Vendor:        domain.String("Nexus Path Consulting Group LLC"),
		InvoiceDate:   domain.String("2025-12-24"),
		DueDate:       domain.String("2026-01-23"),
		Currency:      domain.String("USD"),
		Subtotal:      domain.Float(29570.50),
		Tax:           domain.Float(2624.38),
		Total:         domain.Float(32194.88),
	}
}

func email(id string, attachments ...domain.EmailAttachment) domain.Email {
	return domain.Email{
		MessageID:   id,
		Sender:      "billing@nexuspath.example",
		Subject:     "Invoice for December",
		ReceivedAt:  fixedNow.Add(-time.Hour),
		Attachments: attachments,
	}
}

func pdf(name, content string) domain.EmailAttachment {
	return domain.EmailAttachment{Filename: name, Data: []byte(content)}
}

func TestPipeline_RunHappyPath(t *testing.T) {
	h := newHarness(t, nil)
	h.extractor.results["pdf-a"] = goodInvoice("INV-1")
	mail := &fakeMail{emails: []domain.Email{email("m1", pdf("a.pdf", "pdf-a"))}}

	report, err := h.pipeline.Run(context.Background(), Sources{Mail: mail, Extractor: h.extractor}, domain.OriginScheduled)
	require.NoError(t, err)

	assert.Equal(t, 1, report.EmailsFound)
	assert.Equal(t, 1, report.InvoicesFound)
	assert.Equal(t, 1, report.InvoicesProcessed)
	assert.Equal(t, 1, report.Succeeded)
	assert.Empty(t, report.Errors)
	require.Len(t, report.JobIDs, 1)

	job, err := h.store.Get(report.JobIDs[0])
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, job.Status)
	assert.Empty(t, job.Error)
	require.NotNil(t, job.Invoice)
	require.NotNil(t, job.Verification)
	assert.True(t, job.Verification.AllChecksPassed)
	require.NotNil(t, job.Notification)
	assert.True(t, job.Notification.Posted)
	assert.Equal(t, "https://files.example/invoice_INV-1.pdf", job.Notification.FileURL)
	assert.True(t, job.Attachment.Released())
	assert.Equal(t, domain.OriginScheduled, job.Source.Origin)
	assert.Equal(t, "billing@nexuspath.example", job.Source.Sender)

	require.Len(t, h.notifier.messages, 1)
	assert.Equal(t, []byte("pdf-a"), h.notifier.pdfs[0])
	assert.Equal(t, []string{"m1"}, mail.readIDs())
	assert.Equal(t, 1, h.events.count())
	assert.Equal(t, 1, h.archive.count())
}

func TestPipeline_ExtractionFailureDoesNotStopRun(t *testing.T) {
	h := newHarness(t, nil)
	h.extractor.errs["pdf-bad"] = errors.New("model timeout")
	h.extractor.results["pdf-good"] = goodInvoice("INV-2")
	mail := &fakeMail{emails: []domain.Email{
		email("m1", pdf("bad.pdf", "pdf-bad"), pdf("good.pdf", "pdf-good")),
	}}

	report, err := h.pipeline.Run(context.Background(), Sources{Mail: mail, Extractor: h.extractor}, domain.OriginScheduled)
	require.NoError(t, err)

	assert.Equal(t, 2, report.InvoicesProcessed)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "model timeout")

	bad, err := h.store.Get(report.JobIDs[0])
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, bad.Status)
	assert.Equal(t, "extraction failed: model timeout", bad.Error)
	assert.Nil(t, bad.Invoice)
	assert.Nil(t, bad.Verification)
	assert.Nil(t, bad.Notification)

	good, err := h.store.Get(report.JobIDs[1])
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, good.Status)

	assert.Equal(t, []string{"pdf-bad", "pdf-good"}, h.extractor.calls, "attachments processed in discovery order")
	assert.Equal(t, 2, h.events.count())
}

func TestPipeline_AttachmentTooLarge(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.MaxAttachmentBytes = 10 })
	mail := &fakeMail{emails: []domain.Email{email("m1", pdf("big.pdf", "this is more than ten bytes"))}}

	report, err := h.pipeline.Run(context.Background(), Sources{Mail: mail, Extractor: h.extractor}, domain.OriginScheduled)
	require.NoError(t, err)

	job, err := h.store.Get(report.JobIDs[0])
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, job.Status)
	assert.True(t, strings.HasPrefix(job.Error, "attachment too large"), job.Error)
	assert.Equal(t, 0, h.extractor.callCount(), "no extraction attempted")
	assert.Equal(t, "attachment_too_large", failureReason(job))
}

func TestPipeline_DefaultSizeLimitIsFifteenMegabytes(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, int64(15*1024*1024), h.pipeline.MaxAttachmentBytes())
}

func TestPipeline_VerificationIncomplete(t *testing.T) {
	h := newHarness(t, nil)
	h.extractor.results["pdf-empty"] = &domain.Invoice{Flags: []string{"could not read"}}
	mail := &fakeMail{emails: []domain.Email{email("m1", pdf("empty.pdf", "pdf-empty"))}}

	report, err := h.pipeline.Run(context.Background(), Sources{Mail: mail, Extractor: h.extractor}, domain.OriginScheduled)
	require.NoError(t, err)

	job, err := h.store.Get(report.JobIDs[0])
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, job.Status)
	assert.Contains(t, job.Error, "verification incomplete")
	assert.NotNil(t, job.Invoice)
	assert.Nil(t, job.Verification)
	assert.Empty(t, h.notifier.messages)
}

func TestPipeline_NotificationFailureKeepsPartialResults(t *testing.T) {
	h := newHarness(t, nil)
	h.notifier.err = errors.New("channel_not_found")
	inv := goodInvoice("INV-3")
	inv.Total = domain.Float(1)
	h.extractor.results["pdf-a"] = inv
	mail := &fakeMail{emails: []domain.Email{email("m1", pdf("a.pdf", "pdf-a"))}}

	report, err := h.pipeline.Run(context.Background(), Sources{Mail: mail, Extractor: h.extractor}, domain.OriginScheduled)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	job, err := h.store.Get(report.JobIDs[0])
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, job.Status)
	assert.Equal(t, "notification failed: channel_not_found", job.Error)
	require.NotNil(t, job.Invoice)
	require.NotNil(t, job.Verification)
	assert.Equal(t, 4, job.Verification.ChecksPassed)
	require.NotNil(t, job.Notification)
	assert.False(t, job.Notification.Posted)
	assert.Equal(t, "channel_not_found", job.Notification.Error)
	assert.True(t, job.Attachment.Released())
}

func TestPipeline_ExtractorPanicFailsOnlyThatJob(t *testing.T) {
	h := newHarness(t, nil)
	h.extractor.panics["pdf-panic"] = true
	h.extractor.results["pdf-ok"] = goodInvoice("INV-4")
	mail := &fakeMail{emails: []domain.Email{
		email("m1", pdf("p.pdf", "pdf-panic")),
		email("m2", pdf("ok.pdf", "pdf-ok")),
	}}

	report, err := h.pipeline.Run(context.Background(), Sources{Mail: mail, Extractor: h.extractor}, domain.OriginScheduled)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Succeeded)

	job, err := h.store.Get(report.JobIDs[0])
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, job.Status)
	assert.Contains(t, job.Error, "internal error")
}

func TestPipeline_DedupAcrossRuns(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.MarkRead = MarkReadNever })
	h.extractor.results["pdf-a"] = goodInvoice("INV-5")
	mail := &fakeMail{emails: []domain.Email{
		email("m1", pdf("a.pdf", "pdf-a"), pdf("a-copy.pdf", "pdf-a")),
	}}
	src := Sources{Mail: mail, Extractor: h.extractor}

	first, err := h.pipeline.Run(context.Background(), src, domain.OriginScheduled)
	require.NoError(t, err)
	assert.Equal(t, 1, first.InvoicesProcessed)
	assert.Equal(t, 1, first.Duplicates, "same checksum within one message")

	second, err := h.pipeline.Run(context.Background(), src, domain.OriginOnDemand)
	require.NoError(t, err)
	assert.Equal(t, 0, second.InvoicesProcessed)
	assert.Equal(t, 2, second.Duplicates)
	assert.Empty(t, second.JobIDs)

	assert.Equal(t, 1, h.store.Len())
	assert.Equal(t, 1, h.extractor.callCount())
	assert.Empty(t, mail.readIDs())
}

func TestPipeline_SkipsNonInvoiceSubjectsAndNonPDFs(t *testing.T) {
	h := newHarness(t, nil)
	h.extractor.results["pdf-a"] = goodInvoice("INV-6")
	newsletter := email("m0", pdf("x.pdf", "pdf-x"))
	newsletter.Subject = "Weekly newsletter"
	mail := &fakeMail{emails: []domain.Email{
		newsletter,
		email("m1", domain.EmailAttachment{Filename: "notes.txt", Data: []byte("hi")}, pdf("A.PDF", "pdf-a")),
	}}

	report, err := h.pipeline.Run(context.Background(), Sources{Mail: mail, Extractor: h.extractor}, domain.OriginScheduled)
	require.NoError(t, err)

	assert.Equal(t, 1, report.EmailsFound)
	assert.Equal(t, 1, report.InvoicesFound)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, []string{"m1"}, mail.readIDs())
}

func TestPipeline_FetchFailureAbortsRun(t *testing.T) {
	h := newHarness(t, nil)
	mail := &fakeMail{fetchErr: errors.New("imap login failed")}

	report, err := h.pipeline.Run(context.Background(), Sources{Mail: mail, Extractor: h.extractor}, domain.OriginScheduled)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "imap login failed")
	assert.Equal(t, []string{"imap login failed"}, report.Errors)
	assert.Equal(t, 0, h.store.Len())
}

func TestPipeline_MarkReadPolicies(t *testing.T) {
	tests := []struct {
		policy MarkReadPolicy
		want   []string
	}{
		{MarkReadAfterFetch, []string{"m-ok", "m-bad"}},
		{MarkReadAfterTerminal, []string{"m-ok", "m-bad"}},
		{MarkReadAfterSuccess, []string{"m-ok"}},
		{MarkReadNever, nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			h := newHarness(t, func(cfg *Config) { cfg.MarkRead = tt.policy })
			h.extractor.results["pdf-ok"] = goodInvoice("INV-7")
			h.extractor.errs["pdf-bad"] = errors.New("unparsable")
			mail := &fakeMail{emails: []domain.Email{
				email("m-ok", pdf("ok.pdf", "pdf-ok")),
				email("m-bad", pdf("bad.pdf", "pdf-bad")),
			}}

			_, err := h.pipeline.Run(context.Background(), Sources{Mail: mail, Extractor: h.extractor}, domain.OriginScheduled)
			require.NoError(t, err)
			assert.Equal(t, tt.want, mail.readIDs())
		})
	}
}

func TestPipeline_MarkReadFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, nil)
	h.extractor.results["pdf-a"] = goodInvoice("INV-8")
	mail := &fakeMail{
		emails:  []domain.Email{email("m1", pdf("a.pdf", "pdf-a"))},
		markErr: errors.New("store flags failed"),
	}

	report, err := h.pipeline.Run(context.Background(), Sources{Mail: mail, Extractor: h.extractor}, domain.OriginScheduled)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
}

func TestPipeline_SinkFailuresAreBestEffort(t *testing.T) {
	h := newHarness(t, nil)
	h.events.err = errors.New("broker down")
	h.archive.err = errors.New("db down")
	h.extractor.results["pdf-a"] = goodInvoice("INV-9")
	mail := &fakeMail{emails: []domain.Email{email("m1", pdf("a.pdf", "pdf-a"))}}

	report, err := h.pipeline.Run(context.Background(), Sources{Mail: mail, Extractor: h.extractor}, domain.OriginScheduled)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
}

func TestPipeline_Submit(t *testing.T) {
	h := newHarness(t, nil)
	h.extractor.results["pdf-upload"] = goodInvoice("INV-10")

	job, err := h.pipeline.Submit(context.Background(), h.extractor, Upload{Filename: "upload.pdf", Data: []byte("pdf-upload")})
	require.NoError(t, err)
	assert.Equal(t, domain.OriginUpload, job.Source.Origin)
	assert.True(t, strings.HasPrefix(job.Source.MessageID, "upload-"))

	h.pipeline.Wait()

	final, err := h.store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, final.Status)
}

type blockingExtractor struct {
	started chan struct{}
}

func (b *blockingExtractor) Extract(ctx context.Context, pdf []byte, source domain.Source) (*domain.Invoice, error) {
	b.started <- struct{}{}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestPipeline_CloseFailsQueuedUploads(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.UploadWorkers = 1
		cfg.UploadQueueSize = 4
	})
	extractor := &blockingExtractor{started: make(chan struct{}, 3)}

	var ids []string
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		job, err := h.pipeline.Submit(context.Background(), extractor, Upload{Filename: name, Data: []byte(name)})
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}
	<-extractor.started

	h.pipeline.Close()

	done := make(chan struct{})
	go func() {
		h.pipeline.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait blocked after Close")
	}

	for _, id := range ids {
		job, err := h.store.Get(id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, job.Status, id)
	}
}

func TestPipeline_SubmitAfterClose(t *testing.T) {
	h := newHarness(t, nil)
	h.pipeline.Close()

	_, err := h.pipeline.Submit(context.Background(), h.extractor, Upload{Filename: "late.pdf", Data: []byte("late")})
	require.Error(t, err)

	jobs := h.store.List()
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.StatusFailed, jobs[0].Status)
}

func TestPipeline_SubmitRejectsBadUploads(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.MaxAttachmentBytes = 4 })

	_, err := h.pipeline.Submit(context.Background(), h.extractor, Upload{Filename: "x.pdf"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")

	_, err = h.pipeline.Submit(context.Background(), h.extractor, Upload{Filename: "x.pdf", Data: []byte("12345")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAttachmentTooLarge))

	assert.Equal(t, 0, h.store.Len())
}

func TestPipeline_MissingNotifier(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.Notifier = nil })
	h.extractor.results["pdf-a"] = goodInvoice("INV-11")
	mail := &fakeMail{emails: []domain.Email{email("m1", pdf("a.pdf", "pdf-a"))}}

	report, err := h.pipeline.Run(context.Background(), Sources{Mail: mail, Extractor: h.extractor}, domain.OriginScheduled)
	require.NoError(t, err)

	job, err := h.store.Get(report.JobIDs[0])
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, job.Status)
	assert.Contains(t, job.Error, "no notifier configured")
	assert.NotNil(t, job.Verification)
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		job  domain.Job
		want string
	}{
		{domain.Job{Status: domain.StatusDone}, "none"},
		{domain.Job{Status: domain.StatusFailed, Error: "attachment too large: 16 MB"}, "attachment_too_large"},
		{domain.Job{Status: domain.StatusFailed, Error: "extraction failed: x"}, "extraction"},
		{domain.Job{Status: domain.StatusFailed, Error: "verification incomplete: x"}, "verification_incomplete"},
		{domain.Job{Status: domain.StatusFailed, Error: "notification failed: x"}, "notification"},
		{domain.Job{Status: domain.StatusFailed, Error: "internal error: boom"}, "other"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.job.Status, tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, failureReason(tt.job))
		})
	}
}
