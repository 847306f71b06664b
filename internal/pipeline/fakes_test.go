package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/cuongbtq/invoice-verifier/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMail struct {
	mu       sync.Mutex
	emails   []domain.Email
	fetchErr error
	markErr  error
	read     []string
}

func (f *fakeMail) FetchUnreadInvoiceEmails(ctx context.Context, lookbackDays int) ([]domain.Email, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.emails, nil
}

func (f *fakeMail) MarkRead(ctx context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.read = append(f.read, messageID)
	return nil
}

func (f *fakeMail) readIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.read...)
}

// fakeExtractor returns results keyed by the PDF contents
type fakeExtractor struct {
	mu      sync.Mutex
	results map[string]*domain.Invoice
	errs    map[string]error
	panics  map[string]bool
	calls   []string
}

func (f *fakeExtractor) Extract(ctx context.Context, pdf []byte, source domain.Source) (*domain.Invoice, error) {
	f.mu.Lock()
	f.calls = append(f.calls, string(pdf))
	f.mu.Unlock()

	key := string(pdf)
	if f.panics[key] {
		panic("extractor blew up")
	}
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	if inv, ok := f.results[key]; ok {
		c := inv.Clone()
		return &c, nil
	}
	return nil, errors.New("unreadable pdf")
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeNotifier struct {
	mu       sync.Mutex
	err      error
	messages []Message
	pdfs     [][]byte
}

func (f *fakeNotifier) Post(ctx context.Context, msg Message, pdf []byte) (domain.NotificationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	f.pdfs = append(f.pdfs, pdf)
	if f.err != nil {
		return domain.NotificationResult{Channel: "C1", Error: f.err.Error()}, f.err
	}
	return domain.NotificationResult{
		Posted:      true,
		Channel:     "C1",
		ChannelName: "invoice-approval",
		FileURL:     "https://files.example/" + msg.Filename,
		MessageRef:  "F" + msg.Filename,
	}, nil
}

type recordingSink struct {
	mu   sync.Mutex
	jobs []domain.Job
	err  error
}

func (r *recordingSink) PublishJobEvent(ctx context.Context, job domain.Job) error {
	return r.record(job)
}

func (r *recordingSink) ArchiveJob(ctx context.Context, job domain.Job) error {
	return r.record(job)
}

func (r *recordingSink) record(job domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return r.err
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}
