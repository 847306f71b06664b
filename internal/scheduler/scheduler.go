// Package scheduler triggers ingestion runs daily and on demand, allowing at
// most one run at a time.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuongbtq/invoice-verifier/internal/domain"
	"github.com/cuongbtq/invoice-verifier/internal/pipeline"
	"github.com/robfig/cron/v3"
)

const (
	// DefaultDailyTime is when the scheduled check fires
	DefaultDailyTime = "14:00"
	// DefaultHistorySize is how many completed checks are remembered
	DefaultHistorySize = 100
)

// Runner executes ingestion runs and manual uploads
type Runner interface {
	Run(ctx context.Context, src pipeline.Sources, trigger domain.Origin) (pipeline.RunReport, error)
	Submit(ctx context.Context, extractor pipeline.Extractor, upload pipeline.Upload) (domain.Job, error)
}

// SourceFactory builds the mailbox and extractor clients for a set of credentials
type SourceFactory interface {
	Build(creds domain.Credentials) (pipeline.Sources, error)
}

// Config holds scheduler configuration
type Config struct {
	Logger      *slog.Logger
	Runner      Runner
	Sources     SourceFactory
	Credentials domain.Credentials
	DailyTime   string
	Location    *time.Location
	HistorySize int
	RunTimeout  time.Duration
	Now         func() time.Time
}

// CheckRecord is one completed ingestion run
type CheckRecord struct {
	CheckedAt         time.Time     `json:"checked_at"`
	Trigger           domain.Origin `json:"trigger"`
	EmailsFound       int           `json:"emails_found"`
	InvoicesFound     int           `json:"invoices_found"`
	InvoicesProcessed int           `json:"invoices_processed"`
	Duplicates        int           `json:"duplicates"`
	Errors            []string      `json:"errors"`
	JobIDs            []string      `json:"job_ids"`
}

// Scheduler owns the run lock and the daily trigger
type Scheduler struct {
	logger      *slog.Logger
	runner      Runner
	sources     SourceFactory
	creds       domain.Credentials
	dailyTime   string
	location    *time.Location
	historySize int
	runTimeout  time.Duration
	now         func() time.Time

	cron    *cron.Cron
	entryID cron.EntryID
	running atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	history []CheckRecord
}

// New creates a scheduler. The daily trigger is registered but does not fire
// until Start is called.
func New(cfg *Config) (*Scheduler, error) {
	s := &Scheduler{
		logger:      cfg.Logger.With(slog.String("component", "scheduler")),
		runner:      cfg.Runner,
		sources:     cfg.Sources,
		creds:       cfg.Credentials,
		dailyTime:   cfg.DailyTime,
		location:    cfg.Location,
		historySize: cfg.HistorySize,
		runTimeout:  cfg.RunTimeout,
		now:         cfg.Now,
	}
	if s.dailyTime == "" {
		s.dailyTime = DefaultDailyTime
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if s.historySize <= 0 {
		s.historySize = DefaultHistorySize
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}

	hour, minute, err := ParseDailyTime(s.dailyTime)
	if err != nil {
		return nil, err
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = cron.New(cron.WithLocation(s.location))
	s.entryID, err = s.cron.AddFunc(fmt.Sprintf("%d %d * * *", minute, hour), s.scheduledRun)
	if err != nil {
		return nil, domain.ConfigError("invalid daily schedule %q: %v", s.dailyTime, err)
	}

	return s, nil
}

// ParseDailyTime parses a 24 hour HH:MM clock time
func ParseDailyTime(value string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return 0, 0, domain.ConfigError("daily time %q must be HH:MM", value)
	}
	hour, herr := strconv.Atoi(h)
	minute, merr := strconv.Atoi(m)
	if herr != nil || merr != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, domain.ConfigError("daily time %q must be HH:MM", value)
	}
	return hour, minute, nil
}

// Start begins firing the daily trigger
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started",
		slog.String("daily_time", s.dailyTime),
		slog.String("location", s.location.String()),
		slog.Time("next_run", s.NextRun()),
	)
}

// Stop halts the daily trigger and waits for an in-flight scheduled run,
// cancelling it if ctx expires first
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info("Stopping scheduler...")
	done := s.cron.Stop()

	select {
	case <-done.Done():
		s.cancel()
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done.Done()
		s.logger.Warn("Scheduler stop timed out, in-flight run cancelled")
		return ctx.Err()
	}
}

// TriggerNow runs an ingestion synchronously. Non-nil creds replace the
// process credentials for this run only; the model falls back to the
// process model when the caller leaves it empty.
func (s *Scheduler) TriggerNow(ctx context.Context, creds *domain.Credentials) (pipeline.RunReport, error) {
	effective := s.creds
	if creds != nil {
		if err := creds.Validate(); err != nil {
			return pipeline.RunReport{}, err
		}
		effective = *creds
		if effective.Model == "" {
			effective.Model = s.creds.Model
		}
	}
	return s.run(ctx, domain.OriginOnDemand, effective)
}

// Submit hands a manual upload to the pipeline using the process credentials
func (s *Scheduler) Submit(ctx context.Context, upload pipeline.Upload) (domain.Job, error) {
	src, err := s.sources.Build(s.creds)
	if err != nil {
		return domain.Job{}, err
	}
	return s.runner.Submit(ctx, src.Extractor, upload)
}

// Running reports whether an ingestion run is in flight
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// NextRun returns when the daily trigger fires next, zero before Start
func (s *Scheduler) NextRun() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// LastRun returns when the most recent run finished, zero if none has
func (s *Scheduler) LastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.history) == 0 {
		return time.Time{}
	}
	return s.history[len(s.history)-1].CheckedAt
}

// History returns up to n most recent checks, oldest first
func (s *Scheduler) History(n int) []CheckRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.history) {
		n = len(s.history)
	}
	out := make([]CheckRecord, 0, n)
	for _, rec := range s.history[len(s.history)-n:] {
		out = append(out, rec.clone())
	}
	return out
}

func (s *Scheduler) scheduledRun() {
	ctx := s.ctx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	if _, err := s.run(ctx, domain.OriginScheduled, s.creds); err != nil {
		s.logger.Error("Scheduled ingestion run failed", slog.String("error", err.Error()))
	}
}

func (s *Scheduler) run(ctx context.Context, trigger domain.Origin, creds domain.Credentials) (report pipeline.RunReport, err error) {
	if err := creds.Validate(); err != nil {
		runsTotal.WithLabelValues(string(trigger), "rejected").Inc()
		return pipeline.RunReport{}, err
	}

	if !s.running.CompareAndSwap(false, true) {
		runsTotal.WithLabelValues(string(trigger), "busy").Inc()
		s.logger.Warn("Ingestion run already in progress", slog.String("trigger", string(trigger)))
		return pipeline.RunReport{}, domain.ErrAlreadyRunning
	}
	defer s.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Ingestion run panicked", slog.Any("panic", r))
			err = fmt.Errorf("ingestion run panicked: %v", r)
			report.Errors = append(report.Errors, err.Error())
		}
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		runsTotal.WithLabelValues(string(trigger), outcome).Inc()
		s.record(trigger, report)
	}()

	src, err := s.sources.Build(creds)
	if err != nil {
		report.Errors = []string{err.Error()}
		return report, err
	}

	return s.runner.Run(ctx, src, trigger)
}

func (r CheckRecord) clone() CheckRecord {
	r.Errors = append([]string{}, r.Errors...)
	r.JobIDs = append([]string{}, r.JobIDs...)
	return r
}

func (s *Scheduler) record(trigger domain.Origin, report pipeline.RunReport) {
	rec := CheckRecord{
		CheckedAt:         report.FinishedAt,
		Trigger:           trigger,
		EmailsFound:       report.EmailsFound,
		InvoicesFound:     report.InvoicesFound,
		InvoicesProcessed: report.InvoicesProcessed,
		Duplicates:        report.Duplicates,
		Errors:            append([]string{}, report.Errors...),
		JobIDs:            append([]string{}, report.JobIDs...),
	}
	if rec.CheckedAt.IsZero() {
		rec.CheckedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, rec)
	if over := len(s.history) - s.historySize; over > 0 {
		s.history = append([]CheckRecord(nil), s.history[over:]...)
	}
}
