// Package jobstore is the in-memory, concurrency-safe container for invoice jobs.
//
// Jobs live for the life of the process. The index (id map, insertion order and
// dedup keys) is guarded by one RWMutex; every record has its own mutex so
// mutation of one job never blocks reads of another.
package jobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/invoice-verifier/internal/domain"
	"github.com/google/uuid"
)

// Mutation edits a job in place. Returning an error discards the edit.
type Mutation func(job *domain.Job) error

type entry struct {
	mu  sync.Mutex
	job domain.Job
}

// Store holds every job created by the process
type Store struct {
	mu     sync.RWMutex
	jobs   map[string]*entry
	order  []string
	dedup  map[domain.DedupKey]string
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides job id generation
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// New creates an empty store
func New(logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		jobs:   make(map[string]*entry),
		dedup:  make(map[domain.DedupKey]string),
		logger: logger.With(slog.String("component", "jobstore")),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Checksum returns the hex sha256 of data
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Create registers a queued job for the attachment unless one already exists
// for the same (message id, checksum). The lookup and the insert happen under
// the same lock. When a job already exists it is returned with created=false.
func (s *Store) Create(source domain.Source, attachment domain.Attachment) (domain.Job, bool, error) {
	if source.MessageID == "" {
		return domain.Job{}, false, fmt.Errorf("message id is required")
	}
	if attachment.Checksum == "" {
		attachment.Checksum = Checksum(attachment.Data)
	}
	if attachment.Size == 0 {
		attachment.Size = int64(len(attachment.Data))
	}
	key := domain.DedupKey{MessageID: source.MessageID, Checksum: attachment.Checksum}

	s.mu.Lock()
	if id, ok := s.dedup[key]; ok {
		e := s.jobs[id]
		s.mu.Unlock()

		s.logger.Debug("Duplicate attachment, reusing existing job",
			slog.String("job_id", id),
			slog.String("message_id", key.MessageID),
			slog.String("checksum", key.Checksum),
		)
		return e.snapshot(), false, nil
	}

	now := s.now()
	e := &entry{job: domain.Job{
		ID:         s.newID(),
		Status:     domain.StatusQueued,
		Source:     source,
		Attachment: attachment,
		CreatedAt:  now,
		UpdatedAt:  now,
	}}
	s.jobs[e.job.ID] = e
	s.order = append(s.order, e.job.ID)
	s.dedup[key] = e.job.ID
	job := e.job.Clone()
	s.mu.Unlock()

	s.logger.Info("Job created",
		slog.String("job_id", job.ID),
		slog.String("message_id", key.MessageID),
		slog.String("filename", attachment.Filename),
		slog.Int64("size", attachment.Size),
	)

	return job, true, nil
}

// Get returns a snapshot of the job
func (s *Store) Get(id string) (domain.Job, error) {
	e, err := s.lookup(id)
	if err != nil {
		return domain.Job{}, err
	}
	return e.snapshot(), nil
}

// Update applies mutation to the job under its lock and returns the result.
// Terminal jobs are immutable; status changes must follow the lifecycle.
// Attachment bytes are released once the job becomes terminal.
func (s *Store) Update(id string, mutation Mutation) (domain.Job, error) {
	e, err := s.lookup(id)
	if err != nil {
		return domain.Job{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.job
	if cur.Status.IsTerminal() {
		return cur.Clone(), fmt.Errorf("update job %s: %w", id, domain.ErrJobTerminal)
	}

	next := cur.Clone()
	if err := mutation(&next); err != nil {
		return cur.Clone(), err
	}

	if next.Status != cur.Status && !cur.Status.CanTransitionTo(next.Status) {
		return cur.Clone(), fmt.Errorf("update job %s: %w: %s -> %s", id, domain.ErrInvalidTransition, cur.Status, next.Status)
	}

	// identity and input are fixed at creation
	next.ID = cur.ID
	next.Source = cur.Source
	next.CreatedAt = cur.CreatedAt
	next.Attachment.Checksum = cur.Attachment.Checksum
	next.Attachment.Size = cur.Attachment.Size
	next.UpdatedAt = s.now()

	if next.Status.IsTerminal() {
		next.Attachment.Data = nil
	}

	e.job = next
	return next.Clone(), nil
}

// List returns snapshots of every job in insertion order
func (s *Store) List() []domain.Job {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, s.jobs[id])
	}
	s.mu.RUnlock()

	jobs := make([]domain.Job, 0, len(entries))
	for _, e := range entries {
		jobs = append(jobs, e.snapshot())
	}
	return jobs
}

// Len returns the number of jobs
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Counts returns the number of jobs per status
func (s *Store) Counts() map[domain.Status]int {
	counts := make(map[domain.Status]int, len(domain.AllStatuses()))
	for _, st := range domain.AllStatuses() {
		counts[st] = 0
	}
	for _, job := range s.List() {
		counts[job.Status]++
	}
	return counts
}

// Exists reports whether a job already covers the dedup key
func (s *Store) Exists(key domain.DedupKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dedup[key]
	return ok
}

func (s *Store) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return e, nil
}

func (e *entry) snapshot() domain.Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone()
}

// IsNotFound reports whether err is a missing job
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
