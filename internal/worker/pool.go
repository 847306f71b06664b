// Package worker runs queued tasks on a fixed number of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultConcurrency = 2
	DefaultQueueSize   = 32
)

// ErrPoolStopped is returned when enqueueing after Stop
var ErrPoolStopped = errors.New("worker pool stopped")

// Task is one unit of background work
type Task struct {
	JobID string
	Run   func(ctx context.Context) error
	// OnDrop is called instead of Run when the pool stops before the task starts
	OnDrop func(err error)
}

// Config holds pool configuration
type Config struct {
	Logger      *slog.Logger
	Name        string
	Concurrency int
	QueueSize   int
	TaskTimeout time.Duration
}

// Pool is a bounded set of goroutines draining a task queue
type Pool struct {
	logger      *slog.Logger
	name        string
	concurrency int
	taskTimeout time.Duration

	tasks    chan Task
	stopChan chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	pending  sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewPool creates a pool. Workers are spawned by Start.
func NewPool(cfg *Config) *Pool {
	p := &Pool{
		logger:      cfg.Logger,
		name:        cfg.Name,
		concurrency: cfg.Concurrency,
		taskTimeout: cfg.TaskTimeout,
		stopChan:    make(chan struct{}),
	}
	if p.name == "" {
		p.name = "worker"
	}
	if p.concurrency <= 0 {
		p.concurrency = DefaultConcurrency
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	p.tasks = make(chan Task, size)
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p
}

// Start spawns the worker goroutines. Calling it twice has no effect.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.workerLoop(i)
	}

	p.logger.Info("Worker pool started",
		slog.String("pool", p.name),
		slog.Int("concurrency", p.concurrency),
		slog.Int("queue_size", cap(p.tasks)),
	)
}

// Enqueue queues task, blocking while the queue is full until ctx ends
func (p *Pool) Enqueue(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	p.pending.Add(1)
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		p.pending.Done()
		return fmt.Errorf("enqueue %s: %w", task.JobID, ctx.Err())
	}
}

// Wait blocks until every enqueued task has finished
func (p *Pool) Wait() {
	p.pending.Wait()
}

// Stop refuses new tasks, cancels running ones and waits for the workers to
// exit. Tasks still queued are dropped through their OnDrop callback.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.stopChan)
	p.cancel()
	p.wg.Wait()

	if dropped := p.drain(); dropped > 0 {
		p.logger.Warn("Worker pool stopped with queued tasks",
			slog.String("pool", p.name),
			slog.Int("dropped", dropped),
		)
	}
}

// drain empties the queue once no worker or enqueuer can touch it
func (p *Pool) drain() int {
	dropped := 0
	for {
		select {
		case task := <-p.tasks:
			dropped++
			p.drop(task)
		default:
			return dropped
		}
	}
}

func (p *Pool) drop(task Task) {
	defer p.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Drop callback panicked",
				slog.String("job_id", task.JobID),
				slog.Any("panic", r),
			)
		}
	}()
	if task.OnDrop != nil {
		task.OnDrop(ErrPoolStopped)
	}
}

func (p *Pool) workerLoop(workerNum int) {
	defer p.wg.Done()

	workerName := fmt.Sprintf("%s-%d", p.name, workerNum)
	for {
		select {
		case <-p.stopChan:
			return
		case task := <-p.tasks:
			p.execute(workerName, task)
		}
	}
}

func (p *Pool) execute(workerName string, task Task) {
	defer p.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Task panicked",
				slog.String("worker_name", workerName),
				slog.String("job_id", task.JobID),
				slog.Any("panic", r),
			)
		}
	}()

	ctx := p.ctx
	if p.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.taskTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := task.Run(ctx); err != nil {
		p.logger.Error("Task failed",
			slog.String("worker_name", workerName),
			slog.String("job_id", task.JobID),
			slog.String("error", err.Error()),
		)
		return
	}
	p.logger.Debug("Task completed",
		slog.String("worker_name", workerName),
		slog.String("job_id", task.JobID),
		slog.Duration("duration", time.Since(start)),
	)
}
