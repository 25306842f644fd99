package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/clauseguard/internal/entitlement"
	"github.com/joseph-ayodele/clauseguard/internal/pipeline"
)

var ErrQueueClosed = errors.New("queue is shutting down")

// DocumentProcessor is satisfied by *pipeline.Processor.
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, snap entitlement.Snapshot, in pipeline.Input) (pipeline.Outcome, error)
}

// ProcessorQueue runs documents through a processor on a fixed pool of workers.
// Every job uses the snapshot the queue was built with.
type ProcessorQueue struct {
	proc    DocumentProcessor
	snap    entitlement.Snapshot
	logger  *slog.Logger
	workers int
	timeout time.Duration
	reports chan<- Report

	ch   chan Job
	wg   sync.WaitGroup
	// base parents every job context; cancelling it abandons in-flight work.
	base   context.Context
	cancel context.CancelFunc
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithReports sends one Report per job to ch. The queue never closes ch; once Shutdown
// returns no worker sends on it again, so the caller may close it then.
func WithReports(ch chan<- Report) Option {
	return func(q *ProcessorQueue) { q.reports = ch }
}

func NewProcessorQueue(proc DocumentProcessor, snap entitlement.Snapshot, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		snap:    snap,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.base, q.cancel = context.WithCancel(context.Background())
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("worker started", "worker_id", workerID)

				for job := range q.ch {
					start := time.Now()
					var (
						out pipeline.Outcome
						err error
					)
					if err = q.base.Err(); err != nil {
						// Shutdown gave up waiting: report what is left without running it.
						out = pipeline.Outcome{Name: job.Input.Name}
					} else {
						ctx, cancel := context.WithTimeout(q.base, q.timeout)
						out, err = q.proc.ProcessDocument(ctx, q.snap, job.Input)
						cancel()
					}

					if err != nil {
						q.logger.Error("processing failed", "worker_id", workerID, "job_id", job.ID, "name", job.Input.Name, "error", err)
					} else {
						q.logger.Info("processed document", "worker_id", workerID, "job_id", job.ID, "name", job.Input.Name)
					}
					if q.reports != nil {
						q.reports <- Report{Job: job, Outcome: out, Err: err, Duration: time.Since(start)}
					}
				}

				q.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "name", job.Input.Name)
		return ErrQueueClosed
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Debug("queued document", "job_id", job.ID, "name", job.Input.Name)
		return nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "name", job.Input.Name)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops intake and waits for queued jobs to finish. When ctx ends first, in-flight
// jobs are cancelled, the rest are reported as cancelled, and Shutdown still waits for every
// worker to exit before returning ctx's error.
func (q *ProcessorQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()
	defer q.cancel()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
		return nil
	case <-ctx.Done():
	}
	q.logger.Warn("shutdown deadline reached, cancelling in-flight jobs")
	q.cancel()
	<-done
	return ctx.Err()
}
