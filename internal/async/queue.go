// Package async runs uploads through the processor on a bounded worker pool.
package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/pipeline"
)

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one file waiting to be processed.
type Job struct {
	Upload      pipeline.Upload
	Source      string // original path, for reporting
	RequestID   string
	SubmittedAt time.Time
}

// Done reports a finished job.
type Done struct {
	Job     Job
	Result  pipeline.Result
	Err     error
	Elapsed time.Duration
}

// Processor is the part of *pipeline.Processor the queue needs.
type Processor interface {
	Process(ctx context.Context, up pipeline.Upload) (pipeline.Result, error)
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

type ProcessorQueue struct {
	proc    Processor
	onDone  func(Done)
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*ProcessorQueue)(nil)

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

// NewProcessorQueue starts the workers. onDone is called from worker
// goroutines and must be safe for concurrent use.
func NewProcessorQueue(proc Processor, onDone func(Done), logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	if onDone == nil {
		onDone = func(Done) {}
	}
	q := &ProcessorQueue{
		proc:    proc,
		onDone:  onDone,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		ch:      make(chan Job, 64),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.work(i + 1)
		}
	})
}

func (q *ProcessorQueue) work(workerID int) {
	defer q.wg.Done()
	q.logger.Debug("queue.worker.started", "worker_id", workerID)

	for job := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if job.RequestID != "" {
			ctx = common.WithRequestID(ctx, job.RequestID)
		}
		start := time.Now()
		res, err := q.proc.Process(ctx, job.Upload)
		cancel()

		elapsed := time.Since(start)
		if err != nil {
			q.logger.Error("queue.job.failed", "worker_id", workerID, "req_id", job.RequestID, "source", job.Source, "error", err)
		} else {
			q.logger.Info("queue.job.ok", "worker_id", workerID, "req_id", job.RequestID, "source", job.Source,
				"outcome", res.Outcome, "elapsed_ms", elapsed.Milliseconds())
		}
		q.onDone(Done{Job: job, Result: res, Err: err, Elapsed: elapsed})
	}

	q.logger.Debug("queue.worker.stopped", "worker_id", workerID)
}

// Enqueue blocks while the buffer is full, until ctx is done.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.closed", "source", job.Source)
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Debug("queue.enqueued", "source", job.Source)
		return nil
	default:
	}
	q.logger.Warn("queue.full.backpressure", "source", job.Source)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops intake and waits for queued jobs to drain or ctx to end.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted")
	case <-done:
		q.logger.Info("queue.drained")
	}
}
