package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
)

// ProcessorQueue feeds jobs to a fixed number of workers. Every worker shares
// the same Extractor, which must be safe for concurrent use.
type ProcessorQueue struct {
	ext     Extractor
	logger  *slog.Logger
	workers int
	timeout time.Duration
	sink    func(Result)

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	// base parents every job context; Shutdown cancels it once its own
	// deadline passes.
	base      context.Context
	cancelAll context.CancelFunc

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

// WithSink receives every result. It is called from worker goroutines.
func WithSink(fn func(Result)) Option {
	return func(q *ProcessorQueue) { q.sink = fn }
}

func NewProcessorQueue(ext Extractor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		ext:     ext,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		ch:      make(chan Job, 64),
	}
	for _, o := range opts {
		o(q)
	}
	q.base, q.cancelAll = context.WithCancel(context.Background())
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("queue.worker.started", "worker_id", workerID)

				for job := range q.ch {
					res := q.process(job)
					if res.Err != nil {
						q.logger.Error("queue.job.failed",
							"worker_id", workerID,
							"doc_id", job.Document.ID,
							"kind", string(common.KindOf(res.Err)),
							"error", res.Err,
						)
					} else {
						q.logger.Info("queue.job.done",
							"worker_id", workerID,
							"doc_id", job.Document.ID,
							"elapsed_ms", res.Elapsed.Milliseconds(),
						)
					}
					if q.sink != nil {
						q.sink(res)
					}
				}

				q.logger.Debug("queue.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) process(job Job) Result {
	ctx, cancel := context.WithTimeout(q.base, q.timeout)
	defer cancel()
	if job.RequestID != "" {
		ctx = common.WithRequestID(ctx, job.RequestID)
	}
	start := time.Now()
	rec, err := q.ext.Extract(ctx, job.Document)
	return Result{Job: job, Record: rec, Err: err, Elapsed: time.Since(start)}
}

// Enqueue blocks while the buffer is full, until ctx is done.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.closed", "doc_id", job.Document.ID)
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Debug("queue.enqueued", "doc_id", job.Document.ID, "file", job.Document.SourceFilename)
		return nil
	default:
	}
	q.logger.Warn("queue.full", "doc_id", job.Document.ID)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return common.FromContext(ctx)
	}
}

// Shutdown stops accepting jobs and waits for the workers to drain the buffer.
// When ctx ends first, in-flight and still-buffered jobs are cancelled and
// Shutdown returns once the workers have stopped.
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

	defer q.cancelAll()
	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted", "pending", len(q.ch))
		q.cancelAll()
		<-done
	case <-done:
		q.logger.Info("queue.shutdown.drained")
	}
}
