// Package batch classifies many PDFs from disk with a bounded worker queue.
package batch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/joseph-ayodele/collateral-classifier/internal/classifier"
)

var ErrQueueClosed = errors.New("batch queue is shut down")

// Job is one file to classify.
type Job struct {
	Path        string
	SubmittedAt time.Time
}

// Outcome is delivered to the Sink once per job.
type Outcome struct {
	Job      Job
	Result   *classifier.DocumentResult
	Err      error
	Duration time.Duration
}

type Sink func(Outcome)

// DocumentClassifier is the pipeline entry point.
type DocumentClassifier interface {
	ClassifyDocument(ctx context.Context, filename string, pdf []byte, opts ...classifier.RequestOption) (*classifier.DocumentResult, error)
}

type Queue struct {
	classifier DocumentClassifier
	sink       Sink
	logger     *slog.Logger
	workers    int
	timeout    time.Duration
	reqOpts    []classifier.RequestOption

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithRequestOptions applies opts to every ClassifyDocument call.
func WithRequestOptions(opts ...classifier.RequestOption) Option {
	return func(q *Queue) {
		q.reqOpts = append(q.reqOpts, opts...)
	}
}

// NewQueue starts the workers. sink is called from worker goroutines.
func NewQueue(c DocumentClassifier, sink Sink, logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = func(Outcome) {}
	}
	q := &Queue{
		classifier: c,
		sink:       sink,
		logger:     logger,
		workers:    2,
		timeout:    10 * time.Minute,
		ch:         make(chan Job, 64),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				for job := range q.ch {
					q.sink(q.process(workerID, job))
				}
			}(i + 1)
		}
	})
}

func (q *Queue) process(workerID int, job Job) Outcome {
	start := time.Now()
	out := Outcome{Job: job}

	pdf, err := os.ReadFile(job.Path)
	if err != nil {
		out.Err = err
		q.logger.Error("read failed", "worker_id", workerID, "path", job.Path, "error", err)
		return out
	}

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	out.Result, out.Err = q.classifier.ClassifyDocument(ctx, filepath.Base(job.Path), pdf, q.reqOpts...)
	out.Duration = time.Since(start)

	if out.Err != nil {
		q.logger.Error("classification failed", "worker_id", workerID, "path", job.Path, "error", out.Err)
	} else {
		q.logger.Info("classified document", "worker_id", workerID, "path", job.Path,
			"pages", out.Result.PageCount, "duration_ms", out.Duration.Milliseconds())
	}
	return out
}

// Enqueue blocks while the queue is full.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Debug("queued document", "path", job.Path)
		return nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "path", job.Path)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops intake and waits for queued jobs until ctx ends.
func (q *Queue) Shutdown(ctx context.Context) {
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
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained")
	}
}
