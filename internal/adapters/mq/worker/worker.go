// Package worker runs recompute jobs off the queue through the engines and
// hands the results to a sink.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/kpiforecast/internal/adapters/mq/queue"
	"github.com/okian/kpiforecast/pkg/logger"
	"github.com/okian/kpiforecast/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Processor turns a job into a payload.
type Processor interface {
	Process(ctx context.Context, job queue.Job) (any, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, job queue.Job) (any, error)

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, job queue.Job) (any, error) { //nolint:gocritic // hugeParam
	return f(ctx, job)
}

// Sink receives processed payloads. Publish may be called concurrently.
type Sink interface {
	Publish(ctx context.Context, jobID string, payload any) error
}

// Source is where workers read jobs from.
type Source interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes jobs one at a time.
type Worker struct {
	source    Source
	processor Processor
	sink      Sink
	name      string
	active    *atomic.Int32

	shutdown chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	logger logger.Logger
}

// New creates a worker.
func New(source Source, processor Processor, sink Sink, opts ...Option) *Worker {
	w := &Worker{
		source:    source,
		processor: processor,
		sink:      sink,
		name:      "worker",
		active:    new(atomic.Int32),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run processes jobs until the source is drained, ctx is done or Shutdown
// is called.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.source.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, job); err != nil {
				w.logger.Error(ctx, "job failed", logger.String("job_id", job.ID), logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker after its current job.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *Worker) process(ctx context.Context, job queue.Job) error { //nolint:gocritic // hugeParam
	start := time.Now()
	metrics.UpdateWorkerActive(int(w.active.Add(1)))
	defer func() {
		metrics.UpdateWorkerActive(int(w.active.Add(-1)))
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	payload, err := w.processor.Process(ctx, job)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "process")
		return fmt.Errorf("process job %s: %w", job.ID, err)
	}
	if err := w.sink.Publish(ctx, job.ID, payload); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "publish")
		return fmt.Errorf("publish job %s: %w", job.ID, err)
	}
	w.logger.Debug(ctx, "job done", logger.String("job_id", job.ID), logger.Duration("took", time.Since(start)))
	return nil
}

// Pool manages a fixed set of workers sharing one source.
type Pool struct {
	workers []*Worker
	source  Source
	wg      sync.WaitGroup
	logger  logger.Logger
}

// NewPool creates a pool. A count below 1 uses one worker per CPU.
func NewPool(workerCount int, source Source, processor Processor, sink Sink, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers: make([]*Worker, workerCount),
		source:  source,
		logger:  logger.Get().Named("worker-pool"),
	}
	active := new(atomic.Int32)
	for i := range p.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := New(source, processor, sink, wopts...)
		w.active = active
		p.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActive(0)
	return p
}

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Wait blocks until every worker has exited, which in batch use happens once
// the source is closed and drained.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Shutdown closes the source if it can be closed, then stops the workers.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.source.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var firstErr error
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }
