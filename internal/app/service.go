// Package service wires the forecast engines to the calibration store, the
// deal-close deduper and the recompute worker pool.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	eventqueue "github.com/okian/kpiforecast/internal/adapters/mq/queue"
	workerpool "github.com/okian/kpiforecast/internal/adapters/mq/worker"
	repository "github.com/okian/kpiforecast/internal/adapters/repository"
	"github.com/okian/kpiforecast/internal/domain/calibration"
	"github.com/okian/kpiforecast/internal/domain/confidence"
	"github.com/okian/kpiforecast/internal/domain/constants"
	"github.com/okian/kpiforecast/internal/domain/credit"
	"github.com/okian/kpiforecast/internal/domain/dedupe"
	"github.com/okian/kpiforecast/internal/domain/engagement"
	"github.com/okian/kpiforecast/internal/domain/model"
	"github.com/okian/kpiforecast/internal/domain/onboarding"
	"github.com/okian/kpiforecast/internal/domain/timing"
	"github.com/okian/kpiforecast/pkg/logger"
	"github.com/okian/kpiforecast/pkg/metrics"
)

// Service runs forecasts and calibration for snapshot users.
type Service struct {
	mu sync.RWMutex

	// Engines
	consts      constants.Constants
	resolver    timing.Resolver
	timeline    credit.Timeline
	engagement  engagement.Engine
	confidence  confidence.Engine
	calibration calibration.Engine
	seeds       onboarding.Generator

	// Core components
	store      repository.CalibrationStore
	ownsStore  bool
	deduper    dedupe.Deduper
	queue      eventqueue.Queue
	workerPool *workerpool.Pool
	sink       workerpool.Sink

	// Configuration
	workerCount int
	queueSize   int
	dedupeSize  int
	now         func() time.Time

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the recompute queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many deal closes the deduper remembers.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConstants replaces the default tuning tree.
func WithConstants(c constants.Constants) Option {
	return func(s *Service) {
		s.consts = c
	}
}

// WithStore sets the calibration store. The service does not close a store
// it was handed.
func WithStore(store repository.CalibrationStore) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithDeduper sets the deal-close deduper.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) {
		if d != nil {
			s.deduper = d
		}
	}
}

// WithSink sets where worker results are published.
func WithSink(sink workerpool.Sink) Option {
	return func(s *Service) {
		s.sink = sink
	}
}

// WithClock sets the clock used to stamp audit records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service. Engines are bound to the constants in effect
// after all options are applied.
func New(opts ...Option) (*Service, error) {
	s := &Service{
		consts:      constants.Default(),
		workerCount: runtime.NumCPU(),
		queueSize:   1024,
		dedupeSize:  50000,
		now:         time.Now,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.consts.Validate(); err != nil {
		return nil, fmt.Errorf("service constants: %w", err)
	}
	s.resolver = timing.NewResolver(s.consts.Timing)
	s.timeline = credit.NewTimeline(s.consts.Projection)
	s.engagement = engagement.NewEngine(s.consts.Engagement)
	s.confidence = confidence.NewEngine(s.consts.Confidence)
	s.calibration = calibration.NewEngine(s.consts.Calibration)
	s.seeds = onboarding.NewGenerator(s.consts.Timing, s.consts.Onboarding)

	if s.deduper == nil {
		s.deduper = dedupe.New(dedupe.WithMaxSize(s.dedupeSize))
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore(context.Background())
		s.ownsStore = true
	}
	return s, nil
}

// Store returns the calibration store the service writes to.
func (s *Service) Store() repository.CalibrationStore {
	return s.store
}

// Start creates the recompute queue and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.sink == nil {
		return ErrNoSink
	}

	s.logger.Info(ctx, "starting forecast service...")

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.queue, s, s.sink,
		workerpool.WithLogger(s.logger.Named("worker")))
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "forecast service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Submit queues a recompute of u as of now and returns the job id. It
// waits for room in the queue until ctx is done.
func (s *Service) Submit(ctx context.Context, u model.UserSnapshot, now time.Time) (string, error) { //nolint:gocritic // hugeParam: snapshots travel by value
	s.mu.RLock()
	q, started := s.queue, s.started
	s.mu.RUnlock()
	if !started {
		return "", ErrNotStarted
	}

	job := eventqueue.Job{ID: uuid.NewString(), User: u, Now: now}
	if err := q.Submit(ctx, job); err != nil {
		return "", fmt.Errorf("submit %s: %w", u.UserID, err)
	}
	s.logger.Debug(ctx, "recompute queued",
		logger.String("jobID", job.ID),
		logger.String("userID", u.UserID),
	)
	return job.ID, nil
}

// Process implements the worker processor: it recomputes the job's user.
func (s *Service) Process(ctx context.Context, job eventqueue.Job) (any, error) { //nolint:gocritic // hugeParam
	return s.Recompute(ctx, job.User, job.Now)
}

// Drain closes the queue and waits for the workers to finish what was
// already submitted.
func (s *Service) Drain(ctx context.Context) {
	s.mu.RLock()
	q, pool := s.queue, s.workerPool
	s.mu.RUnlock()
	if q == nil || pool == nil {
		return
	}

	_ = q.Close()
	pool.Wait()
	s.logger.Info(ctx, "recompute queue drained")
}

// Stop shuts the worker pool down and releases a store the service created.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	if s.started {
		s.logger.Info(ctx, "stopping forecast service...")
		if s.workerPool != nil {
			if err := s.workerPool.Shutdown(ctx); err != nil {
				s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
			}
		}
		s.started = false
	}

	if s.ownsStore {
		if closer, ok := s.store.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
		s.ownsStore = false
	}
	s.logger.Info(ctx, "forecast service stopped")
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":         s.started,
		"workerCount":     s.workerCount,
		"queueSize":       s.queueSize,
		"dedupeSize":      s.dedupeSize,
		"dedupeEntries":   s.deduper.Len(),
		"calibrationRows": s.store.Count(ctx),
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}
