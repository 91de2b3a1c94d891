package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/kpiforecast/internal/adapters/snapshot"
	app "github.com/okian/kpiforecast/internal/app"
	"github.com/okian/kpiforecast/internal/config"
	"github.com/okian/kpiforecast/internal/domain/model"
	"github.com/okian/kpiforecast/pkg/logger"
	"github.com/okian/kpiforecast/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> .env -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(logger.Format(cfg.LogFormat))); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	err = run(ctx, cfg, os.Stdout)
	_ = logger.Sync()
	if err != nil {
		logger.Get().Error(ctx, "recompute failed", logger.Error(err))
		os.Exit(1)
	}
}

// run recomputes every user in the configured snapshot and writes one JSON
// line per user to stdout, or to cfg.OutputPath when set.
func run(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	log := logger.Get()

	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(ctx, cfg.MetricsAddr, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error(ctx, "metrics server shutdown failed", logger.Error(err))
			}
		}()
	}
	go startSystemMetricsUpdater(ctx)

	snap, err := snapshot.Load(ctx, cfg.SnapshotPath)
	if err != nil {
		return err
	}
	asOf := evaluationTime(cfg, snap, time.Now())

	out := stdout
	if cfg.OutputPath != "" {
		f, err := os.Create(cfg.OutputPath)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", snapshot.ErrWrite, cfg.OutputPath, err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}
	sink := snapshot.NewLineWriter(out)

	svc, err := app.New(
		app.WithLogger(log),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithConstants(cfg.Constants),
		app.WithSink(sink),
	)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	go startServiceMetricsUpdater(ctx, svc)

	log.Info(ctx, "recomputing snapshot",
		logger.String("path", cfg.SnapshotPath),
		logger.Int("users", len(snap.Users)),
		logger.Time("asOf", asOf),
	)
	for _, u := range snap.Users {
		if _, err := svc.Submit(ctx, u, asOf); err != nil {
			svc.Drain(ctx)
			return err
		}
	}
	svc.Drain(ctx)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("interrupted after %d of %d users: %w", sink.Written(), len(snap.Users), err)
	}
	log.Info(ctx, "recompute finished",
		logger.Int("users", len(snap.Users)),
		logger.Int("reports", sink.Written()),
	)
	return nil
}

// evaluationTime picks the instant every user is evaluated at: the
// configured as_of, then the snapshot's generated_at, then now.
func evaluationTime(cfg *config.Config, snap snapshot.Snapshot, now time.Time) time.Time {
	if t, ok := model.ParseTimestamp(cfg.AsOf); ok {
		return t
	}
	return snap.AsOf(now.UTC())
}

// startMetricsServer serves /metrics until it is shut down.
func startMetricsServer(ctx context.Context, addr string, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting metrics server", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "metrics server failed", logger.Error(err))
		}
	}()
	return srv
}

// startSystemMetricsUpdater updates process metrics until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes service gauges until ctx is done.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()

	if rows, ok := stats["calibrationRows"].(int); ok {
		metrics.UpdateStoreRecords(rows)
	}
	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workerCount)
	}
}
