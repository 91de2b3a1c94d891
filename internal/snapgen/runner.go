package snapgen

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/kpiforecast/internal/adapters/snapshot"
	"github.com/okian/kpiforecast/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
)

// ErrInvalidConfig is wrapped by Run when cfg cannot produce a snapshot.
var ErrInvalidConfig = errors.New("invalid generator config")

// Run generates the snapshot described by cfg and saves it to
// cfg.OutputFile.
func Run(ctx context.Context, cfg *Config) (Stats, error) {
	stats := Stats{StartTime: time.Now()}

	snap, err := Generate(ctx, cfg, &stats)
	if err != nil {
		return stats, err
	}

	if err := saveSnapshot(ctx, cfg, snap); err != nil {
		return stats, fmt.Errorf("snapshot save failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(ctx, &stats)
	return stats, nil
}

// Generate builds the snapshot in memory. A zero cfg.AsOf means now.
func Generate(ctx context.Context, cfg *Config, stats *Stats) (snapshot.Snapshot, error) {
	if cfg.Users < 0 || cfg.Days < 1 {
		return snapshot.Snapshot{}, fmt.Errorf("%w: users %d, days %d", ErrInvalidConfig, cfg.Users, cfg.Days)
	}
	if cfg.AsOf.IsZero() {
		cfg.AsOf = time.Now().UTC()
	}

	logger.Get().Info(ctx, "starting snapshot generation",
		logger.Int("users", cfg.Users),
		logger.Int64("seed", int64(cfg.Seed)),
		logger.Int("workers", cfg.Workers),
		logger.Int("days", cfg.Days),
		logger.Time("asOf", cfg.AsOf),
		logger.String("output", cfg.OutputFile))

	users, err := generateUsers(ctx, cfg, stats)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("user generation failed: %w", err)
	}
	return snapshot.Snapshot{GeneratedAt: cfg.AsOf.UTC().Format(time.RFC3339), Users: users}, nil
}

// saveSnapshot writes snap to cfg.OutputFile, creating its directory.
func saveSnapshot(ctx context.Context, cfg *Config, snap snapshot.Snapshot) error {
	filename := cfg.OutputFile
	if filename == "" {
		filename = "snapshot_" + time.Now().Format("20060102_150405") + ".json"
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close file", logger.Error(err))
		}
	}()

	if err := snapshot.Encode(file, snap); err != nil {
		return err
	}

	logger.Get().Info(ctx, "snapshot saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final generation statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var usersPerSecond float64
	if stats.Duration > 0 {
		usersPerSecond = float64(stats.UsersGenerated) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("usersGenerated", stats.UsersGenerated),
		logger.Int("seededUsers", stats.SeededUsers),
		logger.Int("logsGenerated", stats.LogsGenerated),
		logger.Int("dealClosesGenerated", stats.DealClosesGenerated),
		logger.Duration("duration", stats.Duration),
		logger.Float64("usersPerSecond", usersPerSecond))
}
