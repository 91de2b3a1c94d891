// Package config defines process configuration and its loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Functions accept context.Context as the first parameter.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/okian/kpiforecast/internal/domain/constants"
	"github.com/okian/kpiforecast/internal/domain/model"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log lines.
	LogFormat string `koanf:"log_format"`

	// MetricsAddr, when set, serves /metrics on this address, e.g. ":9090".
	MetricsAddr string `koanf:"metrics_addr"`

	// SnapshotPath is the JSON user snapshot to recompute.
	SnapshotPath string `koanf:"snapshot_path"`

	// OutputPath receives the JSON-lines reports; empty means stdout.
	OutputPath string `koanf:"output_path"`

	// AsOf overrides the evaluation instant. Empty uses the snapshot's
	// generated_at, then the wall clock.
	AsOf string `koanf:"as_of"`

	// QueueSize bounds the in-memory recompute queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of recompute workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets how many deal closes are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// Constants is the engine tuning tree.
	Constants constants.Constants `koanf:"constants"`
}

// New creates a Config with defaults. The context is reserved for
// providers that need one.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:     "info",
		LogFormat:    "text",
		SnapshotPath: "snapshot.json",
		QueueSize:    1024,
		WorkerCount:  runtime.NumCPU(),
		DedupeSize:   50_000,
		Constants:    constants.Default(),
	}
}

// Validate reports every problem at once; each is wrapped in
// ErrInvalidConfig.
func (c *Config) Validate() error {
	var problems []string
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("log_level %q", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log_format %q", c.LogFormat))
	}
	if c.SnapshotPath == "" {
		problems = append(problems, "snapshot_path must not be empty")
	}
	if c.AsOf != "" {
		if _, ok := model.ParseTimestamp(c.AsOf); !ok {
			problems = append(problems, fmt.Sprintf("as_of %q is not a timestamp", c.AsOf))
		}
	}
	if c.QueueSize < 1 {
		problems = append(problems, "queue_size must be >= 1")
	}
	if c.WorkerCount < 1 {
		problems = append(problems, "worker_count must be >= 1")
	}
	if c.DedupeSize < 0 {
		problems = append(problems, "dedupe_size must be >= 0")
	}

	if err := c.Constants.Validate(); err != nil {
		if len(problems) == 0 {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, strings.Join(problems, "; "), err)
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
