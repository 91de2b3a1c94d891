package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/kpiforecast/internal/domain/model"
	"github.com/okian/kpiforecast/internal/snapgen"
	"github.com/okian/kpiforecast/pkg/logger"
)

// Default configuration constants.
const (
	defaultUsers   = 1000
	defaultSeed    = 1
	defaultDays    = 365
	defaultTimeout = 10 * time.Minute
)

func main() {
	var (
		users      = flag.Int("users", defaultUsers, "Number of users to generate")
		seed       = flag.Uint64("seed", defaultSeed, "Seed for the random streams")
		workers    = flag.Int("workers", runtime.NumCPU(), "Number of concurrent generators")
		days       = flag.Int("days", defaultDays, "Days of log history per user")
		asOf       = flag.String("as-of", "", "Generation instant (default now)")
		outputFile = flag.String("output", "", "Output file (default: snapshot_TIMESTAMP.json)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		snapgen.ShowHelp()
		return
	}

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	cfg := &snapgen.Config{
		Users:      *users,
		Seed:       *seed,
		Workers:    *workers,
		Days:       *days,
		OutputFile: *outputFile,
		Verbose:    *verbose,
	}
	if *asOf != "" {
		t, ok := model.ParseTimestamp(*asOf)
		if !ok {
			os.Stderr.WriteString("invalid -as-of: " + *asOf + "\n")
			os.Exit(1)
		}
		cfg.AsOf = t
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if _, err := snapgen.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Generation failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
