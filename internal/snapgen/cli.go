package snapgen

import "os"

// ShowHelp prints usage information for the snapshot generator.
func ShowHelp() {
	os.Stdout.WriteString(`KPI Forecast Snapshot Generator
===============================

Generates a synthetic user snapshot for load testing the recompute pipeline.
The same seed always produces the same snapshot.

Usage:
  go run ./cmd/snapgen [options]

Options:
  -users int
        Number of users to generate (default 1000)
  -seed uint
        Seed for the random streams (default 1)
  -workers int
        Number of concurrent generators (default CPU cores)
  -days int
        Days of log history per user (default 365)
  -as-of string
        Generation instant, RFC3339 or YYYY-MM-DD (default now)
  -output string
        Output file (default: snapshot_TIMESTAMP.json)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Generate and recompute
  go run ./cmd/snapgen -users 5000 -output /tmp/snapshot.json
  KPIFORECAST_SNAPSHOT_PATH=/tmp/snapshot.json go run ./cmd
`)
}
