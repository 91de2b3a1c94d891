// Package snapgen generates synthetic user snapshots for load testing the
// recompute pipeline.
package snapgen

import "time"

// Config holds configuration for a generation run.
type Config struct {
	Users      int       // Number of users to generate
	Seed       uint64    // Seed for the per-user random streams
	Workers    int       // Number of concurrent generators
	AsOf       time.Time // Instant the snapshot is generated at
	Days       int       // Days of log history behind AsOf
	OutputFile string    // Output file for the snapshot
	Verbose    bool      // Enable verbose logging
}

// Stats holds generation statistics.
type Stats struct {
	UsersGenerated      int
	SeededUsers         int
	LogsGenerated       int
	DealClosesGenerated int
	StartTime           time.Time
	EndTime             time.Time
	Duration            time.Duration
}

func (s *Stats) add(u userStats) {
	s.UsersGenerated++
	s.LogsGenerated += u.logs
	s.DealClosesGenerated += u.closes
	if u.seeded {
		s.SeededUsers++
	}
}

type userStats struct {
	logs   int
	closes int
	seeded bool
}
