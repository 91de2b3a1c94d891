// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidCreditEvent reports a credit event that skipped normalization.
var ErrInvalidCreditEvent = errors.New("invalid credit event")

// CreditEvent is one unit of projected value with its own payoff schedule.
// Value is zero before payoff start (Timestamp + DelayDays), held flat for
// HoldDays, then decays linearly to zero over DecayDays.
type CreditEvent struct {
	Timestamp    time.Time // event time; zero means unparseable
	InitialValue float64   // projected value while on plateau
	DelayDays    int       // days before the value becomes live
	HoldDays     int       // plateau length
	DecayDays    int       // linear decay length, >= 1
}

// Validate reports contract violations. Engines never call it on the hot
// path; callers that build events by hand should.
func (e CreditEvent) Validate() error {
	switch {
	case e.DelayDays < 0:
		return fmt.Errorf("%w: negative delay_days %d", ErrInvalidCreditEvent, e.DelayDays)
	case e.HoldDays < 0:
		return fmt.Errorf("%w: negative hold_days %d", ErrInvalidCreditEvent, e.HoldDays)
	case e.DecayDays < 1:
		return fmt.Errorf("%w: decay_days %d below 1", ErrInvalidCreditEvent, e.DecayDays)
	}
	return nil
}

// KPIEvent tags a credit event with the KPI that produced it.
type KPIEvent struct {
	KPIID string
	Event CreditEvent
}

// TimingResolution is a KPI's normalized payoff timing.
// TotalTTCDays is never shorter than DelayDays+HoldDays.
type TimingResolution struct {
	DelayDays    int `json:"delay_days"`
	HoldDays     int `json:"hold_days"`
	TotalTTCDays int `json:"total_ttc_days"`
}

// RevenueEntry is realized GCI recorded against an Actual KPI.
type RevenueEntry struct {
	Timestamp time.Time
	Amount    float64
}

// PointEvent is an engagement-point award.
type PointEvent struct {
	Timestamp time.Time
	Points    float64
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts the layouts the activity store emits and returns the
// instant in UTC. ok is false for anything else.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
