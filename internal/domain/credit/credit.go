// Package credit evaluates projected credit events over time and builds the
// monthly projected and actual series shown on the dashboard.
//
// All evaluation happens at UTC day granularity: an event logged at 23:59
// and one logged at 00:01 on the same UTC date behave identically.
package credit

import (
	"math"
	"time"

	"github.com/okian/kpiforecast/internal/domain/constants"
	"github.com/okian/kpiforecast/internal/domain/model"
	"github.com/okian/kpiforecast/internal/domain/numeric"
)

// Point is one month of a series.
type Point struct {
	MonthStart time.Time `json:"month_start"`
	Value      float64   `json:"value"`
}

// ValueAt returns the live value of e on the UTC date of asOf.
//
//	asOf < payoffStart                 -> 0
//	payoffStart <= asOf < decayStart   -> InitialValue
//	asOf >= decayStart                 -> InitialValue * (1 - d/DecayDays), 0 once d >= DecayDays
//
// where payoffStart = date + DelayDays, decayStart = payoffStart + HoldDays
// and d is whole days into decay. Non-positive values and zero timestamps
// yield 0. DecayDays below 1 is treated as 1.
func ValueAt(e model.CreditEvent, asOf time.Time) float64 {
	initial := numeric.Finite(e.InitialValue)
	if initial <= 0 || e.Timestamp.IsZero() || asOf.IsZero() {
		return 0
	}

	payoffStart := StartOfDay(e.Timestamp).AddDate(0, 0, max(0, e.DelayDays))
	decayStart := payoffStart.AddDate(0, 0, max(0, e.HoldDays))
	at := StartOfDay(asOf)

	if at.Before(payoffStart) {
		return 0
	}
	if at.Before(decayStart) {
		return initial
	}

	decayDays := max(1, e.DecayDays)
	into := DaysBetween(decayStart, at)
	if into >= decayDays {
		return 0
	}
	return math.Max(0, initial*(1-float64(into)/float64(decayDays)))
}

// PayoffStart is the first date on which e carries value.
func PayoffStart(e model.CreditEvent) time.Time {
	if e.Timestamp.IsZero() {
		return time.Time{}
	}
	return StartOfDay(e.Timestamp).AddDate(0, 0, max(0, e.DelayDays))
}

// AggregateAt sums ValueAt over events.
func AggregateAt(events []model.CreditEvent, at time.Time) float64 {
	var total float64
	for _, e := range events {
		total += ValueAt(e, at)
	}
	return total
}

// Timeline builds monthly series using one Projection configuration.
type Timeline struct {
	cfg constants.Projection
}

// NewTimeline returns a Timeline bound to cfg.
func NewTimeline(cfg constants.Projection) Timeline {
	if cfg.FutureMonths < 1 {
		cfg.FutureMonths = 12
	}
	if cfg.PastMonths < 1 {
		cfg.PastMonths = 6
	}
	return Timeline{cfg: cfg}
}

// FutureSeries evaluates the aggregate at the last instant of each month,
// starting with the month containing now, scaled by (1+bump) and rounded to
// cents. Sampling at month end captures each month's full decay.
func (t Timeline) FutureSeries(events []model.CreditEvent, now time.Time, bump float64) []Point {
	factor := 1 + math.Max(0, numeric.Finite(bump))
	first := StartOfMonth(now)

	points := make([]Point, t.cfg.FutureMonths)
	for i := range points {
		start := first.AddDate(0, i, 0)
		end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
		points[i] = Point{
			MonthStart: start,
			Value:      numeric.Round2(AggregateAt(events, end) * factor),
		}
	}
	return points
}

// PastActualSeries sums realized revenue by calendar month for the trailing
// months up to and including the month of now, oldest first. Months without
// revenue are 0.
func (t Timeline) PastActualSeries(entries []model.RevenueEntry, now time.Time) []Point {
	current := StartOfMonth(now)
	first := current.AddDate(0, -(t.cfg.PastMonths - 1), 0)

	sums := make(map[time.Time]float64, t.cfg.PastMonths)
	for _, e := range entries {
		if e.Timestamp.IsZero() {
			continue
		}
		sums[StartOfMonth(e.Timestamp)] += numeric.Finite(e.Amount)
	}

	points := make([]Point, t.cfg.PastMonths)
	for i := range points {
		start := first.AddDate(0, i, 0)
		points[i] = Point{MonthStart: start, Value: numeric.Round2(sums[start])}
	}
	return points
}

// Derive90D approximates a 90-day horizon by summing the first three monthly
// points. It works at month granularity, not exact days.
func (t Timeline) Derive90D(series []Point) float64 {
	n := min(max(0, t.cfg.NinetyDayMonths), len(series))
	return SumSeries(series[:n])
}

// SumSeries totals a series, rounded to cents.
func SumSeries(series []Point) float64 {
	var total float64
	for _, p := range series {
		total += p.Value
	}
	return numeric.Round2(total)
}

// StartOfDay truncates t to its UTC date.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StartOfMonth truncates t to the first day of its UTC month.
func StartOfMonth(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns whole days from a to b, floored.
func DaysBetween(a, b time.Time) int {
	return int(math.Floor(b.Sub(a).Hours() / 24))
}
