// Package onboarding synthesizes a year of weekly credit history from the
// averages a new user reports at sign-up.
package onboarding

import (
	"time"

	"github.com/okian/kpiforecast/internal/domain/constants"
	"github.com/okian/kpiforecast/internal/domain/credit"
	"github.com/okian/kpiforecast/internal/domain/model"
	"github.com/okian/kpiforecast/internal/domain/numeric"
	"github.com/okian/kpiforecast/internal/domain/timing"
)

// Generator builds seed events.
type Generator struct {
	resolver timing.Resolver
	weeks    int
}

// NewGenerator returns a Generator that times seeds with the same resolver
// live logs use.
func NewGenerator(t constants.Timing, cfg constants.Onboarding) Generator {
	weeks := cfg.SeedWeeks
	if weeks < 1 {
		weeks = 52
	}
	return Generator{resolver: timing.NewResolver(t), weeks: weeks}
}

// WeekStart returns the UTC Monday of the week containing t.
func WeekStart(t time.Time) time.Time {
	day := credit.StartOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// Generate emits one event per selected KPI per week, dated at the Monday of
// each of the weeks before the current one, newest first. Selections whose
// KPI is missing from catalog, or whose value would not be positive, emit
// nothing.
func (g Generator) Generate(catalog map[string]model.KPI, profile model.Profile, selections []model.OnboardingSelection, now time.Time) []model.KPIEvent {
	current := WeekStart(now)
	perUnit := numeric.Finite(profile.CommissionPerUnit())

	var out []model.KPIEvent
	for _, sel := range selections {
		kpi, ok := catalog[sel.KPIID]
		if !ok {
			continue
		}
		value := numeric.Round2(perUnit * numeric.Finite(kpi.PCWeight) * numeric.Finite(sel.HistoricalWeeklyAverage))
		if value <= 0 {
			continue
		}

		res := g.resolver.ResolveKPI(kpi)
		decay := g.resolver.DecayDays(kpi.DecayDays)
		for w := 1; w <= g.weeks; w++ {
			out = append(out, model.KPIEvent{
				KPIID: kpi.ID,
				Event: model.CreditEvent{
					Timestamp:    current.AddDate(0, 0, -7*w),
					InitialValue: value,
					DelayDays:    res.DelayDays,
					HoldDays:     res.HoldDays,
					DecayDays:    decay,
				},
			})
		}
	}
	return out
}
