// Package engagement computes the two decaying point ledgers and the tiered
// projection bump they earn.
package engagement

import (
	"math"
	"time"

	"github.com/okian/kpiforecast/internal/domain/constants"
	"github.com/okian/kpiforecast/internal/domain/model"
	"github.com/okian/kpiforecast/internal/domain/numeric"
)

// Kind names a ledger.
type Kind string

// Ledger kinds.
const (
	Growth   Kind = "growth"
	Vitality Kind = "vitality"
)

// Ledger is the state of one point type at evaluation time.
// Current never exceeds Raw.
type Ledger struct {
	Kind         Kind       `json:"kind"`
	Raw          float64    `json:"raw"`
	Current      float64    `json:"current"`
	LatestEvent  *time.Time `json:"latest_event_timestamp,omitempty"`
	Tier         int        `json:"tier"`
	BumpPercent  float64    `json:"bump_percent"`
	DecayApplied bool       `json:"decay_applied"`
}

// Summary holds both ledgers and the combined bump applied to projections.
type Summary struct {
	Growth    Ledger  `json:"growth"`
	Vitality  Ledger  `json:"vitality"`
	TotalBump float64 `json:"total_bump_percent"`
}

// Engine evaluates ledgers with one Engagement configuration.
type Engine struct {
	cfg constants.Engagement
}

// NewEngine returns an Engine bound to cfg.
func NewEngine(cfg constants.Engagement) Engine {
	if cfg.GrowthDecayDays < 1 {
		cfg.GrowthDecayDays = 1
	}
	return Engine{cfg: cfg}
}

// Summarize evaluates both ledgers at now.
func (e Engine) Summarize(growth, vitality []model.PointEvent, now time.Time) Summary {
	g := e.Growth(growth, now)
	v := e.Vitality(vitality, now)
	return Summary{
		Growth:    g,
		Vitality:  v,
		TotalBump: numeric.Round6(g.BumpPercent + v.BumpPercent),
	}
}

// Growth evaluates growth points. Once the latest award is more than
// GrowthTriggerDays whole days old the total fades linearly, reaching zero
// GrowthDecayDays later.
func (e Engine) Growth(events []model.PointEvent, now time.Time) Ledger {
	raw, latest := total(events)
	current := raw
	decayed := false

	if latest != nil {
		idleDays := int(math.Floor(now.Sub(*latest).Hours() / 24))
		if idleDays > e.cfg.GrowthTriggerDays {
			past := float64(idleDays - e.cfg.GrowthTriggerDays)
			ratio := math.Max(0, 1-past/float64(e.cfg.GrowthDecayDays))
			current = raw * ratio
			decayed = true
		}
	}

	return e.ledger(Growth, raw, current, latest, decayed)
}

// Vitality evaluates vitality points. The trigger is hour-granular but decay
// only advances in whole idle days: raw * factor^floor(hours/24), floored at
// VitalityFloor and never above raw.
func (e Engine) Vitality(events []model.PointEvent, now time.Time) Ledger {
	raw, latest := total(events)
	current := raw
	decayed := false

	if latest != nil && raw > 0 {
		idleHours := now.Sub(*latest).Hours()
		if idleHours > float64(e.cfg.VitalityTriggerHours) {
			steps := math.Floor(idleHours / 24)
			current = math.Max(e.cfg.VitalityFloor, raw*math.Pow(e.cfg.VitalityDailyFactor, steps))
			current = math.Min(current, raw)
			decayed = true
		}
	}

	return e.ledger(Vitality, raw, current, latest, decayed)
}

// TierForValue maps a point total to tiers 1..4 using inclusive ceilings.
func (e Engine) TierForValue(points float64) int {
	for i, ceiling := range e.cfg.Tiering.TierCeilings {
		if points <= ceiling {
			return i + 1
		}
	}
	return len(e.cfg.Tiering.TierCeilings) + 1
}

// Bump returns the static bump for a ledger kind and tier.
func (e Engine) Bump(kind Kind, tier int) float64 {
	if tier < 1 || tier > 4 {
		return 0
	}
	table := e.cfg.Tiering.GrowthBumps
	if kind == Vitality {
		table = e.cfg.Tiering.VitalityBumps
	}
	return math.Max(0, table[tier-1])
}

func (e Engine) ledger(kind Kind, raw, current float64, latest *time.Time, decayed bool) Ledger {
	tier := e.TierForValue(current)
	return Ledger{
		Kind:         kind,
		Raw:          numeric.Round2(raw),
		Current:      numeric.Round2(current),
		LatestEvent:  latest,
		Tier:         tier,
		BumpPercent:  e.Bump(kind, tier),
		DecayApplied: decayed,
	}
}

// total sums finite points, floored at zero, and finds the latest award.
func total(events []model.PointEvent) (float64, *time.Time) {
	var sum float64
	var latest *time.Time
	for i := range events {
		sum += numeric.Finite(events[i].Points)
		ts := events[i].Timestamp
		if ts.IsZero() {
			continue
		}
		if latest == nil || ts.After(*latest) {
			t := ts
			latest = &t
		}
	}
	return math.Max(0, sum), latest
}
