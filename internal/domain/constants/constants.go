// Package constants defines the tuning tree shared by every forecast engine.
//
// The tree is built only from value types (no maps, no slices), so handing a
// Constants value to an engine constructor gives that engine its own copy.
// Tests vary thresholds by copying Default() and editing the copy.
package constants

import (
	"errors"
	"fmt"
	"math"

	"github.com/okian/kpiforecast/internal/domain/numeric"
)

// ErrInvalidConstants is wrapped by Validate.
var ErrInvalidConstants = errors.New("invalid constants")

// Constants is the root of the tuning tree.
type Constants struct {
	Timing      Timing      `koanf:"timing"`
	Projection  Projection  `koanf:"projection"`
	Engagement  Engagement  `koanf:"engagement"`
	Confidence  Confidence  `koanf:"confidence"`
	Calibration Calibration `koanf:"calibration"`
	Onboarding  Onboarding  `koanf:"onboarding"`
}

// Timing holds defaults used when a KPI row leaves timing unset.
type Timing struct {
	DefaultDecayDays int `koanf:"default_decay_days"`
	DaysPerWeek      int `koanf:"days_per_week"`
	DaysPerMonth     int `koanf:"days_per_month"`
}

// Projection controls the monthly series.
type Projection struct {
	FutureMonths    int `koanf:"future_months"`
	PastMonths      int `koanf:"past_months"`
	NinetyDayMonths int `koanf:"ninety_day_months"`
}

// Tiering maps a point total to a tier and a per-tier bump.
type Tiering struct {
	// TierCeilings are the inclusive upper bounds of tiers 1..3; anything
	// above the last ceiling is tier 4.
	TierCeilings [3]float64 `koanf:"tier_ceilings"`
	// GrowthBumps and VitalityBumps are indexed by tier-1.
	GrowthBumps   [4]float64 `koanf:"growth_bumps"`
	VitalityBumps [4]float64 `koanf:"vitality_bumps"`
}

// Engagement configures both point ledgers.
type Engagement struct {
	Tiering Tiering `koanf:"tiering"`

	// Growth points decay linearly once the last event is older than
	// GrowthTriggerDays, reaching zero GrowthDecayDays later.
	GrowthTriggerDays int `koanf:"growth_trigger_days"`
	GrowthDecayDays   int `koanf:"growth_decay_days"`

	// Vitality points decay by VitalityDailyFactor per whole idle day once
	// the last event is older than VitalityTriggerHours, never below
	// VitalityFloor.
	VitalityTriggerHours int     `koanf:"vitality_trigger_hours"`
	VitalityDailyFactor  float64 `koanf:"vitality_daily_factor"`
	VitalityFloor        float64 `koanf:"vitality_floor"`
}

// Confidence configures the composite score.
type Confidence struct {
	HistoricalWeight float64 `koanf:"historical_weight"`
	PipelineWeight   float64 `koanf:"pipeline_weight"`
	InactivityWeight float64 `koanf:"inactivity_weight"`

	GreenMin  float64 `koanf:"green_min"`
	YellowMin float64 `koanf:"yellow_min"`

	HistoricalWindowDays    int             `koanf:"historical_window_days"`
	HistoricalFallbackScore float64         `koanf:"historical_fallback_score"`
	HistoricalBands         [5]numeric.Band `koanf:"historical_bands"`

	PipelineHorizonDays       int             `koanf:"pipeline_horizon_days"`
	PipelineIdleWithPotential float64         `koanf:"pipeline_idle_with_potential"`
	PipelineIdleNoPotential   float64         `koanf:"pipeline_idle_no_potential"`
	PipelineBands             [4]numeric.Band `koanf:"pipeline_bands"`
	InactivityGraceDays       int             `koanf:"inactivity_grace_days"`
	InactivityDeclineSpanDays float64         `koanf:"inactivity_decline_span_days"`
	InactivityFloor           float64         `koanf:"inactivity_floor"`
}

// Calibration configures the multiplier controller.
type Calibration struct {
	MinMultiplier    float64 `koanf:"min_multiplier"`
	MaxMultiplier    float64 `koanf:"max_multiplier"`
	MinErrorRatio    float64 `koanf:"min_error_ratio"`
	MaxErrorRatio    float64 `koanf:"max_error_ratio"`
	LearningRate     float64 `koanf:"learning_rate"`
	TrustRampSamples float64 `koanf:"trust_ramp_samples"`
	BaseShareFloor   float64 `koanf:"base_share_floor"`
	MediumQualityMin int     `koanf:"medium_quality_min"`
	HighQualityMin   int     `koanf:"high_quality_min"`
}

// Onboarding configures synthetic history.
type Onboarding struct {
	SeedWeeks int `koanf:"seed_weeks"`
}

// Default returns the production tuning.
func Default() Constants {
	inf := math.Inf(1)
	return Constants{
		Timing: Timing{
			DefaultDecayDays: 180,
			DaysPerWeek:      7,
			DaysPerMonth:     30,
		},
		Projection: Projection{
			FutureMonths:    12,
			PastMonths:      6,
			NinetyDayMonths: 3,
		},
		Engagement: Engagement{
			Tiering: Tiering{
				TierCeilings:  [3]float64{99, 299, 599},
				GrowthBumps:   [4]float64{0, 0.02, 0.04, 0.06},
				VitalityBumps: [4]float64{0, 0.01, 0.02, 0.03},
			},
			GrowthTriggerDays:    30,
			GrowthDecayDays:      60,
			VitalityTriggerHours: 12,
			VitalityDailyFactor:  0.98,
			VitalityFloor:        1,
		},
		Confidence: Confidence{
			HistoricalWeight:        0.35,
			PipelineWeight:          0.50,
			InactivityWeight:        0.15,
			GreenMin:                75,
			YellowMin:               50,
			HistoricalWindowDays:    365,
			HistoricalFallbackScore: 70,
			HistoricalBands: [5]numeric.Band{
				{Min: 0, Max: 0.5, Score: 20},
				{Min: 0.5, Max: 0.8, Score: 45},
				{Min: 0.8, Max: 0.95, Score: 90},
				{Min: 0.95, Max: 1.1, Score: 95},
				{Min: 1.1, Max: inf, Score: 85},
			},
			PipelineHorizonDays:       45,
			PipelineIdleWithPotential: 85,
			PipelineIdleNoPotential:   10,
			PipelineBands: [4]numeric.Band{
				{Min: 0, Max: 0.5, Score: 15},
				{Min: 0.5, Max: 1, Score: 40},
				{Min: 1, Max: 2, Score: 90},
				{Min: 2, Max: inf, Score: 95},
			},
			InactivityGraceDays:       14,
			InactivityDeclineSpanDays: 60,
			InactivityFloor:           1,
		},
		Calibration: Calibration{
			MinMultiplier:    0.5,
			MaxMultiplier:    1.5,
			MinErrorRatio:    0.5,
			MaxErrorRatio:    1.5,
			LearningRate:     0.08,
			TrustRampSamples: 8,
			BaseShareFloor:   1e-6,
			MediumQualityMin: 3,
			HighQualityMin:   8,
		},
		Onboarding: Onboarding{
			SeedWeeks: 52,
		},
	}
}

// Validate checks the invariants the engines rely on.
func (c Constants) Validate() error {
	var problems []error
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, fmt.Errorf("%w: %s", ErrInvalidConstants, msg))
		}
	}

	check(c.Timing.DefaultDecayDays >= 1, "timing.default_decay_days must be >= 1")
	check(c.Projection.FutureMonths >= 1, "projection.future_months must be >= 1")
	check(c.Projection.PastMonths >= 1, "projection.past_months must be >= 1")
	check(c.Projection.NinetyDayMonths <= c.Projection.FutureMonths, "projection.ninety_day_months exceeds future_months")

	t := c.Engagement.Tiering
	check(t.TierCeilings[0] < t.TierCeilings[1] && t.TierCeilings[1] < t.TierCeilings[2], "engagement.tiering.tier_ceilings must ascend")
	for i := 0; i < 4; i++ {
		check(t.GrowthBumps[i] >= 0 && t.VitalityBumps[i] >= 0, "engagement bumps must be non-negative")
	}
	check(c.Engagement.GrowthDecayDays >= 1, "engagement.growth_decay_days must be >= 1")
	check(c.Engagement.VitalityDailyFactor > 0 && c.Engagement.VitalityDailyFactor <= 1, "engagement.vitality_daily_factor must be in (0,1]")

	conf := c.Confidence
	weights := conf.HistoricalWeight + conf.PipelineWeight + conf.InactivityWeight
	check(math.Abs(weights-1) <= numeric.BandEpsilon, "confidence weights must sum to 1")
	check(conf.YellowMin < conf.GreenMin, "confidence.yellow_min must be below green_min")
	check(conf.InactivityDeclineSpanDays > 0, "confidence.inactivity_decline_span_days must be > 0")
	check(contiguous(conf.HistoricalBands[:]), "confidence.historical_bands must be contiguous")
	check(contiguous(conf.PipelineBands[:]), "confidence.pipeline_bands must be contiguous")

	cal := c.Calibration
	check(cal.MinMultiplier > 0 && cal.MinMultiplier < cal.MaxMultiplier, "calibration multiplier bounds")
	check(cal.MinErrorRatio > 0 && cal.MinErrorRatio < cal.MaxErrorRatio, "calibration error ratio bounds")
	check(cal.TrustRampSamples > 0, "calibration.trust_ramp_samples must be > 0")
	check(cal.MediumQualityMin <= cal.HighQualityMin, "calibration quality thresholds")

	check(c.Onboarding.SeedWeeks >= 1, "onboarding.seed_weeks must be >= 1")

	return errors.Join(problems...)
}

func contiguous(bands []numeric.Band) bool {
	for i, b := range bands {
		if b.Min > b.Max {
			return false
		}
		if i > 0 && math.Abs(bands[i-1].Max-b.Min) > numeric.BandEpsilon {
			return false
		}
	}
	return true
}
