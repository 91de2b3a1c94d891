// Package confidence combines historical accuracy, pipeline health and
// inactivity into a single 0-100 projection confidence score.
package confidence

import (
	"math"
	"time"

	"github.com/okian/kpiforecast/internal/domain/constants"
	"github.com/okian/kpiforecast/internal/domain/credit"
	"github.com/okian/kpiforecast/internal/domain/model"
	"github.com/okian/kpiforecast/internal/domain/numeric"
)

// Band is the qualitative reading of a score.
type Band string

// Bands.
const (
	BandGreen  Band = "green"
	BandYellow Band = "yellow"
	BandRed    Band = "red"
)

// Input is the snapshot one assessment is computed from.
type Input struct {
	Now            time.Time
	Events         []model.CreditEvent
	Revenue        []model.RevenueEntry
	AnchorCounts   []float64
	AveragePrice   float64
	CommissionRate float64
	LastActivity   time.Time // zero when unknown
}

// Components exposes every intermediate value behind a score. Nil ratios
// mean there was not enough signal to compute one.
type Components struct {
	HistoricalAccuracyRatio *float64 `json:"historical_accuracy_ratio"`
	HistoricalAccuracyScore float64  `json:"historical_accuracy_score"`
	ActualRevenueWindow     float64  `json:"actual_revenue_365d"`
	ProjectedPayoffWindow   float64  `json:"projected_payoff_365d"`

	PipelineHealthRatio  *float64 `json:"pipeline_health_ratio"`
	PipelineHealthScore  float64  `json:"pipeline_health_score"`
	ProjectedNext45d     float64  `json:"projected_next_45d"`
	PotentialFromAnchors float64  `json:"potential_from_anchors"`
	AnchorTotal          float64  `json:"anchor_total"`

	InactivityDays  int     `json:"inactivity_days"`
	InactivityScore float64 `json:"inactivity_score"`
}

// Assessment is the composite score.
type Assessment struct {
	Score      float64    `json:"score"`
	Band       Band       `json:"band"`
	Components Components `json:"components"`
}

// Engine scores with one Confidence configuration.
type Engine struct {
	cfg constants.Confidence
}

// NewEngine returns an Engine bound to cfg.
func NewEngine(cfg constants.Confidence) Engine {
	if cfg.InactivityDeclineSpanDays <= 0 {
		cfg.InactivityDeclineSpanDays = 60
	}
	return Engine{cfg: cfg}
}

// Assess computes the composite score.
func (e Engine) Assess(in Input) Assessment {
	var c Components
	e.historical(in, &c)
	e.pipeline(in, &c)
	e.inactivity(in, &c)

	score := e.cfg.HistoricalWeight*c.HistoricalAccuracyScore +
		e.cfg.PipelineWeight*c.PipelineHealthScore +
		e.cfg.InactivityWeight*c.InactivityScore
	score = numeric.Round2(numeric.Clamp(score, 0, 100))

	return Assessment{Score: score, Band: e.BandFor(score), Components: c}
}

// BandFor maps a score to green, yellow or red.
func (e Engine) BandFor(score float64) Band {
	switch {
	case score >= e.cfg.GreenMin:
		return BandGreen
	case score >= e.cfg.YellowMin:
		return BandYellow
	default:
		return BandRed
	}
}

// InactivityScore is 100 through the grace period, then declines linearly by
// 100/span points per day, never below the floor.
func (e Engine) InactivityScore(days int) float64 {
	if days <= e.cfg.InactivityGraceDays {
		return 100
	}
	over := float64(days - e.cfg.InactivityGraceDays)
	return math.Max(e.cfg.InactivityFloor, 100-over*100/e.cfg.InactivityDeclineSpanDays)
}

// historical compares realized revenue with projected payoff that came due
// over the trailing window.
func (e Engine) historical(in Input, c *Components) {
	windowStart := in.Now.AddDate(0, 0, -e.cfg.HistoricalWindowDays)

	var actual float64
	for _, r := range in.Revenue {
		if r.Timestamp.IsZero() || r.Timestamp.Before(windowStart) || r.Timestamp.After(in.Now) {
			continue
		}
		actual += numeric.Finite(r.Amount)
	}

	dayStart := credit.StartOfDay(windowStart)
	var projected float64
	for _, ev := range in.Events {
		v := numeric.Finite(ev.InitialValue)
		if v <= 0 {
			continue
		}
		start := credit.PayoffStart(ev)
		if start.IsZero() || start.Before(dayStart) || start.After(in.Now) {
			continue
		}
		projected += v
	}

	c.ActualRevenueWindow = numeric.Round2(actual)
	c.ProjectedPayoffWindow = numeric.Round2(projected)

	if projected <= 0 {
		c.HistoricalAccuracyScore = e.cfg.HistoricalFallbackScore
		return
	}
	ratio := actual / projected
	c.HistoricalAccuracyRatio = ptr(numeric.Round6(ratio))
	c.HistoricalAccuracyScore, _ = numeric.BandScore(e.cfg.HistoricalBands[:], ratio)
}

// pipeline compares open anchor inventory with a smoothed daily projection
// over the horizon (days 0..H inclusive).
func (e Engine) pipeline(in Input, c *Components) {
	horizon := max(0, e.cfg.PipelineHorizonDays)
	var sum float64
	for d := 0; d <= horizon; d++ {
		sum += credit.AggregateAt(in.Events, in.Now.AddDate(0, 0, d))
	}
	projected := sum / float64(horizon+1)

	var anchors float64
	for _, n := range in.AnchorCounts {
		anchors += math.Max(0, numeric.Finite(n))
	}
	potential := anchors * numeric.Finite(in.AveragePrice) * numeric.Finite(in.CommissionRate)

	c.ProjectedNext45d = numeric.Round2(projected)
	c.AnchorTotal = numeric.Round2(anchors)
	c.PotentialFromAnchors = numeric.Round2(potential)

	if projected <= 0 {
		if potential > 0 {
			c.PipelineHealthScore = e.cfg.PipelineIdleWithPotential
		} else {
			c.PipelineHealthScore = e.cfg.PipelineIdleNoPotential
		}
		return
	}
	metric := potential / projected
	c.PipelineHealthRatio = ptr(numeric.Round6(metric))
	c.PipelineHealthScore, _ = numeric.BandScore(e.cfg.PipelineBands[:], metric)
}

func (e Engine) inactivity(in Input, c *Components) {
	days := 0
	if !in.LastActivity.IsZero() {
		days = max(0, credit.DaysBetween(in.LastActivity, in.Now))
	}
	c.InactivityDays = days
	c.InactivityScore = numeric.Round2(e.InactivityScore(days))
}

func ptr(f float64) *float64 { return &f }
