package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okian/kpiforecast/internal/domain/calibration"
	"github.com/okian/kpiforecast/internal/domain/confidence"
	"github.com/okian/kpiforecast/internal/domain/credit"
	"github.com/okian/kpiforecast/internal/domain/engagement"
	"github.com/okian/kpiforecast/internal/domain/model"
	"github.com/okian/kpiforecast/internal/domain/numeric"
	"github.com/okian/kpiforecast/pkg/logger"
	"github.com/okian/kpiforecast/pkg/metrics"
)

// LogEffects are the side effects one activity log row produces. Only the
// fields matching the KPI's type are set.
type LogEffects struct {
	LogID             string                 `json:"log_id"`
	KPIID             string                 `json:"kpi_id"`
	KPIType           model.KPIType          `json:"kpi_type"`
	CreditValue       float64                `json:"pc_generated"`
	Points            float64                `json:"points_generated"`
	RevenueDelta      float64                `json:"actual_gci_delta"`
	AnchorCount       float64                `json:"anchor_count"`
	Timing            model.TimingResolution `json:"timing"`
	DecayDays         int                    `json:"decay_days"`
	AppliedWeight     float64                `json:"applied_weight"`
	AppliedMultiplier float64                `json:"calibration_multiplier_applied"`
}

// KPICalibration is the dashboard view of one calibration row.
type KPICalibration struct {
	KPIID              string              `json:"kpi_id"`
	Multiplier         float64             `json:"multiplier"`
	SampleSize         int                 `json:"sample_size"`
	Quality            calibration.Quality `json:"quality"`
	RollingAbsPctError *float64            `json:"rolling_abs_pct_error,omitempty"`
}

// Dashboard is everything a user's forecast screen shows.
type Dashboard struct {
	UserID       string                `json:"user_id"`
	AsOf         time.Time             `json:"as_of"`
	Confidence   confidence.Assessment `json:"confidence"`
	Engagement   engagement.Summary    `json:"engagement"`
	FutureSeries []credit.Point        `json:"future_series"`
	PastActuals  []credit.Point        `json:"past_actuals"`
	Projected90D float64               `json:"projected_90d"`
	Projected12M float64               `json:"projected_12m"`
	Seeded       bool                  `json:"seeded"`
	Calibration  []KPICalibration      `json:"calibration"`
}

// history is a user's log rows reduced to engine inputs.
type history struct {
	credit       []model.KPIEvent
	revenue      []model.RevenueEntry
	growth       []model.PointEvent
	vitality     []model.PointEvent
	anchors      []float64
	lastActivity time.Time
	seeded       bool
}

func (h history) creditEvents() []model.CreditEvent {
	out := make([]model.CreditEvent, len(h.credit))
	for i := range h.credit {
		out[i] = h.credit[i].Event
	}
	return out
}

// ProcessLog computes the side effects of one log row against its catalog
// KPI. A PC row earns avgPrice * commissionRate * pcWeight * multiplier *
// value of projected credit; the multiplier is clamped to the calibration
// range first.
func (s *Service) ProcessLog(kpi model.KPI, profile model.Profile, row model.LogRow, multiplier float64) LogEffects { //nolint:gocritic // hugeParam
	value := numeric.Finite(row.LoggedValue)
	fx := LogEffects{LogID: row.ID, KPIID: kpi.ID, KPIType: kpi.Type}

	switch kpi.Type {
	case model.KPITypePC:
		m := s.calibration.ClampMultiplier(multiplier)
		weight := numeric.Finite(kpi.PCWeight) * m
		fx.Timing = s.resolver.ResolveKPI(kpi)
		fx.DecayDays = s.resolver.DecayDays(kpi.DecayDays)
		fx.AppliedMultiplier = numeric.Round6(m)
		fx.AppliedWeight = numeric.Round6(weight)
		fx.CreditValue = numeric.Round2(math.Max(0, numeric.Finite(profile.CommissionPerUnit())*weight*value))
	case model.KPITypeGP:
		fx.Points = numeric.Round2(numeric.Finite(kpi.GPValue) * value)
	case model.KPITypeVP:
		fx.Points = numeric.Round2(numeric.Finite(kpi.VPValue) * value)
	case model.KPITypeActual:
		fx.RevenueDelta = numeric.Round2(value)
	case model.KPITypeAnchor:
		fx.AnchorCount = math.Max(0, value)
	}

	metrics.RecordLogProcessed(string(kpi.Type))
	return fx
}

// CreditEvents rebuilds u's credit events from its PC log rows, keeping the
// credit and timing persisted on each row over the current catalog. When u
// has no PC rows the onboarding seeds stand in and seeded is true.
// multipliers maps KPI id to the multiplier used for rows that never had one
// applied.
func (s *Service) CreditEvents(u model.UserSnapshot, multipliers map[string]float64, now time.Time) (events []model.KPIEvent, seeded bool) { //nolint:gocritic // hugeParam
	catalog := u.CatalogByID()
	events = s.loggedCredit(u, catalog, multipliers)
	if len(events) > 0 {
		return events, false
	}

	events = s.seeds.Generate(catalog, u.Profile, u.Onboarding, now)
	if len(events) > 0 {
		metrics.RecordSeedEvents(len(events))
	}
	return events, len(events) > 0
}

func (s *Service) loggedCredit(u model.UserSnapshot, catalog map[string]model.KPI, multipliers map[string]float64) []model.KPIEvent { //nolint:gocritic // hugeParam
	var events []model.KPIEvent
	for _, row := range u.Logs {
		kpi, ok := catalog[row.KPIID]
		if !ok || kpi.Type != model.KPITypePC {
			continue
		}
		ev := s.creditEvent(kpi, u.Profile, row, multipliers)
		if err := ev.Validate(); err != nil {
			metrics.RecordCreditEventViolation()
			s.logger.Warn(context.Background(), "credit event out of contract",
				logger.String("userID", u.UserID),
				logger.String("logID", row.ID),
				logger.Error(err),
			)
		}
		events = append(events, model.KPIEvent{KPIID: kpi.ID, Event: ev})
	}
	return events
}

func (s *Service) creditEvent(kpi model.KPI, profile model.Profile, row model.LogRow, multipliers map[string]float64) model.CreditEvent { //nolint:gocritic // hugeParam
	m := 1.0
	if row.AppliedMultiplier != nil {
		m = *row.AppliedMultiplier
	} else if v, ok := multipliers[kpi.ID]; ok && v != 0 {
		m = v
	}
	fx := s.ProcessLog(kpi, profile, row, m)

	ts, _ := model.ParseTimestamp(row.EventTimestamp)
	ev := model.CreditEvent{
		Timestamp:    ts,
		InitialValue: fx.CreditValue,
		DelayDays:    fx.Timing.DelayDays,
		HoldDays:     fx.Timing.HoldDays,
		DecayDays:    fx.DecayDays,
	}
	if row.AppliedCredit != nil {
		ev.InitialValue = numeric.Finite(*row.AppliedCredit)
	}
	if row.AppliedDelayDays != nil {
		ev.DelayDays = *row.AppliedDelayDays
	}
	if row.AppliedHoldDays != nil {
		ev.HoldDays = *row.AppliedHoldDays
	}
	if row.AppliedDecayDays != nil {
		ev.DecayDays = *row.AppliedDecayDays
	}
	return ev
}

// collect reduces every log row of u in one pass.
func (s *Service) collect(u model.UserSnapshot, multipliers map[string]float64, now time.Time) history { //nolint:gocritic // hugeParam
	var h history
	h.credit, h.seeded = s.CreditEvents(u, multipliers, now)

	catalog := u.CatalogByID()
	var logAnchors float64
	for _, row := range u.Logs {
		ts, ok := model.ParseTimestamp(row.EventTimestamp)
		if ok && ts.After(h.lastActivity) {
			h.lastActivity = ts
		}

		kpi, found := catalog[row.KPIID]
		if !found {
			continue
		}
		switch kpi.Type {
		case model.KPITypeActual:
			amount := s.ProcessLog(kpi, u.Profile, row, 1).RevenueDelta
			if row.AppliedGCI != nil {
				amount = numeric.Finite(*row.AppliedGCI)
			}
			h.revenue = append(h.revenue, model.RevenueEntry{Timestamp: ts, Amount: amount})
		case model.KPITypeGP, model.KPITypeVP:
			points := s.ProcessLog(kpi, u.Profile, row, 1).Points
			if row.AppliedPoints != nil {
				points = numeric.Finite(*row.AppliedPoints)
			}
			ev := model.PointEvent{Timestamp: ts, Points: points}
			if kpi.Type == model.KPITypeGP {
				h.growth = append(h.growth, ev)
			} else {
				h.vitality = append(h.vitality, ev)
			}
		case model.KPITypeAnchor:
			logAnchors += s.ProcessLog(kpi, u.Profile, row, 1).AnchorCount
		}
	}

	if len(u.Anchors) > 0 {
		for _, a := range u.Anchors {
			h.anchors = append(h.anchors, a.Count)
		}
	} else if logAnchors > 0 {
		h.anchors = []float64{logAnchors}
	}

	if ts, ok := model.ParseTimestamp(u.Profile.LastActivity); ok {
		h.lastActivity = ts
	}
	return h
}

// BuildDashboard evaluates every engine for u as of now. Calibration rows
// come from the store, so closes applied earlier in the run are reflected.
func (s *Service) BuildDashboard(ctx context.Context, u model.UserSnapshot, now time.Time) (Dashboard, error) { //nolint:gocritic // hugeParam
	start := time.Now()
	states, err := s.store.List(ctx, u.UserID)
	if err != nil {
		metrics.RecordErrorByComponent("service", "store_list")
		return Dashboard{}, fmt.Errorf("%w: list %s: %w", ErrCalibrationStore, u.UserID, err)
	}

	h := s.collect(u, multipliersOf(states), now)
	events := h.creditEvents()
	summary := s.engagement.Summarize(h.growth, h.vitality, now)
	future := s.timeline.FutureSeries(events, now, summary.TotalBump)

	assessment := s.confidence.Assess(confidence.Input{
		Now:            now,
		Events:         events,
		Revenue:        h.revenue,
		AnchorCounts:   h.anchors,
		AveragePrice:   u.Profile.AveragePrice,
		CommissionRate: u.Profile.CommissionRate,
		LastActivity:   h.lastActivity,
	})

	d := Dashboard{
		UserID:       u.UserID,
		AsOf:         now.UTC(),
		Confidence:   assessment,
		Engagement:   summary,
		FutureSeries: future,
		PastActuals:  s.timeline.PastActualSeries(h.revenue, now),
		Projected90D: numeric.Round2(s.timeline.Derive90D(future)),
		Projected12M: numeric.Round2(credit.SumSeries(future)),
		Seeded:       h.seeded,
		Calibration:  make([]KPICalibration, 0, len(states)),
	}
	for _, st := range states {
		d.Calibration = append(d.Calibration, KPICalibration{
			KPIID:              st.KPIID,
			Multiplier:         numeric.Round6(s.calibration.ClampMultiplier(neutral(st.Multiplier))),
			SampleSize:         st.SampleSize,
			Quality:            s.calibration.QualityBand(st.SampleSize),
			RollingAbsPctError: st.RollingAbsPctError,
		})
	}

	metrics.RecordDashboardBuilt(float64(time.Since(start).Microseconds())/1000, assessment.Score, string(assessment.Band))
	s.logger.Debug(ctx, "dashboard built",
		logger.String("userID", u.UserID),
		logger.Float64("confidence", assessment.Score),
		logger.Bool("seeded", h.seeded),
	)
	return d, nil
}

// multipliersOf indexes stored multipliers by KPI id.
func multipliersOf(states []model.CalibrationState) map[string]float64 {
	out := make(map[string]float64, len(states))
	for _, st := range states {
		out[st.KPIID] = neutral(st.Multiplier)
	}
	return out
}

// neutral maps an unset multiplier to 1.
func neutral(m float64) float64 {
	if m == 0 {
		return 1
	}
	return m
}
