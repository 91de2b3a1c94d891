package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/okian/kpiforecast/internal/domain/attribution"
	"github.com/okian/kpiforecast/internal/domain/calibration"
	"github.com/okian/kpiforecast/internal/domain/dedupe"
	"github.com/okian/kpiforecast/internal/domain/model"
	"github.com/okian/kpiforecast/internal/domain/numeric"
	"github.com/okian/kpiforecast/pkg/logger"
	"github.com/okian/kpiforecast/pkg/metrics"
)

// AttributionAudit records how one deal close was attributed.
type AttributionAudit struct {
	ID                 string             `json:"id"`
	UserID             string             `json:"user_id"`
	DealCloseID        string             `json:"deal_close_id"`
	ClosedAt           time.Time          `json:"closed_at"`
	ActualGCI          float64            `json:"actual_gci"`
	PredictedGCIWindow float64            `json:"predicted_gci_window"`
	ErrorRatio         *float64           `json:"error_ratio"`
	ContributionByKPI  map[string]float64 `json:"contribution_by_kpi"`
	ShareByKPI         map[string]float64 `json:"share_by_kpi"`
	CreatedAt          time.Time          `json:"created_at"`
}

// CloseOutcome is the result of feeding one deal close to calibration.
type CloseOutcome struct {
	DealCloseID string              `json:"deal_close_id"`
	Duplicate   bool                `json:"duplicate,omitempty"`
	Audit       *AttributionAudit   `json:"audit,omitempty"`
	Deltas      []calibration.Delta `json:"calibration,omitempty"`
}

// CloseDeal attributes a closed deal to the KPIs whose credit was live on
// the close date and steps each of their multipliers. A close already seen
// for this user is reported as a duplicate and changes nothing. If a store
// update fails the close is forgotten so it can be retried.
func (s *Service) CloseDeal(ctx context.Context, u model.UserSnapshot, dc model.DealClose) (CloseOutcome, error) { //nolint:gocritic // hugeParam
	if dc.ID == "" {
		return CloseOutcome{}, fmt.Errorf("%w: missing id", ErrInvalidDealClose)
	}
	closedAt, ok := model.ParseTimestamp(dc.ClosedAt)
	if !ok {
		return CloseOutcome{}, fmt.Errorf("%w: %s: unparseable closed_at %q", ErrInvalidDealClose, dc.ID, dc.ClosedAt)
	}

	key := dedupe.Key(u.UserID, dc.ID)
	if s.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordDealCloseDuplicate()
		s.logger.Debug(ctx, "duplicate deal close, skipping",
			logger.String("userID", u.UserID),
			logger.String("dealCloseID", dc.ID),
		)
		return CloseOutcome{DealCloseID: dc.ID, Duplicate: true}, nil
	}
	metrics.RecordDealClose()

	out, err := s.applyClose(ctx, u, dc, closedAt)
	if err != nil {
		s.deduper.Forget(ctx, key)
		metrics.RecordErrorByComponent("service", "close_deal")
		return out, err
	}
	return out, nil
}

func (s *Service) applyClose(ctx context.Context, u model.UserSnapshot, dc model.DealClose, closedAt time.Time) (CloseOutcome, error) { //nolint:gocritic // hugeParam
	states, err := s.store.List(ctx, u.UserID)
	if err != nil {
		return CloseOutcome{}, fmt.Errorf("%w: list %s: %w", ErrCalibrationStore, u.UserID, err)
	}

	// Seeds are synthetic, so only logged credit is attributed.
	events := s.loggedCredit(u, u.CatalogByID(), multipliersOf(states))
	attr := attribution.Attribute(events, closedAt)
	metrics.RecordAttribution(attr.Empty())

	audit := s.audit(u.UserID, dc, closedAt, attr)
	out := CloseOutcome{DealCloseID: dc.ID, Audit: &audit}
	persisted := persistedRows(u)

	for _, kpiID := range attr.KPIs() {
		outcome := calibration.Outcome{
			ActualGCI:    dc.ActualGCI,
			PredictedGCI: attr.PredictedGCIWindow,
			Share:        attr.ShareByKPI[kpiID],
			At:           closedAt,
		}

		var delta calibration.Delta
		_, err := s.store.Update(ctx, u.UserID, kpiID, func(cur model.CalibrationState, found bool) (model.CalibrationState, error) {
			if !found {
				cur = baseState(u.UserID, kpiID, persisted)
			}
			next, d := s.calibration.Apply(cur, outcome)
			delta = d
			return next, nil
		})
		if err != nil {
			return out, fmt.Errorf("%w: update %s/%s: %w", ErrCalibrationStore, u.UserID, kpiID, err)
		}

		if delta.Applied {
			metrics.RecordCalibrationStep(delta.MultiplierNew)
		} else {
			metrics.RecordCalibrationSkipped()
		}
		out.Deltas = append(out.Deltas, delta)
	}

	s.logger.Info(ctx, "deal close applied",
		logger.String("userID", u.UserID),
		logger.String("dealCloseID", dc.ID),
		logger.String("auditID", audit.ID),
		logger.Float64("predictedGCI", attr.PredictedGCIWindow),
		logger.Int("kpis", len(out.Deltas)),
	)
	return out, nil
}

func (s *Service) audit(userID string, dc model.DealClose, closedAt time.Time, attr attribution.Result) AttributionAudit {
	a := AttributionAudit{
		ID:                 uuid.NewString(),
		UserID:             userID,
		DealCloseID:        dc.ID,
		ClosedAt:           closedAt,
		ActualGCI:          numeric.Round2(numeric.Finite(dc.ActualGCI)),
		PredictedGCIWindow: attr.PredictedGCIWindow,
		ContributionByKPI:  attr.ContributionByKPI,
		ShareByKPI:         attr.ShareByKPI,
		CreatedAt:          s.now().UTC(),
	}
	if ratio, ok := s.calibration.ErrorRatio(dc.ActualGCI, attr.PredictedGCIWindow); ok {
		r := numeric.Round6(ratio)
		a.ErrorRatio = &r
	}
	return a
}

// InitializeCalibration writes a row for every KPI of u that has none in
// the store: the snapshot's persisted row when there is one, otherwise the
// cold-start multiplier derived from the onboarding selections. It returns
// the rows it wrote.
func (s *Service) InitializeCalibration(ctx context.Context, u model.UserSnapshot) ([]model.CalibrationState, error) { //nolint:gocritic // hugeParam
	catalog := u.CatalogByID()
	var selections []calibration.Selection
	for _, sel := range u.Onboarding {
		kpi, ok := catalog[sel.KPIID]
		if !ok || kpi.Type != model.KPITypePC {
			continue
		}
		selections = append(selections, calibration.Selection{
			KPIID:         kpi.ID,
			WeeklyAverage: sel.HistoricalWeeklyAverage,
			BaseWeight:    kpi.PCWeight,
		})
	}
	initial := s.calibration.InitializationMultipliers(selections)
	persisted := persistedRows(u)

	ids := make([]string, 0, len(persisted)+len(initial))
	for id := range persisted {
		ids = append(ids, id)
	}
	for id := range initial {
		if _, dup := persisted[id]; !dup {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var written []model.CalibrationState
	for _, id := range ids {
		fresh := false
		st, err := s.store.Update(ctx, u.UserID, id, func(cur model.CalibrationState, found bool) (model.CalibrationState, error) {
			if found {
				return cur, nil
			}
			fresh = true
			if row, ok := persisted[id]; ok {
				return row, nil
			}
			return model.CalibrationState{UserID: u.UserID, KPIID: id, Multiplier: initial[id]}, nil
		})
		if err != nil {
			metrics.RecordErrorByComponent("service", "init_calibration")
			return written, fmt.Errorf("%w: init %s/%s: %w", ErrCalibrationStore, u.UserID, id, err)
		}
		if fresh {
			written = append(written, st)
		}
	}

	if len(written) > 0 {
		s.logger.Debug(ctx, "calibration initialized",
			logger.String("userID", u.UserID),
			logger.Int("rows", len(written)),
		)
	}
	return written, nil
}

// persistedRows indexes the snapshot's calibration rows by KPI id.
func persistedRows(u model.UserSnapshot) map[string]model.CalibrationState { //nolint:gocritic // hugeParam
	out := make(map[string]model.CalibrationState, len(u.Calibration))
	for _, row := range u.Calibration {
		if row.KPIID == "" {
			continue
		}
		row.UserID = u.UserID
		out[row.KPIID] = row
	}
	return out
}

func baseState(userID, kpiID string, persisted map[string]model.CalibrationState) model.CalibrationState {
	if row, ok := persisted[kpiID]; ok {
		return row
	}
	return model.CalibrationState{UserID: userID, KPIID: kpiID, Multiplier: 1}
}
