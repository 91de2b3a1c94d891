package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/okian/kpiforecast/internal/domain/model"
	"github.com/okian/kpiforecast/pkg/logger"
)

// Report is what one recompute job publishes.
type Report struct {
	UserID      string                   `json:"user_id"`
	Initialized []model.CalibrationState `json:"initialized_calibration,omitempty"`
	DealCloses  []CloseOutcome           `json:"deal_closes,omitempty"`
	Dashboard   Dashboard                `json:"dashboard"`
}

// Recompute brings u's calibration up to date and rebuilds the dashboard:
// missing rows are initialized, deal closes are applied oldest first, then
// the dashboard is built on the updated multipliers. Malformed closes are
// logged and skipped.
func (s *Service) Recompute(ctx context.Context, u model.UserSnapshot, now time.Time) (Report, error) { //nolint:gocritic // hugeParam
	r := Report{UserID: u.UserID}

	initialized, err := s.InitializeCalibration(ctx, u)
	if err != nil {
		return r, err
	}
	r.Initialized = initialized

	for _, dc := range closesByDate(u.DealCloses) {
		out, err := s.CloseDeal(ctx, u, dc)
		if errors.Is(err, ErrInvalidDealClose) {
			s.logger.Warn(ctx, "skipping deal close",
				logger.String("userID", u.UserID),
				logger.Error(err),
			)
			continue
		}
		if err != nil {
			return r, err
		}
		r.DealCloses = append(r.DealCloses, out)
	}

	r.Dashboard, err = s.BuildDashboard(ctx, u, now)
	if err != nil {
		return r, err
	}
	return r, nil
}

// closesByDate orders closes by close date; unparseable dates sort last and
// ties keep snapshot order.
func closesByDate(closes []model.DealClose) []model.DealClose {
	out := make([]model.DealClose, len(closes))
	copy(out, closes)
	sort.SliceStable(out, func(i, j int) bool {
		a, okA := model.ParseTimestamp(out[i].ClosedAt)
		b, okB := model.ParseTimestamp(out[j].ClosedAt)
		if okA != okB {
			return okA
		}
		return a.Before(b)
	})
	return out
}
