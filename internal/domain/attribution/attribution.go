// Package attribution apportions a closed deal's predicted value across the
// KPIs whose credit was live on the close date.
package attribution

import (
	"sort"
	"time"

	"github.com/okian/kpiforecast/internal/domain/credit"
	"github.com/okian/kpiforecast/internal/domain/model"
	"github.com/okian/kpiforecast/internal/domain/numeric"
)

// Result is the attribution of one deal close.
type Result struct {
	PredictedGCIWindow float64            `json:"predicted_gci_window"`
	ContributionByKPI  map[string]float64 `json:"contribution_by_kpi"`
	ShareByKPI         map[string]float64 `json:"share_by_kpi"`
}

// Empty reports whether nothing was attributed.
func (r Result) Empty() bool { return r.PredictedGCIWindow <= 0 }

// KPIs returns the attributed KPI ids in ascending order.
func (r Result) KPIs() []string {
	ids := make([]string, 0, len(r.ShareByKPI))
	for id := range r.ShareByKPI {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Attribute evaluates every event at closeDate and normalizes the positive
// contributions per KPI into shares that sum to 1. A zero close date, no
// events or a non-positive total yield an empty result.
func Attribute(events []model.KPIEvent, closeDate time.Time) Result {
	res := Result{
		ContributionByKPI: map[string]float64{},
		ShareByKPI:        map[string]float64{},
	}
	if closeDate.IsZero() || len(events) == 0 {
		return res
	}

	raw := make(map[string]float64)
	var total float64
	for _, e := range events {
		v := credit.ValueAt(e.Event, closeDate)
		if v <= 0 {
			continue
		}
		raw[e.KPIID] += v
		total += v
	}
	if total <= 0 {
		return res
	}

	res.PredictedGCIWindow = numeric.Round2(total)
	largest := ""
	var shareSum float64
	for id, v := range raw {
		res.ContributionByKPI[id] = numeric.Round2(v)
		share := numeric.Round6(v / total)
		res.ShareByKPI[id] = share
		shareSum += share
		if largest == "" || v > raw[largest] || (v == raw[largest] && id < largest) {
			largest = id
		}
	}
	// rounding residual goes to the dominant KPI
	res.ShareByKPI[largest] = numeric.Round6(res.ShareByKPI[largest] + 1 - shareSum)
	return res
}
