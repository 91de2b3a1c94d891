package model

import "time"

// AnchorRow is the current count of one pipeline-anchor KPI.
type AnchorRow struct {
	KPIID string  `json:"kpi_id"`
	Count float64 `json:"count"`
}

// UserSnapshot is a consistent read of everything the engines need for one
// user.
type UserSnapshot struct {
	UserID      string                `json:"user_id"`
	Profile     Profile               `json:"profile"`
	Catalog     []KPI                 `json:"catalog"`
	Logs        []LogRow              `json:"logs"`
	Anchors     []AnchorRow           `json:"anchors,omitempty"`
	Calibration []CalibrationState    `json:"calibration,omitempty"`
	Onboarding  []OnboardingSelection `json:"onboarding,omitempty"`
	DealCloses  []DealClose           `json:"deal_closes,omitempty"`
}

// CatalogByID indexes the catalog. Later rows win on duplicate ids.
func (u UserSnapshot) CatalogByID() map[string]KPI {
	out := make(map[string]KPI, len(u.Catalog))
	for _, k := range u.Catalog {
		out[k.ID] = k
	}
	return out
}

// RecomputeJob asks a worker to rebuild one user's outputs as of Now.
type RecomputeJob struct {
	ID   string
	User UserSnapshot
	Now  time.Time
}
