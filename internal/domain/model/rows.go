package model

import "time"

// KPIType classifies a catalog KPI by the side effect its logs produce.
type KPIType string

// KPI types.
const (
	KPITypePC     KPIType = "PC"              // projected credit
	KPITypeGP     KPIType = "GP"              // growth points
	KPITypeVP     KPIType = "VP"              // vitality points
	KPITypeActual KPIType = "Actual"          // realized GCI
	KPITypeAnchor KPIType = "Pipeline_Anchor" // open pipeline inventory
)

// KPI is a catalog row. Nil timing fields are unset in the catalog.
type KPI struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Type          KPIType  `json:"type"`
	PCWeight      float64  `json:"pc_weight"`
	DelayDays     *float64 `json:"delay_days,omitempty"`
	HoldDays      *float64 `json:"hold_days,omitempty"`
	TTCDays       *float64 `json:"ttc_days,omitempty"`
	DecayDays     *float64 `json:"decay_days,omitempty"`
	TTCDefinition string   `json:"ttc_definition,omitempty"`
	GPValue       float64  `json:"gp_value"`
	VPValue       float64  `json:"vp_value"`
}

// LogRow is an activity log row. Applied* fields are the side effects
// persisted when the row was first processed; when present they win over the
// current catalog so history is not retimed by later catalog edits.
type LogRow struct {
	ID             string  `json:"id"`
	KPIID          string  `json:"kpi_id"`
	EventTimestamp string  `json:"event_timestamp"`
	LoggedValue    float64 `json:"logged_value"`

	AppliedCredit     *float64 `json:"pc_generated,omitempty"`
	AppliedPoints     *float64 `json:"points_generated,omitempty"`
	AppliedGCI        *float64 `json:"actual_gci_delta,omitempty"`
	AppliedDelayDays  *int     `json:"delay_days_applied,omitempty"`
	AppliedHoldDays   *int     `json:"hold_days_applied,omitempty"`
	AppliedDecayDays  *int     `json:"decay_days_applied,omitempty"`
	AppliedMultiplier *float64 `json:"calibration_multiplier_applied,omitempty"`
}

// Profile carries the user fields the engines read.
type Profile struct {
	AveragePrice   float64 `json:"average_price"`
	CommissionRate float64 `json:"commission_rate"` // decimal, e.g. 0.025
	LastActivity   string  `json:"last_activity_timestamp,omitempty"`
}

// CommissionPerUnit is the GCI one closed unit is worth.
func (p Profile) CommissionPerUnit() float64 {
	return p.AveragePrice * p.CommissionRate
}

// CalibrationState is the persisted per-(user, KPI) correction. Nil rolling
// fields have never been observed.
type CalibrationState struct {
	UserID             string     `json:"user_id"`
	KPIID              string     `json:"kpi_id"`
	Multiplier         float64    `json:"multiplier"`
	SampleSize         int        `json:"sample_size"`
	RollingErrorRatio  *float64   `json:"rolling_error_ratio,omitempty"`
	RollingAbsPctError *float64   `json:"rolling_abs_pct_error,omitempty"`
	LastCalibratedAt   *time.Time `json:"last_calibrated_at,omitempty"`
}

// OnboardingSelection is a self-reported weekly average from onboarding.
type OnboardingSelection struct {
	KPIID                   string  `json:"kpi_id"`
	HistoricalWeeklyAverage float64 `json:"historical_weekly_average"`
}

// DealClose is an Actual log that closes a deal and triggers calibration.
type DealClose struct {
	ID        string  `json:"id"`
	ClosedAt  string  `json:"closed_at"`
	ActualGCI float64 `json:"actual_gci"`
}
