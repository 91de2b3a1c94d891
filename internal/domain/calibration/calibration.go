// Package calibration adjusts the per-(user, KPI) multiplier after each deal
// close with a damped proportional controller, and seeds it at cold start.
package calibration

import (
	"math"
	"time"

	"github.com/okian/kpiforecast/internal/domain/constants"
	"github.com/okian/kpiforecast/internal/domain/model"
	"github.com/okian/kpiforecast/internal/domain/numeric"
)

// Quality describes how much history backs a multiplier.
type Quality string

// Quality bands.
const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// Selection is one KPI chosen at onboarding: the user's self-reported
// weekly average next to the catalog's base weight.
type Selection struct {
	KPIID         string
	WeeklyAverage float64
	BaseWeight    float64
}

// StepResult is the outcome of one controller step.
type StepResult struct {
	MultiplierOld float64 `json:"multiplier_old"`
	MultiplierNew float64 `json:"multiplier_new"`
	Trust         float64 `json:"trust"`
	Delta         float64 `json:"delta"`
	Step          float64 `json:"step"`
}

// Outcome is what a deal close revealed about one KPI.
type Outcome struct {
	ActualGCI    float64
	PredictedGCI float64
	Share        float64
	At           time.Time
}

// Delta records how a state changed in Apply.
type Delta struct {
	KPIID            string     `json:"kpi_id"`
	Applied          bool       `json:"applied"`
	ErrorRatio       float64    `json:"error_ratio"`
	Share            float64    `json:"share"`
	SampleSizeOld    int        `json:"sample_size_old"`
	SampleSizeNew    int        `json:"sample_size_new"`
	Quality          Quality    `json:"quality"`
	LastCalibratedAt *time.Time `json:"last_calibrated_at,omitempty"`
	StepResult
}

// Engine runs the controller with one Calibration configuration.
type Engine struct {
	cfg constants.Calibration
}

// NewEngine returns an Engine bound to cfg.
func NewEngine(cfg constants.Calibration) Engine {
	if cfg.TrustRampSamples <= 0 {
		cfg.TrustRampSamples = 8
	}
	return Engine{cfg: cfg}
}

// ClampMultiplier bounds x to the multiplier range. Non-finite values become
// the neutral multiplier 1.
func (e Engine) ClampMultiplier(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 1
	}
	return numeric.Clamp(x, e.cfg.MinMultiplier, e.cfg.MaxMultiplier)
}

// NormalizeErrorRatio bounds the correction signal so one outlier deal
// cannot swing the multiplier far.
func (e Engine) NormalizeErrorRatio(r float64) float64 {
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 1
	}
	return numeric.Clamp(r, e.cfg.MinErrorRatio, e.cfg.MaxErrorRatio)
}

// ErrorRatio returns actual/predicted. ok is false when nothing was
// predicted, in which case there is no signal to learn from.
func (e Engine) ErrorRatio(actual, predicted float64) (float64, bool) {
	actual, predicted = numeric.Finite(actual), numeric.Finite(predicted)
	if predicted <= 0 {
		return 0, false
	}
	return math.Max(0, actual) / predicted, true
}

// InitializationMultipliers compares each KPI's share of the user's reported
// activity with its share of the catalog weights:
//
//	multiplier = clamp(sqrt(userShare / max(baseShare, floor)))
//
// Every multiplier is 1 when either total is zero.
func (e Engine) InitializationMultipliers(selections []Selection) map[string]float64 {
	out := make(map[string]float64, len(selections))
	var userTotal, baseTotal float64
	for _, s := range selections {
		userTotal += math.Max(0, numeric.Finite(s.WeeklyAverage))
		baseTotal += math.Max(0, numeric.Finite(s.BaseWeight))
	}

	for _, s := range selections {
		if userTotal <= 0 || baseTotal <= 0 {
			out[s.KPIID] = 1
			continue
		}
		userShare := math.Max(0, numeric.Finite(s.WeeklyAverage)) / userTotal
		baseShare := math.Max(e.cfg.BaseShareFloor, math.Max(0, numeric.Finite(s.BaseWeight))/baseTotal)
		out[s.KPIID] = numeric.Round6(e.ClampMultiplier(math.Sqrt(userShare / baseShare)))
	}
	return out
}

// Step nudges old toward predicted == actual:
//
//	trust = clamp01((sampleSize+1) / ramp)
//	delta = normalize(errorRatio) - 1
//	step  = rate * trust * delta * clamp01(share)
//	new   = clamp(old * (1+step))
func (e Engine) Step(old float64, sampleSize int, errorRatio, share float64) StepResult {
	old = e.ClampMultiplier(old)
	trust := numeric.Clamp01(float64(max(0, sampleSize)+1) / e.cfg.TrustRampSamples)
	delta := e.NormalizeErrorRatio(errorRatio) - 1
	step := e.cfg.LearningRate * trust * delta * numeric.Clamp01(share)

	return StepResult{
		MultiplierOld: numeric.Round6(old),
		MultiplierNew: numeric.Round6(e.ClampMultiplier(old * (1 + step))),
		Trust:         numeric.Round6(trust),
		Delta:         numeric.Round6(delta),
		Step:          numeric.Round6(step),
	}
}

// NextRollingAverage folds next into a running mean over n prior samples.
func NextRollingAverage(old *float64, n int, next float64) float64 {
	if old == nil || n <= 0 {
		return next
	}
	return *old + (next-*old)/float64(n+1)
}

// QualityBand grades a sample size.
func (e Engine) QualityBand(sampleSize int) Quality {
	switch {
	case sampleSize < e.cfg.MediumQualityMin:
		return QualityLow
	case sampleSize < e.cfg.HighQualityMin:
		return QualityMedium
	default:
		return QualityHigh
	}
}

// Apply folds one deal-close outcome into state. When nothing was predicted
// the state is returned unchanged and Delta.Applied is false.
func (e Engine) Apply(state model.CalibrationState, out Outcome) (model.CalibrationState, Delta) {
	ratio, ok := e.ErrorRatio(out.ActualGCI, out.PredictedGCI)
	d := Delta{
		KPIID:         state.KPIID,
		Share:         numeric.Round6(numeric.Clamp01(out.Share)),
		SampleSizeOld: state.SampleSize,
		SampleSizeNew: state.SampleSize,
		Quality:       e.QualityBand(state.SampleSize),
	}
	if state.Multiplier == 0 {
		state.Multiplier = 1
	}
	if !ok {
		m := numeric.Round6(e.ClampMultiplier(state.Multiplier))
		d.StepResult = StepResult{MultiplierOld: m, MultiplierNew: m}
		d.LastCalibratedAt = state.LastCalibratedAt
		return state, d
	}

	res := e.Step(state.Multiplier, state.SampleSize, ratio, out.Share)
	absPct := math.Abs(out.ActualGCI-out.PredictedGCI) / out.PredictedGCI
	rollingRatio := numeric.Round6(NextRollingAverage(state.RollingErrorRatio, state.SampleSize, ratio))
	rollingAbs := numeric.Round6(NextRollingAverage(state.RollingAbsPctError, state.SampleSize, absPct))

	next := state
	next.Multiplier = res.MultiplierNew
	next.SampleSize = state.SampleSize + 1
	next.RollingErrorRatio = &rollingRatio
	next.RollingAbsPctError = &rollingAbs
	if !out.At.IsZero() {
		at := out.At.UTC()
		next.LastCalibratedAt = &at
	}

	d.Applied = true
	d.ErrorRatio = numeric.Round6(ratio)
	d.SampleSizeNew = next.SampleSize
	d.Quality = e.QualityBand(next.SampleSize)
	d.LastCalibratedAt = next.LastCalibratedAt
	d.StepResult = res
	return next, d
}
