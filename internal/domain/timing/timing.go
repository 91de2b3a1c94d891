// Package timing normalizes a KPI's payoff timing from explicit catalog
// fields or from the free-text time-to-close definition.
package timing

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/okian/kpiforecast/internal/domain/constants"
	"github.com/okian/kpiforecast/internal/domain/model"
	"github.com/okian/kpiforecast/internal/domain/numeric"
)

const (
	number = `(\d+(?:\.\d+)?)`
	unit   = `(days?|d|weeks?|wks?|w|months?|mos?)?\b`
)

var (
	rangePattern  = regexp.MustCompile(`(?i)` + number + `\s*(?:-|\x{2013}|\x{2014}|to)\s*` + number + `\s*` + unit)
	singlePattern = regexp.MustCompile(`(?i)` + number + `\s*` + unit)
)

// Resolver resolves timing against one Timing configuration.
type Resolver struct {
	cfg constants.Timing
}

// NewResolver returns a Resolver bound to cfg.
func NewResolver(cfg constants.Timing) Resolver {
	if cfg.DaysPerWeek <= 0 {
		cfg.DaysPerWeek = 7
	}
	if cfg.DaysPerMonth <= 0 {
		cfg.DaysPerMonth = 30
	}
	if cfg.DefaultDecayDays < 1 {
		cfg.DefaultDecayDays = 1
	}
	return Resolver{cfg: cfg}
}

// ParseTTCDefinition reads "A-B days" (hyphen, en dash, em dash or "to") as
// delay=min, hold=max-min; otherwise a single number N as hold=N. ok is false
// when the text carries no number.
func (r Resolver) ParseTTCDefinition(text string) (res model.TimingResolution, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.TimingResolution{}, false
	}

	if m := rangePattern.FindStringSubmatch(text); m != nil {
		scale := r.unitDays(m[3])
		a := numeric.WholeDays(parseFloat(m[1]) * scale)
		b := numeric.WholeDays(parseFloat(m[2]) * scale)
		lo, hi := min(a, b), max(a, b)
		return model.TimingResolution{DelayDays: lo, HoldDays: hi - lo, TotalTTCDays: hi}, true
	}

	if m := singlePattern.FindStringSubmatch(text); m != nil {
		n := numeric.WholeDays(parseFloat(m[1]) * r.unitDays(m[2]))
		return model.TimingResolution{DelayDays: 0, HoldDays: n, TotalTTCDays: n}, true
	}

	return model.TimingResolution{}, false
}

// Resolve applies field precedence explicit -> parsed -> 0. Hold falls back
// to explicitTTC-delay when neither an explicit nor a parsed hold exists.
// The total is never shorter than delay+hold.
func (r Resolver) Resolve(explicitDelay, explicitHold, explicitTTC *float64, definition string) model.TimingResolution {
	parsed, parsedOK := r.ParseTTCDefinition(definition)

	var delay int
	switch {
	case explicitDelay != nil:
		delay = numeric.WholeDays(*explicitDelay)
	case parsedOK:
		delay = parsed.DelayDays
	}

	var hold int
	switch {
	case explicitHold != nil:
		hold = numeric.WholeDays(*explicitHold)
	case parsedOK:
		hold = parsed.HoldDays
	case explicitTTC != nil:
		hold = max(0, numeric.WholeDays(*explicitTTC)-delay)
	}

	total := delay + hold
	switch {
	case explicitTTC != nil:
		total = numeric.WholeDays(*explicitTTC)
	case parsedOK:
		total = parsed.TotalTTCDays
	}

	return model.TimingResolution{
		DelayDays:    delay,
		HoldDays:     hold,
		TotalTTCDays: max(total, delay+hold),
	}
}

// ResolveKPI resolves a catalog row's timing.
func (r Resolver) ResolveKPI(kpi model.KPI) model.TimingResolution {
	return r.Resolve(kpi.DelayDays, kpi.HoldDays, kpi.TTCDays, kpi.TTCDefinition)
}

// DecayDays returns the decay length for an explicit catalog value, falling
// back to the configured default when unset. The result is always >= 1.
func (r Resolver) DecayDays(explicit *float64) int {
	if explicit == nil || math.IsNaN(*explicit) || math.IsInf(*explicit, 0) {
		return r.cfg.DefaultDecayDays
	}
	return max(1, numeric.WholeDays(*explicit))
}

func (r Resolver) unitDays(u string) float64 {
	u = strings.ToLower(u)
	switch {
	case strings.HasPrefix(u, "w"):
		return float64(r.cfg.DaysPerWeek)
	case strings.HasPrefix(u, "m"):
		return float64(r.cfg.DaysPerMonth)
	default:
		return 1
	}
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
