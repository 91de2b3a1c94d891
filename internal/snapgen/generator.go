package snapgen

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/okian/kpiforecast/internal/domain/model"
	"github.com/okian/kpiforecast/pkg/logger"
)

// Agent archetypes. Each draws a different activity level and history shape.
const (
	caseNewAgent = iota
	caseSteadyAgent
	caseHighPerformer
	caseLapsedAgent
	archetypeCount
)

// Ranges for profile and activity generation.
const (
	minAveragePrice   = 250_000.0
	averagePriceRange = 500_000.0
	minCommission     = 0.02
	commissionRange   = 0.01
	lapsedGapDays     = 45
	closeEveryDays    = 30
	closeGCIJitter    = 0.5
	dayHours          = 24
)

// userNamespace scopes generated user ids so equal seeds give equal ids.
var userNamespace = uuid.MustParse("5b3c8a4e-2f1d-4c6b-9e7a-1d2f3a4b5c6d")

func ptr(v float64) *float64 { return &v }

// catalog is the KPI set every generated user shares.
func catalog() []model.KPI {
	return []model.KPI{
		{ID: "calls", Name: "Prospecting calls", Type: model.KPITypePC, PCWeight: 0.002, TTCDefinition: "60-120 days", DecayDays: ptr(90)},
		{ID: "appointments", Name: "Appointments set", Type: model.KPITypePC, PCWeight: 0.05, TTCDefinition: "30-60 days"},
		{ID: "showings", Name: "Showings", Type: model.KPITypePC, PCWeight: 0.08, DelayDays: ptr(7), HoldDays: ptr(30), DecayDays: ptr(45)},
		{ID: "training", Name: "Training hour", Type: model.KPITypeGP, GPValue: 10},
		{ID: "workout", Name: "Workout", Type: model.KPITypeVP, VPValue: 5},
		{ID: "closed_gci", Name: "Closed GCI", Type: model.KPITypeActual},
		{ID: "listings", Name: "Active listings", Type: model.KPITypeAnchor},
	}
}

// weeklyRate is the mean weekly volume per activity KPI for an archetype.
func weeklyRate(archetype int) map[string]float64 {
	base := map[string]float64{"calls": 40, "appointments": 2, "showings": 1.5, "training": 2, "workout": 3}
	scale := 1.0
	switch archetype {
	case caseHighPerformer:
		scale = 2.5
	case caseLapsedAgent:
		scale = 0.6
	}
	for k, v := range base {
		base[k] = v * scale
	}
	return base
}

// generateUsers creates cfg.Users snapshots concurrently. Output depends only
// on cfg.Seed and the user index, never on the worker count.
func generateUsers(ctx context.Context, cfg *Config, stats *Stats) ([]model.UserSnapshot, error) {
	logger.Get().Info(ctx, "generating users", logger.Int("users", cfg.Users))

	users := make([]model.UserSnapshot, cfg.Users)
	if cfg.Users == 0 {
		return users, nil
	}

	type userResult struct {
		index int
		user  model.UserSnapshot
		stats userStats
		err   error
	}

	resultChan := make(chan userResult, cfg.Users)

	workerCount := max(1, min(cfg.Workers, cfg.Users))
	usersPerWorker := cfg.Users / workerCount

	for worker := 0; worker < workerCount; worker++ {
		start := worker * usersPerWorker
		end := start + usersPerWorker
		if worker == workerCount-1 {
			end = cfg.Users
		}

		go func(start, end int) {
			for i := start; i < end; i++ {
				select {
				case <-ctx.Done():
					resultChan <- userResult{index: i, err: ctx.Err()}
					return
				default:
					u, us := generateUser(cfg, i)
					resultChan <- userResult{index: i, user: u, stats: us}
				}
			}
		}(start, end)
	}

	for i := 0; i < cfg.Users; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during user generation: %w", ctx.Err())
		case result := <-resultChan:
			if result.err != nil {
				return nil, fmt.Errorf("failed to generate user %d: %w", result.index, result.err)
			}
			users[result.index] = result.user
			stats.add(result.stats)
		}
	}

	logger.Get().Info(ctx, "generated users",
		logger.Int("users", stats.UsersGenerated),
		logger.Int("logs", stats.LogsGenerated),
		logger.Int("dealCloses", stats.DealClosesGenerated))

	return users, nil
}

// generateUser builds user index from its own random stream.
func generateUser(cfg *Config, index int) (model.UserSnapshot, userStats) {
	rng := rand.New(rand.NewPCG(cfg.Seed, uint64(index)))
	archetype := rng.IntN(archetypeCount)

	u := model.UserSnapshot{
		UserID: uuid.NewSHA1(userNamespace, []byte(strconv.FormatUint(cfg.Seed, 10)+"/"+strconv.Itoa(index))).String(),
		Profile: model.Profile{
			AveragePrice:   math.Round(minAveragePrice + rng.Float64()*averagePriceRange),
			CommissionRate: math.Round((minCommission+rng.Float64()*commissionRange)*1e4) / 1e4,
		},
		Catalog: catalog(),
	}

	rates := weeklyRate(archetype)
	if archetype == caseNewAgent {
		for _, id := range []string{"calls", "appointments", "showings"} {
			u.Onboarding = append(u.Onboarding, model.OnboardingSelection{
				KPIID:                   id,
				HistoricalWeeklyAverage: math.Round(rates[id]*(0.5+rng.Float64())*10) / 10,
			})
		}
		return u, userStats{seeded: true}
	}

	asOf := cfg.AsOf.UTC()
	lastDay := 0
	if archetype == caseLapsedAgent {
		lastDay = lapsedGapDays
	}

	seq := 0
	for day := cfg.Days; day > lastDay; day-- {
		at := asOf.Add(-time.Duration(day) * dayHours * time.Hour)
		for _, id := range []string{"calls", "appointments", "showings", "training", "workout"} {
			n := poisson(rng, rates[id]/7)
			if n == 0 {
				continue
			}
			seq++
			u.Logs = append(u.Logs, model.LogRow{
				ID:             u.UserID + "-l" + strconv.Itoa(seq),
				KPIID:          id,
				EventTimestamp: at.Format(time.RFC3339),
				LoggedValue:    float64(n),
			})
		}
	}

	commission := u.Profile.CommissionPerUnit()
	for day := cfg.Days - closeEveryDays; day > lastDay; day -= closeEveryDays {
		if rng.Float64() > rates["appointments"]/4 {
			continue
		}
		gci := math.Round(commission * (1 - closeGCIJitter/2 + rng.Float64()*closeGCIJitter))
		closedAt := asOf.Add(-time.Duration(day) * dayHours * time.Hour)
		id := u.UserID + "-d" + strconv.Itoa(len(u.DealCloses)+1)
		u.DealCloses = append(u.DealCloses, model.DealClose{ID: id, ClosedAt: closedAt.Format(time.DateOnly), ActualGCI: gci})
		seq++
		u.Logs = append(u.Logs, model.LogRow{
			ID:             u.UserID + "-l" + strconv.Itoa(seq),
			KPIID:          "closed_gci",
			EventTimestamp: closedAt.Format(time.RFC3339),
			LoggedValue:    gci,
		})
	}

	u.Anchors = []model.AnchorRow{{KPIID: "listings", Count: float64(rng.IntN(6))}}

	return u, userStats{logs: len(u.Logs), closes: len(u.DealCloses)}
}

// poisson draws from a Poisson distribution with mean lambda (Knuth).
func poisson(rng *rand.Rand, lambda float64) int {
	if lambda <= 0 {
		return 0
	}
	limit := math.Exp(-lambda)
	k, p := 0, rng.Float64()
	for p > limit {
		k++
		p *= rng.Float64()
	}
	return k
}
