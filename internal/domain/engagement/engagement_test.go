package engagement_test

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/okian/kpiforecast/internal/domain/constants"
	"github.com/okian/kpiforecast/internal/domain/engagement"
	"github.com/okian/kpiforecast/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var now = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func award(points float64, ago time.Duration) model.PointEvent {
	return model.PointEvent{Timestamp: now.Add(-ago), Points: points}
}

func TestGrowthLedger(t *testing.T) {
	Convey("Given growth points", t, func() {
		eng := engagement.NewEngine(constants.Default().Engagement)

		Convey("When the latest award is inside the trigger window", func() {
			l := eng.Growth([]model.PointEvent{award(150, 40*24*time.Hour), award(50, 30*24*time.Hour)}, now)

			Convey("Then nothing decays", func() {
				So(l.Raw, ShouldEqual, 200.0)
				So(l.Current, ShouldEqual, 200.0)
				So(l.DecayApplied, ShouldBeFalse)
				So(l.Tier, ShouldEqual, 2)
				So(l.BumpPercent, ShouldEqual, 0.02)
			})
		})

		Convey("When the user has been idle 60 days", func() {
			l := eng.Growth([]model.PointEvent{award(400, 60*24*time.Hour)}, now)

			Convey("Then the total fades linearly past the trigger", func() {
				So(l.Raw, ShouldEqual, 400.0)
				So(l.Current, ShouldEqual, 200.0)
				So(l.DecayApplied, ShouldBeTrue)
			})
		})

		Convey("When the user has been idle past the whole decay window", func() {
			l := eng.Growth([]model.PointEvent{award(900, 120*24*time.Hour)}, now)
			So(l.Current, ShouldEqual, 0.0)
			So(l.Tier, ShouldEqual, 1)
		})

		Convey("When there are no awards", func() {
			l := eng.Growth(nil, now)
			So(l.Raw, ShouldEqual, 0.0)
			So(l.Current, ShouldEqual, 0.0)
			So(l.LatestEvent, ShouldBeNil)
			So(l.BumpPercent, ShouldEqual, 0.0)
		})
	})
}

func TestVitalityLedger(t *testing.T) {
	Convey("Given vitality points", t, func() {
		eng := engagement.NewEngine(constants.Default().Engagement)

		Convey("When the latest award is 11 hours old", func() {
			l := eng.Vitality([]model.PointEvent{award(100, 11*time.Hour)}, now)
			So(l.Current, ShouldEqual, 100.0)
			So(l.DecayApplied, ShouldBeFalse)
		})

		Convey("When the trigger fired but less than a day has passed", func() {
			l := eng.Vitality([]model.PointEvent{award(100, 20*time.Hour)}, now)
			So(l.DecayApplied, ShouldBeTrue)
			So(l.Current, ShouldEqual, 100.0)
		})

		Convey("When three whole days have passed", func() {
			l := eng.Vitality([]model.PointEvent{award(100, 3*24*time.Hour+5*time.Hour)}, now)
			So(l.Current, ShouldAlmostEqual, 100*math.Pow(0.98, 3), 0.01)
		})

		Convey("When a long absence would push it under the floor", func() {
			l := eng.Vitality([]model.PointEvent{award(10, 400*24*time.Hour)}, now)
			So(l.Current, ShouldEqual, 1.0)
		})

		Convey("When the raw total is already below the floor", func() {
			l := eng.Vitality([]model.PointEvent{award(0.4, 5*24*time.Hour)}, now)
			So(l.Current, ShouldBeLessThanOrEqualTo, l.Raw)
		})
	})
}

func TestTiering(t *testing.T) {
	Convey("Given the default tier ceilings", t, func() {
		eng := engagement.NewEngine(constants.Default().Engagement)

		So(eng.TierForValue(0), ShouldEqual, 1)
		So(eng.TierForValue(99), ShouldEqual, 1)
		So(eng.TierForValue(99.5), ShouldEqual, 2)
		So(eng.TierForValue(299), ShouldEqual, 2)
		So(eng.TierForValue(599), ShouldEqual, 3)
		So(eng.TierForValue(600), ShouldEqual, 4)

		So(eng.Bump(engagement.Growth, 4), ShouldEqual, 0.06)
		So(eng.Bump(engagement.Vitality, 3), ShouldEqual, 0.02)
		So(eng.Bump(engagement.Vitality, 9), ShouldEqual, 0.0)
	})
}

func TestLedgerInvariants(t *testing.T) {
	Convey("Given random award histories", t, func() {
		eng := engagement.NewEngine(constants.Default().Engagement)
		rng := rand.New(rand.NewSource(7))

		for i := 0; i < 200; i++ {
			var events []model.PointEvent
			n := rng.Intn(6)
			for j := 0; j < n; j++ {
				ago := time.Duration(rng.Intn(200*24)) * time.Hour
				events = append(events, award(rng.Float64()*300, ago))
			}

			s := eng.Summarize(events, events, now)

			So(s.Growth.Current, ShouldBeLessThanOrEqualTo, s.Growth.Raw)
			So(s.Vitality.Current, ShouldBeLessThanOrEqualTo, s.Vitality.Raw)
			So(s.TotalBump, ShouldBeGreaterThanOrEqualTo, 0)
			So(s.TotalBump, ShouldAlmostEqual, s.Growth.BumpPercent+s.Vitality.BumpPercent, 1e-9)
		}
	})
}
