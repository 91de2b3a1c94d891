package calibration_test

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/okian/kpiforecast/internal/domain/calibration"
	"github.com/okian/kpiforecast/internal/domain/constants"
	"github.com/okian/kpiforecast/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func engine() calibration.Engine {
	return calibration.NewEngine(constants.Default().Calibration)
}

func TestBounds(t *testing.T) {
	Convey("Given the default bounds", t, func() {
		e := engine()

		So(e.ClampMultiplier(0.1), ShouldEqual, 0.5)
		So(e.ClampMultiplier(3), ShouldEqual, 1.5)
		So(e.ClampMultiplier(1.2), ShouldEqual, 1.2)
		So(e.ClampMultiplier(math.NaN()), ShouldEqual, 1.0)

		So(e.NormalizeErrorRatio(10), ShouldEqual, 1.5)
		So(e.NormalizeErrorRatio(0), ShouldEqual, 0.5)
		So(e.NormalizeErrorRatio(math.Inf(1)), ShouldEqual, 1.0)

		r, ok := e.ErrorRatio(1500, 1000)
		So(ok, ShouldBeTrue)
		So(r, ShouldEqual, 1.5)

		_, ok = e.ErrorRatio(1500, 0)
		So(ok, ShouldBeFalse)
	})
}

func TestStep(t *testing.T) {
	Convey("Given a fresh multiplier", t, func() {
		e := engine()

		Convey("When the first deal beats the prediction", func() {
			res := e.Step(1, 0, 1.5, 1)
			So(res.Trust, ShouldEqual, 0.125)
			So(res.Delta, ShouldEqual, 0.5)
			So(res.Step, ShouldAlmostEqual, 0.005, 1e-9)
			So(res.MultiplierNew, ShouldAlmostEqual, 1.005, 1e-9)
		})

		Convey("When a trusted multiplier would overshoot", func() {
			res := e.Step(1.49, 100, 10, 1)
			So(res.Trust, ShouldEqual, 1.0)
			So(res.MultiplierNew, ShouldEqual, 1.5)
		})

		Convey("When the KPI had no share of the deal", func() {
			for _, ratio := range []float64{0, 0.3, 1, 7, math.NaN()} {
				res := e.Step(0.8, 20, ratio, 0)
				So(res.Step, ShouldEqual, 0.0)
				So(res.MultiplierNew, ShouldEqual, 0.8)
			}
		})
	})

	Convey("Given random controller inputs", t, func() {
		e := engine()
		rng := rand.New(rand.NewSource(5))

		for i := 0; i < 500; i++ {
			res := e.Step(rng.Float64()*3-0.5, rng.Intn(30), rng.Float64()*5, rng.Float64()*2-0.5)
			So(res.MultiplierNew, ShouldBeBetweenOrEqual, 0.5, 1.5)
		}
	})
}

func TestInitializationMultipliers(t *testing.T) {
	Convey("Given onboarding selections", t, func() {
		e := engine()

		Convey("When the user leans on one KPI", func() {
			m := e.InitializationMultipliers([]calibration.Selection{
				{KPIID: "calls", WeeklyAverage: 30, BaseWeight: 1},
				{KPIID: "mailers", WeeklyAverage: 10, BaseWeight: 1},
			})
			So(m["calls"], ShouldEqual, 1.224745)
			So(m["mailers"], ShouldEqual, 0.707107)
		})

		Convey("When a KPI has no catalog weight", func() {
			m := e.InitializationMultipliers([]calibration.Selection{
				{KPIID: "calls", WeeklyAverage: 5, BaseWeight: 0},
				{KPIID: "mailers", WeeklyAverage: 5, BaseWeight: 2},
			})
			So(m["calls"], ShouldEqual, 1.5)
		})

		Convey("When the user reported nothing", func() {
			m := e.InitializationMultipliers([]calibration.Selection{
				{KPIID: "calls", BaseWeight: 1},
				{KPIID: "mailers", BaseWeight: 2},
			})
			So(m, ShouldResemble, map[string]float64{"calls": 1, "mailers": 1})
		})
	})
}

func TestRollingAndQuality(t *testing.T) {
	Convey("Given rolling statistics", t, func() {
		So(calibration.NextRollingAverage(nil, 4, 2), ShouldEqual, 2.0)
		old := 1.0
		So(calibration.NextRollingAverage(&old, 0, 3), ShouldEqual, 3.0)
		So(calibration.NextRollingAverage(&old, 1, 2), ShouldEqual, 1.5)
		So(calibration.NextRollingAverage(&old, 3, 5), ShouldEqual, 2.0)
	})

	Convey("Given sample sizes", t, func() {
		e := engine()
		So(e.QualityBand(0), ShouldEqual, calibration.QualityLow)
		So(e.QualityBand(2), ShouldEqual, calibration.QualityLow)
		So(e.QualityBand(3), ShouldEqual, calibration.QualityMedium)
		So(e.QualityBand(7), ShouldEqual, calibration.QualityMedium)
		So(e.QualityBand(8), ShouldEqual, calibration.QualityHigh)
	})
}

func TestApply(t *testing.T) {
	Convey("Given an uncalibrated KPI", t, func() {
		e := engine()
		at := time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC)
		state := model.CalibrationState{UserID: "u1", KPIID: "calls", Multiplier: 1}

		Convey("When a deal closes above prediction", func() {
			next, d := e.Apply(state, calibration.Outcome{ActualGCI: 1200, PredictedGCI: 1000, Share: 0.5, At: at})

			So(d.Applied, ShouldBeTrue)
			So(d.ErrorRatio, ShouldEqual, 1.2)
			So(next.Multiplier, ShouldAlmostEqual, 1.001, 1e-9)
			So(next.SampleSize, ShouldEqual, 1)
			So(*next.RollingErrorRatio, ShouldEqual, 1.2)
			So(*next.RollingAbsPctError, ShouldEqual, 0.2)
			So(*next.LastCalibratedAt, ShouldEqual, at)
			So(d.SampleSizeOld, ShouldEqual, 0)
			So(d.SampleSizeNew, ShouldEqual, 1)
			So(d.Quality, ShouldEqual, calibration.QualityLow)

			Convey("Then the input state is untouched", func() {
				So(state.SampleSize, ShouldEqual, 0)
				So(state.RollingErrorRatio, ShouldBeNil)
			})

			Convey("Then a second close folds into the rolling stats", func() {
				again, _ := e.Apply(next, calibration.Outcome{ActualGCI: 800, PredictedGCI: 1000, Share: 0.5, At: at})
				So(again.SampleSize, ShouldEqual, 2)
				So(*again.RollingErrorRatio, ShouldAlmostEqual, 1.0, 1e-9)
				So(*again.RollingAbsPctError, ShouldAlmostEqual, 0.2, 1e-9)
				So(again.Multiplier, ShouldBeLessThan, next.Multiplier)
			})
		})

		Convey("When nothing was predicted", func() {
			next, d := e.Apply(state, calibration.Outcome{ActualGCI: 1200, Share: 1, At: at})
			So(d.Applied, ShouldBeFalse)
			So(next, ShouldResemble, state)
			So(d.MultiplierNew, ShouldEqual, 1.0)
		})

		Convey("When the stored multiplier was never set", func() {
			next, _ := e.Apply(model.CalibrationState{KPIID: "calls"}, calibration.Outcome{ActualGCI: 1000, PredictedGCI: 1000, Share: 1, At: at})
			So(next.Multiplier, ShouldEqual, 1.0)
		})
	})
}
