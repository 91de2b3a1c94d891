package credit_test

import (
	"math"
	"testing"
	"time"

	"github.com/okian/kpiforecast/internal/domain/constants"
	"github.com/okian/kpiforecast/internal/domain/credit"
	"github.com/okian/kpiforecast/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var base = time.Date(2025, 1, 10, 15, 30, 0, 0, time.UTC)

func days(n int) time.Time { return base.AddDate(0, 0, n) }

func TestValueAt(t *testing.T) {
	Convey("Given an event with a 10 day hold and 20 day decay", t, func() {
		e := model.CreditEvent{Timestamp: base, InitialValue: 1000, HoldDays: 10, DecayDays: 20}

		Convey("Then it is worth nothing the day before it was logged", func() {
			So(credit.ValueAt(e, days(-1)), ShouldEqual, 0.0)
		})

		Convey("Then it holds full value through the hold window", func() {
			for d := 0; d < 10; d++ {
				So(credit.ValueAt(e, days(d)), ShouldEqual, 1000.0)
			}
		})

		Convey("Then it is about half way down at the decay midpoint", func() {
			So(credit.ValueAt(e, days(20)), ShouldAlmostEqual, 500, 10)
		})

		Convey("Then it is gone once decay has fully elapsed", func() {
			So(credit.ValueAt(e, days(30)), ShouldEqual, 0.0)
			So(credit.ValueAt(e, days(400)), ShouldEqual, 0.0)
		})

		Convey("Then the time of day does not matter", func() {
			early := time.Date(2025, 1, 10, 0, 0, 1, 0, time.UTC)
			late := time.Date(2025, 1, 10, 23, 59, 59, 0, time.UTC)
			So(credit.ValueAt(e, early), ShouldEqual, credit.ValueAt(e, late))
		})
	})

	Convey("Given a delayed event", t, func() {
		e := model.CreditEvent{Timestamp: base, InitialValue: 2500, DelayDays: 90, HoldDays: 30, DecayDays: 180}

		Convey("Then it is zero a month before payoff starts", func() {
			So(credit.ValueAt(e, days(60)), ShouldEqual, 0.0)
		})

		Convey("Then it holds full value throughout the hold window", func() {
			So(credit.ValueAt(e, days(90)), ShouldEqual, 2500.0)
			So(credit.ValueAt(e, days(105)), ShouldEqual, 2500.0)
			So(credit.ValueAt(e, days(119)), ShouldEqual, 2500.0)
		})

		Convey("Then decay starts after the hold window", func() {
			So(credit.ValueAt(e, days(120)), ShouldEqual, 2500.0)
			So(credit.ValueAt(e, days(121)), ShouldBeLessThan, 2500.0)
		})

		Convey("Then payoff start reflects the delay", func() {
			So(credit.PayoffStart(e), ShouldEqual, time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC))
		})
	})

	Convey("Given degenerate events", t, func() {
		Convey("When the value is not positive", func() {
			So(credit.ValueAt(model.CreditEvent{Timestamp: base, InitialValue: -5, DecayDays: 10}, base), ShouldEqual, 0.0)
			So(credit.ValueAt(model.CreditEvent{Timestamp: base, InitialValue: math.NaN(), DecayDays: 10}, base), ShouldEqual, 0.0)
		})

		Convey("When the timestamp was unparseable", func() {
			So(credit.ValueAt(model.CreditEvent{InitialValue: 100, DecayDays: 10}, base), ShouldEqual, 0.0)
			So(credit.PayoffStart(model.CreditEvent{}), ShouldEqual, time.Time{})
		})

		Convey("When decay days slipped through unclamped", func() {
			e := model.CreditEvent{Timestamp: base, InitialValue: 100, DecayDays: -4}
			So(credit.ValueAt(e, base), ShouldEqual, 100.0)
			So(credit.ValueAt(e, days(1)), ShouldEqual, 0.0)
		})
	})
}

func TestAggregateAt(t *testing.T) {
	Convey("Given several events", t, func() {
		events := []model.CreditEvent{
			{Timestamp: base, InitialValue: 100, HoldDays: 5, DecayDays: 10},
			{Timestamp: base, InitialValue: 300, DelayDays: 2, HoldDays: 5, DecayDays: 10},
		}

		So(credit.AggregateAt(events, days(0)), ShouldEqual, 100.0)
		So(credit.AggregateAt(events, days(3)), ShouldEqual, 400.0)
		So(credit.AggregateAt(nil, days(3)), ShouldEqual, 0.0)
	})
}

func TestFutureSeries(t *testing.T) {
	Convey("Given a timeline with default projection settings", t, func() {
		tl := credit.NewTimeline(constants.Default().Projection)
		now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
		events := []model.CreditEvent{
			{Timestamp: now, InitialValue: 1000, HoldDays: 60, DecayDays: 120},
			{Timestamp: now.AddDate(0, -1, 0), InitialValue: 400, DelayDays: 30, HoldDays: 10, DecayDays: 30},
		}

		series := tl.FutureSeries(events, now, 0)

		Convey("Then it has twelve ordered month starts beginning this month", func() {
			So(len(series), ShouldEqual, 12)
			So(series[0].MonthStart, ShouldEqual, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
			So(series[11].MonthStart, ShouldEqual, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
			for i := 1; i < len(series); i++ {
				So(series[i].MonthStart.After(series[i-1].MonthStart), ShouldBeTrue)
			}
		})

		Convey("Then each month is evaluated at its last day", func() {
			endOfMarch := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
			So(series[0].Value, ShouldAlmostEqual, credit.AggregateAt(events, endOfMarch), 0.01)
		})

		Convey("Then the bump scales every point", func() {
			bumped := tl.FutureSeries(events, now, 0.1)
			for i := range series {
				So(bumped[i].Value, ShouldAlmostEqual, series[i].Value*1.1, 0.02)
			}
		})

		Convey("Then a negative bump is ignored", func() {
			So(tl.FutureSeries(events, now, -0.5), ShouldResemble, series)
		})

		Convey("Then the 90 day figure never exceeds the 12 month total", func() {
			So(tl.Derive90D(series), ShouldBeLessThanOrEqualTo, credit.SumSeries(series))
			So(tl.Derive90D(series), ShouldAlmostEqual, series[0].Value+series[1].Value+series[2].Value, 0.01)
		})

		Convey("Then the 90 day figure tolerates short series", func() {
			So(tl.Derive90D(series[:1]), ShouldEqual, series[0].Value)
			So(tl.Derive90D(nil), ShouldEqual, 0.0)
		})
	})
}

func TestPastActualSeries(t *testing.T) {
	Convey("Given realized revenue across months", t, func() {
		tl := credit.NewTimeline(constants.Default().Projection)
		now := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)
		entries := []model.RevenueEntry{
			{Timestamp: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), Amount: 1200},
			{Timestamp: time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC), Amount: 300.25},
			{Timestamp: time.Date(2025, 2, 28, 23, 0, 0, 0, time.UTC), Amount: 800},
			{Timestamp: time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC), Amount: 5000},
			{Amount: 999},
		}

		series := tl.PastActualSeries(entries, now)

		Convey("Then it covers the trailing six months including this one", func() {
			So(len(series), ShouldEqual, 6)
			So(series[0].MonthStart, ShouldEqual, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
			So(series[5].MonthStart, ShouldEqual, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
		})

		Convey("Then revenue is grouped by month and empty months are zero", func() {
			So(series[0].Value, ShouldEqual, 0.0)
			So(series[1].Value, ShouldEqual, 800.0)
			So(series[3].Value, ShouldEqual, 0.0)
			So(series[5].Value, ShouldEqual, 1500.25)
		})
	})
}
