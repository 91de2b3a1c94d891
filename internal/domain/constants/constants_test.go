package constants_test

import (
	"errors"
	"testing"

	"github.com/okian/kpiforecast/internal/domain/constants"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDefault(t *testing.T) {
	Convey("Given the default tuning", t, func() {
		c := constants.Default()

		Convey("Then it validates", func() {
			So(c.Validate(), ShouldBeNil)
		})

		Convey("Then the confidence weights sum to one", func() {
			sum := c.Confidence.HistoricalWeight + c.Confidence.PipelineWeight + c.Confidence.InactivityWeight
			So(sum, ShouldAlmostEqual, 1, 1e-9)
		})

		Convey("Then editing a copy leaves the defaults alone", func() {
			c.Confidence.HistoricalBands[0].Score = 1
			c.Engagement.Tiering.GrowthBumps[3] = 9
			fresh := constants.Default()
			So(fresh.Confidence.HistoricalBands[0].Score, ShouldEqual, 20.0)
			So(fresh.Engagement.Tiering.GrowthBumps[3], ShouldEqual, 0.06)
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given broken tuning", t, func() {
		cases := []struct {
			name   string
			mutate func(*constants.Constants)
		}{
			{"gap between bands", func(c *constants.Constants) {
				c.Confidence.HistoricalBands[1].Min = 0.6
			}},
			{"inverted band", func(c *constants.Constants) {
				c.Confidence.PipelineBands[1].Max = 0.2
			}},
			{"weights off", func(c *constants.Constants) {
				c.Confidence.PipelineWeight = 0.7
			}},
			{"inverted multiplier bounds", func(c *constants.Constants) {
				c.Calibration.MinMultiplier = 2
			}},
			{"tier ceilings out of order", func(c *constants.Constants) {
				c.Engagement.Tiering.TierCeilings[1] = 50
			}},
			{"negative bump", func(c *constants.Constants) {
				c.Engagement.Tiering.VitalityBumps[2] = -0.01
			}},
			{"zero decay default", func(c *constants.Constants) {
				c.Timing.DefaultDecayDays = 0
			}},
			{"yellow above green", func(c *constants.Constants) {
				c.Confidence.YellowMin = 80
			}},
		}

		for _, tc := range cases {
			c := constants.Default()
			tc.mutate(&c)
			err := c.Validate()

			Convey("When "+tc.name, func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, constants.ErrInvalidConstants), ShouldBeTrue)
			})
		}
	})
}
