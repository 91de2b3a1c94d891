package service_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	service "github.com/okian/kpiforecast/internal/app"
	"github.com/okian/kpiforecast/internal/adapters/snapshot"
	"github.com/okian/kpiforecast/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type reportLine struct {
	JobID   string         `json:"job_id"`
	Payload service.Report `json:"payload"`
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a started service writing JSON lines", t, func() {
		var buf bytes.Buffer
		sink := snapshot.NewLineWriter(&buf)
		svc, err := service.New(service.WithSink(sink), service.WithWorkerCount(4), service.WithQueueSize(2))
		So(err, ShouldBeNil)
		defer svc.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		So(svc.GetStats()["started"], ShouldEqual, true)

		Convey("When recomputing several users end-to-end", func() {
			const users = 8
			ids := map[string]bool{}
			for n := 0; n < users; n++ {
				u := agent()
				u.UserID = fmt.Sprintf("u%d", n)
				u.Onboarding = []model.OnboardingSelection{
					{KPIID: "calls", HistoricalWeeklyAverage: 30},
					{KPIID: "showings", HistoricalWeeklyAverage: 10},
				}
				u.DealCloses = []model.DealClose{
					{ID: "late", ClosedAt: "2025-06-10", ActualGCI: 1500},
					{ID: "bad", ClosedAt: "soon"},
					{ID: "late", ClosedAt: "2025-06-10", ActualGCI: 1500},
				}
				id, err := svc.Submit(ctx, u, now)
				So(err, ShouldBeNil)
				ids[id] = true
			}
			svc.Drain(ctx)

			var lines []reportLine
			sc := bufio.NewScanner(&buf)
			sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
			for sc.Scan() {
				var l reportLine
				So(json.Unmarshal(sc.Bytes(), &l), ShouldBeNil)
				lines = append(lines, l)
			}

			Convey("Then every job publishes one report", func() {
				So(sink.Written(), ShouldEqual, users)
				So(len(lines), ShouldEqual, users)
				for _, l := range lines {
					So(ids[l.JobID], ShouldBeTrue)
				}
			})

			Convey("Then each report initializes, calibrates once and builds a dashboard", func() {
				for _, l := range lines {
					r := l.Payload
					So(len(r.Initialized), ShouldEqual, 2)
					So(len(r.DealCloses), ShouldEqual, 2)
					So(r.DealCloses[0].Duplicate, ShouldBeFalse)
					So(len(r.DealCloses[0].Deltas), ShouldEqual, 2)
					So(r.DealCloses[1].Duplicate, ShouldBeTrue)
					So(r.Dashboard.UserID, ShouldEqual, r.UserID)
					So(len(r.Dashboard.Calibration), ShouldEqual, 2)
					for _, c := range r.Dashboard.Calibration {
						So(c.SampleSize, ShouldEqual, 1)
					}
				}
			})

			Convey("Then the store holds two rows per user", func() {
				So(svc.GetStats()["calibrationRows"], ShouldEqual, 2*users)
			})
		})
	})

	Convey("Given a service stopped and started again", t, func() {
		var buf bytes.Buffer
		svc, err := service.New(service.WithSink(snapshot.NewLineWriter(&buf)), service.WithWorkerCount(1))
		So(err, ShouldBeNil)
		ctx := context.Background()

		So(svc.Start(ctx), ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)
		svc.Stop()
		So(svc.GetStats()["started"], ShouldEqual, false)

		So(svc.Start(ctx), ShouldBeNil)
		_, err = svc.Submit(ctx, agent(), now)
		So(err, ShouldBeNil)
		svc.Drain(ctx)
		svc.Stop()

		So(bytes.Count(buf.Bytes(), []byte("\n")), ShouldEqual, 1)
	})
}
