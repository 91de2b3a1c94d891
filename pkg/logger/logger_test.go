package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestInit(t *testing.T) {
	Convey("Given the global logger", t, func() {
		So(Init(), ShouldBeNil)
		So(Get(), ShouldNotBeNil)
		So(Named("test"), ShouldNotBeNil)
		So(Sync(), ShouldBeNil)
	})
}

func TestJSONOutput(t *testing.T) {
	Convey("Given a JSON logger writing to a buffer", t, func() {
		So(Init(), ShouldBeNil)
		var buf bytes.Buffer
		l := New(WithFormat(FormatJSON), WithWriter(&buf)).Named("app")

		Convey("When a record with typed fields is logged", func() {
			l.Info(context.Background(), "dashboard built",
				String("user_id", "u1"),
				Int("events", 3),
				Float64("score", 81.5),
				Bool("seeded", true),
				Duration("took", 2*time.Millisecond),
				Error(errors.New("boom")),
			)

			var rec map[string]any
			So(json.Unmarshal(buf.Bytes(), &rec), ShouldBeNil)

			Convey("Then the fields and logger name are encoded", func() {
				So(rec["msg"], ShouldEqual, "dashboard built")
				So(rec["logger"], ShouldEqual, "app")
				So(rec["user_id"], ShouldEqual, "u1")
				So(rec["score"], ShouldEqual, 81.5)
				So(rec["seeded"], ShouldEqual, true)
				So(rec["error"], ShouldEqual, "boom")
				So(rec["source"], ShouldStartWith, "logger_test.go:")
			})
		})
	})
}

func TestLevels(t *testing.T) {
	Convey("Given a text logger", t, func() {
		So(Init(), ShouldBeNil)
		var buf bytes.Buffer
		l := New(WithWriter(&buf), WithSource(false))

		Convey("When the level is raised to warn", func() {
			So(SetLevelString("WARN"), ShouldBeNil)
			l.Info(context.Background(), "hidden")
			l.Warn(context.Background(), "shown")

			So(strings.Contains(buf.String(), "hidden"), ShouldBeFalse)
			So(strings.Contains(buf.String(), "shown"), ShouldBeTrue)
			So(strings.Contains(buf.String(), "source="), ShouldBeFalse)
		})

		Convey("When an unknown level is given", func() {
			So(SetLevelString("verbose"), ShouldNotBeNil)
		})

		Reset(func() { SetLevelString("info") })
	})
}

func TestNop(t *testing.T) {
	Convey("Given a no-op logger", t, func() {
		l := Nop()
		So(func() {
			l.Named("x").Debug(context.Background(), "nothing")
			l.Fatal(context.Background(), "still nothing")
		}, ShouldNotPanic)
	})
}
