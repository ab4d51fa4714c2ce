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

func TestLoggerInit(t *testing.T) {
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	logger := Get()
	if logger == nil {
		t.Fatal("logger is nil after initialization")
	}

	// Re-initializing replaces the global logger
	err = InitWithWriter(&bytes.Buffer{}, true)
	if err != nil {
		t.Fatalf("failed to initialize pretty logger: %v", err)
	}
	if Get() == nil {
		t.Fatal("logger is nil after re-initialization")
	}
}

func TestLoggerInitNilWriter(t *testing.T) {
	if err := InitWithWriter(nil, false); err == nil {
		t.Fatal("expected error for nil writer")
	}
}

func TestLoggerFields(t *testing.T) {
	Convey("Given a logger writing to a buffer", t, func() {
		_ = SetLevelString("debug")
		defer func() { _ = SetLevelString("info") }()

		var buf bytes.Buffer
		l := New(&buf).Named("cache").Named("ttl")

		Convey("When logging typed fields", func() {
			l.Info(context.Background(), "cache hit",
				String("key", "pred_1"),
				Int("size", 3),
				Float64("ratio", 0.5),
				Bool("stale", false),
				Duration("age", 2*time.Second),
				Error(errors.New("boom")),
				Any("ids", []string{"a"}),
			)

			var line map[string]any
			So(json.Unmarshal(buf.Bytes(), &line), ShouldBeNil)

			Convey("Then every field is encoded with its key", func() {
				So(line["message"], ShouldEqual, "cache hit")
				So(line["level"], ShouldEqual, "info")
				So(line["component"], ShouldEqual, "cache.ttl")
				So(line["key"], ShouldEqual, "pred_1")
				So(line["size"], ShouldEqual, float64(3))
				So(line["ratio"], ShouldEqual, 0.5)
				So(line["stale"], ShouldEqual, false)
				So(line["error"], ShouldEqual, "boom")
				So(line["ids"], ShouldResemble, []any{"a"})
			})

			Convey("And the source points at the calling file", func() {
				src, _ := line["source"].(string)
				So(strings.Contains(src, "logger_test.go:"), ShouldBeTrue)
			})
		})

		Convey("When the level filters the message out", func() {
			_ = SetLevelString("error")
			l.Debug(context.Background(), "hidden")

			Convey("Then nothing is written", func() {
				So(buf.Len(), ShouldEqual, 0)
			})
		})
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given level strings", t, func() {
		defer func() { _ = SetLevelString("info") }()

		So(SetLevelString("DEBUG"), ShouldBeNil)
		So(SetLevelString(" warning "), ShouldBeNil)
		So(SetLevelString(""), ShouldBeNil)
		So(SetLevelString("error"), ShouldBeNil)
		So(SetLevelString("verbose"), ShouldNotBeNil)
	})
}

func TestLoggerNamed(t *testing.T) {
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	namedLogger := Named("test")
	if namedLogger == nil {
		t.Fatal("named logger is nil")
	}

	Nop().Named("quiet").Info(context.Background(), "dropped")
	namedLogger.Info(context.Background(), "test message")
}
