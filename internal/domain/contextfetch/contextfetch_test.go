package contextfetch_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rivalry/internal/domain/contextfetch"
	"github.com/okian/rivalry/internal/domain/model"
	"github.com/okian/rivalry/pkg/logger"
)

var (
	selangor = model.Location{Region: "Selangor", SubRegion: "Petaling"}
	johor    = model.Location{Region: "Johor", SubRegion: "Muar"}
	penang   = model.Location{Region: "Penang", SubRegion: "George Town"}
)

func targets() []contextfetch.Target {
	return []contextfetch.Target{
		{Role: contextfetch.RoleSelf, Location: selangor},
		{Role: contextfetch.RoleCompetitor, Location: johor},
		{Role: contextfetch.RoleChaser, Location: penang},
	}
}

func TestFetcher(t *testing.T) {
	Convey("Given a fetcher", t, func() {
		ctx := context.Background()

		Convey("When every lookup succeeds the block lists each location", func() {
			f := contextfetch.NewFetcher(contextfetch.LookupFunc(func(_ context.Context, loc model.Location) (string, error) {
				return "weather for " + loc.SubRegion, nil
			}), contextfetch.WithLogger(logger.Nop()))

			res := f.Fetch(ctx, targets())
			So(res.Obtained, ShouldBeTrue)
			So(res.Text, ShouldStartWith, "Your Location (Petaling, Selangor):\nweather for Petaling\n\n")
			So(res.Text, ShouldContainSubstring, "Competitor Location (Muar, Johor):\nweather for Muar")
			So(res.Text, ShouldContainSubstring, "Chaser Location (George Town, Penang):\nweather for George Town")
		})

		Convey("When one lookup fails the others still complete", func() {
			f := contextfetch.NewFetcher(contextfetch.LookupFunc(func(_ context.Context, loc model.Location) (string, error) {
				if loc == johor {
					return "", errors.New("upstream 502")
				}
				return "ok " + loc.Region, nil
			}), contextfetch.WithLogger(logger.Nop()))

			res := f.Fetch(ctx, targets())
			So(res.Obtained, ShouldBeTrue)
			So(res.Entries[0].OK, ShouldBeTrue)
			So(res.Entries[1].OK, ShouldBeFalse)
			So(res.Entries[1].Text, ShouldEqual, "External context unavailable for Muar, Johor")
			So(res.Entries[2].OK, ShouldBeTrue)
			So(res.Text, ShouldContainSubstring, "ok Selangor")
			So(res.Text, ShouldContainSubstring, "ok Penang")
		})

		Convey("A lookup that ignores its deadline is abandoned", func() {
			block := make(chan struct{})
			defer close(block)
			f := contextfetch.NewFetcher(contextfetch.LookupFunc(func(_ context.Context, loc model.Location) (string, error) {
				if loc == penang {
					<-block
				}
				return "fine", nil
			}), contextfetch.WithTimeout(50*time.Millisecond), contextfetch.WithLogger(logger.Nop()))

			start := time.Now()
			res := f.Fetch(ctx, targets())
			So(time.Since(start), ShouldBeLessThan, 2*time.Second)
			So(res.Entries[2].OK, ShouldBeFalse)
			So(res.Entries[2].Text, ShouldEqual, contextfetch.Placeholder(penang))
			So(res.Obtained, ShouldBeTrue)
		})

		Convey("When every lookup fails the unavailable signal is used", func() {
			f := contextfetch.NewFetcher(contextfetch.LookupFunc(func(context.Context, model.Location) (string, error) {
				return "", errors.New("down")
			}), contextfetch.WithLogger(logger.Nop()))

			res := f.Fetch(ctx, targets())
			So(res.Obtained, ShouldBeFalse)
			So(res.Text, ShouldEqual, contextfetch.ContextUnavailable)
		})

		Convey("Empty answers do not count as obtained", func() {
			f := contextfetch.NewFetcher(contextfetch.LookupFunc(func(context.Context, model.Location) (string, error) {
				return "  ", nil
			}), contextfetch.WithLogger(logger.Nop()))

			So(f.Fetch(ctx, targets()).Text, ShouldEqual, contextfetch.ContextUnavailable)
		})

		Convey("Successful answers are memoized per location", func() {
			var calls atomic.Int32
			f := contextfetch.NewFetcher(contextfetch.LookupFunc(func(_ context.Context, loc model.Location) (string, error) {
				calls.Add(1)
				return loc.Region, nil
			}), contextfetch.WithLogger(logger.Nop()))

			f.Fetch(ctx, targets())
			f.Fetch(ctx, targets())
			So(calls.Load(), ShouldEqual, 3)
			So(f.Cached(), ShouldEqual, 3)
		})

		Convey("Failures are retried on the next batch", func() {
			var calls atomic.Int32
			f := contextfetch.NewFetcher(contextfetch.LookupFunc(func(context.Context, model.Location) (string, error) {
				if calls.Add(1) == 1 {
					return "", errors.New("flaky")
				}
				return "recovered", nil
			}), contextfetch.WithLogger(logger.Nop()))

			one := []contextfetch.Target{{Role: contextfetch.RoleSelf, Location: selangor}}
			So(f.Fetch(ctx, one).Obtained, ShouldBeFalse)
			So(f.Fetch(ctx, one).Obtained, ShouldBeTrue)
			So(calls.Load(), ShouldEqual, 2)
		})

		Convey("The same location in one batch is looked up once", func() {
			var calls atomic.Int32
			f := contextfetch.NewFetcher(contextfetch.LookupFunc(func(context.Context, model.Location) (string, error) {
				calls.Add(1)
				time.Sleep(20 * time.Millisecond)
				return "shared", nil
			}), contextfetch.WithLogger(logger.Nop()))

			same := []contextfetch.Target{
				{Role: contextfetch.RoleSelf, Location: selangor},
				{Role: contextfetch.RoleCompetitor, Location: selangor},
				{Role: contextfetch.RoleChaser, Location: selangor},
			}
			res := f.Fetch(ctx, same)
			So(calls.Load(), ShouldEqual, 1)
			So(strings.Count(res.Text, "shared"), ShouldEqual, 3)
		})

		Convey("No more than the configured workers run at once", func() {
			var running, peak atomic.Int32
			f := contextfetch.NewFetcher(contextfetch.LookupFunc(func(context.Context, model.Location) (string, error) {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				running.Add(-1)
				return "x", nil
			}), contextfetch.WithWorkers(2), contextfetch.WithLogger(logger.Nop()))

			many := make([]contextfetch.Target, 6)
			for i := range many {
				many[i] = contextfetch.Target{Role: contextfetch.RoleSelf, Location: model.Location{Region: "R", SubRegion: string(rune('a' + i))}}
			}
			f.Fetch(ctx, many)
			So(peak.Load(), ShouldBeLessThanOrEqualTo, 2)
		})
	})
}
