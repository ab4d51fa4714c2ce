package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rivalry/internal/adapters/mq/progress"
	"github.com/okian/rivalry/internal/adapters/repository"
	service "github.com/okian/rivalry/internal/app"
	"github.com/okian/rivalry/internal/domain/contextfetch"
	"github.com/okian/rivalry/internal/domain/forecast"
	"github.com/okian/rivalry/internal/domain/model"
	"github.com/okian/rivalry/pkg/logger"
)

// recordingGenerator counts calls and can hold them until released.
type recordingGenerator struct {
	calls  atomic.Int32
	mu     sync.Mutex
	inputs []forecast.Input
	gate   chan struct{}
	fail   func(call int32) error
	panics bool

	// stubborn ignores cancellation while gated.
	stubborn bool
}

func (g *recordingGenerator) Generate(ctx context.Context, in forecast.Input) (forecast.Raw, error) {
	n := g.calls.Add(1)
	g.mu.Lock()
	g.inputs = append(g.inputs, in)
	g.mu.Unlock()
	if g.gate != nil && g.stubborn {
		<-g.gate
	} else if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return forecast.Raw{}, ctx.Err()
		}
	}
	if g.panics {
		panic("generator exploded")
	}
	if g.fail != nil {
		if err := g.fail(n); err != nil {
			return forecast.Raw{}, err
		}
	}
	return forecast.Raw{CatchUp: forecast.RawCatchUp{
		PredictedIncrease:   forecast.Num(12),
		OvertakeProbability: forecast.Num(45),
	}}, nil
}

func (g *recordingGenerator) lastInput() forecast.Input {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inputs[len(g.inputs)-1]
}

func seededStore() *repository.TreapStore {
	store := repository.NewTreapStore()
	ctx := context.Background()
	for _, p := range []model.Participant{
		{ID: "a", Total: 150, Location: model.Location{Region: "Selangor", SubRegion: "Klang"}},
		{ID: "b", Total: 120, Location: model.Location{Region: "Johor", SubRegion: "Muar"}},
		{ID: "c", Total: 90},
	} {
		_, _ = store.Record(ctx, p)
	}
	return store
}

func newService(gen forecast.Generator, opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithStore(seededStore()),
		service.WithGenerator(gen),
		service.WithClaimWait(2*time.Second, 5*time.Millisecond),
		service.WithLogger(logger.Nop()),
	}
	return service.New(append(base, opts...)...)
}

func drain(ch *progress.Channel) []progress.Event {
	var out []progress.Event
	for e := range ch.Events() {
		out = append(out, e)
	}
	return out
}

func progressValues(events []progress.Event) []int {
	var out []int
	for _, e := range events {
		if e.Progress != nil {
			out = append(out, *e.Progress)
		}
	}
	return out
}

func TestService_Predict(t *testing.T) {
	Convey("Given a service over three participants", t, func() {
		ctx := context.Background()
		gen := &recordingGenerator{}
		svc := newService(gen)

		Convey("The middle participant gets both neighbors", func() {
			ch := progress.New()
			res, err := svc.Predict(ctx, service.Request{ParticipantID: "b", Progress: ch})
			So(err, ShouldBeNil)

			So(res.ParticipantID, ShouldEqual, "b")
			So(res.CatchUp.CurrentGap, ShouldEqual, 30)
			So(res.CatchUp.MinRequired, ShouldEqual, 35)
			So(res.CatchUp.MaxNeeded, ShouldEqual, 52)
			So(res.CatchUp.OvertakeProbability, ShouldEqual, 45)
			So(res.CatchUp.Tips, ShouldHaveLength, 3)
			So(res.Defense.CurrentBuffer, ShouldEqual, 30)
			So(res.Defense.BufferRecommended, ShouldEqual, 18)
			So(res.Defense.Tips, ShouldHaveLength, 3)
			So(res.Position, ShouldResemble, model.Position{HasCompetitor: true, HasChaser: true})

			events := drain(ch)
			So(progressValues(events), ShouldResemble, []int{0, 10, 25, 40, 50, 60, 75, 85, 95, 100})
			last := events[len(events)-1]
			So(last.Complete, ShouldBeTrue)
			So(last.Result, ShouldNotBeNil)
			So(last.Result.ParticipantID, ShouldEqual, "b")

			in := gen.lastInput()
			So(in.CompetitorAmount, ShouldEqual, 150)
			So(in.ChaserAmount, ShouldEqual, 90)
			So(in.CompetitorStatus, ShouldEqual, forecast.StatusNextRank)
			So(in.ChaserSubRegion, ShouldEqual, "Unknown")
			So(in.ExternalContext, ShouldEqual, contextfetch.ContextDisabled)
		})

		Convey("The top participant races an aspirational target", func() {
			res, err := svc.Predict(ctx, service.Request{ParticipantID: "a"})
			So(err, ShouldBeNil)
			So(res.Position.IsTopRanked, ShouldBeTrue)
			So(res.CatchUp.CurrentGap, ShouldEqual, 50)
			So(res.CatchUp.OvertakeProbability, ShouldEqual, 100)
			So(res.CatchUp.Summary, ShouldEqual, forecast.SummaryTopRanked)

			in := gen.lastInput()
			So(in.CompetitorAmount, ShouldEqual, 200)
			So(in.CompetitorRegion, ShouldEqual, "Selangor")
			So(in.CompetitorStatus, ShouldEqual, forecast.StatusAspirational)
		})

		Convey("The bottom participant is defended by a synthetic chaser", func() {
			res, err := svc.Predict(ctx, service.Request{ParticipantID: "c"})
			So(err, ShouldBeNil)
			So(res.Position.IsBottomRanked, ShouldBeTrue)
			So(res.Defense.CurrentBuffer, ShouldEqual, 20)
			So(res.Defense.BufferRecommended, ShouldEqual, 6)
			So(res.Defense.OvertakeRisk, ShouldEqual, 5)
			So(gen.lastInput().ChaserAmount, ShouldEqual, 70)
		})

		Convey("A second request is served from cache with a single event", func() {
			_, err := svc.Predict(ctx, service.Request{ParticipantID: "b"})
			So(err, ShouldBeNil)

			ch := progress.New()
			_, err = svc.Predict(ctx, service.Request{ParticipantID: "b", Progress: ch})
			So(err, ShouldBeNil)
			So(gen.calls.Load(), ShouldEqual, 1)

			events := drain(ch)
			So(events, ShouldHaveLength, 2)
			So(*events[0].Progress, ShouldEqual, 100)
			So(events[0].Message, ShouldEqual, progress.FromCache.Message)
			So(events[1].Complete, ShouldBeTrue)
		})

		Convey("Force refresh recomputes", func() {
			_, _ = svc.Predict(ctx, service.Request{ParticipantID: "b"})
			_, err := svc.Predict(ctx, service.Request{ParticipantID: "b", ForceRefresh: true})
			So(err, ShouldBeNil)
			So(gen.calls.Load(), ShouldEqual, 2)
		})

		Convey("Unknown participants fail as data fetch errors", func() {
			ch := progress.New()
			_, err := svc.Predict(ctx, service.Request{ParticipantID: "nobody", Progress: ch})
			So(errors.Is(err, service.ErrDataFetch), ShouldBeTrue)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

			events := drain(ch)
			last := events[len(events)-1]
			So(last.Complete, ShouldBeTrue)
			So(last.Error, ShouldNotBeEmpty)
			So(gen.calls.Load(), ShouldEqual, 0)
		})

		Convey("An empty id is rejected", func() {
			_, err := svc.Predict(ctx, service.Request{})
			So(errors.Is(err, service.ErrInvalidRequest), ShouldBeTrue)
		})
	})
}

func TestService_PredictConcurrency(t *testing.T) {
	Convey("Given many concurrent requests for one participant", t, func() {
		ctx := context.Background()
		gen := &recordingGenerator{gate: make(chan struct{})}
		svc := newService(gen)

		const callers = 10
		results := make([]model.ForecastResult, callers)
		errs := make([]error, callers)
		var wg sync.WaitGroup
		for i := range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i], errs[i] = svc.Predict(ctx, service.Request{ParticipantID: "b"})
			}()
		}

		// Let every caller reach the claim before the computation finishes.
		time.Sleep(50 * time.Millisecond)
		close(gen.gate)
		wg.Wait()

		Convey("Exactly one computation runs and everyone gets its result", func() {
			So(gen.calls.Load(), ShouldEqual, 1)
			for i := range callers {
				So(errs[i], ShouldBeNil)
				So(results[i], ShouldResemble, results[0])
			}
		})
	})

	Convey("Given a computation that fails", t, func() {
		ctx := context.Background()
		gen := &recordingGenerator{fail: func(call int32) error {
			if call == 1 {
				return errors.New("model overloaded")
			}
			return nil
		}}
		svc := newService(gen)

		_, err := svc.Predict(ctx, service.Request{ParticipantID: "b"})

		Convey("The error is reported and the claim is released", func() {
			So(errors.Is(err, forecast.ErrGenerate), ShouldBeTrue)
			stats := svc.GetStats(ctx)
			So(stats["inflight"], ShouldEqual, 0)
			So(stats["cachedForecast"], ShouldEqual, 0)

			_, err = svc.Predict(ctx, service.Request{ParticipantID: "b"})
			So(err, ShouldBeNil)
			So(gen.calls.Load(), ShouldEqual, 2)
		})
	})

	Convey("Given a generator that panics", t, func() {
		ctx := context.Background()
		gen := &recordingGenerator{panics: true}
		svc := newService(gen)

		_, err := svc.Predict(ctx, service.Request{ParticipantID: "b"})

		Convey("The panic becomes an error and the claim is released", func() {
			So(errors.Is(err, service.ErrPanic), ShouldBeTrue)
			So(svc.GetStats(ctx)["inflight"], ShouldEqual, 0)
		})
	})

	Convey("Given a waiter whose deadline passes", t, func() {
		ctx := context.Background()
		gen := &recordingGenerator{gate: make(chan struct{}), stubborn: true}
		svc := newService(gen, service.WithRequestTimeout(100*time.Millisecond))
		defer close(gen.gate)

		go func() { _, _ = svc.Predict(context.Background(), service.Request{ParticipantID: "b"}) }()
		time.Sleep(20 * time.Millisecond)

		_, err := svc.Predict(ctx, service.Request{ParticipantID: "b"})

		Convey("It fails with the deadline error", func() {
			So(errors.Is(err, service.ErrDeadline), ShouldBeTrue)
		})
	})
}

func TestService_Cache(t *testing.T) {
	Convey("Given a service with a controllable clock", t, func() {
		ctx := context.Background()
		var mu sync.Mutex
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		clock := func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}
		advance := func(d time.Duration) {
			mu.Lock()
			now = now.Add(d)
			mu.Unlock()
		}
		gen := &recordingGenerator{}
		svc := newService(gen, service.WithClock(clock), service.WithCacheTTL(time.Minute))

		_, _ = svc.Predict(ctx, service.Request{ParticipantID: "b"})

		Convey("Entries expire once their age reaches the TTL", func() {
			advance(59 * time.Second)
			_, _ = svc.Predict(ctx, service.Request{ParticipantID: "b"})
			So(gen.calls.Load(), ShouldEqual, 1)

			advance(time.Second)
			_, _ = svc.Predict(ctx, service.Request{ParticipantID: "b"})
			So(gen.calls.Load(), ShouldEqual, 2)
		})

		Convey("The forecast date comes from the clock", func() {
			So(gen.lastInput().CurrentDate, ShouldEqual, "June 01, 2025")
		})

		Convey("Recording a higher total drops the cached forecast", func() {
			changed, err := svc.Record(ctx, model.Participant{ID: "b", Total: 130})
			So(err, ShouldBeNil)
			So(changed, ShouldBeTrue)

			res, _ := svc.Predict(ctx, service.Request{ParticipantID: "b"})
			So(gen.calls.Load(), ShouldEqual, 2)
			So(res.CatchUp.CurrentGap, ShouldEqual, 20)
		})
	})
}

func TestService_Context(t *testing.T) {
	Convey("Given a service with location lookups", t, func() {
		ctx := context.Background()
		gen := &recordingGenerator{}
		fetcher := contextfetch.NewFetcher(contextfetch.LookupFunc(func(_ context.Context, loc model.Location) (string, error) {
			if loc.Region == "Johor" {
				return "", errors.New("lookup down")
			}
			return "insight for " + loc.Region, nil
		}), contextfetch.WithLogger(logger.Nop()))
		svc := newService(gen, service.WithContextFetcher(fetcher))

		_, err := svc.Predict(ctx, service.Request{ParticipantID: "b"})
		So(err, ShouldBeNil)

		Convey("The generator sees the aggregate with the failed location as a placeholder", func() {
			text := gen.lastInput().ExternalContext
			So(text, ShouldContainSubstring, "insight for Selangor")
			So(text, ShouldContainSubstring, "External context unavailable for Muar, Johor")
			So(svc.GetStats(ctx)["contextEnabled"], ShouldBeTrue)
		})
	})
}

func TestService_Leaderboard(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		svc := newService(&recordingGenerator{}, service.WithMaxLeaderboardLimit(10))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		Convey("TopN returns entries in rank order", func() {
			entries, err := svc.TopN(ctx, 2)
			So(err, ShouldBeNil)
			So(entries, ShouldHaveLength, 2)
			So(entries[0].ParticipantID, ShouldEqual, "a")
			So(entries[1].Rank, ShouldEqual, 2)
		})

		Convey("TopN rejects limits outside the bounds", func() {
			_, err := svc.TopN(ctx, 0)
			So(errors.Is(err, service.ErrInvalidLimit), ShouldBeTrue)
			_, err = svc.TopN(ctx, 11)
			So(errors.Is(err, service.ErrInvalidLimit), ShouldBeTrue)
		})

		Convey("Rank returns the position and total", func() {
			entry, err := svc.Rank(ctx, "c")
			So(err, ShouldBeNil)
			So(entry.Rank, ShouldEqual, 3)
			So(entry.Total, ShouldEqual, 90)

			_, err = svc.Rank(ctx, "zzz")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("Stats report the service state", func() {
			stats := svc.GetStats(ctx)
			So(stats["started"], ShouldBeTrue)
			So(stats["participants"], ShouldEqual, 3)
		})
	})
}
