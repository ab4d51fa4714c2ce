package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rivalry/internal/domain/model"
)

func TestSQLStore(t *testing.T) {
	Convey("Given a SQLite store in memory", t, func() {
		ctx := context.Background()
		store, err := OpenSQLite(ctx, ":memory:")
		So(err, ShouldBeNil)
		Reset(func() { _ = store.Close() })

		last := time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)

		Convey("Record inserts and Get returns the participant", func() {
			changed, err := store.Record(ctx, model.Participant{
				ID:       "u1",
				Total:    120,
				Location: model.Location{Region: "Selangor", SubRegion: "Shah Alam"},
				Activity: model.ActivityStats{LastActivity: last, Count: 4, Average: 30},
			})
			So(err, ShouldBeNil)
			So(changed, ShouldBeTrue)

			p, err := store.Get(ctx, "u1")
			So(err, ShouldBeNil)
			So(p.Total, ShouldEqual, 120)
			So(p.Location.SubRegion, ShouldEqual, "Shah Alam")
			So(p.Activity.Count, ShouldEqual, 4)
			So(p.Activity.LastActivity.Equal(last), ShouldBeTrue)
		})

		Convey("A lower total keeps the previous one", func() {
			_, _ = store.Record(ctx, model.Participant{ID: "u1", Total: 120})
			changed, err := store.Record(ctx, model.Participant{ID: "u1", Total: 80, Location: model.Location{Region: "Johor"}})
			So(err, ShouldBeNil)
			So(changed, ShouldBeFalse)

			p, _ := store.Get(ctx, "u1")
			So(p.Total, ShouldEqual, 120)
			So(p.Location.Region, ShouldEqual, "Johor")
		})

		Convey("Concurrent writers never lower a total", func() {
			var wg sync.WaitGroup
			for _, total := range []float64{100, 50, 75, 20} {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = store.Record(ctx, model.Participant{ID: "race", Total: total})
				}()
			}
			wg.Wait()

			p, err := store.Get(ctx, "race")
			So(err, ShouldBeNil)
			So(p.Total, ShouldEqual, 100)
		})

		Convey("Snapshot orders by total then id", func() {
			for _, p := range []model.Participant{
				{ID: "c", Total: 90}, {ID: "b", Total: 150}, {ID: "a", Total: 150}, {ID: "d", Total: 120},
			} {
				_, err := store.Record(ctx, p)
				So(err, ShouldBeNil)
			}
			snap, err := store.Snapshot(ctx)
			So(err, ShouldBeNil)
			ids := make([]string, len(snap))
			for i, p := range snap {
				ids[i] = p.ID
			}
			So(ids, ShouldResemble, []string{"a", "b", "d", "c"})

			n, err := store.Count(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 4)
		})

		Convey("Unknown ids are not found", func() {
			_, err := store.Get(ctx, "nobody")
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})

		Convey("Invalid participants are rejected", func() {
			_, err := store.Record(ctx, model.Participant{ID: "x", Total: -5})
			So(errors.Is(err, ErrNegativeTotal), ShouldBeTrue)
		})
	})
}
