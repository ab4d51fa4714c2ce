// Package contextfetch runs the per-location context lookups of a forecast
// on a small bounded pool and folds the answers into one text block.
package contextfetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/okian/rivalry/internal/adapters/cache"
	"github.com/okian/rivalry/internal/domain/model"
	"github.com/okian/rivalry/pkg/logger"
	"github.com/okian/rivalry/pkg/metrics"
)

// Signals handed to the generator when no location text is available.
const (
	ContextUnavailable = "External context unavailable - provide general energy-saving tips"
	ContextDisabled    = "External context disabled - provide general energy-saving tips"

	closing = "Use these insights to provide location-aware, relevant tips."
)

// Defaults.
const (
	DefaultWorkers = 3
	DefaultTimeout = 30 * time.Second
)

// Role names whose location a target is.
type Role string

// Roles of a forecast.
const (
	RoleSelf       Role = "self"
	RoleCompetitor Role = "competitor"
	RoleChaser     Role = "chaser"
)

func (r Role) heading() string {
	switch r {
	case RoleSelf:
		return "Your Location"
	case RoleCompetitor:
		return "Competitor Location"
	case RoleChaser:
		return "Chaser Location"
	default:
		return string(r) + " Location"
	}
}

// Target is one location to look up.
type Target struct {
	Role     Role
	Location model.Location
}

// Lookup fetches free-form context for a location. Implementations should
// honor ctx but are not required to.
type Lookup interface {
	Lookup(ctx context.Context, loc model.Location) (string, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, loc model.Location) (string, error)

// Lookup implements Lookup.
func (f LookupFunc) Lookup(ctx context.Context, loc model.Location) (string, error) { return f(ctx, loc) }

// Entry is the outcome of one target.
type Entry struct {
	Target Target
	Text   string
	// OK is false when Text is the unavailable placeholder.
	OK bool
}

// Result is the outcome of a batch.
type Result struct {
	Entries []Entry
	// Text is the aggregate block, or ContextUnavailable.
	Text string
	// Obtained reports that at least one lookup returned non-empty text.
	Obtained bool
}

// Placeholder is the text standing in for a failed lookup.
func Placeholder(loc model.Location) string {
	return fmt.Sprintf("External context unavailable for %s, %s", loc.SubRegion, loc.Region)
}

// Fetcher fans lookups out to a bounded pool. Successful answers are kept
// per location in an LRU; failures are retried on the next request.
type Fetcher struct {
	lookup  Lookup
	workers int
	timeout time.Duration
	memo    *cache.LRU[string]
	group   singleflight.Group
	log     logger.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithWorkers bounds how many lookups run at once.
func WithWorkers(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.workers = n
		}
	}
}

// WithTimeout sets the per-lookup timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithCacheSize bounds the per-location memo.
func WithCacheSize(n int) Option {
	return func(f *Fetcher) { f.memo = cache.NewLRU[string](n) }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.log = l
		}
	}
}

// NewFetcher creates a Fetcher around lookup.
func NewFetcher(lookup Lookup, opts ...Option) *Fetcher {
	f := &Fetcher{
		lookup:  lookup,
		workers: DefaultWorkers,
		timeout: DefaultTimeout,
		memo:    cache.NewLRU[string](cache.DefaultLRUSize),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = logger.Get().Named("contextfetch")
	}
	return f
}

// Fetch looks up every target and always returns once each lookup has
// answered, failed or hit its timeout.
func (f *Fetcher) Fetch(ctx context.Context, targets []Target) Result {
	entries := make([]Entry, len(targets))

	// A plain group: one failed lookup must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(f.workers)
	for i, t := range targets {
		g.Go(func() error {
			entries[i] = f.fetchOne(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	return aggregate(entries)
}

// Cached reports how many locations are memoized.
func (f *Fetcher) Cached() int { return f.memo.Len() }

func (f *Fetcher) fetchOne(ctx context.Context, t Target) Entry {
	key := t.Location.Region + "\x00" + t.Location.SubRegion
	if text, ok := f.memo.Get(key); ok {
		metrics.RecordContextLookup(metrics.LookupMemoized)
		return Entry{Target: t, Text: text, OK: true}
	}

	waitCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	// The shared call is bounded by the timeout alone so that one caller
	// leaving early does not fail the others waiting on the same location.
	ch := f.group.DoChan(key, func() (any, error) {
		callCtx, callCancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
		defer callCancel()

		start := time.Now()
		text, err := f.lookup.Lookup(callCtx, t.Location)
		metrics.RecordContextLookupLatency(float64(time.Since(start).Milliseconds()))
		if err != nil {
			return "", err
		}
		f.memo.Add(key, text)
		metrics.UpdateLocationCacheSize(f.memo.Len())
		return text, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			outcome := metrics.LookupFailure
			if errors.Is(res.Err, context.DeadlineExceeded) {
				outcome = metrics.LookupTimeout
			}
			metrics.RecordContextLookup(outcome)
			f.log.Warn(ctx, "context lookup failed",
				logger.String("region", t.Location.Region),
				logger.String("sub_region", t.Location.SubRegion),
				logger.Error(res.Err))
			return Entry{Target: t, Text: Placeholder(t.Location)}
		}
		metrics.RecordContextLookup(metrics.LookupSuccess)
		return Entry{Target: t, Text: res.Val.(string), OK: true}
	case <-waitCtx.Done():
		metrics.RecordContextLookup(metrics.LookupTimeout)
		f.log.Warn(ctx, "context lookup abandoned",
			logger.String("region", t.Location.Region),
			logger.String("sub_region", t.Location.SubRegion),
			logger.Error(waitCtx.Err()))
		return Entry{Target: t, Text: Placeholder(t.Location)}
	}
}

func aggregate(entries []Entry) Result {
	res := Result{Entries: entries, Text: ContextUnavailable}
	for _, e := range entries {
		if e.OK && strings.TrimSpace(e.Text) != "" {
			res.Obtained = true
			break
		}
	}
	if !res.Obtained {
		return res
	}

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s (%s, %s):\n%s\n\n",
			e.Target.Role.heading(), e.Target.Location.SubRegion, e.Target.Location.Region, e.Text)
	}
	b.WriteString(closing)
	res.Text = b.String()
	return res
}
