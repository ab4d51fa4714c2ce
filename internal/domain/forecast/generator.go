package forecast

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"time"
)

// Generator produces the raw two-section forecast for an input. It is the
// slow, remote part of a prediction.
type Generator interface {
	Generate(ctx context.Context, in Input) (Raw, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, in Input) (Raw, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, in Input) (Raw, error) { return f(ctx, in) }

const (
	defaultMinLatency = 0
	defaultMaxLatency = 0
)

// BaselineOption configures a BaselineGenerator.
type BaselineOption func(*BaselineGenerator)

// WithLatencyRange sets the simulated latency range.
func WithLatencyRange(minLatency, maxLatency time.Duration) BaselineOption {
	return func(g *BaselineGenerator) {
		if minLatency >= 0 && maxLatency > minLatency {
			g.minLatency = minLatency
			g.maxLatency = maxLatency
		}
	}
}

// BaselineGenerator derives a forecast locally from the neighbors' activity.
// The same input always yields the same output; latency, if configured, is
// the only random part.
type BaselineGenerator struct {
	minLatency time.Duration
	maxLatency time.Duration
}

// NewBaselineGenerator creates a generator with no simulated latency.
func NewBaselineGenerator(opts ...BaselineOption) *BaselineGenerator {
	g := &BaselineGenerator{minLatency: defaultMinLatency, maxLatency: defaultMaxLatency}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate implements Generator.
func (g *BaselineGenerator) Generate(ctx context.Context, in Input) (Raw, error) {
	if g.maxLatency > 0 {
		latency := g.minLatency + rand.N(g.maxLatency-g.minLatency) //nolint:gosec // simulated latency only
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Raw{}, fmt.Errorf("%w: %w", ErrGenerate, ctx.Err())
		case <-timer.C:
		}
	}

	// A neighbor is expected to add about one more contribution of its average.
	competitorIncrease := in.CompetitorAverage
	chaserIncrease := in.ChaserAverage

	userTrend := 0.0
	if in.CompetitorAverage > 0 || in.UserAverage > 0 {
		userTrend = (in.UserAverage - in.CompetitorAverage) / math.Max(in.UserAverage, in.CompetitorAverage)
	}

	// Chance of overtaking falls as the gap grows relative to the user's pace.
	overtake := 50.0
	if in.GapUp > 0 {
		overtake = 100 * (in.UserAverage + 1) / (in.GapUp + competitorIncrease + in.UserAverage + 1)
	}
	risk := 100 * (chaserIncrease + 1) / (math.Max(0, in.GapDown) + chaserIncrease + in.UserAverage + 1)

	return Raw{
		CatchUp: RawCatchUp{
			PredictedIncrease:   Num(round2(competitorIncrease)),
			UserTrend:           Num(round2(userTrend)),
			CompetitorMomentum:  Num(momentum(in.CompetitorAverage, in.CompetitorCount)),
			OvertakeProbability: Num(math.Round(overtake)),
		},
		Defense: RawDefense{
			ChaserIncrease:      Num(round2(chaserIncrease)),
			ChaserMomentum:      Num(momentum(in.ChaserAverage, in.ChaserCount)),
			OvertakeRisk:        Num(math.Round(risk)),
			SustainabilityScore: Num(sustainability(in)),
		},
	}, nil
}

func momentum(avg float64, count int) float64 {
	if count <= 0 {
		return 0
	}
	return math.Round(100 * (1 - 1/(1+avg*float64(count)/100)))
}

// sustainability grows with the number of contributions.
func sustainability(in Input) float64 {
	h := fnv.New32a()
	_, _ = fmt.Fprintf(h, "%s|%s|%d", in.UserRegion, in.UserSubRegion, in.UserCount)
	base := 40 + float64(h.Sum32()%21)
	return math.Min(100, base+float64(in.UserCount))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
