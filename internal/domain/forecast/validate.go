package forecast

import (
	"math"

	"github.com/okian/rivalry/internal/domain/model"
)

// Score and trend bounds.
const (
	MinScore = 0
	MaxScore = 100
	MinTrend = -1.0
	MaxTrend = 1.0

	// TipsPerSection is the exact number of tips in each validated section.
	TipsPerSection = 3

	defaultScore    = 50
	textTipImpact   = 5.0
	defaultPriority = "medium"
)

// Built-in tips appended when the generator supplies fewer than three.
var (
	DefaultCatchUpTips = [TipsPerSection]model.Tip{
		{Action: "Replace 5 regular bulbs with LED bulbs (saves ~75W each)", Impact: 10.0, Priority: "high"},
		{Action: "Set air conditioner to 24°C instead of 20°C, use timer for 6 hours at night", Impact: 15.0, Priority: "high"},
		{Action: "Unplug phone chargers, TV, and router when not in use (vampire power)", Impact: 8.0, Priority: "medium"},
	}
	DefaultDefenseTips = [TipsPerSection]model.Tip{
		{Action: "Maintain your LED bulb usage and keep them on schedule (6-8 hours/day max)", Impact: 12.0, Priority: "high"},
		{Action: "Continue optimal air conditioning habits: 24°C, clean filters monthly", Impact: 18.0, Priority: "high"},
		{Action: "Run washing machine and dishwasher only with full loads (2-3 times/week)", Impact: 10.0, Priority: "medium"},
	}
)

// ValidatedCatchUp holds in-range catch-up figures.
type ValidatedCatchUp struct {
	PredictedIncrease   float64
	UserTrend           float64
	CompetitorMomentum  int
	OvertakeProbability int
	Tips                []model.Tip
}

// ValidatedDefense holds in-range defense figures.
type ValidatedDefense struct {
	ChaserIncrease      float64
	ChaserMomentum      int
	OvertakeRisk        int
	SustainabilityScore int
	Tips                []model.Tip
}

// Validated is a generator response with every score clamped and exactly
// three tips per section.
type Validated struct {
	CatchUp ValidatedCatchUp
	Defense ValidatedDefense
}

// Validate clamps scores into range and backfills tips. Applying it to
// already valid figures leaves them unchanged.
func Validate(raw Raw) Validated {
	return Validated{
		CatchUp: ValidatedCatchUp{
			PredictedIncrease:   orZero(raw.CatchUp.PredictedIncrease),
			UserTrend:           ClampTrend(orZero(raw.CatchUp.UserTrend)),
			CompetitorMomentum:  score(raw.CatchUp.CompetitorMomentum),
			OvertakeProbability: score(raw.CatchUp.OvertakeProbability),
			Tips:                tips(raw.CatchUp.Tips, DefaultCatchUpTips),
		},
		Defense: ValidatedDefense{
			ChaserIncrease:      orZero(raw.Defense.ChaserIncrease),
			ChaserMomentum:      score(raw.Defense.ChaserMomentum),
			OvertakeRisk:        score(raw.Defense.OvertakeRisk),
			SustainabilityScore: score(raw.Defense.SustainabilityScore),
			Tips:                tips(raw.Defense.Tips, DefaultDefenseTips),
		},
	}
}

// ClampScore bounds v to [MinScore, MaxScore].
func ClampScore(v int) int { return min(MaxScore, max(MinScore, v)) }

// ClampTrend bounds v to [MinTrend, MaxTrend].
func ClampTrend(v float64) float64 { return math.Min(MaxTrend, math.Max(MinTrend, v)) }

func orZero(n Number) float64 {
	if !n.Set {
		return 0
	}
	return n.Value
}

// score truncates toward zero before clamping so out-of-int-range values
// still land on a bound.
func score(n Number) int {
	if !n.Set {
		return defaultScore
	}
	v := math.Trunc(n.Value)
	switch {
	case v <= MinScore:
		return MinScore
	case v >= MaxScore:
		return MaxScore
	}
	return int(v)
}

func tips(raw []RawTip, defaults [TipsPerSection]model.Tip) []model.Tip {
	out := make([]model.Tip, 0, TipsPerSection)
	for _, t := range raw {
		if len(out) == TipsPerSection {
			break
		}
		if t.Text {
			out = append(out, model.Tip{Action: t.Action, Impact: textTipImpact, Priority: defaultPriority})
			continue
		}
		tip := model.Tip{Action: t.Action, Impact: orZero(t.Impact), Priority: t.Priority}
		if tip.Priority == "" {
			tip.Priority = defaultPriority
		}
		out = append(out, tip)
	}
	for len(out) < TipsPerSection {
		out = append(out, defaults[len(out)])
	}
	return out
}
