package forecast

import (
	"github.com/shopspring/decimal"

	"github.com/okian/rivalry/internal/domain/model"
)

const places = 2

// Summary texts.
const (
	SummaryTopRanked       = "You're #1! Keep your lead by saving additional energy to build a stronger buffer."
	SummaryCatchUpClose    = "So close! You're just slightly behind. Saving a bit more will help you overtake with a strong chance."
	SummaryCatchUpMid      = "Within reach! The gap is manageable. Stay consistent this month to increase your overtake chances."
	SummaryCatchUpFar      = "A challenge ahead. Focus on steady savings to improve your position and increase your chances."
	SummaryBottomRanked    = "You're building momentum! No one is chasing you yet, so keep growing your savings."
	SummaryDefenseNarrow   = "Alert! Your lead is narrow. Take defensive action to stay ahead."
	SummaryDefenseModerate = "Moderate lead. Maintain consistent habits to stay safe."
	SummaryDefenseStrong   = "Strong position. Keep up your great habits to maintain your lead."
)

// Finalize combines the resolved gap with validated figures.
func Finalize(participantID string, gap model.GapResult, v Validated, p Policy) model.ForecastResult {
	overtake := v.CatchUp.OvertakeProbability
	if gap.IsTopRanked {
		overtake = ClampScore(p.TopOvertakeProbability)
	}
	catchUp := model.CatchUp{
		CurrentGap:          gap.GapUp,
		MinRequired:         sum(gap.GapUp, p.MinRequiredMargin),
		MaxNeeded:           sum(gap.GapUp, v.CatchUp.PredictedIncrease, p.MaxNeededMargin),
		UserTrend:           v.CatchUp.UserTrend,
		CompetitorMomentum:  v.CatchUp.CompetitorMomentum,
		OvertakeProbability: overtake,
		Tips:                append([]model.Tip(nil), v.CatchUp.Tips...),
	}
	catchUp.Summary = catchUpSummary(gap, p)

	ratio, risk := p.BufferRatio, v.Defense.OvertakeRisk
	if gap.IsBottomRanked {
		ratio, risk = p.BottomBufferRatio, ClampScore(p.BottomOvertakeRisk)
	}
	defense := model.Defense{
		CurrentBuffer:       gap.GapDown,
		BufferRecommended:   product(gap.GapDown, ratio),
		ChaserMomentum:      v.Defense.ChaserMomentum,
		OvertakeRisk:        risk,
		SustainabilityScore: v.Defense.SustainabilityScore,
		Tips:                append([]model.Tip(nil), v.Defense.Tips...),
	}
	defense.Summary = defenseSummary(gap, p)

	return model.ForecastResult{
		ParticipantID: participantID,
		CatchUp:       catchUp,
		Defense:       defense,
		Position: model.Position{
			IsTopRanked:    gap.IsTopRanked,
			IsBottomRanked: gap.IsBottomRanked,
			HasCompetitor:  gap.CompetitorID != "",
			HasChaser:      gap.ChaserID != "",
		},
	}
}

func catchUpSummary(gap model.GapResult, p Policy) string {
	switch {
	case gap.IsTopRanked:
		return SummaryTopRanked
	case gap.GapUp < p.CatchUpEasyGap:
		return SummaryCatchUpClose
	case gap.GapUp < p.CatchUpModerateGap:
		return SummaryCatchUpMid
	default:
		return SummaryCatchUpFar
	}
}

func defenseSummary(gap model.GapResult, p Policy) string {
	switch {
	case gap.IsBottomRanked:
		return SummaryBottomRanked
	case gap.GapDown < p.DefenseTightBuffer:
		return SummaryDefenseNarrow
	case gap.GapDown < p.DefenseModerateBuffer:
		return SummaryDefenseModerate
	default:
		return SummaryDefenseStrong
	}
}

func sum(vs ...float64) float64 {
	total := decimal.Zero
	for _, v := range vs {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.Round(places).InexactFloat64()
}

func product(a, b float64) float64 {
	return decimal.NewFromFloat(a).Mul(decimal.NewFromFloat(b)).Round(places).InexactFloat64()
}
