package loadgen

import (
	"cmp"
	"context"
	"fmt"
	"reflect"
	"slices"

	"github.com/okian/rivalry/internal/domain/model"
	"github.com/okian/rivalry/internal/domain/types"
)

// verifyForecasts counts participants whose successful streams all carried
// the same result. Participants with no successful stream count as neither.
func verifyForecasts(results map[string][]forecastOutcome) (consistent, divergent int) {
	for _, outcomes := range results {
		var first *model.ForecastResult
		same := true
		for i := range outcomes {
			if outcomes[i].err != nil {
				continue
			}
			if first == nil {
				first = &outcomes[i].result
				continue
			}
			if !reflect.DeepEqual(*first, outcomes[i].result) {
				same = false
			}
		}
		switch {
		case first == nil:
		case same:
			consistent++
		default:
			divergent++
		}
	}
	return consistent, divergent
}

// verifyLeaderboard checks ordering and, when the run's participants are
// the only ones on record, that the top entries match them.
func verifyLeaderboard(leaderboard []types.Entry, participants []model.Participant) error {
	for i := 1; i < len(leaderboard); i++ {
		prev, cur := leaderboard[i-1], leaderboard[i]
		if cur.Total > prev.Total || (cur.Total == prev.Total && cur.ParticipantID < prev.ParticipantID) {
			return fmt.Errorf("entry %d (%s) is out of order", i, cur.ParticipantID)
		}
		if cur.Rank != prev.Rank+1 {
			return fmt.Errorf("entry %d has rank %d after %d", i, cur.Rank, prev.Rank)
		}
	}
	if len(leaderboard) == 0 || len(participants) == 0 {
		return nil
	}

	byID := make(map[string]float64, len(participants))
	for _, p := range participants {
		byID[p.ID] = p.Total
	}
	if _, ours := byID[leaderboard[0].ParticipantID]; !ours {
		// Other data is on record; totals cannot be cross-checked.
		return nil
	}
	expected := slices.Clone(participants)
	slices.SortFunc(expected, func(a, b model.Participant) int {
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if top := expected[0]; top.ID != leaderboard[0].ParticipantID {
		return fmt.Errorf("top entry %s does not match expected %s", leaderboard[0].ParticipantID, top.ID)
	}
	return nil
}

// verifyRanks checks that /rank agrees with the leaderboard.
func verifyRanks(ctx context.Context, client *HTTPClient, leaderboard []types.Entry) error {
	for _, want := range leaderboard {
		got, err := client.Rank(ctx, want.ParticipantID)
		if err != nil {
			return fmt.Errorf("rank %s: %w", want.ParticipantID, err)
		}
		if got.Rank != want.Rank {
			return fmt.Errorf("rank %s: got %d, leaderboard says %d", want.ParticipantID, got.Rank, want.Rank)
		}
	}
	return nil
}
