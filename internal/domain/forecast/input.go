// Package forecast turns a resolved gap and generator output into the
// final catch-up and defense figures.
package forecast

import (
	"time"

	"github.com/okian/rivalry/internal/domain/model"
)

// Status texts describing the neighbors.
const (
	StatusAspirational = "Aspirational target (you're #1!)"
	StatusNextRank     = "Next rank to achieve"
	StatusNoThreat     = "No immediate threat (bottom rank)"
	StatusChasing      = "Actively chasing you"

	dateLayout   = "January 02, 2006"
	noActivity   = "N/A"
	activityDate = "2006-01-02"
)

// Input is the structured record handed to a Generator.
type Input struct {
	CurrentDate string `json:"current_date"`

	UserAmount    float64 `json:"user_amount"`
	UserSubRegion string  `json:"user_district"`
	UserRegion    string  `json:"user_state"`
	UserAverage   float64 `json:"user_avg"`
	UserCount     int     `json:"user_count"`
	UserLastDate  string  `json:"user_last_date"`

	CompetitorAmount    float64 `json:"comp_amount"`
	GapUp               float64 `json:"gap_up"`
	CompetitorSubRegion string  `json:"comp_district"`
	CompetitorRegion    string  `json:"comp_state"`
	CompetitorAverage   float64 `json:"comp_avg"`
	CompetitorCount     int     `json:"comp_count"`
	CompetitorStatus    string  `json:"comp_status"`

	ChaserAmount    float64 `json:"chaser_amount"`
	GapDown         float64 `json:"gap_down"`
	ChaserSubRegion string  `json:"chaser_district"`
	ChaserRegion    string  `json:"chaser_state"`
	ChaserAverage   float64 `json:"chaser_avg"`
	ChaserCount     int     `json:"chaser_count"`
	ChaserStatus    string  `json:"chaser_status"`

	ExternalContext string `json:"external_context"`
}

// NewInput assembles the generator input for self and its two neighbors.
func NewInput(now time.Time, self, competitor, chaser model.Participant, gap model.GapResult, external string) Input {
	in := Input{
		CurrentDate: now.Format(dateLayout),

		UserAmount:    self.Total,
		UserSubRegion: self.Location.SubRegion,
		UserRegion:    self.Location.Region,
		UserAverage:   self.Activity.Average,
		UserCount:     self.Activity.Count,
		UserLastDate:  noActivity,

		CompetitorAmount:    competitor.Total,
		GapUp:               gap.GapUp,
		CompetitorSubRegion: competitor.Location.SubRegion,
		CompetitorRegion:    competitor.Location.Region,
		CompetitorAverage:   competitor.Activity.Average,
		CompetitorCount:     competitor.Activity.Count,
		CompetitorStatus:    StatusNextRank,

		ChaserAmount:    chaser.Total,
		GapDown:         gap.GapDown,
		ChaserSubRegion: chaser.Location.SubRegion,
		ChaserRegion:    chaser.Location.Region,
		ChaserAverage:   chaser.Activity.Average,
		ChaserCount:     chaser.Activity.Count,
		ChaserStatus:    StatusChasing,

		ExternalContext: external,
	}
	if !self.Activity.LastActivity.IsZero() {
		in.UserLastDate = self.Activity.LastActivity.Format(activityDate)
	}
	if gap.IsTopRanked {
		in.CompetitorStatus = StatusAspirational
	}
	if gap.IsBottomRanked {
		in.ChaserStatus = StatusNoThreat
	}
	return in
}
