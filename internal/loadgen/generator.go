package loadgen

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/okian/rivalry/internal/domain/model"
)

// Total distribution tiers.
const (
	casualMin   = 5.0
	casualRange = 60.0
	regularMin  = 60.0
	regularSpan = 140.0
	heavyMin    = 200.0
	heavyRange  = 300.0
	eliteMin    = 500.0
	eliteRange  = 500.0

	maxActivityCount = 40
	maxIdleDays      = 30
)

var locations = []model.Location{
	{Region: "Selangor", SubRegion: "Petaling Jaya"},
	{Region: "Selangor", SubRegion: "Klang"},
	{Region: "Johor", SubRegion: "Johor Bahru"},
	{Region: "Johor", SubRegion: "Muar"},
	{Region: "Penang", SubRegion: "George Town"},
	{Region: "Sabah", SubRegion: "Kota Kinabalu"},
	{Region: "Sarawak", SubRegion: "Kuching"},
	{}, // no location on record
}

// GenerateParticipants returns n participants with unique ids. The same
// seed yields the same totals, locations and activity; ids are random.
func GenerateParticipants(n int, seed uint64, now time.Time) []model.Participant {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // synthetic data
	out := make([]model.Participant, n)
	for i := range out {
		count := 1 + rng.IntN(maxActivityCount)
		total := variedTotal(rng)
		out[i] = model.Participant{
			ID:       uuid.NewString(),
			Total:    total,
			Location: locations[rng.IntN(len(locations))],
			Activity: model.ActivityStats{
				LastActivity: now.Add(-time.Duration(rng.IntN(maxIdleDays*24)) * time.Hour).UTC(),
				Count:        count,
				Average:      total / float64(count),
			},
		}
	}
	return out
}

// variedTotal mixes a few contribution tiers, most participants casual.
func variedTotal(rng *rand.Rand) float64 {
	var v float64
	switch rng.IntN(8) {
	case 0, 1, 2:
		v = casualMin + rng.Float64()*casualRange
	case 3, 4:
		v = regularMin + rng.Float64()*regularSpan
	case 5, 6:
		v = heavyMin + rng.Float64()*heavyRange
	default:
		v = eliteMin + rng.Float64()*eliteRange
	}
	return math.Round(v*100) / 100
}
