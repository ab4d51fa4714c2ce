// Package types holds the read shapes shared by the service and its clients.
package types

// Entry is one leaderboard row. Rank is 1-based and dense over the
// total DESC, participant_id ASC order.
type Entry struct {
	Rank          int     `json:"rank"`
	ParticipantID string  `json:"participant_id"`
	Total         float64 `json:"total"`
}
