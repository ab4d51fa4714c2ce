// Package model contains domain models passed between layers.
package model

import "time"

// Location is the two-level place a participant belongs to.
type Location struct {
	Region    string `json:"region"`
	SubRegion string `json:"sub_region"`
}

// IsZero reports whether neither level is set.
func (l Location) IsZero() bool { return l.Region == "" && l.SubRegion == "" }

// OrDefault fills missing levels from def.
func (l Location) OrDefault(def Location) Location {
	if l.Region == "" {
		l.Region = def.Region
	}
	if l.SubRegion == "" {
		l.SubRegion = def.SubRegion
	}
	return l
}

// ActivityStats summarizes a participant's recent contributions.
type ActivityStats struct {
	LastActivity time.Time `json:"last_activity,omitempty"`
	Count        int       `json:"count"`
	Average      float64   `json:"average"`
}

// Participant is a ranked leaderboard member. Total never decreases.
type Participant struct {
	ID       string        `json:"id"`
	Total    float64       `json:"total"`
	Location Location      `json:"location"`
	Activity ActivityStats `json:"activity"`
}

// Synthetic returns a copy of p standing in for a missing neighbor.
func (p Participant) Synthetic(suffix string, total float64) Participant {
	s := p
	s.ID = p.ID + "_" + suffix
	s.Total = total
	return s
}

// GapResult is the outcome of resolving a participant's neighbors.
// Empty CompetitorID / ChaserID mean no such neighbor exists.
type GapResult struct {
	CompetitorID   string  `json:"competitor_id,omitempty"`
	ChaserID       string  `json:"chaser_id,omitempty"`
	GapUp          float64 `json:"gap_up"`
	GapDown        float64 `json:"gap_down"`
	IsTopRanked    bool    `json:"is_top_ranked"`
	IsBottomRanked bool    `json:"is_bottom_ranked"`
	Rank           int     `json:"rank"`
	Size           int     `json:"size"`
}
