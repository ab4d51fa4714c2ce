package model

// Tip is one advisory item of a forecast section.
type Tip struct {
	Action   string  `json:"action"`
	Impact   float64 `json:"estimated_impact"`
	Priority string  `json:"priority"`
}

// CatchUp describes what closing the gap to the competitor takes.
type CatchUp struct {
	CurrentGap          float64 `json:"currentGap"`
	MinRequired         float64 `json:"minRequired"`
	MaxNeeded           float64 `json:"maxNeeded"`
	UserTrend           float64 `json:"userTrend"`
	CompetitorMomentum  int     `json:"competitorMomentum"`
	OvertakeProbability int     `json:"overtakeProbability"`
	Tips                []Tip   `json:"tips"`
	Summary             string  `json:"summary"`
}

// Defense describes how to hold the lead over the chaser.
type Defense struct {
	CurrentBuffer       float64 `json:"currentBuffer"`
	BufferRecommended   float64 `json:"bufferRecommended"`
	ChaserMomentum      int     `json:"chaserMomentum"`
	OvertakeRisk        int     `json:"overtakeRisk"`
	SustainabilityScore int     `json:"sustainabilityScore"`
	Tips                []Tip   `json:"tips"`
	Summary             string  `json:"summary"`
}

// Position records the subject's rank edges.
type Position struct {
	IsTopRanked    bool `json:"isTopRanked"`
	IsBottomRanked bool `json:"isBottomRanked"`
	HasCompetitor  bool `json:"hasCompetitor"`
	HasChaser      bool `json:"hasChaser"`
}

// ForecastResult is the cached value of one prediction.
type ForecastResult struct {
	ParticipantID string   `json:"participant_id"`
	CatchUp       CatchUp  `json:"catchUp"`
	Defense       Defense  `json:"defense"`
	Position      Position `json:"position"`
}
