package forecast

// Policy holds the fixed arithmetic used to derive the final figures.
type Policy struct {
	MinRequiredMargin      float64
	MaxNeededMargin        float64
	BufferRatio            float64
	BottomBufferRatio      float64
	TopOvertakeProbability int
	BottomOvertakeRisk     int

	// Summary thresholds.
	CatchUpEasyGap        float64
	CatchUpModerateGap    float64
	DefenseTightBuffer    float64
	DefenseModerateBuffer float64
}

// DefaultPolicy returns the standard constants.
func DefaultPolicy() Policy {
	return Policy{
		MinRequiredMargin:      5,
		MaxNeededMargin:        10,
		BufferRatio:            0.6,
		BottomBufferRatio:      0.3,
		TopOvertakeProbability: 100,
		BottomOvertakeRisk:     5,
		CatchUpEasyGap:         10,
		CatchUpModerateGap:     30,
		DefenseTightBuffer:     5,
		DefenseModerateBuffer:  15,
	}
}
