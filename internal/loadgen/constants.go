package loadgen

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Reporting constants.
const (
	PercentageMultiplier = 100
	maxScanTokenSize     = 1 << 20
)
