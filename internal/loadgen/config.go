// Package loadgen drives a running service over HTTP: it records a
// population of participants, fires concurrent duplicate forecast streams
// and checks that the service answered them consistently.
package loadgen

import (
	"time"

	"github.com/okian/rivalry/pkg/logger"
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL      string        // Base URL of the service
	Participants int           // Number of participants to record
	Forecasts    int           // Number of participants to forecast
	Duplicates   int           // Concurrent identical forecast streams per participant
	TopN         int           // Number of top entries to fetch
	Workers      int           // Number of concurrent workers
	Timeout      time.Duration // HTTP request timeout
	Seed         uint64        // Seed of the participant generator
	Verbose      bool          // Enable verbose logging
	Logger       logger.Logger // Defaults to the global logger
}

// Stats holds run statistics.
type Stats struct {
	ParticipantsGenerated int
	ParticipantsRecorded  int
	RecordsFailed         int
	StreamsOpened         int
	StreamsFailed         int
	ForecastsConsistent   int
	ForecastsDivergent    int
	LeaderboardEntries    int
	StartTime             time.Time
	EndTime               time.Time
	Duration              time.Duration
}
