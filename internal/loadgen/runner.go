package loadgen

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/rivalry/internal/domain/model"
	"github.com/okian/rivalry/pkg/logger"
)

// Run executes the complete load run.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := config.Logger
	if log == nil {
		log = logger.Get().Named("loadgen")
	}

	log.Info(ctx, "starting load run",
		logger.String("baseURL", config.BaseURL),
		logger.Int("participants", config.Participants),
		logger.Int("forecasts", config.Forecasts),
		logger.Int("duplicates", config.Duplicates),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout))

	client := newHTTPClient(config.BaseURL, config.Timeout)

	// Step 1: Check service health
	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate and record participants
	participants := GenerateParticipants(config.Participants, config.Seed, time.Now())
	stats.ParticipantsGenerated = len(participants)
	recordParticipants(ctx, config, log, client, participants, stats)
	if stats.ParticipantsRecorded == 0 {
		return stats, fmt.Errorf("no participant was recorded")
	}

	// Step 3: Concurrent duplicate forecasts
	sample := participants[:min(config.Forecasts, len(participants))]
	results := runForecasts(ctx, config, log, client, sample, stats)
	stats.ForecastsConsistent, stats.ForecastsDivergent = verifyForecasts(results)

	// Step 4: Leaderboard and ranks
	leaderboard, err := client.Leaderboard(ctx, config.TopN)
	if err != nil {
		return stats, fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	stats.LeaderboardEntries = len(leaderboard)
	if err := verifyLeaderboard(leaderboard, participants); err != nil {
		return stats, fmt.Errorf("leaderboard verification failed: %w", err)
	}
	if err := verifyRanks(ctx, client, leaderboard); err != nil {
		return stats, fmt.Errorf("rank verification failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)

	if stats.ForecastsDivergent > 0 {
		return stats, fmt.Errorf("%d participants received divergent forecasts", stats.ForecastsDivergent)
	}
	log.Info(ctx, "load run completed successfully")
	return stats, nil
}

// recordParticipants posts participants through a worker pool.
func recordParticipants(ctx context.Context, config *Config, log logger.Logger, client *HTTPClient, participants []model.Participant, stats *Stats) {
	var recorded, failed int64
	work := make(chan model.Participant, config.Workers*WorkerChannelMultiplier)

	var wg sync.WaitGroup
	for range config.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range work {
				if err := client.Record(ctx, p); err != nil {
					atomic.AddInt64(&failed, 1)
					if config.Verbose {
						log.Warn(ctx, "record failed", logger.String("participant", p.ID), logger.Error(err))
					}
					continue
				}
				atomic.AddInt64(&recorded, 1)
			}
		}()
	}

	go func() {
		defer close(work)
		for _, p := range participants {
			select {
			case <-ctx.Done():
				return
			case work <- p:
			}
		}
	}()
	wg.Wait()

	stats.ParticipantsRecorded = int(atomic.LoadInt64(&recorded))
	stats.RecordsFailed = int(atomic.LoadInt64(&failed))
}

// forecastOutcome is one stream's result.
type forecastOutcome struct {
	result model.ForecastResult
	events int
	err    error
}

// runForecasts opens config.Duplicates simultaneous streams for every
// sampled participant, one participant at a time.
func runForecasts(ctx context.Context, config *Config, log logger.Logger, client *HTTPClient, sample []model.Participant, stats *Stats) map[string][]forecastOutcome {
	results := make(map[string][]forecastOutcome, len(sample))
	for _, p := range sample {
		outcomes := make([]forecastOutcome, config.Duplicates)
		var wg sync.WaitGroup
		for i := range outcomes {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, n, err := client.Forecast(ctx, p.ID)
				outcomes[i] = forecastOutcome{result: res, events: n, err: err}
			}()
		}
		wg.Wait()

		for _, o := range outcomes {
			stats.StreamsOpened++
			if o.err != nil {
				stats.StreamsFailed++
				if config.Verbose {
					log.Warn(ctx, "forecast stream failed", logger.String("participant", p.ID), logger.Error(o.err))
				}
			}
		}
		results[p.ID] = outcomes
	}
	return results
}

func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var recordRate, streamRate float64
	if stats.ParticipantsGenerated > 0 {
		recordRate = float64(stats.ParticipantsRecorded) / float64(stats.ParticipantsGenerated) * PercentageMultiplier
	}
	if stats.StreamsOpened > 0 {
		streamRate = float64(stats.StreamsOpened-stats.StreamsFailed) / float64(stats.StreamsOpened) * PercentageMultiplier
	}

	log.Info(ctx, "final statistics",
		logger.Int("participantsGenerated", stats.ParticipantsGenerated),
		logger.Int("participantsRecorded", stats.ParticipantsRecorded),
		logger.Int("recordsFailed", stats.RecordsFailed),
		logger.Int("streamsOpened", stats.StreamsOpened),
		logger.Int("streamsFailed", stats.StreamsFailed),
		logger.Int("forecastsConsistent", stats.ForecastsConsistent),
		logger.Int("forecastsDivergent", stats.ForecastsDivergent),
		logger.Int("leaderboardEntries", stats.LeaderboardEntries),
		logger.Duration("duration", stats.Duration),
		logger.Float64("recordRate", recordRate),
		logger.Float64("streamSuccessRate", streamRate))
}
