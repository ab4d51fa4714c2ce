// Package service orchestrates forecast computations and implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/rivalry/internal/adapters/cache"
	"github.com/okian/rivalry/internal/adapters/mq/progress"
	"github.com/okian/rivalry/internal/adapters/repository"
	"github.com/okian/rivalry/internal/domain/contextfetch"
	"github.com/okian/rivalry/internal/domain/forecast"
	"github.com/okian/rivalry/internal/domain/inflight"
	"github.com/okian/rivalry/internal/domain/model"
	"github.com/okian/rivalry/internal/domain/ranking"
	"github.com/okian/rivalry/internal/domain/types"
	"github.com/okian/rivalry/pkg/logger"
	"github.com/okian/rivalry/pkg/metrics"
)

const cacheKeyPrefix = "pred_"

// CacheKey returns the cache and claim key of a participant's forecast.
func CacheKey(participantID string) string { return cacheKeyPrefix + participantID }

// Request asks for one participant's forecast.
type Request struct {
	ParticipantID string
	// ForceRefresh drops any cached forecast before computing.
	ForceRefresh bool
	// Progress receives milestones and the terminal record. May be nil.
	Progress *progress.Channel
}

// ranker is implemented by stores that answer rank queries without a
// full snapshot.
type ranker interface {
	Rank(ctx context.Context, id string) (int, error)
}

// Service implements the API dependencies for the forecast system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	resolver  *ranking.Resolver
	cache     *cache.TTL[model.ForecastResult]
	inflight  inflight.Registry
	fetcher   *contextfetch.Fetcher
	generator forecast.Generator

	// Configuration
	cacheTTL              time.Duration
	claimWaitTimeout      time.Duration
	pollInterval          time.Duration
	requestTimeout        time.Duration
	policy                forecast.Policy
	aspirationalIncrement float64
	floorDecrement        float64
	defaultLocation       model.Location
	maxLimit              int
	now                   func() time.Time

	// State
	started bool

	// Logging
	logger logger.Logger
}

// New constructs a Service. Unset components default to an in-memory treap
// store and the baseline generator.
func New(opts ...Option) *Service {
	s := &Service{
		cacheTTL:              defaultCacheTTL,
		claimWaitTimeout:      defaultClaimWaitTimeout,
		pollInterval:          defaultPollInterval,
		requestTimeout:        defaultRequestTimeout,
		policy:                forecast.DefaultPolicy(),
		aspirationalIncrement: ranking.DefaultAspirationalIncrement,
		floorDecrement:        ranking.DefaultFloorDecrement,
		defaultLocation:       model.Location{Region: defaultRegion, SubRegion: defaultRegion},
		maxLimit:              defaultMaxLimit,
		now:                   time.Now,
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		s.store = repository.NewTreapStore()
	}
	if s.generator == nil {
		s.generator = forecast.NewBaselineGenerator()
	}
	s.resolver = ranking.NewResolver(s.store,
		ranking.WithAspirationalIncrement(s.aspirationalIncrement),
		ranking.WithFloorDecrement(s.floorDecrement),
	)
	s.cache = cache.NewTTL[model.ForecastResult](s.cacheTTL, cache.WithClock(s.now))
	s.inflight = inflight.NewRegistry(
		inflight.WithPollInterval(s.pollInterval),
		inflight.WithClock(s.now),
	)
	return s
}

// Start marks the service ready.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.started = true
	s.logger.Info(ctx, "forecast service started",
		logger.Duration("cacheTTL", s.cacheTTL),
		logger.Duration("claimWait", s.claimWaitTimeout),
		logger.Bool("contextEnabled", s.fetcher != nil),
	)
	return nil
}

// Stop releases the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(context.Background(), "failed to close store", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "forecast service stopped")
}

// Predict returns the forecast for req.ParticipantID. At most one
// computation per participant runs at a time; concurrent callers wait for
// it and read its cached result. The progress channel, if any, is completed
// before Predict returns.
func (s *Service) Predict(ctx context.Context, req Request) (res model.ForecastResult, err error) {
	start := time.Now()
	outcome := metrics.OutcomeFailed
	defer func() {
		metrics.RecordForecastRequest(outcome)
		metrics.RecordOrchestrationDuration(float64(time.Since(start).Milliseconds()))
		if err != nil {
			req.Progress.Complete(nil, err)
			return
		}
		final := cloneResult(res)
		req.Progress.Complete(&final, nil)
	}()

	if req.ParticipantID == "" {
		return model.ForecastResult{}, ErrInvalidRequest
	}

	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	key := CacheKey(req.ParticipantID)
	if req.ForceRefresh {
		s.cache.Remove(key)
	}

	waited := false
	for {
		if cached, ok := s.cache.Get(key); ok {
			metrics.RecordCacheHit()
			outcome = metrics.OutcomeCacheHit
			if waited {
				outcome = metrics.OutcomeWaitedHit
			}
			req.Progress.Step(ctx, progress.FromCache)
			return cloneResult(cached), nil
		}
		metrics.RecordCacheMiss()

		if s.inflight.TryClaim(ctx, key) {
			res, err = s.compute(ctx, key, req)
			if err == nil {
				outcome = metrics.OutcomeComputed
			}
			return res, err
		}

		waitStart := time.Now()
		released := s.inflight.AwaitRelease(ctx, key, s.claimWaitTimeout)
		metrics.RecordClaimWait(float64(time.Since(waitStart).Milliseconds()), !released)
		waited = true
		if released {
			// Either the holder cached a result or it failed and we retry the claim.
			continue
		}
		if ctx.Err() != nil {
			return model.ForecastResult{}, fmt.Errorf("%w: %w", ErrDeadline, ctx.Err())
		}
		if s.inflight.Takeover(ctx, key, s.claimWaitTimeout) {
			metrics.RecordClaimTakeover()
			s.logger.Warn(ctx, "took over stale forecast claim",
				logger.String("participant", req.ParticipantID))
			res, err = s.compute(ctx, key, req)
			if err == nil {
				outcome = metrics.OutcomeComputed
			}
			return res, err
		}
	}
}

// compute runs the forecast pipeline while holding the claim for key. The
// claim is released on every exit path, after the result is cached.
func (s *Service) compute(ctx context.Context, key string, req Request) (res model.ForecastResult, err error) {
	defer s.inflight.Release(context.Background(), key)
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordErrorByComponent("service", "panic")
			s.logger.Error(ctx, "prediction panicked",
				logger.String("participant", req.ParticipantID), logger.Any("panic", r))
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	ch := req.Progress
	id := req.ParticipantID

	ch.Step(ctx, progress.Start)
	stage := time.Now()
	self, err := s.participant(ctx, id)
	if err != nil {
		return model.ForecastResult{}, err
	}
	ch.Step(ctx, progress.SelfFetched)

	set, err := s.resolver.Snapshot(ctx)
	if err != nil {
		metrics.RecordErrorByComponent("service", "data_fetch")
		return model.ForecastResult{}, fmt.Errorf("%w: %w", ErrDataFetch, err)
	}
	gap := s.resolver.ResolveIn(set, id, self.Total)
	ch.Step(ctx, progress.GapResolved)

	competitor := self.Synthetic("target", self.Total+s.resolver.AspirationalIncrement())
	if gap.CompetitorID != "" {
		if competitor, err = s.participant(ctx, gap.CompetitorID); err != nil {
			return model.ForecastResult{}, err
		}
	}
	ch.Step(ctx, progress.CompetitorFetched)

	chaser := self.Synthetic("chaser", s.resolver.FloorTotal(self.Total))
	if gap.ChaserID != "" {
		if chaser, err = s.participant(ctx, gap.ChaserID); err != nil {
			return model.ForecastResult{}, err
		}
	}
	ch.Step(ctx, progress.ChaserFetched)
	stage = observeStage("neighbors", stage)

	external := s.externalContext(ctx, self, competitor, chaser)
	ch.Step(ctx, progress.ContextFetched)
	stage = observeStage("context", stage)

	input := forecast.NewInput(s.now(), self, competitor, chaser, gap, external)
	ch.Step(ctx, progress.InputPrepared)

	raw, err := s.generator.Generate(ctx, input)
	if err != nil {
		metrics.RecordErrorByComponent("service", "generate")
		if !errors.Is(err, forecast.ErrGenerate) {
			err = fmt.Errorf("%w: %w", forecast.ErrGenerate, err)
		}
		return model.ForecastResult{}, err
	}
	ch.Step(ctx, progress.Generated)
	stage = observeStage("generate", stage)

	res = forecast.Finalize(id, gap, forecast.Validate(raw), s.policy)
	ch.Step(ctx, progress.Finalized)
	observeStage("finalize", stage)

	s.cache.Set(key, res)
	metrics.UpdateCacheEntries(s.cache.Len())
	ch.Step(ctx, progress.Completed)

	s.logger.Debug(ctx, "forecast computed",
		logger.String("participant", id),
		logger.Int("rank", gap.Rank),
		logger.Float64("gapUp", gap.GapUp),
		logger.Float64("gapDown", gap.GapDown),
	)
	return cloneResult(res), nil
}

func (s *Service) participant(ctx context.Context, id string) (model.Participant, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		metrics.RecordErrorByComponent("service", "data_fetch")
		return model.Participant{}, fmt.Errorf("%w: %s: %w", ErrDataFetch, id, err)
	}
	p.Location = p.Location.OrDefault(s.defaultLocation)
	return p, nil
}

func (s *Service) externalContext(ctx context.Context, self, competitor, chaser model.Participant) string {
	if s.fetcher == nil {
		return contextfetch.ContextDisabled
	}
	res := s.fetcher.Fetch(ctx, []contextfetch.Target{
		{Role: contextfetch.RoleSelf, Location: self.Location},
		{Role: contextfetch.RoleCompetitor, Location: competitor.Location},
		{Role: contextfetch.RoleChaser, Location: chaser.Location},
	})
	if !res.Obtained {
		s.logger.Info(ctx, "no location context obtained", logger.String("participant", self.ID))
	}
	return res.Text
}

func observeStage(name string, since time.Time) time.Time {
	now := time.Now()
	metrics.RecordStageDuration(name, float64(now.Sub(since).Milliseconds()))
	return now
}

func cloneResult(r model.ForecastResult) model.ForecastResult {
	r.CatchUp.Tips = append([]model.Tip(nil), r.CatchUp.Tips...)
	r.Defense.Tips = append([]model.Tip(nil), r.Defense.Tips...)
	return r
}

// Invalidate drops the cached forecast of a participant.
func (s *Service) Invalidate(participantID string) {
	s.cache.Remove(CacheKey(participantID))
	metrics.UpdateCacheEntries(s.cache.Len())
}

// TopN returns the top n leaderboard entries.
func (s *Service) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	if n < 1 || n > s.maxLimit {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidLimit, n, s.maxLimit)
	}
	set, err := s.resolver.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataFetch, err)
	}
	return set.TopN(n), nil
}

// Rank returns the rank and total of a participant.
func (s *Service) Rank(ctx context.Context, participantID string) (types.Entry, error) {
	if r, ok := s.store.(ranker); ok {
		rank, err := r.Rank(ctx, participantID)
		if err != nil {
			return types.Entry{}, err
		}
		p, err := s.store.Get(ctx, participantID)
		if err != nil {
			return types.Entry{}, err
		}
		return types.Entry{Rank: rank, ParticipantID: p.ID, Total: p.Total}, nil
	}

	set, err := s.resolver.Snapshot(ctx)
	if err != nil {
		return types.Entry{}, fmt.Errorf("%w: %w", ErrDataFetch, err)
	}
	rank, ok := set.Rank(participantID)
	if !ok {
		return types.Entry{}, repository.ErrNotFound
	}
	p := set.At(rank - 1)
	return types.Entry{Rank: rank, ParticipantID: p.ID, Total: p.Total}, nil
}

// Record stores a participant's latest total. A forecast cached for the
// participant is dropped when the total changes.
func (s *Service) Record(ctx context.Context, p model.Participant) (bool, error) {
	changed, err := s.store.Record(ctx, p)
	if err != nil {
		return false, err
	}
	if changed {
		s.Invalidate(p.ID)
	}
	if n, err := s.store.Count(ctx); err == nil {
		metrics.UpdateParticipantsTotal(n)
	}
	return changed, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":        s.started,
		"cachedForecast": s.cache.Len(),
		"inflight":       s.inflight.Len(),
		"cacheTTL":       s.cacheTTL.String(),
		"contextEnabled": s.fetcher != nil,
	}
	if s.fetcher != nil {
		stats["cachedLocations"] = s.fetcher.Cached()
	}
	if n, err := s.store.Count(ctx); err == nil {
		stats["participants"] = n
		metrics.UpdateParticipantsTotal(n)
	}
	return stats
}
