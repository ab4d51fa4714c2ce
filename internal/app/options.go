package service

import (
	"time"

	"github.com/okian/rivalry/internal/adapters/repository"
	"github.com/okian/rivalry/internal/domain/contextfetch"
	"github.com/okian/rivalry/internal/domain/forecast"
	"github.com/okian/rivalry/internal/domain/model"
	"github.com/okian/rivalry/pkg/logger"
)

// Default service configuration.
const (
	defaultCacheTTL         = 5 * time.Minute
	defaultClaimWaitTimeout = 30 * time.Second
	defaultPollInterval     = 100 * time.Millisecond
	defaultRequestTimeout   = 90 * time.Second
	defaultMaxLimit         = 100
	defaultRegion           = "Unknown"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the ranked dataset.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithGenerator sets the forecast generator.
func WithGenerator(g forecast.Generator) Option {
	return func(s *Service) {
		if g != nil {
			s.generator = g
		}
	}
}

// WithContextFetcher enables location context lookups. Without it the
// generator is told context is disabled.
func WithContextFetcher(f *contextfetch.Fetcher) Option {
	return func(s *Service) { s.fetcher = f }
}

// WithCacheTTL sets how long a computed forecast is served from cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithClaimWait sets how long a duplicate request waits for the running
// computation and how often it polls.
func WithClaimWait(timeout, poll time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.claimWaitTimeout = timeout
		}
		if poll > 0 {
			s.pollInterval = poll
		}
	}
}

// WithRequestTimeout sets the overall deadline of one Predict call.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithPolicy sets the derived metric arithmetic.
func WithPolicy(p forecast.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithEdgePolicy sets the synthetic neighbor distances at the top and
// bottom ranks.
func WithEdgePolicy(aspirationalIncrement, floorDecrement float64) Option {
	return func(s *Service) {
		s.aspirationalIncrement = aspirationalIncrement
		s.floorDecrement = floorDecrement
	}
}

// WithDefaultLocation sets the location used when a participant has none.
func WithDefaultLocation(loc model.Location) Option {
	return func(s *Service) { s.defaultLocation = loc.OrDefault(s.defaultLocation) }
}

// WithMaxLeaderboardLimit bounds TopN.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithClock replaces time.Now for the forecast date and the cache.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
