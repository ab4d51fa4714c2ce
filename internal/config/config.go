// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Defaults are declared with `default` tags and applied by New.
// - Rules are declared with `validate` tags and checked by Validate.
// - Durations are configured in milliseconds and exposed as time.Duration.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Store backends for the ranked dataset.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" default:"info" validate:"oneof=debug info warn warning error"`

	// LogPretty renders human readable console output instead of JSON lines.
	LogPretty bool `koanf:"log_pretty"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" default:":9080" validate:"required"`

	// Store selects the ranked dataset backend.
	Store     string `koanf:"store" default:"memory" validate:"oneof=memory sqlite redis"`
	SQLiteDSN string `koanf:"sqlite_dsn" default:"file:rivalry.db?cache=shared" validate:"required_if=Store sqlite"`
	RedisAddr string `koanf:"redis_addr" default:"localhost:6379" validate:"required_if=Store redis"`
	RedisKey  string `koanf:"redis_key" default:"rivalry:leaderboard" validate:"required_if=Store redis"`

	// SeedParticipants fills an empty dataset with generated participants at startup.
	SeedParticipants int `koanf:"seed_participants" validate:"gte=0"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit" default:"100" validate:"gte=1"`

	// CacheTTLSeconds is the lifetime of a cached forecast.
	CacheTTLSeconds int `koanf:"cache_ttl_seconds" default:"300" validate:"gte=1"`

	// ClaimWaitTimeoutMS bounds how long a request waits for another
	// request's in-flight computation. ClaimPollIntervalMS is the wait poll step.
	ClaimWaitTimeoutMS  int `koanf:"claim_wait_timeout_ms" default:"30000" validate:"gte=1"`
	ClaimPollIntervalMS int `koanf:"claim_poll_interval_ms" default:"100" validate:"gte=1,lt=1000"`

	// RequestTimeoutMS is the overall deadline of one forecast request.
	RequestTimeoutMS int `koanf:"request_timeout_ms" default:"90000" validate:"gte=1"`

	// External context lookups.
	ContextEnabled    bool    `koanf:"context_enabled" default:"true"`
	ContextWorkers    int     `koanf:"context_workers" default:"3" validate:"gte=1"`
	ContextTimeoutMS  int     `koanf:"context_timeout_ms" default:"30000" validate:"gte=1"`
	LocationCacheSize int     `koanf:"location_cache_size" default:"256" validate:"gte=1"`
	ContextLookupURL  string  `koanf:"context_lookup_url" validate:"omitempty,url"`
	ContextRPS        float64 `koanf:"context_rps" default:"5" validate:"gt=0"`
	ContextBurst      int     `koanf:"context_burst" default:"3" validate:"gte=1"`

	// Forecast generator. An empty URL selects the local baseline generator.
	GeneratorURL       string `koanf:"generator_url" validate:"omitempty,url"`
	GeneratorAPIKey    string `koanf:"generator_api_key" validate:"required_with=GeneratorURL"`
	GeneratorTimeoutMS int    `koanf:"generator_timeout_ms" default:"60000" validate:"gte=1"`

	// Progress streaming. The buffer must hold every milestone of one
	// computation; the terminal record has its own slot.
	ProgressBufferSize  int `koanf:"progress_buffer_size" default:"64" validate:"gte=10"`
	KeepaliveIntervalMS int `koanf:"keepalive_interval_ms" default:"15000" validate:"gte=1"`

	// Location used when a participant record has none.
	DefaultRegion    string `koanf:"default_region" default:"Unknown"`
	DefaultSubRegion string `koanf:"default_sub_region" default:"Unknown"`

	// Metrics naming and histogram layout. An explicit bucket list wins over
	// the exponential start/factor/count form.
	MetricsEnabled           bool              `koanf:"metrics_enabled" default:"true"`
	MetricsNamespace         string            `koanf:"metrics_namespace" default:"rivalry" validate:"required"`
	MetricsSubsystem         string            `koanf:"metrics_subsystem" default:"forecast" validate:"required"`
	MetricsPrefix            string            `koanf:"metrics_prefix"`
	MetricsLatencyBucketsMS  []float64         `koanf:"metrics_latency_buckets_ms" validate:"omitempty,dive,gt=0"`
	MetricsBucketStartMS     float64           `koanf:"metrics_bucket_start_ms" validate:"gte=0"`
	MetricsBucketFactor      float64           `koanf:"metrics_bucket_factor" validate:"omitempty,gt=1"`
	MetricsBucketCount       int               `koanf:"metrics_bucket_count" validate:"gte=0"`
	MetricsRefreshIntervalMS int               `koanf:"metrics_refresh_interval_ms" default:"10000" validate:"gte=100"`
	MetricsLabels            map[string]string `koanf:"metrics_labels"`

	Policy Policy `koanf:"policy"`
}

// Policy carries the forecast arithmetic constants.
type Policy struct {
	AspirationalIncrement  float64 `koanf:"aspirational_increment" default:"50" validate:"gt=0"`
	FloorDecrement         float64 `koanf:"floor_decrement" default:"20" validate:"gte=0"`
	MinRequiredMargin      float64 `koanf:"min_required_margin" default:"5" validate:"gte=0"`
	MaxNeededMargin        float64 `koanf:"max_needed_margin" default:"10" validate:"gte=0"`
	BufferRatio            float64 `koanf:"buffer_ratio" default:"0.6" validate:"gte=0"`
	BottomBufferRatio      float64 `koanf:"bottom_buffer_ratio" default:"0.3" validate:"gte=0"`
	TopOvertakeProbability int     `koanf:"top_overtake_probability" default:"100" validate:"gte=0,lte=100"`
	BottomOvertakeRisk     int     `koanf:"bottom_overtake_risk" default:"5" validate:"gte=0,lte=100"`
	CatchUpEasyGap         float64 `koanf:"catch_up_easy_gap" default:"10" validate:"gte=0"`
	CatchUpModerateGap     float64 `koanf:"catch_up_moderate_gap" default:"30" validate:"gtefield=CatchUpEasyGap"`
	DefenseTightBuffer     float64 `koanf:"defense_tight_buffer" default:"5" validate:"gte=0"`
	DefenseModerateBuffer  float64 `koanf:"defense_moderate_buffer" default:"15" validate:"gtefield=DefenseTightBuffer"`
}

var validate = validator.New()

// New creates a Config with every default applied.
func New(_ context.Context) (*Config, error) {
	c := &Config{}
	if err := defaults.Set(c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	return c, nil
}

// Validate checks the configuration rules.
func (c *Config) Validate(ctx context.Context) error {
	if err := validate.StructCtx(ctx, c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.ClaimPollIntervalMS >= c.ClaimWaitTimeoutMS {
		return fmt.Errorf("%w: poll %dms >= wait %dms", ErrClaimWindow, c.ClaimPollIntervalMS, c.ClaimWaitTimeoutMS)
	}
	return c.Policy.check()
}

// check rejects combinations the field rules cannot express.
func (p Policy) check() error {
	if p.BottomBufferRatio > p.BufferRatio {
		return fmt.Errorf("%w: bottom_buffer_ratio %.2f exceeds buffer_ratio %.2f", ErrInvalidPolicy, p.BottomBufferRatio, p.BufferRatio)
	}
	if p.MinRequiredMargin > p.MaxNeededMargin {
		return fmt.Errorf("%w: min_required_margin %.2f exceeds max_needed_margin %.2f", ErrInvalidPolicy, p.MinRequiredMargin, p.MaxNeededMargin)
	}
	return nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// CacheTTL returns the forecast cache lifetime.
func (c *Config) CacheTTL() time.Duration { return time.Duration(c.CacheTTLSeconds) * time.Second }

// ClaimWaitTimeout returns the in-flight wait bound.
func (c *Config) ClaimWaitTimeout() time.Duration { return ms(c.ClaimWaitTimeoutMS) }

// ClaimPollInterval returns the in-flight wait poll step.
func (c *Config) ClaimPollInterval() time.Duration { return ms(c.ClaimPollIntervalMS) }

// RequestTimeout returns the overall forecast deadline.
func (c *Config) RequestTimeout() time.Duration { return ms(c.RequestTimeoutMS) }

// ContextTimeout returns the per-lookup deadline.
func (c *Config) ContextTimeout() time.Duration { return ms(c.ContextTimeoutMS) }

// GeneratorTimeout returns the generator call deadline.
func (c *Config) GeneratorTimeout() time.Duration { return ms(c.GeneratorTimeoutMS) }

// MetricsRefreshInterval returns how often system gauges are sampled.
func (c *Config) MetricsRefreshInterval() time.Duration { return ms(c.MetricsRefreshIntervalMS) }

// KeepaliveInterval returns how often an idle stream gets a comment line.
func (c *Config) KeepaliveInterval() time.Duration { return ms(c.KeepaliveIntervalMS) }
