// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/okian/rivalry/internal/adapters/mq/progress"
	"github.com/okian/rivalry/internal/adapters/repository"
	service "github.com/okian/rivalry/internal/app"
	"github.com/okian/rivalry/internal/domain/model"
	"github.com/okian/rivalry/internal/domain/types"
	"github.com/okian/rivalry/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ForecastDependencies
	LeaderboardDependencies
	RankDependencies
	ParticipantDependencies
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Default handler settings.
const (
	defaultMaxLimit          = 100
	defaultKeepalive         = 15 * time.Second
	defaultComputeTimeout    = 90 * time.Second
	defaultProgressBufferLen = progress.DefaultBufferSize
)

// Server wires HTTP routes for the business API.
type Server struct {
	opsHandler         *OpsHandler
	forecastHandler    *ForecastHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	participantHandler *ParticipantHandler
}

type serverConfig struct {
	maxLimit       int
	keepalive      time.Duration
	computeTimeout time.Duration
	bufferSize     int
	log            logger.Logger
}

// ServerOption configures the Server.
type ServerOption func(*serverConfig)

// WithMaxLimit bounds /leaderboard?limit.
func WithMaxLimit(n int) ServerOption {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxLimit = n
		}
	}
}

// WithKeepalive sets the interval of stream keep-alive comments.
func WithKeepalive(d time.Duration) ServerOption {
	return func(c *serverConfig) {
		if d > 0 {
			c.keepalive = d
		}
	}
}

// WithComputeTimeout bounds a forecast computation started by a stream.
func WithComputeTimeout(d time.Duration) ServerOption {
	return func(c *serverConfig) {
		if d > 0 {
			c.computeTimeout = d
		}
	}
}

// WithProgressBuffer sets the per-stream event buffer.
func WithProgressBuffer(n int) ServerOption {
	return func(c *serverConfig) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(c *serverConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	cfg := serverConfig{
		maxLimit:       defaultMaxLimit,
		keepalive:      defaultKeepalive,
		computeTimeout: defaultComputeTimeout,
		bufferSize:     defaultProgressBufferLen,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.Get().Named("api")
	}

	return &Server{
		opsHandler:         NewOpsHandler(statsProvider),
		forecastHandler:    NewForecastHandler(deps, cfg.keepalive, cfg.computeTimeout, cfg.bufferSize, cfg.log),
		leaderboardHandler: NewLeaderboardHandler(deps, cfg.maxLimit),
		rankHandler:        NewRankHandler(deps),
		participantHandler: NewParticipantHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.opsHandler.HandleMetrics, "healthz"))
	mux.HandleFunc("/metrics", MetricsMiddleware(s.opsHandler.HandleMetrics, "metrics"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.opsHandler.HandleStats, "stats"))
	mux.HandleFunc("/forecast/", MetricsMiddleware(s.forecastHandler.HandleForecast, "forecast"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/rank/", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	mux.HandleFunc("/participants", MetricsMiddleware(s.participantHandler.HandlePostParticipant, "participants"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrInvalidLimit),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, repository.ErrInvalidParticipant),
		errors.Is(err, repository.ErrNegativeTotal),
		errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// participantRequest is the body of POST /participants.
type participantRequest struct {
	ID           string    `json:"id" validate:"required,max=128"`
	Total        float64   `json:"total" validate:"gte=0"`
	Region       string    `json:"region" validate:"max=128"`
	SubRegion    string    `json:"sub_region" validate:"max=128"`
	LastActivity time.Time `json:"last_activity"`
	Count        int       `json:"activity_count" validate:"gte=0"`
	Average      float64   `json:"activity_avg" validate:"gte=0"`
}

func (p participantRequest) participant() model.Participant {
	return model.Participant{
		ID:       p.ID,
		Total:    p.Total,
		Location: model.Location{Region: p.Region, SubRegion: p.SubRegion},
		Activity: model.ActivityStats{LastActivity: p.LastActivity, Count: p.Count, Average: p.Average},
	}
}
