package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/rivalry/internal/adapters/http/api"
	"github.com/okian/rivalry/internal/adapters/remote"
	"github.com/okian/rivalry/internal/adapters/repository"
	app "github.com/okian/rivalry/internal/app"
	"github.com/okian/rivalry/internal/config"
	"github.com/okian/rivalry/internal/domain/contextfetch"
	"github.com/okian/rivalry/internal/domain/forecast"
	"github.com/okian/rivalry/internal/domain/model"
	"github.com/okian/rivalry/internal/loadgen"
	"github.com/okian/rivalry/pkg/logger"
	"github.com/okian/rivalry/pkg/metrics"
)

// HTTP server timeout constants. Forecast streams clear their own write
// deadline.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	nanosecondsPerMillisecond = 1e6
	seedValue                 = 42
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "rivalry exited", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	metrics.Configure(metricsOptions(cfg)...)

	if cfg.LogPretty {
		_ = logger.InitWithWriter(os.Stdout, true)
	}
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if err := seedStore(ctx, store, cfg.SeedParticipants, log); err != nil {
		_ = store.Close()
		return err
	}

	generator, err := buildGenerator(cfg, log)
	if err != nil {
		_ = store.Close()
		return err
	}

	svc := app.New(
		app.WithLogger(log.Named("service")),
		app.WithStore(store),
		app.WithGenerator(generator),
		app.WithContextFetcher(buildFetcher(ctx, cfg, log)),
		app.WithCacheTTL(cfg.CacheTTL()),
		app.WithClaimWait(cfg.ClaimWaitTimeout(), cfg.ClaimPollInterval()),
		app.WithRequestTimeout(cfg.RequestTimeout()),
		app.WithPolicy(policyFrom(cfg.Policy)),
		app.WithEdgePolicy(cfg.Policy.AspirationalIncrement, cfg.Policy.FloorDecrement),
		app.WithDefaultLocation(model.Location{Region: cfg.DefaultRegion, SubRegion: cfg.DefaultSubRegion}),
		app.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	// HTTP mux and routes.
	mux := http.NewServeMux()
	api.NewServer(svc, svc,
		api.WithMaxLimit(cfg.MaxLeaderboardLimit),
		api.WithKeepalive(cfg.KeepaliveInterval()),
		api.WithComputeTimeout(cfg.RequestTimeout()),
		api.WithProgressBuffer(cfg.ProgressBufferSize),
		api.WithLogger(log.Named("api")),
	).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// openStore returns the configured ranked dataset backend.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		return repository.OpenSQLite(ctx, cfg.SQLiteDSN)
	case config.StoreRedis:
		return repository.DialRedis(ctx, cfg.RedisAddr, cfg.RedisKey)
	default:
		return repository.NewTreapStore(), nil
	}
}

// seedStore fills an empty store with n generated participants.
func seedStore(ctx context.Context, store repository.Store, n int, log logger.Logger) error {
	if n <= 0 {
		return nil
	}
	count, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count participants: %w", err)
	}
	if count > 0 {
		log.Info(ctx, "store already populated; skipping seed", logger.Int("participants", count))
		return nil
	}
	for _, p := range loadgen.GenerateParticipants(n, seedValue, time.Now()) {
		if _, err := store.Record(ctx, p); err != nil {
			return fmt.Errorf("failed to seed participant %s: %w", p.ID, err)
		}
	}
	metrics.UpdateParticipantsTotal(n)
	log.Info(ctx, "seeded participants", logger.Int("participants", n))
	return nil
}

// buildGenerator selects the remote generator when configured.
func buildGenerator(cfg *config.Config, log logger.Logger) (forecast.Generator, error) {
	if cfg.GeneratorURL == "" {
		return forecast.NewBaselineGenerator(), nil
	}
	g, err := remote.NewGeneratorClient(cfg.GeneratorURL, cfg.GeneratorAPIKey, cfg.GeneratorTimeout(), log.Named("generator"))
	if err != nil {
		return nil, fmt.Errorf("failed to create generator client: %w", err)
	}
	return g, nil
}

// buildFetcher returns nil, which disables external context, unless a
// lookup endpoint is configured.
func buildFetcher(ctx context.Context, cfg *config.Config, log logger.Logger) *contextfetch.Fetcher {
	if !cfg.ContextEnabled {
		return nil
	}
	if cfg.ContextLookupURL == "" {
		log.Info(ctx, "external context enabled without context_lookup_url; running without it")
		return nil
	}
	client := remote.NewContextClient(cfg.ContextLookupURL, log.Named("context"),
		remote.WithRateLimit(cfg.ContextRPS, cfg.ContextBurst))
	return contextfetch.NewFetcher(client,
		contextfetch.WithWorkers(cfg.ContextWorkers),
		contextfetch.WithTimeout(cfg.ContextTimeout()),
		contextfetch.WithCacheSize(cfg.LocationCacheSize),
		contextfetch.WithLogger(log.Named("contextfetch")),
	)
}

// metricsOptions maps the metrics_* keys onto manager options.
func metricsOptions(cfg *config.Config) []metrics.Option {
	opts := []metrics.Option{
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithNamePrefix(cfg.MetricsPrefix),
		metrics.WithRefreshInterval(cfg.MetricsRefreshInterval()),
		metrics.WithConstLabels(cfg.MetricsLabels),
	}
	if len(cfg.MetricsLatencyBucketsMS) > 0 {
		opts = append(opts, metrics.WithLatencyBuckets(cfg.MetricsLatencyBucketsMS))
	} else if cfg.MetricsBucketCount > 0 {
		opts = append(opts, metrics.WithExponentialLatencyBuckets(cfg.MetricsBucketStartMS, cfg.MetricsBucketFactor, cfg.MetricsBucketCount))
	}
	if !cfg.MetricsEnabled {
		opts = append(opts, metrics.Disabled())
	}
	return opts
}

func policyFrom(p config.Policy) forecast.Policy {
	return forecast.Policy{
		MinRequiredMargin:      p.MinRequiredMargin,
		MaxNeededMargin:        p.MaxNeededMargin,
		BufferRatio:            p.BufferRatio,
		BottomBufferRatio:      p.BottomBufferRatio,
		TopOvertakeProbability: p.TopOvertakeProbability,
		BottomOvertakeRisk:     p.BottomOvertakeRisk,
		CatchUpEasyGap:         p.CatchUpEasyGap,
		CatchUpModerateGap:     p.CatchUpModerateGap,
		DefenseTightBuffer:     p.DefenseTightBuffer,
		DefenseModerateBuffer:  p.DefenseModerateBuffer,
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
