package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/rivalry/internal/loadgen"
)

// Default configuration constants.
const (
	defaultParticipants = 1000
	defaultForecasts    = 20
	defaultDuplicates   = 8
	defaultTopN         = 50
	defaultWorkers      = 2 // multiplier for runtime.NumCPU()
	defaultTimeout      = 30 * time.Second
	defaultRunTimeout   = 15 * time.Minute
	defaultSeed         = 42
)

func main() {
	var (
		baseURL      = flag.String("url", "http://localhost:9080", "Base URL of the service")
		participants = flag.Int("participants", defaultParticipants, "Number of participants to record")
		forecasts    = flag.Int("forecasts", defaultForecasts, "Number of participants to forecast")
		duplicates   = flag.Int("duplicates", defaultDuplicates, "Concurrent identical streams per forecast")
		topN         = flag.Int("top", defaultTopN, "Number of leaderboard entries to verify")
		workers      = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent record workers")
		timeout      = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		seed         = flag.Uint64("seed", defaultSeed, "Participant generator seed")
		logFile      = flag.String("log", "", "Log file (default: loadgen_TIMESTAMP.log)")
		verbose      = flag.Bool("verbose", false, "Enable verbose logging")
		help         = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadgen.ShowHelp()
		return
	}

	if err := loadgen.SetupLogging(*logFile, *verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	config := &loadgen.Config{
		BaseURL:      *baseURL,
		Participants: *participants,
		Forecasts:    *forecasts,
		Duplicates:   max(*duplicates, 1),
		TopN:         *topN,
		Workers:      max(*workers, 1),
		Timeout:      *timeout,
		Seed:         *seed,
		Verbose:      *verbose,
	}

	if _, err := loadgen.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Load run failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
