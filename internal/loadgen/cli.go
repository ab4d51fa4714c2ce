package loadgen

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/rivalry/pkg/logger"
)

const logFilePermission = 0600

// SetupLogging sends logs to the console and to logFile. If logFile is
// empty, a timestamped filename is generated.
func SetupLogging(logFile string, verbose bool) error {
	if logFile == "" {
		logFile = "loadgen_" + time.Now().Format("20060102_150405") + ".log"
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.InitWithWriter(io.MultiWriter(os.Stdout, file), false); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	level := "info"
	if verbose {
		level = "debug"
	}
	return logger.SetLevelString(level)
}

// ShowHelp prints usage information.
func ShowHelp() {
	os.Stdout.WriteString(`Rivalry Load Tool
=================

Records a population of participants, then opens concurrent duplicate
forecast streams and checks every caller received the same forecast.

Usage:
  go run ./cmd/loadgen [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -participants int
        Number of participants to record (default 1000)
  -forecasts int
        Number of participants to forecast (default 20)
  -duplicates int
        Concurrent identical streams per forecast (default 8)
  -top int
        Number of leaderboard entries to verify (default 50)
  -workers int
        Number of concurrent record workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -seed uint
        Participant generator seed (default 42)
  -log string
        Log file (default: loadgen_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  go run ./cmd/loadgen -participants 5000 -forecasts 50 -duplicates 16
`)
}
