// Command simulate replays synthetic visit traffic against a running
// keel service and verifies the idempotent intake accounting.
package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/keel/internal/simulate"
	"github.com/okian/keel/pkg/logger"
)

// Default configuration constants.
const (
	defaultNumVisits     = 1000
	defaultDuplicateRate = 0.1
	defaultWorkers       = 2 // multiplier for runtime.NumCPU()
	defaultTimeout       = 30 * time.Second
	defaultReplayTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL       = flag.String("url", "http://localhost:9080", "Base URL of the service")
		numVisits     = flag.Int("visits", defaultNumVisits, "Number of unique visits to generate and submit")
		duplicateRate = flag.Float64("duplicates", defaultDuplicateRate, "Fraction of visits re-submitted a second time")
		workers       = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent submitters")
		timeout       = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		verbose       = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultReplayTimeout)
	defer cancel()

	config := &simulate.Config{
		BaseURL:       *baseURL,
		NumVisits:     *numVisits,
		DuplicateRate: *duplicateRate,
		Workers:       *workers,
		Timeout:       *timeout,
		Verbose:       *verbose,
	}

	if err := simulate.Run(ctx, config); err != nil {
		os.Stderr.WriteString("replay failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
