package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/keel/pkg/client"
	"github.com/okian/keel/pkg/logger"
)

// processingWait gives the worker pool time to drain before verification.
const processingWait = 2 * time.Second

// Run executes the complete visit replay.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting visit replay",
		logger.String("baseURL", config.BaseURL),
		logger.Int("visits", config.NumVisits),
		logger.Float64("duplicateRate", config.DuplicateRate),
		logger.Int("workers", config.Workers),
	)

	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	c := client.New(config.BaseURL, client.WithHTTPClient(&http.Client{Timeout: config.Timeout}))

	visits := generateVisits(ctx, config, stats)

	submitVisits(ctx, config, c, visits, stats)
	firstAccepted := stats.Accepted

	// Re-submit a fraction of the visits; every one must come back duplicate.
	dups := pickDuplicates(visits, config.DuplicateRate)
	if len(dups) > 0 {
		logger.Get().Info(ctx, "re-submitting duplicates", logger.Int("count", len(dups)))
		submitVisits(ctx, config, c, dups, stats)
	}

	logger.Get().Info(ctx, "waiting for pipeline to drain")
	time.Sleep(processingWait)

	if err := verifyAccounting(ctx, config, stats, firstAccepted, len(dups)); err != nil {
		return err
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)
	return nil
}

// verifyAccounting checks that intake counted exactly one acceptance per
// unique key and one duplicate per re-submission.
func verifyAccounting(ctx context.Context, config *Config, stats *Stats, firstAccepted, resubmitted int) error {
	if firstAccepted != stats.VisitsGenerated-stats.Failed {
		return fmt.Errorf("accounting mismatch: %d accepted, %d unique visits submitted (%d failed)",
			firstAccepted, stats.VisitsGenerated, stats.Failed)
	}
	if stats.Duplicates != resubmitted {
		return fmt.Errorf("accounting mismatch: %d duplicates reported, %d re-submissions sent",
			stats.Duplicates, resubmitted)
	}

	pipeline, err := fetchPipelineStats(ctx, config)
	if err != nil {
		return fmt.Errorf("pipeline stats: %w", err)
	}
	logger.Get().Info(ctx, "pipeline snapshot",
		logger.Any("queue_depth", pipeline["queue_depth"]),
		logger.Any("idempotency_keys", pipeline["idempotency_keys"]),
		logger.Any("recommendations", pipeline["recommendations"]),
	)
	return nil
}

func displayFinalStats(ctx context.Context, stats *Stats) {
	logger.Get().Info(ctx, "visit replay finished",
		logger.Int("generated", stats.VisitsGenerated),
		logger.Int("submissions", stats.Submissions),
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicates", stats.Duplicates),
		logger.Int("failed", stats.Failed),
		logger.Duration("duration", stats.Duration),
	)
}

func decodeJSON(r io.Reader, out any) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
