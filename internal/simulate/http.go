package simulate

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/keel/pkg/client"
	"github.com/okian/keel/pkg/logger"
)

// checkServiceHealth verifies the target service is up before replaying.
func checkServiceHealth(ctx context.Context, config *Config) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, config.BaseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	hc := &http.Client{Timeout: config.Timeout}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status %d", resp.StatusCode)
	}
	return nil
}

// submitVisits pushes all visits through the SDK on a worker group and
// tallies accepted, duplicate and failed submissions.
func submitVisits(ctx context.Context, config *Config, c *client.Client, visits []Visit, stats *Stats) {
	var accepted, duplicates, failed atomic.Int64

	jobs := make(chan Visit)
	var wg sync.WaitGroup
	for w := 0; w < config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for v := range jobs {
				ack, err := c.SubmitVisit(ctx, v.IdempotencyKey, client.Visit{
					Lat:       v.Lat,
					Lon:       v.Lon,
					Timestamp: v.Timestamp.Format(time.RFC3339),
					UserID:    v.UserID,
				})
				switch {
				case err != nil:
					failed.Add(1)
					if config.Verbose {
						logger.Get().Warn(ctx, "visit submission failed",
							logger.String("key", v.IdempotencyKey),
							logger.Error(err),
						)
					}
				case ack.Duplicate:
					duplicates.Add(1)
				default:
					accepted.Add(1)
				}
			}
		}()
	}

	for _, v := range visits {
		select {
		case jobs <- v:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()

	stats.Submissions += len(visits)
	stats.Accepted += int(accepted.Load())
	stats.Duplicates += int(duplicates.Load())
	stats.Failed += int(failed.Load())
}

// fetchPipelineStats pulls the server-side pipeline snapshot.
func fetchPipelineStats(ctx context.Context, config *Config) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, config.BaseURL+"/v1/stats", nil)
	if err != nil {
		return nil, fmt.Errorf("build stats request: %w", err)
	}

	hc := &http.Client{Timeout: config.Timeout}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stats request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected stats status %d", resp.StatusCode)
	}

	out := map[string]any{}
	if err := decodeJSON(resp.Body, &out); err != nil {
		return nil, err
	}
	return out, nil
}
