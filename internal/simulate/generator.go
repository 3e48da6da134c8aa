package simulate

import (
	"context"
	"crypto/rand"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/keel/pkg/logger"
)

// Anchor coordinates the synthetic visits scatter around.
const (
	anchorLat = 37.7763
	anchorLon = -122.4242
	// jitterDegrees keeps visits within roughly a kilometer of the anchor.
	jitterDegrees = 0.01

	randomDivisor = 1_000_000
)

// randomFloat returns a random float64 in [0, 1) using crypto/rand.
func randomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomDivisor))
	return float64(n.Int64()) / float64(randomDivisor)
}

// generateVisits creates unique visits jittered around the anchor point.
func generateVisits(ctx context.Context, config *Config, stats *Stats) []Visit {
	logger.Get().Info(ctx, "generating visits", logger.Int("numVisits", config.NumVisits))

	now := time.Now().UTC()
	visits := make([]Visit, config.NumVisits)
	for i := range visits {
		visits[i] = Visit{
			IdempotencyKey: uuid.New().String(),
			Lat:            anchorLat + (randomFloat()*2-1)*jitterDegrees,
			Lon:            anchorLon + (randomFloat()*2-1)*jitterDegrees,
			Timestamp:      now.Add(-time.Duration(i) * time.Second),
			UserID:         "sim-user-" + strconv.Itoa(i%100),
		}
	}

	stats.VisitsGenerated = len(visits)
	return visits
}

// pickDuplicates selects the visits to re-submit a second time.
func pickDuplicates(visits []Visit, rate float64) []Visit {
	if rate <= 0 {
		return nil
	}
	n := int(float64(len(visits)) * rate)
	if n > len(visits) {
		n = len(visits)
	}
	dups := make([]Visit, n)
	copy(dups, visits[:n])
	return dups
}
