// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"

	eventqueue "github.com/okian/keel/internal/adapters/mq/queue"
	workerpool "github.com/okian/keel/internal/adapters/mq/worker"
	"github.com/okian/keel/internal/adapters/places"
	"github.com/okian/keel/internal/domain/idempotency"
	"github.com/okian/keel/internal/domain/model"
	"github.com/okian/keel/internal/domain/ranking"
	"github.com/okian/keel/internal/domain/rewards"
	"github.com/okian/keel/pkg/logger"
	"github.com/okian/keel/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultQueueSize      = 100000
	defaultResultCacheCap = 100000
	defaultResultTTL      = 24 * time.Hour
	defaultMinConfidence  = 0.5
	defaultRadiusMeters   = 100
	defaultModelVersion   = "visit-confidence-2"
)

// IngestStatus reports how a submitted visit event was handled.
type IngestStatus string

// Ingest statuses returned by IngestVisit.
const (
	IngestAccepted  IngestStatus = "accepted"
	IngestDuplicate IngestStatus = "duplicate"
)

// Info describes the service's live configuration for the config endpoint.
type Info struct {
	RewardsVersion string  `json:"rewards_version"`
	ModelVersion   string  `json:"model_version"`
	MinConfidence  float64 `json:"min_confidence"`
	RadiusMeters   int     `json:"radius_meters"`
}

// Stats is a point-in-time snapshot of pipeline state.
type Stats struct {
	QueueDepth      int    `json:"queue_depth"`
	Workers         int    `json:"workers"`
	IdempotencyKeys int64  `json:"idempotency_keys"`
	Recommendations int64  `json:"recommendations"`
	RulesVersion    string `json:"rules_version"`
}

// allCardsRanker adapts the ranking engine to worker.Ranker by ranking
// every card in the live rewards table.
type allCardsRanker struct {
	engine *ranking.Engine
	rules  *rewards.Store
}

func (r *allCardsRanker) Rank(ctx context.Context, category, mcc string) ([]model.CardRecommendation, string) {
	names := r.rules.Current().CardNames()
	candidates := make([]model.CardCandidate, 0, len(names))
	for _, name := range names {
		candidates = append(candidates, model.CardCandidate{Name: name})
	}
	result := r.engine.Rank(ctx, category, mcc, candidates)
	return result.Top, result.RulesVersion
}

// resultSink adapts the Service to worker.Sink.
type resultSink struct {
	svc *Service
}

func (s *resultSink) Store(ctx context.Context, result model.RecommendationResult) {
	s.svc.storeResult(ctx, result)
}

// Service implements the API dependencies for the recommendation pipeline.
type Service struct {
	mu sync.RWMutex

	// Core components
	idem       idempotency.Store
	eventQueue eventqueue.Queue
	resolver   workerpool.Resolver
	rules      *rewards.Store
	engine     *ranking.Engine
	workerPool *workerpool.Pool
	results    *otter.Cache[string, model.RecommendationResult]

	// Configuration
	workerCount    int
	queueSize      int
	resultCacheCap int
	resultTTL      time.Duration
	minConfidence  float64
	radiusMeters   int
	modelVersion   string

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the event queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithIdempotencyStore sets the backing store for event deduplication.
func WithIdempotencyStore(store idempotency.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.idem = store
		}
	}
}

// WithResolver sets the merchant resolver used by the workers.
func WithResolver(resolver workerpool.Resolver) Option {
	return func(s *Service) {
		if resolver != nil {
			s.resolver = resolver
		}
	}
}

// WithRewardsStore sets the rewards table store used for ranking.
func WithRewardsStore(store *rewards.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.rules = store
		}
	}
}

// WithResultCache sets the recommendation cache capacity and TTL.
func WithResultCache(capacity int, ttl time.Duration) Option {
	return func(s *Service) {
		if capacity > 0 {
			s.resultCacheCap = capacity
		}
		if ttl > 0 {
			s.resultTTL = ttl
		}
	}
}

// WithMinConfidence sets the minimum confidence reported by the config endpoint.
func WithMinConfidence(min float64) Option {
	return func(s *Service) {
		if min > 0 {
			s.minConfidence = min
		}
	}
}

// WithRadiusMeters sets the search radius reported by the config endpoint.
func WithRadiusMeters(radius int) Option {
	return func(s *Service) {
		if radius > 0 {
			s.radiusMeters = radius
		}
	}
}

// WithModelVersion sets the confidence model version label.
func WithModelVersion(version string) Option {
	return func(s *Service) {
		if version != "" {
			s.modelVersion = version
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:    runtime.NumCPU() * 2,
		queueSize:      defaultQueueSize,
		resultCacheCap: defaultResultCacheCap,
		resultTTL:      defaultResultTTL,
		minConfidence:  defaultMinConfidence,
		radiusMeters:   defaultRadiusMeters,
		modelVersion:   defaultModelVersion,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting recommendation service...")

	if s.idem == nil {
		s.idem = idempotency.NewMemoryStore()
	}
	if s.rules == nil {
		s.rules = rewards.NewStore()
	}
	if s.resolver == nil {
		s.resolver = places.New(
			places.WithRadius(s.radiusMeters),
			places.WithMinConfidence(s.minConfidence),
		)
	}
	s.engine = ranking.New(s.rules)
	s.eventQueue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithBufferSize(s.queueSize),
	)
	s.results = otter.Must(&otter.Options[string, model.RecommendationResult]{
		MaximumSize:      s.resultCacheCap,
		ExpiryCalculator: otter.ExpiryWriting[string, model.RecommendationResult](s.resultTTL),
	})

	ranker := &allCardsRanker{engine: s.engine, rules: s.rules}
	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s.resolver, ranker, &resultSink{svc: s})
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "recommendation service started",
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.String("rulesVersion", s.rules.Version()),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(ctx, "stopping recommendation service...")

	if s.workerPool != nil {
		if err := s.workerPool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
		}
	}
	if s.idem != nil {
		if err := s.idem.Close(); err != nil {
			s.logger.Warn(ctx, "idempotency store close", logger.Error(err))
		}
	}

	s.started = false
	s.logger.Info(ctx, "recommendation service stopped")
}

// IngestVisit atomically records the event's idempotency key and enqueues
// the visit for asynchronous processing. The first submission of a key wins;
// repeats report IngestDuplicate without re-enqueueing. If the queue rejects
// the event the key is released so the client can retry.
func (s *Service) IngestVisit(ctx context.Context, e model.VisitEvent) (IngestStatus, error) {
	if err := places.ValidateCoordinates(e.Latitude, e.Longitude); err != nil {
		return "", err
	}

	fresh, err := s.idem.PutIfAbsent(ctx, e.IdempotencyKey)
	if err != nil {
		return "", fmt.Errorf("idempotency check: %w", err)
	}
	if !fresh {
		metrics.RecordVisitDuplicate()
		return IngestDuplicate, nil
	}

	if !s.eventQueue.Enqueue(ctx, e) {
		// Release the key so a later retry of the same event is not
		// silently swallowed as a duplicate.
		if rerr := s.idem.Remove(ctx, e.IdempotencyKey); rerr != nil {
			s.logger.Error(ctx, "failed to release idempotency key after enqueue rejection",
				logger.String("idempotency_key", e.IdempotencyKey),
				logger.Error(rerr),
			)
		}
		return "", ErrQueueFull
	}

	metrics.RecordVisitAccepted()
	metrics.UpdateIdempotencyKeys(s.idem.Size(ctx))
	return IngestAccepted, nil
}

// ResolveMerchant resolves coordinates to the most likely merchant.
func (s *Service) ResolveMerchant(ctx context.Context, lat, lon float64) (model.MerchantResolution, error) {
	return s.resolver.Resolve(ctx, lat, lon)
}

// RankCards ranks the given candidate cards for a category or MCC.
// An empty candidate list yields an empty ranking.
func (s *Service) RankCards(ctx context.Context, category, mcc string, cards []model.CardCandidate) ranking.Result {
	return s.engine.Rank(ctx, category, mcc, cards)
}

// Recommendation returns the stored pipeline result for an idempotency key,
// if the visit has been processed and the result has not expired.
func (s *Service) Recommendation(ctx context.Context, key string) (model.RecommendationResult, bool) {
	result, ok := s.results.GetIfPresent(key)
	return result, ok
}

// ConfigInfo reports the live service configuration.
func (s *Service) ConfigInfo(ctx context.Context) Info {
	return Info{
		RewardsVersion: s.rules.Version(),
		ModelVersion:   s.modelVersion,
		MinConfidence:  s.minConfidence,
		RadiusMeters:   s.radiusMeters,
	}
}

// Stats reports a snapshot of pipeline state.
func (s *Service) Stats(ctx context.Context) Stats {
	return Stats{
		QueueDepth:      s.eventQueue.Len(ctx),
		Workers:         s.workerPool.Size(),
		IdempotencyKeys: s.idem.Size(ctx),
		Recommendations: int64(s.results.EstimatedSize()),
		RulesVersion:    s.rules.Version(),
	}
}

// storeResult records a processed visit's recommendation.
func (s *Service) storeResult(ctx context.Context, result model.RecommendationResult) {
	s.results.Set(result.IdempotencyKey, result)
	s.logger.Debug(ctx, "stored recommendation",
		logger.String("idempotency_key", result.IdempotencyKey),
		logger.String("category", result.Resolution.Category),
		logger.Int("cards", len(result.Top)),
	)
}
