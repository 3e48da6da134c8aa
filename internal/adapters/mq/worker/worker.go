// Package worker defines worker contracts for asynchronous visit resolution
// and card ranking.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/keel/internal/adapters/places"
	"github.com/okian/keel/internal/domain/model"
	"github.com/okian/keel/pkg/logger"
	"github.com/okian/keel/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
)

// Event abstracts what workers read off the queue.
type Event = model.VisitEvent

// Resolver resolves visit coordinates to a merchant, with a category-only
// fallback when no merchant can be identified.
type Resolver interface {
	Resolve(ctx context.Context, lat, lon float64) (model.MerchantResolution, error)
	ResolveCategory(ctx context.Context, lat, lon float64) (category, mcc string, err error)
}

// Ranker produces ranked card recommendations for a resolved category.
type Ranker interface {
	Rank(ctx context.Context, category, mcc string) ([]model.CardRecommendation, string)
}

// Sink receives the terminal result of each processed visit.
type Sink interface {
	Store(ctx context.Context, result model.RecommendationResult)
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes visit events into card recommendations.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for processing visit events.
type InMemoryWorker struct {
	queue    Queue
	resolver Resolver
	ranker   Ranker
	sink     Sink
	name     string

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, resolver Resolver, ranker Ranker, sink Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		resolver: resolver,
		ranker:   ranker,
		sink:     sink,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer func() {
		close(w.done)
	}()

	eventChan := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case event, ok := <-eventChan:
			if !ok {
				// Channel closed, worker should stop
				return
			}

			if err := w.processEvent(ctx, event); err != nil {
				metrics.RecordPipelineError()
				w.logger.Error(ctx, "error processing visit",
					logger.String("idempotency_key", event.IdempotencyKey),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processEvent runs the resolve and rank pipeline for a single visit.
func (w *InMemoryWorker) processEvent(ctx context.Context, event Event) error {
	resolution, err := w.resolver.Resolve(ctx, event.Latitude, event.Longitude)
	needFallback := false
	switch {
	case err != nil && errors.Is(err, places.ErrNoMerchants):
		needFallback = true
	case err != nil:
		return fmt.Errorf("resolve visit %s: %w", event.IdempotencyKey, err)
	case resolution.Category == "":
		// Merchant found but unclassifiable; its confidence sits at the
		// floor, so the identity is dropped in favor of a category lookup.
		needFallback = true
	}

	fallback := false
	if needFallback {
		// Single-shot category fallback so the visit still yields a
		// category-level ranking. A second failure is terminal.
		category, mcc, ferr := w.resolver.ResolveCategory(ctx, event.Latitude, event.Longitude)
		if ferr != nil {
			return fmt.Errorf("fallback resolve visit %s: %w", event.IdempotencyKey, ferr)
		}
		resolution = model.MerchantResolution{Category: category, MCC: mcc}
		fallback = true
	}

	rankStart := time.Now()
	top, rulesVersion := w.ranker.Rank(ctx, resolution.Category, resolution.MCC)
	metrics.RecordRankingLatency(float64(time.Since(rankStart).Milliseconds()))
	metrics.RecordRecommendation()

	w.sink.Store(ctx, model.RecommendationResult{
		IdempotencyKey: event.IdempotencyKey,
		Resolution:     resolution,
		Top:            top,
		RulesVersion:   rulesVersion,
		Fallback:       fallback,
		ProcessedAt:    time.Now().UTC(),
	})
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers  []*InMemoryWorker
	queue    Queue
	resolver Resolver
	ranker   Ranker
	sink     Sink

	// Shutdown control
	shutdown chan struct{}

	logger logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, queue Queue, resolver Resolver, ranker Ranker, sink Sink) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    queue,
		resolver: resolver,
		ranker:   ranker,
		sink:     sink,
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(
			queue,
			resolver,
			ranker,
			sink,
			WithName("worker-"+strconv.Itoa(i)),
		)
	}

	metrics.UpdateWorkerCount(workerCount)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
}

// Size returns the number of workers in the pool.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Shutdown gracefully shuts down the entire worker pool.
func (p *Pool) Shutdown(ctx context.Context) error {
	// First close the queue so the dequeue channels drain and close.
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	close(p.shutdown)

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	metrics.UpdateWorkerCount(0)

	return nil
}
