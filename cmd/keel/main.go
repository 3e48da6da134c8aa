// Command keel runs the visit-to-recommendation API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/keel/internal/adapters/http/api"
	"github.com/okian/keel/internal/adapters/places"
	app "github.com/okian/keel/internal/app"
	"github.com/okian/keel/internal/config"
	"github.com/okian/keel/internal/domain/idempotency"
	"github.com/okian/keel/internal/domain/rewards"
	"github.com/okian/keel/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics;
	// the service registers its own registry.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env).
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Rewards table: built-in defaults, optionally replaced from file.
	rules := rewards.NewStore(rewards.WithPath(cfg.RewardsFile))
	if cfg.RewardsFile != "" {
		if err := rules.Load(ctx); err != nil {
			os.Stderr.WriteString("failed to load rewards table: " + err.Error() + "\n")
			return
		}
	}
	go reloadRulesOnSIGHUP(ctx, rules, log)

	idem, err := buildIdempotencyStore(cfg)
	if err != nil {
		os.Stderr.WriteString("failed to open idempotency store: " + err.Error() + "\n")
		return
	}

	resolver := buildResolver(cfg)

	svc := app.New(
		app.WithLogger(log),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithIdempotencyStore(idem),
		app.WithResolver(resolver),
		app.WithRewardsStore(rules),
		app.WithResultCache(cfg.ResultCacheSize, time.Duration(cfg.IdempotencyTTLHours)*time.Hour),
		app.WithMinConfidence(cfg.MinConfidence),
		app.WithRadiusMeters(cfg.RadiusMeters),
		app.WithModelVersion(cfg.ModelVersion),
	)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start service: " + err.Error() + "\n")
		return
	}
	defer svc.Stop(context.Background())

	// HTTP mux and routes.
	mux := http.NewServeMux()
	api.NewServer(svc).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
}

// buildIdempotencyStore picks the configured idempotency backend.
func buildIdempotencyStore(cfg *config.Config) (idempotency.Store, error) {
	ttl := time.Duration(cfg.IdempotencyTTLHours) * time.Hour
	if cfg.IdempotencyBackend == config.BackendRedis {
		return idempotency.NewRedisStore(idempotency.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      ttl,
		})
	}
	return idempotency.NewMemoryStore(idempotency.WithTTL(ttl)), nil
}

// buildResolver configures the merchant lookup client.
func buildResolver(cfg *config.Config) *places.Client {
	opts := []places.Option{
		places.WithAPIKey(cfg.PlacesAPIKey),
		places.WithRadius(cfg.RadiusMeters),
		places.WithFallbackRadius(cfg.FallbackRadiusMeters),
		places.WithMinConfidence(cfg.MinConfidence),
		places.WithAttempts(uint(cfg.ResolveAttempts)),
		places.WithCacheTTL(time.Duration(cfg.PlaceCacheTTLMinutes) * time.Minute),
	}
	if cfg.PlacesBaseURL != "" {
		opts = append(opts, places.WithBaseURL(cfg.PlacesBaseURL))
	}
	return places.New(opts...)
}

// reloadRulesOnSIGHUP swaps in a fresh rewards table when the process
// receives SIGHUP. In-flight requests keep their current snapshot.
func reloadRulesOnSIGHUP(ctx context.Context, rules *rewards.Store, log logger.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := rules.Load(ctx); err != nil {
				log.Error(ctx, "rewards table reload failed", logger.Error(err))
				continue
			}
			log.Info(ctx, "rewards table reloaded", logger.String("version", rules.Version()))
		}
	}
}
