// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults, Load(ctx) to layer sources.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"runtime"
)

// Idempotency store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory visit event queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of pipeline workers.
	WorkerCount int `koanf:"worker_count"`

	// IdempotencyBackend selects the idempotency store: memory or redis.
	IdempotencyBackend string `koanf:"idempotency_backend"`

	// IdempotencyTTLHours sets the retention window for idempotency keys.
	IdempotencyTTLHours int `koanf:"idempotency_ttl_hours"`

	// RedisAddr, RedisPassword and RedisDB configure the redis backend.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// PlacesAPIKey authenticates against the merchant lookup upstream.
	PlacesAPIKey string `koanf:"places_api_key"`

	// PlacesBaseURL overrides the merchant lookup endpoint.
	PlacesBaseURL string `koanf:"places_base_url"`

	// RadiusMeters bounds the merchant search radius.
	RadiusMeters int `koanf:"radius_meters"`

	// FallbackRadiusMeters bounds the category-only fallback search radius.
	FallbackRadiusMeters int `koanf:"fallback_radius_meters"`

	// MinConfidence is the resolution confidence floor.
	MinConfidence float64 `koanf:"min_confidence"`

	// ResolveAttempts caps retryable merchant lookup attempts.
	ResolveAttempts int `koanf:"resolve_attempts"`

	// PlaceCacheTTLMinutes sets the place lookup cache expiry.
	PlaceCacheTTLMinutes int `koanf:"place_cache_ttl_minutes"`

	// RewardsFile points at a YAML rewards table. Empty keeps the built-in table.
	RewardsFile string `koanf:"rewards_file"`

	// ModelVersion labels the confidence model in /v1/config.
	ModelVersion string `koanf:"model_version"`

	// ResultCacheSize bounds the recommendation cache.
	ResultCacheSize int `koanf:"result_cache_size"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		Addr:                 ":9080",
		QueueSize:            100_000,
		WorkerCount:          runtime.NumCPU() * 4,
		IdempotencyBackend:   BackendMemory,
		IdempotencyTTLHours:  24,
		RedisAddr:            "localhost:6379",
		RadiusMeters:         100,
		FallbackRadiusMeters: 250,
		MinConfidence:        0.5,
		ResolveAttempts:      3,
		PlaceCacheTTLMinutes: 15,
		ModelVersion:         "visit-confidence-2",
		ResultCacheSize:      100_000,
	}
}
