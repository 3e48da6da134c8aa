package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if KEEL_CONFIG is set
//  3. env (prefix KEEL_)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("KEEL_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: KEEL_ADDR, KEEL_QUEUE_SIZE, ...
	// Map env keys like KEEL_QUEUE_SIZE -> queue_size (flat keys).
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("KEEL_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "keel_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.IdempotencyBackend != BackendMemory && c.IdempotencyBackend != BackendRedis:
		return fmt.Errorf("%w: idempotency_backend must be %q or %q", ErrInvalidConfig, BackendMemory, BackendRedis)
	case c.MinConfidence <= 0 || c.MinConfidence > 1:
		return fmt.Errorf("%w: min_confidence must be in (0, 1]", ErrInvalidConfig)
	case c.RadiusMeters <= 0 || c.FallbackRadiusMeters <= 0:
		return fmt.Errorf("%w: search radii must be positive", ErrInvalidConfig)
	case c.ResolveAttempts < 1:
		return fmt.Errorf("%w: resolve_attempts must be at least 1", ErrInvalidConfig)
	}
	return nil
}
