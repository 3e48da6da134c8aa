package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces idempotency records in a shared Redis.
const keyPrefix = "idempotency:"

const connectTimeout = 5 * time.Second

// RedisStore implements Store on Redis. SET NX EX gives the atomic
// check-and-set and the retention TTL in a single operation, which also makes
// the store safe across multiple service replicas.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// RedisConfig carries the connection settings for a RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisStore creates a Redis-backed idempotency store and verifies the
// connection with a PING.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: redis ping failed: %w", ErrStoreUnavailable, err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	return &RedisStore{rdb: rdb, ttl: ttl}, nil
}

// PutIfAbsent records key only if it does not exist, with the retention TTL.
func (s *RedisStore) PutIfAbsent(ctx context.Context, key string) (bool, error) {
	created, err := s.rdb.SetNX(ctx, keyPrefix+key, "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return created, nil
}

// Remove deletes a key so it can be resubmitted.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Size counts live records by scanning the key prefix. Best effort: a scan
// error returns the count seen so far.
func (s *RedisStore) Size(ctx context.Context) int64 {
	var count int64
	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	return count
}

// Close closes the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
