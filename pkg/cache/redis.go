package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultConnectTimeout bounds the startup ping.
const DefaultConnectTimeout = time.Second

// RedisStore handles caching operations with Redis backend.
// It starts disabled; Connect enables it once the backend answered a ping.
type RedisStore struct {
	redis   *redis.Client
	logger  zerolog.Logger
	enabled atomic.Bool
}

// NewRedisStore creates a new cache store with Redis backend.
func NewRedisStore(redisClient *redis.Client, logger zerolog.Logger) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:  redisClient,
		logger: logger,
	}
}

// Connect pings Redis once within timeout. On failure the store stays
// disabled for the remainder of the process lifetime; there is no retry.
func (s *RedisStore) Connect(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.redis.Ping(pingCtx).Err(); err != nil {
		s.enabled.Store(false)
		s.logger.Warn().
			Err(err).
			Dur("timeout", timeout).
			Msg("Redis unavailable, caching disabled")
		return fmt.Errorf("redis ping: %w", err)
	}

	s.enabled.Store(true)
	s.logger.Info().Msg("Connected to Redis, caching enabled")
	return nil
}

// Enabled reports whether the store is connected.
func (s *RedisStore) Enabled() bool {
	return s.enabled.Load()
}

// Get retrieves a cached payload by key.
// Returns ErrCacheMiss if the key doesn't exist.
func (s *RedisStore) Get(ctx context.Context, key Key) ([]byte, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}

	data, err := s.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	return data, nil
}

// Set stores a payload with ttl. The entry is removed by Redis when it expires.
func (s *RedisStore) Set(ctx context.Context, key Key, data []byte, ttl time.Duration) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if err := s.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}
