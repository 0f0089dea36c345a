package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Sternrassler/image-optimizer/pkg/cache"
	"github.com/Sternrassler/image-optimizer/pkg/config"
	"github.com/Sternrassler/image-optimizer/pkg/logging"
	"github.com/Sternrassler/image-optimizer/pkg/pipeline"
	"github.com/Sternrassler/image-optimizer/pkg/source"
	"github.com/Sternrassler/image-optimizer/pkg/transform"
	"github.com/Sternrassler/image-optimizer/pkg/warm"
	"github.com/redis/go-redis/v9"
)

// services holds the process-wide clients shared by every request.
type services struct {
	config   *config.Config
	cache    cache.Store
	redis    *redis.Client
	pipeline *pipeline.Pipeline
	warmer   *warm.Warmer
}

// newServices wires the cache backend, object store, resolver, engine,
// pipeline and warmer. A Redis backend that cannot be reached leaves caching
// disabled; it is never an error.
func newServices(ctx context.Context, cfg *config.Config) (*services, error) {
	svc := &services{config: cfg}

	store, err := svc.newCacheStore(ctx)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.cache = store

	var objects source.ObjectStore
	if cfg.StoreEnabled() {
		s3Store, err := source.NewS3Store(ctx, source.S3Config{
			Bucket:          cfg.Store.Bucket,
			Region:          cfg.Store.Region,
			Endpoint:        cfg.Store.Endpoint,
			AccessKeyID:     cfg.Store.AccessKeyID,
			SecretAccessKey: cfg.Store.SecretAccessKey,
			MaxBytes:        cfg.Fetch.MaxBytes,
		})
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("failed to create object store: %w", err)
		}
		objects = s3Store
	}

	resolver := source.NewResolver(source.Config{
		HTTPClient: &http.Client{Timeout: cfg.Fetch.Timeout},
		Objects:    objects,
		Cache:      store,
		CacheTTL:   cfg.Cache.TTL,
		MaxBytes:   cfg.Fetch.MaxBytes,
		UserAgent:  cfg.Fetch.UserAgent,
	})

	p, err := pipeline.New(pipeline.Config{
		Resolver:        resolver,
		Engine:          transform.NewWebPEngine(),
		Cache:           store,
		CacheTTL:        cfg.Cache.TTL,
		FallbackCaching: pipeline.FallbackCaching(cfg.Pipeline.FallbackCaching),
		SingleFlight:    cfg.Pipeline.SingleFlight,
		SharedTimeout:   cfg.Pipeline.SharedTimeout,
	})
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	svc.pipeline = p

	svc.warmer = warm.New(p, warm.Config{
		MaxConcurrency: cfg.Warm.MaxConcurrency,
		Timeout:        cfg.Warm.Timeout,
	})

	return svc, nil
}

func (s *services) newCacheStore(ctx context.Context) (cache.Store, error) {
	logger := logging.NewLogger("cache")
	cfg := s.config.Cache

	switch cfg.Backend {
	case config.BackendRedis:
		opts, err := redisOptions(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		s.redis = redis.NewClient(opts)

		store := cache.NewRedisStore(s.redis, logger.With().Str("addr", opts.Addr).Logger())
		// Connect logs the outcome; a failed ping leaves the store disabled.
		_ = store.Connect(ctx, cfg.ConnectTimeout)
		return store, nil

	case config.BackendMemory:
		logger.Info().Int("entries", cfg.MemoryEntries).Dur("ttl", cfg.TTL).Msg("Using in-memory cache")
		return cache.NewMemoryStore(cfg.MemoryEntries, cfg.TTL), nil

	default:
		logger.Info().Msg("Caching disabled")
		return cache.Disabled{}, nil
	}
}

// redisOptions accepts either a redis:// URL or a bare host:port.
func redisOptions(raw string) (*redis.Options, error) {
	if strings.Contains(raw, "://") {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: raw}, nil
}

// Close releases the Redis client.
func (s *services) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
}
