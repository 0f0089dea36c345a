package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTTL is applied to both namespaces unless configured otherwise.
const DefaultTTL = 7 * 24 * time.Hour

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrDisabled indicates the backend is not configured or not connected
	ErrDisabled = errors.New("cache disabled")
)

// Store is a TTL-based key-value cache over opaque byte payloads.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the payload for key, ErrCacheMiss when absent or
	// ErrDisabled when the backend is unavailable.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores data under key for ttl.
	Set(ctx context.Context, key Key, data []byte, ttl time.Duration) error
}

// Disabled is a Store that behaves as an always-miss cache.
type Disabled struct{}

// Get always returns ErrDisabled.
func (Disabled) Get(context.Context, Key) ([]byte, error) { return nil, ErrDisabled }

// Set always returns ErrDisabled.
func (Disabled) Set(context.Context, Key, []byte, time.Duration) error { return ErrDisabled }

// Enabled reports whether s can currently serve hits.
func Enabled(s Store) bool {
	if s == nil {
		return false
	}
	if e, ok := s.(interface{ Enabled() bool }); ok {
		return e.Enabled()
	}
	_, disabled := s.(Disabled)
	return !disabled
}

// Lookup reads key from s and folds every failure into a miss.
// Backend errors are logged at warn level; misses and disabled stores are not.
func Lookup(ctx context.Context, s Store, key Key, logger zerolog.Logger) ([]byte, bool) {
	if s == nil {
		return nil, false
	}

	data, err := s.Get(ctx, key)
	switch {
	case err == nil:
		CacheHits.WithLabelValues(string(key.Namespace)).Inc()
		logger.Debug().Str("key", key.String()).Int("bytes", len(data)).Msg("Cache hit")
		return data, true
	case errors.Is(err, ErrCacheMiss), errors.Is(err, ErrDisabled):
		CacheMisses.WithLabelValues(string(key.Namespace)).Inc()
		logger.Debug().Str("key", key.String()).Msg("Cache miss")
	default:
		CacheMisses.WithLabelValues(string(key.Namespace)).Inc()
		logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get error, continuing as miss")
	}
	return nil, false
}

// WriteBestEffort stores data under key and never reports failure to the caller.
// A failed write is logged and counted; the request it belongs to proceeds.
func WriteBestEffort(ctx context.Context, s Store, key Key, data []byte, ttl time.Duration, logger zerolog.Logger) {
	if s == nil {
		return
	}

	err := s.Set(ctx, key, data, ttl)
	switch {
	case err == nil:
		CacheWrittenBytes.WithLabelValues(string(key.Namespace)).Add(float64(len(data)))
		logger.Debug().
			Str("key", key.String()).
			Int("bytes", len(data)).
			Dur("ttl", ttl).
			Msg("Cached payload")
	case errors.Is(err, ErrDisabled):
	default:
		logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to cache payload")
	}
}
