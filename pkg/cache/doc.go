// Package cache provides the byte cache used by the image pipeline.
//
// Two logical namespaces share one key-value backend:
//
//   - original:   raw source bytes fetched from the object store, keyed by source
//   - derivative: transformed output, keyed by source, width and quality
//
// A Store is always safe to call. When the backend is not configured, or the
// startup connection attempt failed, every operation returns ErrDisabled and
// callers treat the result exactly like a cache miss.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//
//	store := cache.NewRedisStore(redisClient, logger)
//	store.Connect(ctx, time.Second) // disables the store on timeout
//
//	key := cache.DerivativeKey("https://example.com/cat.jpg", 640, 75)
//
//	data, ok := cache.Lookup(ctx, store, key, logger)
//	if !ok {
//		// Miss, disabled or backend error - compute the derivative
//	}
//
//	cache.WriteBestEffort(ctx, store, key, data, cache.DefaultTTL, logger)
//
// # Best-Effort Operations
//
// Lookup and WriteBestEffort never return errors. Backend failures are logged
// and counted, then the request continues on the cache-miss path. Caching is
// an amenity, never a hard dependency of a request.
//
// # Metrics
//
//   - imgproxy_cache_hits_total{namespace} - Cache hits
//   - imgproxy_cache_misses_total{namespace} - Cache misses (including disabled)
//   - imgproxy_cache_errors_total{operation} - Backend errors ("get", "set")
//   - imgproxy_cache_written_bytes_total{namespace} - Bytes written
package cache
