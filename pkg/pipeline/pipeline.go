// Package pipeline orchestrates cache lookup, source retrieval, transformation
// and the size fallback for a single derivative request.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/image-optimizer/pkg/cache"
	"github.com/Sternrassler/image-optimizer/pkg/source"
	"github.com/Sternrassler/image-optimizer/pkg/transform"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// CacheStatus reports whether a result was served from the derivative cache.
type CacheStatus string

const (
	CacheHit  CacheStatus = "HIT"
	CacheMiss CacheStatus = "MISS"
)

// FallbackCaching selects the payload written to the derivative cache when
// the transform grew the image.
type FallbackCaching string

const (
	// CacheTransformed caches the transformed bytes even when the original is
	// served, so a later hit returns the larger transformed payload.
	CacheTransformed FallbackCaching = "transformed"

	// CacheServed caches whatever payload the miss actually served.
	CacheServed FallbackCaching = "served"
)

// Fetcher resolves a source to its original bytes.
// *source.Resolver implements it.
type Fetcher interface {
	Fetch(ctx context.Context, src source.Source) ([]byte, error)
}

// Result is the outcome of a successful Serve.
type Result struct {
	Data        []byte
	ContentType string
	CacheStatus CacheStatus

	// OriginalSize and OptimizedSize are only known on a miss
	OriginalSize  int
	OptimizedSize int

	// ServedOriginal is set when Data holds the original bytes
	ServedOriginal bool
}

// SavingsPercent is the size reduction of the transform, negative when it grew
// the payload. It is 0 when the sizes are unknown.
func (r *Result) SavingsPercent() float64 {
	return savingsPercent(r.OriginalSize, r.OptimizedSize)
}

// Config holds the pipeline configuration.
type Config struct {
	// Resolver fetches original bytes (required)
	Resolver Fetcher

	// Engine produces derivatives (required)
	Engine transform.Engine

	// Cache holds derivatives; nil disables caching
	Cache cache.Store

	// CacheTTL is applied to derivative entries (default: cache.DefaultTTL)
	CacheTTL time.Duration

	// FallbackCaching selects the payload cached on fallback (default: CacheTransformed)
	FallbackCaching FallbackCaching

	// SingleFlight coalesces concurrent misses for the same derivative
	SingleFlight bool

	// SharedTimeout bounds a coalesced computation, which outlives any single
	// caller (default: DefaultSharedTimeout)
	SharedTimeout time.Duration
}

// DefaultSharedTimeout bounds a coalesced miss computation.
const DefaultSharedTimeout = 60 * time.Second

// Pipeline serves derivatives. It holds no per-request state and is safe for
// concurrent use.
type Pipeline struct {
	resolver Fetcher
	engine   transform.Engine
	cache    cache.Store
	ttl      time.Duration
	fallback FallbackCaching
	group    *singleflight.Group
	shared   time.Duration
	logger   zerolog.Logger
}

// New creates a pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}

	p := &Pipeline{
		resolver: cfg.Resolver,
		engine:   cfg.Engine,
		cache:    cfg.Cache,
		ttl:      cfg.CacheTTL,
		fallback: cfg.FallbackCaching,
		shared:   cfg.SharedTimeout,
		logger:   log.With().Str("component", "pipeline").Logger(),
	}
	if p.cache == nil {
		p.cache = cache.Disabled{}
	}
	if p.ttl <= 0 {
		p.ttl = cache.DefaultTTL
	}
	if p.shared <= 0 {
		p.shared = DefaultSharedTimeout
	}
	switch p.fallback {
	case "":
		p.fallback = CacheTransformed
	case CacheTransformed, CacheServed:
	default:
		return nil, fmt.Errorf("unknown fallback caching mode %q", cfg.FallbackCaching)
	}
	if cfg.SingleFlight {
		p.group = &singleflight.Group{}
	}

	return p, nil
}

// CacheEnabled reports whether the derivative cache can currently serve hits.
func (p *Pipeline) CacheEnabled() bool {
	return cache.Enabled(p.cache)
}

// ServeRequest parses boundary strings and serves the derivative.
func (p *Pipeline) ServeRequest(ctx context.Context, src, width, quality string) (*Result, error) {
	params, err := ParseParams(width, quality)
	if err != nil {
		var pErr *Error
		if errors.As(err, &pErr) {
			pErr.Source = src
		}
		return nil, p.fail(err)
	}
	return p.Serve(ctx, src, params)
}

// Serve returns the derivative of src described by params.
//
// A derivative cache hit returns the cached bytes without fetching. On a miss
// the original is fetched and transformed and the transformed bytes are
// written to the cache best-effort. If the transform grew the payload the
// original bytes are served instead.
//
// With SingleFlight enabled, concurrent misses for the same derivative share
// one computation. It runs detached from every caller's cancellation, bounded
// by SharedTimeout; a caller whose ctx ends stops waiting without affecting
// the others.
func (p *Pipeline) Serve(ctx context.Context, src string, params transform.Params) (*Result, error) {
	if src == "" {
		return nil, p.fail(&Error{Kind: KindInvalidRequest, Err: ErrEmptySource})
	}
	if params.Width < 0 {
		return nil, p.fail(&Error{
			Kind:   KindInvalidRequest,
			Source: src,
			Err:    fmt.Errorf("width must be a positive integer, got %d", params.Width),
		})
	}

	key := cache.DerivativeKey(src, params.Width, params.Quality)
	logger := p.logger.With().Str("source", src).Int("width", params.Width).Int("quality", params.Quality).Logger()

	if data, ok := cache.Lookup(ctx, p.cache, key, logger); ok {
		requestsTotal.WithLabelValues(string(CacheHit)).Inc()
		logger.Debug().Int("bytes", len(data)).Msg("Derivative served from cache")
		return &Result{
			Data:          data,
			ContentType:   transform.ContentType,
			CacheStatus:   CacheHit,
			OptimizedSize: len(data),
		}, nil
	}

	if p.group == nil {
		result, err := p.compute(ctx, src, params, key, logger)
		if err != nil {
			return nil, p.fail(err)
		}
		requestsTotal.WithLabelValues(string(CacheMiss)).Inc()
		return result, nil
	}

	ch := p.group.DoChan(key.String(), func() (any, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.shared)
		defer cancel()
		return p.compute(sharedCtx, src, params, key, logger)
	})

	select {
	case <-ctx.Done():
		return nil, p.fail(&Error{Kind: KindCanceled, Source: src, Err: ctx.Err()})
	case res := <-ch:
		if res.Shared {
			singleflightSharedTotal.Inc()
		}
		if res.Err != nil {
			return nil, p.fail(res.Err)
		}
		requestsTotal.WithLabelValues(string(CacheMiss)).Inc()

		// Callers sharing a computation get their own Result header; Data is read-only.
		result := *res.Val.(*Result)
		return &result, nil
	}
}

// compute performs the miss path: fetch, transform, cache write and fallback.
func (p *Pipeline) compute(ctx context.Context, src string, params transform.Params, key cache.Key, logger zerolog.Logger) (*Result, error) {
	original, err := p.resolver.Fetch(ctx, source.Classify(src))
	if err != nil {
		kind := KindUpstream
		switch {
		case errors.Is(err, context.Canceled):
			kind = KindCanceled
		case errors.Is(err, source.ErrNotFound):
			kind = KindNotFound
		}
		return nil, &Error{Kind: kind, Source: src, Err: err}
	}
	originalSize := len(original)

	start := time.Now()
	processed, err := p.engine.Transform(ctx, original, params)
	transformDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		kind := KindTransform
		if errors.Is(err, context.Canceled) {
			kind = KindCanceled
		}
		return nil, &Error{Kind: kind, Source: src, Err: err}
	}
	optimizedSize := len(processed)
	savings := savingsPercent(originalSize, optimizedSize)

	result := &Result{
		Data:          processed,
		ContentType:   transform.ContentType,
		CacheStatus:   CacheMiss,
		OriginalSize:  originalSize,
		OptimizedSize: optimizedSize,
	}
	if savings < 0 {
		result.Data = original
		result.ServedOriginal = true
		fallbackOriginalTotal.Inc()
	} else {
		savedBytesTotal.Add(float64(originalSize - optimizedSize))
	}

	payload := processed
	if p.fallback == CacheServed {
		payload = result.Data
	}
	cache.WriteBestEffort(ctx, p.cache, key, payload, p.ttl, logger)

	logger.Info().
		Int("original_size", originalSize).
		Int("optimized_size", optimizedSize).
		Float64("savings_pct", savings).
		Bool("served_original", result.ServedOriginal).
		Dur("transform_duration", time.Since(start)).
		Msg("Derivative computed")

	return result, nil
}

// fail counts and logs a failed request and returns err unchanged.
func (p *Pipeline) fail(err error) error {
	kind := KindOf(err)
	if kind == KindCanceled {
		requestsCanceledTotal.Inc()
		p.logger.Debug().Err(err).Msg("Request abandoned by client")
		return err
	}
	requestErrorsTotal.WithLabelValues(string(kind)).Inc()

	event := p.logger.Warn()
	if kind == KindInternal || kind == KindUpstream || kind == KindTransform {
		event = p.logger.Error()
	}
	event.Err(err).Str("kind", string(kind)).Msg("Request failed")
	return err
}

func savingsPercent(originalSize, optimizedSize int) float64 {
	if originalSize <= 0 {
		return 0
	}
	return float64(originalSize-optimizedSize) / float64(originalSize) * 100
}
