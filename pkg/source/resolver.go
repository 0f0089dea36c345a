package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/image-optimizer/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for source fetches.
var (
	sourceFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imgproxy_source_fetches_total",
		Help: "Total source fetches by kind and result",
	}, []string{"kind", "result"})

	sourceFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "imgproxy_source_fetch_duration_seconds",
		Help:    "Source fetch duration in seconds by kind",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"kind"})
)

// DefaultMaxBytes caps the size of a fetched source.
const DefaultMaxBytes int64 = 32 << 20

// ObjectStore reads raw objects by key.
// Implementations return ErrNoSuchKey (possibly wrapped) for a missing key.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Config holds the resolver configuration.
type Config struct {
	// HTTPClient performs remote fetches (default: 30s timeout client)
	HTTPClient *http.Client

	// Objects serves store keys; nil means store keys cannot be resolved
	Objects ObjectStore

	// Cache holds original bytes for store keys; nil disables it
	Cache cache.Store

	// CacheTTL is applied to original-bytes entries
	CacheTTL time.Duration

	// MaxBytes caps the size of a fetched source
	MaxBytes int64

	// UserAgent is sent with remote fetches when set
	UserAgent string
}

// DefaultConfig returns a configuration with a bounded HTTP client and no object store.
func DefaultConfig() Config {
	return Config{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Cache:      cache.Disabled{},
		CacheTTL:   cache.DefaultTTL,
		MaxBytes:   DefaultMaxBytes,
	}
}

// Resolver fetches source bytes from remote URLs or the object store.
type Resolver struct {
	httpClient *http.Client
	objects    ObjectStore
	cache      cache.Store
	config     Config
	logger     zerolog.Logger
}

// NewResolver creates a new resolver.
func NewResolver(cfg Config) *Resolver {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.Disabled{}
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}

	return &Resolver{
		httpClient: cfg.HTTPClient,
		objects:    cfg.Objects,
		cache:      cfg.Cache,
		config:     cfg,
		logger:     log.With().Str("component", "source-resolver").Logger(),
	}
}

// Fetch returns the bytes of src.
// Missing sources yield an error matching ErrNotFound; every other failure is a *FetchError.
func (r *Resolver) Fetch(ctx context.Context, src Source) ([]byte, error) {
	startTime := time.Now()
	defer func() {
		sourceFetchDuration.WithLabelValues(src.Kind().String()).Observe(time.Since(startTime).Seconds())
	}()

	var (
		data []byte
		err  error
	)
	switch src.Kind() {
	case KindRemoteURL:
		data, err = r.fetchRemote(ctx, src)
	case KindStoreKey:
		data, err = r.fetchStored(ctx, src)
	default:
		err = fmt.Errorf("unknown source kind %d", src.Kind())
	}

	sourceFetchesTotal.WithLabelValues(src.Kind().String(), fetchResult(err)).Inc()
	return data, err
}

// fetchRemote issues exactly one GET; failures are never retried.
func (r *Resolver) fetchRemote(ctx context.Context, src Source) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.String(), nil)
	if err != nil {
		return nil, &FetchError{Source: src.String(), ErrorClass: ErrorClassClient, Err: err}
	}
	if r.config.UserAgent != "" {
		req.Header.Set("User-Agent", r.config.UserAgent)
	}
	req.Header.Set("Accept", "image/*")

	r.logger.Debug().Str("source", src.String()).Msg("Fetching remote source")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Warn().Err(err).Str("source", src.String()).Msg("Remote fetch failed")
		return nil, &FetchError{Source: src.String(), ErrorClass: ErrorClassNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fetchErr := &FetchError{
			Source:     src.String(),
			StatusCode: resp.StatusCode,
			ErrorClass: classifyStatus(resp.StatusCode),
			Err:        errors.New(resp.Status),
		}
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			fetchErr.Err = ErrNotFound
		}

		r.logger.Warn().
			Str("source", src.String()).
			Int("status", resp.StatusCode).
			Str("error_class", string(fetchErr.ErrorClass)).
			Msg("Remote origin returned error status")
		return nil, fetchErr
	}

	data, err := r.readLimited(resp.Body)
	if err != nil {
		return nil, &FetchError{Source: src.String(), StatusCode: resp.StatusCode, ErrorClass: ErrorClassNetwork, Err: err}
	}
	return data, nil
}

// fetchStored consults the original-bytes cache before the object store and
// populates it after a successful store read.
func (r *Resolver) fetchStored(ctx context.Context, src Source) ([]byte, error) {
	key := cache.OriginalKey(src.String())

	if data, ok := cache.Lookup(ctx, r.cache, key, r.logger); ok {
		return data, nil
	}

	if r.objects == nil {
		return nil, &FetchError{Source: src.String(), ErrorClass: ErrorClassStore, Err: ErrStoreUnavailable}
	}

	data, err := r.objects.Get(ctx, src.String())
	if err != nil {
		if errors.Is(err, ErrNoSuchKey) {
			r.logger.Debug().Str("source", src.String()).Msg("Store key not found")
			return nil, fmt.Errorf("%w: %s", ErrNotFound, src.String())
		}
		r.logger.Warn().Err(err).Str("source", src.String()).Msg("Object store fetch failed")
		return nil, &FetchError{Source: src.String(), ErrorClass: ErrorClassStore, Err: err}
	}

	if int64(len(data)) > r.config.MaxBytes {
		return nil, &FetchError{Source: src.String(), ErrorClass: ErrorClassStore, Err: ErrTooLarge}
	}

	cache.WriteBestEffort(ctx, r.cache, key, data, r.config.CacheTTL, r.logger)
	return data, nil
}

// readLimited reads body up to MaxBytes and fails beyond it.
func (r *Resolver) readLimited(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, r.config.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > r.config.MaxBytes {
		return nil, fmt.Errorf("%w: more than %s bytes", ErrTooLarge, strconv.FormatInt(r.config.MaxBytes, 10))
	}
	return data, nil
}

func fetchResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
