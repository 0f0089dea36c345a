package warm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/image-optimizer/pkg/pipeline"
	"github.com/Sternrassler/image-optimizer/pkg/transform"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var warmItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "imgproxy_warm_items_total",
	Help: "Total warm items by result (hit, miss, error)",
}, []string{"result"})

// Config holds warmer configuration.
type Config struct {
	// MaxConcurrency is the number of parallel workers
	MaxConcurrency int

	// Timeout bounds a single item
	Timeout time.Duration
}

// DefaultConfig returns the default warmer configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        30 * time.Second,
	}
}

// Server serves a single derivative. *pipeline.Pipeline implements it.
type Server interface {
	Serve(ctx context.Context, src string, params transform.Params) (*pipeline.Result, error)
}

// Request names a derivative to precompute.
type Request struct {
	Source string `json:"src"`
	Width  int    `json:"w,omitempty"`

	// Quality defaults to transform.DefaultQuality when nil
	Quality *int `json:"q,omitempty"`
}

// Quality returns a pointer to q for use in Request literals.
func Quality(q int) *int {
	return &q
}

// Params converts the request into transform params.
func (r Request) Params() transform.Params {
	params := transform.Params{Width: r.Width, Quality: transform.DefaultQuality}
	if r.Quality != nil {
		params.Quality = *r.Quality
	}
	return params
}

// Outcome is the result of warming one request.
type Outcome struct {
	Request     Request              `json:"request"`
	CacheStatus pipeline.CacheStatus `json:"cache_status,omitempty"`
	Size        int                  `json:"size,omitempty"`
	Err         error                `json:"-"`
	Error       string               `json:"error,omitempty"`
}

type job struct {
	index   int
	request Request
}

// Warmer precomputes derivatives over a worker pool.
type Warmer struct {
	server Server
	config Config
	logger zerolog.Logger
}

// New creates a warmer.
func New(server Server, config Config) *Warmer {
	if server == nil {
		panic("warm: server cannot be nil")
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	return &Warmer{
		server: server,
		config: config,
		logger: log.With().Str("component", "warm").Logger(),
	}
}

// Warm serves every request and returns their outcomes in request order.
// The returned error is the first item failure, or the context error when ctx
// ended before every item ran; outcomes are returned in both cases.
func (w *Warmer) Warm(ctx context.Context, requests []Request) ([]Outcome, error) {
	start := time.Now()
	outcomes := make([]Outcome, len(requests))
	for i, req := range requests {
		outcomes[i].Request = req
	}
	if len(requests) == 0 {
		return outcomes, nil
	}

	workers := w.config.MaxConcurrency
	if workers > len(requests) {
		workers = len(requests)
	}

	queue := make(chan job, len(requests))
	firstErr := make(chan error, 1)
	done := make([]bool, len(requests))

	for i, req := range requests {
		queue <- job{index: i, request: req}
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go w.worker(ctx, queue, outcomes, done, firstErr, &wg, i)
	}
	wg.Wait()

	var err error
	select {
	case err = <-firstErr:
	default:
	}

	completed := 0
	for i, ok := range done {
		if ok {
			completed++
			continue
		}
		outcomes[i].Err = ctx.Err()
		if outcomes[i].Err != nil {
			outcomes[i].Error = outcomes[i].Err.Error()
		}
	}
	if completed < len(requests) && err == nil {
		err = fmt.Errorf("warm interrupted (%d/%d items): %w", completed, len(requests), ctx.Err())
	}

	w.logger.Info().
		Int("items", len(requests)).
		Int("completed", completed).
		Int("workers", workers).
		Dur("duration", time.Since(start)).
		Msg("Warm complete")

	return outcomes, err
}

// worker processes jobs until the queue drains or ctx ends. Each worker owns
// the outcome slots of the jobs it receives.
func (w *Warmer) worker(ctx context.Context, queue <-chan job, outcomes []Outcome, done []bool, firstErr chan<- error, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for j := range queue {
		select {
		case <-ctx.Done():
			w.logger.Debug().
				Int("worker_id", workerID).
				Int("items_processed", processed).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		itemCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
		result, err := w.server.Serve(itemCtx, j.request.Source, j.request.Params())
		cancel()

		outcome := &outcomes[j.index]
		done[j.index] = true
		processed++

		if err != nil {
			warmItemsTotal.WithLabelValues("error").Inc()
			outcome.Err = err
			outcome.Error = err.Error()
			w.logger.Warn().
				Err(err).
				Int("worker_id", workerID).
				Str("source", j.request.Source).
				Msg("Warm item failed")

			select {
			case firstErr <- err:
			default:
			}
			continue
		}

		outcome.CacheStatus = result.CacheStatus
		outcome.Size = len(result.Data)
		if result.CacheStatus == pipeline.CacheHit {
			warmItemsTotal.WithLabelValues("hit").Inc()
		} else {
			warmItemsTotal.WithLabelValues("miss").Inc()
		}
	}

	if processed > 0 {
		w.logger.Debug().
			Int("worker_id", workerID).
			Int("items_processed", processed).
			Msg("Worker completed")
	}
}
