package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Sternrassler/image-optimizer/pkg/metrics"
	"github.com/Sternrassler/image-optimizer/pkg/pipeline"
	"github.com/Sternrassler/image-optimizer/pkg/warm"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// cacheControl lets downstream caches keep derivatives for a week.
	cacheControl = "public, max-age=604800"

	requestIDHeader = "X-Request-ID"

	maxWarmBody = 1 << 20
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// warmResponse is the JSON body of POST /warm.
type warmResponse struct {
	Outcomes []warm.Outcome `json:"outcomes"`
	Failed   int            `json:"failed"`
}

func newRouter(svc *services) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(svc.pipeline))
	mux.HandleFunc("GET /optimize", optimizeHandler(svc.pipeline))
	mux.HandleFunc("POST /warm", warmHandler(svc.warmer))
	mux.Handle("GET /metrics", metrics.Handler())
	return withRequestID(mux)
}

// withRequestID tags each request with an ID and a logger carrying it.
// An incoming X-Request-ID is reused.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		logger := log.With().Str("component", "http").Str("request_id", id).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func readyHandler(p *pipeline.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Cache-Enabled", strconv.FormatBool(p.CacheEnabled()))
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}

func optimizeHandler(p *pipeline.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := zerolog.Ctx(r.Context())
		query := r.URL.Query()

		result, err := p.ServeRequest(r.Context(), query.Get("src"), query.Get("w"), query.Get("q"))
		if err != nil {
			writeError(w, err)
			return
		}

		h := w.Header()
		h.Set("Content-Type", result.ContentType)
		h.Set("Content-Length", strconv.Itoa(len(result.Data)))
		h.Set("Cache-Control", cacheControl)
		h.Set("X-Cache", string(result.CacheStatus))
		h.Set("X-Optimized-Size", strconv.Itoa(result.OptimizedSize))
		if result.CacheStatus == pipeline.CacheMiss {
			h.Set("X-Original-Size", strconv.Itoa(result.OriginalSize))
		}
		if result.ServedOriginal {
			h.Set("X-Served-Original", "true")
		}
		w.WriteHeader(http.StatusOK)

		if _, err := w.Write(result.Data); err != nil {
			logger.Warn().Err(err).Msg("Failed to write response")
			return
		}

		logger.Debug().
			Str("source", query.Get("src")).
			Str("cache_status", string(result.CacheStatus)).
			Int("bytes", len(result.Data)).
			Msg("Request served")
	}
}

func warmHandler(warmer *warm.Warmer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var requests []warm.Request
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWarmBody)).Decode(&requests); err != nil {
			writeError(w, &pipeline.Error{Kind: pipeline.KindInvalidRequest, Err: fmt.Errorf("invalid warm body: %w", err)})
			return
		}
		if len(requests) == 0 {
			writeError(w, &pipeline.Error{Kind: pipeline.KindInvalidRequest, Err: errors.New("warm body must list at least one item")})
			return
		}

		outcomes, err := warmer.Warm(r.Context(), requests)
		resp := warmResponse{Outcomes: outcomes}
		for _, o := range outcomes {
			if o.Err != nil {
				resp.Failed++
			}
		}
		if err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Int("failed", resp.Failed).Msg("Warm finished with errors")
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// writeError maps err to its status code and writes the JSON error body.
// Server-side failures are reported without their internal detail.
func writeError(w http.ResponseWriter, err error) {
	status := pipeline.StatusCode(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: message, Kind: string(pipeline.KindOf(err))})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("Failed to write JSON response")
	}
}
