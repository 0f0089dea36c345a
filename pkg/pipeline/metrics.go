package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for pipeline operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imgproxy_requests_total",
		Help: "Total pipeline requests by cache status",
	}, []string{"cache_status"})

	requestErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imgproxy_request_errors_total",
		Help: "Total pipeline failures by kind",
	}, []string{"kind"})

	requestsCanceledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imgproxy_requests_canceled_total",
		Help: "Total requests abandoned because the client went away",
	})

	transformDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "imgproxy_transform_duration_seconds",
		Help:    "Transform duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	fallbackOriginalTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imgproxy_fallback_original_total",
		Help: "Total responses that served the original because the transform grew the payload",
	})

	savedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imgproxy_saved_bytes_total",
		Help: "Total bytes saved by transforms that shrank the payload",
	})

	singleflightSharedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imgproxy_singleflight_shared_total",
		Help: "Total requests that shared an in-flight computation for the same derivative",
	})
)
