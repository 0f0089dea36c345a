package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by namespace
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgproxy_cache_hits_total",
			Help: "Total number of image cache hits",
		},
		[]string{"namespace"}, // "original", "derivative"
	)

	// CacheMisses tracks cache misses by namespace
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgproxy_cache_misses_total",
			Help: "Total number of image cache misses",
		},
		[]string{"namespace"},
	)

	// CacheErrors tracks cache backend errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgproxy_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set"
	)

	// CacheWrittenBytes tracks payload bytes written by namespace
	CacheWrittenBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgproxy_cache_written_bytes_total",
			Help: "Total number of payload bytes written to the image cache",
		},
		[]string{"namespace"},
	)
)
