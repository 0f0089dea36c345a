// Package metrics exposes the Prometheus registry and the /metrics handler.
// Collectors are defined in their own packages (cache, source, pipeline, warm)
// via promauto and register on the default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer used by every package.
var Registry = prometheus.DefaultRegisterer

var buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "imgproxy_build_info",
	Help: "Build information, value is always 1",
}, []string{"version"})

// SetBuildInfo records the running version.
func SetBuildInfo(version string) {
	buildInfo.WithLabelValues(version).Set(1)
}

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - imgproxy_cache_hits_total{namespace} (Counter): Hits by namespace (original, derivative)
//   - imgproxy_cache_misses_total{namespace} (Counter): Misses, including disabled and failed reads
//   - imgproxy_cache_errors_total{operation} (Counter): Backend errors by operation
//   - imgproxy_cache_written_bytes_total{namespace} (Counter): Bytes written
//
// Source Metrics (pkg/source):
//   - imgproxy_source_fetches_total{kind, result} (Counter): Fetches by source kind and result
//   - imgproxy_source_fetch_duration_seconds{kind} (Histogram): Fetch duration
//
// Pipeline Metrics (pkg/pipeline):
//   - imgproxy_requests_total{cache_status} (Counter): Served requests by HIT/MISS
//   - imgproxy_request_errors_total{kind} (Counter): Failures by error kind
//   - imgproxy_requests_canceled_total (Counter): Requests abandoned by the client
//   - imgproxy_transform_duration_seconds (Histogram): Transform duration
//   - imgproxy_fallback_original_total (Counter): Misses that served the original
//   - imgproxy_saved_bytes_total (Counter): Bytes saved by shrinking transforms
//   - imgproxy_singleflight_shared_total (Counter): Requests that shared a computation
//
// Warm Metrics (pkg/warm):
//   - imgproxy_warm_items_total{result} (Counter): Warm items by hit, miss, error
//
// Example Prometheus Queries:
//
//   # Derivative Hit Rate
//   sum(rate(imgproxy_requests_total{cache_status="HIT"}[5m])) /
//   sum(rate(imgproxy_requests_total[5m]))
//
//   # Not Found Rate
//   rate(imgproxy_request_errors_total{kind="not_found"}[5m])
//
//   # P95 Transform Latency
//   histogram_quantile(0.95, rate(imgproxy_transform_duration_seconds_bucket[5m]))
