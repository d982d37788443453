// Package metrics provides centralized Prometheus metrics for the
// fetch/dispatch/normalize pipeline, distinct from the HTTP-layer
// metrics registered in internal/handler/http.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics track the fetcher cache and source-adapter dispatch
// that sit behind every /parse request.
var (
	// FetchCacheResultTotal counts Fetcher.Fetch cache outcomes.
	FetchCacheResultTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetcher_cache_result_total",
			Help: "Total number of fetcher cache lookups by result",
		},
		[]string{"result"}, // result: hit, miss, stale
	)

	// FetchDuration measures the wall-clock time of one Fetcher.Fetch
	// call, including cache hits.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetcher_fetch_duration_seconds",
			Help:    "Duration of one Fetcher.Fetch call",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"}, // outcome: success, not_modified, error
	)

	// FetchBodySize measures the size of fetched response bodies.
	FetchBodySize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fetcher_body_size_bytes",
			Help:    "Size of fetched response bodies in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
	)

	// AdapterDispatchTotal counts which source adapter handled a URL.
	AdapterDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_adapter_dispatch_total",
			Help: "Total number of URLs dispatched to each source adapter",
		},
		[]string{"adapter"},
	)

	// AdapterParseErrorsTotal counts adapter Parse failures.
	AdapterParseErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_adapter_parse_errors_total",
			Help: "Total number of source adapter parse failures",
		},
		[]string{"adapter"},
	)

	// NormalizeDuration measures the post-processing normalization pass
	// (common-title/numbering/content-type/logo/text).
	NormalizeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "normalize_duration_seconds",
			Help:    "Duration of the feed normalization pass",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
	)
)
