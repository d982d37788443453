package metrics

import "time"

// RecordCacheHit records a fetcher cache hit (fresh entry, no network call).
func RecordCacheHit() {
	FetchCacheResultTotal.WithLabelValues("hit").Inc()
}

// RecordCacheMiss records a fetcher cache miss (no entry, or expired).
func RecordCacheMiss() {
	FetchCacheResultTotal.WithLabelValues("miss").Inc()
}

// RecordFetchDuration records the duration of one Fetcher.Fetch call by
// outcome ("success", "not_modified", "error").
func RecordFetchDuration(outcome string, duration time.Duration) {
	FetchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordFetchBodySize records the size of a fetched response body.
func RecordFetchBodySize(size int) {
	FetchBodySize.Observe(float64(size))
}

// RecordAdapterDispatch records that adapter was selected to parse a URL.
func RecordAdapterDispatch(adapter string) {
	AdapterDispatchTotal.WithLabelValues(adapter).Inc()
}

// RecordAdapterParseError records a source adapter Parse failure.
func RecordAdapterParseError(adapter string) {
	AdapterParseErrorsTotal.WithLabelValues(adapter).Inc()
}

// RecordNormalizeDuration records the duration of one normalization pass.
func RecordNormalizeDuration(duration time.Duration) {
	NormalizeDuration.Observe(duration.Seconds())
}
