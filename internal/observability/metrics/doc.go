// Package metrics provides Prometheus metrics for the fetch/dispatch/
// normalize pipeline behind /parse: fetcher cache hit/miss and fetch
// duration, source-adapter dispatch counts and parse errors, and the
// normalization pass duration.
//
// These are distinct from the HTTP-layer request metrics registered in
// internal/handler/http, which track request counts/sizes/durations
// rather than pipeline internals.
//
// Example usage:
//
//	import "catchup-feed/internal/observability/metrics"
//
//	func (s *Service) ParseOne(ctx context.Context, rawURL string, opts Options) (*entity.Feed, error) {
//	    start := time.Now()
//	    // ... fetch and normalize ...
//	    metrics.RecordNormalizeDuration(time.Since(start))
//	}
package metrics
