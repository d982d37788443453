package pathutil

import (
	"regexp"
	"strings"
)

// PathPattern represents a regex pattern and its corresponding normalized template.
type PathPattern struct {
	Pattern  *regexp.Regexp
	Template string
}

// pathPatterns defines the list of patterns for dynamic routes. The parse
// and hub endpoints carry no path-embedded IDs (url[] arrives as a query
// parameter), so this list is currently empty; it exists so a future
// path-parameterized route doesn't have to reinvent the normalization
// plumbing below.
var pathPatterns = []*PathPattern{}

// NormalizePath normalizes dynamic URL paths to prevent metrics label cardinality explosion.
// Query parameters and trailing slashes are stripped unconditionally; any
// configured dynamic-route pattern is then templated.
//
// Examples:
//
//	NormalizePath("/parse?url=http://x")    // "/parse"
//	NormalizePath("/health")                // "/health" (unchanged)
//	NormalizePath("/admin/subscriptions/")  // "/admin/subscriptions"
func NormalizePath(path string) string {
	// Strip query parameters if present
	if idx := strings.IndexByte(path, '?'); idx != -1 {
		path = path[:idx]
	}

	// Strip trailing slash if present (except for root path)
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}

	// Try to match against known patterns
	for _, p := range pathPatterns {
		if p.Pattern.MatchString(path) {
			return p.Template
		}
	}

	// No match found, return original path
	// This is safe - static paths like /health, /metrics, /auth/token
	// and search endpoints like /articles/search will pass through unchanged
	return path
}

// GetExpectedCardinality returns the expected number of unique path labels
// after normalization: one per route this service exposes
// (/parse, /subscribe, /admin/subscriptions, /health, /ready, /live,
// /metrics, /auth/token, /swagger/) plus any configured dynamic pattern.
func GetExpectedCardinality() int {
	return len(pathPatterns) + 9
}
