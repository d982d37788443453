// Package fetcher implements the URL fetcher/cache: conditional HTTP GET,
// redirect-chain collection (301 recorded, not followed; 302/303
// followed), and TTL-based memoization with per-URL request coalescing.
package fetcher

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// UserAgent is the fixed outbound User-Agent every fetch identifies itself
// with.
const UserAgent = "catchup-feed-normalizer/1.0 (+https://github.com/yujitsuchiya/catchup-feed)"

// Config holds the configuration for the URL fetcher.
type Config struct {
	// Timeout is the maximum duration for a single HTTP request
	// (including following the redirect chain).
	Timeout time.Duration

	// MaxRedirects is the maximum number of 302/303 hops to follow before
	// giving up with ErrTooManyRedirects.
	MaxRedirects int

	// MaxBodySize is the maximum response body size read into memory.
	MaxBodySize int64
}

// DefaultConfig returns production-ready fetcher defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      10 * time.Second,
		MaxRedirects: 10,
		MaxBodySize:  10 * 1024 * 1024, // 10MB
	}
}

// Validate checks the configuration for sane bounds.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.MaxRedirects < 0 || c.MaxRedirects > 20 {
		return fmt.Errorf("max redirects must be between 0 and 20, got %d", c.MaxRedirects)
	}
	if c.MaxBodySize < 1024 || c.MaxBodySize > 100*1024*1024 {
		return fmt.Errorf("max body size must be between 1KB and 100MB, got %d", c.MaxBodySize)
	}
	return nil
}

// LoadConfigFromEnv loads fetcher configuration from environment variables,
// falling back to defaults on missing/invalid values.
//
// Environment variables:
//   - FETCHER_TIMEOUT: duration string, e.g. "10s" (default: 10s)
//   - FETCHER_MAX_REDIRECTS: integer (default: 10)
//   - FETCHER_MAX_BODY_SIZE: integer in bytes (default: 10485760)
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if val := os.Getenv("FETCHER_TIMEOUT"); val != "" {
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return cfg, fmt.Errorf("invalid FETCHER_TIMEOUT: %v", err)
		}
		cfg.Timeout = parsed
	}

	if val := os.Getenv("FETCHER_MAX_REDIRECTS"); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return cfg, fmt.Errorf("invalid FETCHER_MAX_REDIRECTS: %v", err)
		}
		cfg.MaxRedirects = parsed
	}

	if val := os.Getenv("FETCHER_MAX_BODY_SIZE"); val != "" {
		parsed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid FETCHER_MAX_BODY_SIZE: %v", err)
		}
		cfg.MaxBodySize = parsed
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}
