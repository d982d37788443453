package fetcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"net/url"
	"time"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/observability/metrics"
	"catchup-feed/internal/resilience/circuitbreaker"
	"catchup-feed/internal/resilience/retry"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

// Options controls one Fetch call.
type Options struct {
	// UseCache controls whether the cache is consulted before hitting the
	// network. Defaults to true.
	UseCache bool

	// HeadersOnly issues a HEAD instead of a GET.
	HeadersOnly bool

	// ExtraTTL is added to the parsed Expires header (or, if no Expires
	// header is present, becomes the TTL from now) — used by the hub
	// subscriber to request a long-lived refetch after a notification.
	ExtraTTL time.Duration

	// IfModifiedSince, if set, is sent as the conditional header and
	// takes precedence over any cache-derived validators. A resulting 304
	// surfaces as ErrNotModified rather than a cache-reuse.
	IfModifiedSince time.Time
}

// DefaultOptions returns the spec's documented defaults.
func DefaultOptions() Options {
	return Options{UseCache: true}
}

// Fetcher implements the URL fetcher/cache described by the normalization
// pipeline: conditional GET, 301-recorded/302-followed redirect chains,
// and TTL memoization, wrapped in the same retry+circuit-breaker pattern
// the RSS fetch path uses for every outbound HTTP call.
type Fetcher struct {
	client         *http.Client
	cache          *Cache
	cfg            Config
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	group          singleflight.Group
}

// New creates a Fetcher backed by cache, using cfg for timeouts/limits.
func New(cache *Cache, cfg Config) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			// Redirects are followed manually so 301 and 302/303 can be
			// told apart and recorded on the FeedResource.
			CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		cache:          cache,
		cfg:            cfg,
		circuitBreaker: circuitbreaker.New(circuitbreaker.FeedFetchConfig()),
		retryConfig:    retry.FeedFetchConfig(),
	}
}

// Fetch retrieves url per the fetcher/cache algorithm: cache lookup,
// conditional request, manual redirect-chain walk, and TTL storage.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts Options) (*entity.FeedResource, error) {
	start := time.Now()
	now := start.UTC()

	var cached *entity.FeedResource
	if opts.UseCache {
		if c, ok := f.cache.Get(rawURL); ok {
			cached = c
			if !c.Expired(now) && c.Valid(opts.HeadersOnly) {
				metrics.RecordCacheHit()
				metrics.RecordFetchDuration("success", time.Since(start))
				return c, nil
			}
		}
	}
	metrics.RecordCacheMiss()

	result, err, _ := f.group.Do(rawURL, func() (interface{}, error) {
		return f.doFetchWithResilience(ctx, rawURL, cached, opts, now)
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrNotModified) {
			outcome = "not_modified"
		}
		metrics.RecordFetchDuration(outcome, time.Since(start))
		return nil, err
	}
	resource := result.(*entity.FeedResource)
	f.cache.Set(rawURL, resource)
	metrics.RecordFetchDuration("success", time.Since(start))
	metrics.RecordFetchBodySize(len(resource.Content))
	return resource, nil
}

func (f *Fetcher) doFetchWithResilience(ctx context.Context, rawURL string, cached *entity.FeedResource, opts Options, now time.Time) (*entity.FeedResource, error) {
	var resource *entity.FeedResource
	var notModified bool

	retryErr := retry.WithBackoff(ctx, f.retryConfig, func() error {
		cbResult, err := f.circuitBreaker.Execute(func() (interface{}, error) {
			return f.walkRedirects(ctx, rawURL, cached, opts, now)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("feed fetch circuit breaker open, request rejected",
					slog.String("url", rawURL),
					slog.String("state", f.circuitBreaker.State().String()))
			}
			if errors.Is(err, ErrNotModified) {
				notModified = true
				return nil
			}
			return err
		}
		resource = cbResult.(*entity.FeedResource)
		return nil
	})

	if notModified {
		return nil, ErrNotModified
	}
	if retryErr != nil {
		return nil, retryErr
	}
	return resource, nil
}

// walkRedirects performs the actual network fetch: builds the conditional
// request, follows 302/303 redirects up to MaxRedirects while recording
// every hop, and stops (without following) on a 301, recording it as
// PermanentRedirect.
func (f *Fetcher) walkRedirects(ctx context.Context, rawURL string, cached *entity.FeedResource, opts Options, now time.Time) (*entity.FeedResource, error) {
	method := http.MethodGet
	if opts.HeadersOnly {
		method = http.MethodHead
	}

	currentURL := rawURL
	chain := make([]string, 0, 4)
	var permanentRedirect string
	var resp *http.Response

redirectLoop:
	for hop := 0; ; hop++ {
		req, err := http.NewRequestWithContext(ctx, method, currentURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", UserAgent)

		if hop == 0 {
			applyConditionalHeaders(req, cached, opts)
		}

		resp, err = f.client.Do(req)
		if err != nil {
			return nil, err
		}
		chain = append(chain, currentURL)

		switch resp.StatusCode {
		case http.StatusMovedPermanently:
			permanentRedirect = resp.Header.Get("Location")
			break redirectLoop
		case http.StatusFound, http.StatusSeeOther:
			loc := resp.Header.Get("Location")
			next, err := resolveRedirect(currentURL, loc)
			_ = resp.Body.Close()
			if loc == "" {
				return nil, errors.New("fetcher: redirect without Location header")
			}
			if err != nil {
				return nil, err
			}
			if hop+1 >= f.cfg.MaxRedirects {
				return nil, ErrTooManyRedirects
			}
			currentURL = next
			continue
		default:
			break redirectLoop
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotModified {
		if !opts.IfModifiedSince.IsZero() {
			return nil, ErrNotModified
		}
		if cached != nil {
			refreshed := *cached
			refreshed.LastModifiedLocal = now
			return &refreshed, nil
		}
		return nil, ErrNotModified
	}

	if permanentRedirect == "" && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return nil, &retry.HTTPError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	var body []byte
	if !opts.HeadersOnly {
		limited := io.LimitReader(resp.Body, f.cfg.MaxBodySize+1)
		b, err := io.ReadAll(limited)
		if err != nil {
			return nil, err
		}
		if int64(len(b)) > f.cfg.MaxBodySize {
			return nil, errors.New("fetcher: response body exceeds max size")
		}
		body = b
	}

	expires := parseHeaderDate(resp.Header.Get("Expires"))
	lastModified := parseHeaderDate(resp.Header.Get("Last-Modified"))

	if opts.ExtraTTL > 0 {
		if !expires.IsZero() {
			expires = expires.Add(opts.ExtraTTL)
		} else {
			expires = now.Add(opts.ExtraTTL)
		}
	}

	sanitized, err := SanitizeChain(rawURL, chain)
	if err != nil {
		return nil, err
	}

	finalURL := sanitized[len(sanitized)-1]

	contentLength := resp.ContentLength
	if contentLength < 0 {
		contentLength = int64(len(body))
	}

	return &entity.FeedResource{
		URL:                  finalURL,
		URLs:                 sanitized,
		PermanentRedirect:    permanentRedirect,
		Content:              body,
		ContentType:          resp.Header.Get("Content-Type"),
		Length:               contentLength,
		ETag:                 resp.Header.Get("ETag"),
		LastModifiedUpstream: lastModified,
		LastModifiedLocal:    now,
		Expires:              expires,
	}, nil
}

func applyConditionalHeaders(req *http.Request, cached *entity.FeedResource, opts Options) {
	if !opts.IfModifiedSince.IsZero() {
		req.Header.Set("If-Modified-Since", opts.IfModifiedSince.UTC().Format(http.TimeFormat))
		return
	}
	if cached == nil {
		return
	}
	if !cached.LastModifiedUpstream.IsZero() {
		req.Header.Set("If-Modified-Since", cached.LastModifiedUpstream.UTC().Format(http.TimeFormat))
	}
	if cached.ETag != "" {
		req.Header.Set("If-None-Match", cached.ETag)
	}
}

// parseHeaderDate parses an RFC-2822 ("RFC 822 updated by RFC 1123")
// HTTP date header, returning the zero Time if absent or unparseable.
func parseHeaderDate(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := http.ParseTime(value); err == nil {
		return t.UTC()
	}
	if t, err := mail.ParseDate(value); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func resolveRedirect(base, location string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	locURL, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(locURL).String(), nil
}
