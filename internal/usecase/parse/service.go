// Package parse implements the dispatcher and post-processing stage
// that turn fetched feed resources into normalized entity.Feed
// documents: adapter selection, the "follow RSS-level permanent
// redirects" work-list discipline, and the common-title/numbering/
// content-type/logo/text normalization pass.
package parse

import (
	"context"
	"errors"
	"sync"
	"time"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/infra/fetcher"
	"catchup-feed/internal/infra/scraper"
	"catchup-feed/internal/observability/metrics"

	"golang.org/x/sync/errgroup"
)

// Options controls one parse request, mirroring the /parse query
// parameters.
type Options struct {
	InlineLogo      bool
	ScaleLogo       int
	LogoFormat      string // "png" | "jpeg" | ""
	StripHTML       bool   // deprecated shorthand for ProcessText == "strip_html"
	ProcessText     string // "strip_html" | "markdown" | "none" | ""
	UseCache        bool
	IfModifiedSince time.Time
}

// Service is the Dispatcher + Normalizer pair that implements
// ParseOne/ParseBatch.
type Service struct {
	dispatcher *scraper.Dispatcher
	fetcher    *fetcher.Fetcher
	normalizer *Normalizer
}

// NewService wires a Service from its fetcher, adapter dispatcher and
// normalizer.
func NewService(f *fetcher.Fetcher, dispatcher *scraper.Dispatcher, normalizer *Normalizer) *Service {
	return &Service{dispatcher: dispatcher, fetcher: f, normalizer: normalizer}
}

// ParseOne fetches and normalizes a single feed URL.
//
// A (nil, nil) result means the fetcher signaled NotModified: the
// caller should skip this URL entirely, not treat it as an error. Any
// fetch-feed or adapter failure is absorbed into a stub Feed (per the
// "no feed error aborts a batch" rule) rather than returned as an
// error.
func (s *Service) ParseOne(ctx context.Context, rawURL string, opts Options) (*entity.Feed, error) {
	fetchOpts := fetcher.DefaultOptions()
	fetchOpts.UseCache = opts.UseCache
	fetchOpts.IfModifiedSince = opts.IfModifiedSince

	res, err := s.fetcher.Fetch(ctx, rawURL, fetchOpts)
	if err != nil {
		if errors.Is(err, fetcher.ErrNotModified) {
			return nil, nil
		}
		stub := entity.StubFeed(rawURL, err)
		return &stub, nil
	}

	adapter := s.dispatcher.For(rawURL)
	feed, err := adapter.Parse(ctx, res, rawURL)
	if err != nil {
		metrics.RecordAdapterParseError(adapter.Name())
		stub := entity.StubFeed(rawURL, err)
		return &stub, nil
	}

	normalizeStart := time.Now()
	s.normalizer.Normalize(ctx, &feed, opts)
	metrics.RecordNormalizeDuration(time.Since(normalizeStart))
	return &feed, nil
}

// ParseBatch parses feedURLs, following RSS-level permanent redirects:
// whenever a parsed Feed carries a new_location not already visited,
// that URL is appended to the work list so the redirect target is
// parsed too. A visited set prevents cycles. Results are returned in
// completion order.
func (s *Service) ParseBatch(ctx context.Context, feedURLs []string, opts Options) ([]entity.Feed, error) {
	visited := make(map[string]bool, len(feedURLs))
	workList := make([]string, len(feedURLs))
	copy(workList, feedURLs)
	for _, u := range feedURLs {
		visited[u] = true
	}

	var (
		mu      sync.Mutex
		results []entity.Feed
	)

	for len(workList) > 0 {
		batch := workList
		workList = nil

		g, gctx := errgroup.WithContext(ctx)
		for _, rawURL := range batch {
			rawURL := rawURL
			g.Go(func() error {
				feed, err := s.ParseOne(gctx, rawURL, opts)
				if err != nil {
					return err
				}
				if feed == nil {
					return nil
				}

				mu.Lock()
				defer mu.Unlock()
				results = append(results, *feed)
				if feed.NewLocation != "" && !visited[feed.NewLocation] {
					visited[feed.NewLocation] = true
					workList = append(workList, feed.NewLocation)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	return results, nil
}
