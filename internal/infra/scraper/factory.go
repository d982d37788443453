package scraper

import (
	"context"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/infra/fetcher"
	"catchup-feed/internal/observability/metrics"
)

// Adapter extracts a normalized Feed from an already-fetched
// FeedResource. HandlesURL is consulted in dispatcher order; Parse is
// only ever invoked on the first adapter whose predicate matches.
type Adapter interface {
	HandlesURL(rawURL string) bool
	Parse(ctx context.Context, res *entity.FeedResource, rawURL string) (entity.Feed, error)

	// Name identifies the adapter for dispatch metrics, e.g. "youtube".
	Name() string
}

// Dispatcher selects the adapter for a URL following the fixed source
// precedence: YouTube, Vimeo, Soundcloud, Soundcloud favorites, FM4 On
// Demand, then the generic RSS/Atom fallback.
type Dispatcher struct {
	adapters []Adapter
}

// NewDispatcher builds the ordered adapter list, wiring f into every
// adapter that needs to issue its own follow-up fetches.
func NewDispatcher(f *fetcher.Fetcher) *Dispatcher {
	generic := NewGenericAdapter()
	return &Dispatcher{adapters: []Adapter{
		NewYoutubeAdapter(f, generic),
		NewVimeoAdapter(f),
		NewSoundcloudAdapter(f, false),
		NewSoundcloudAdapter(f, true),
		NewFM4Adapter(),
		generic,
	}}
}

// For returns the first adapter whose predicate matches rawURL. The
// generic adapter always matches, so this never returns nil.
func (d *Dispatcher) For(rawURL string) Adapter {
	for _, a := range d.adapters {
		if a.HandlesURL(rawURL) {
			metrics.RecordAdapterDispatch(a.Name())
			return a
		}
	}
	return nil
}
