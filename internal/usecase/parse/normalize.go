package parse

import (
	"context"
	"encoding/base64"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/infra/fetcher"
	"catchup-feed/internal/infra/mimetype"
)

// Normalizer implements the post-processing stage applied to every
// adapter-produced Feed: common-title stripping, episode numbering,
// content-type summary, optional inline logo, and optional text
// processing.
type Normalizer struct {
	fetcher *fetcher.Fetcher
}

// NewNormalizer creates a Normalizer; fetcher is used for the optional
// inline-logo fetch, routed through the same cache as everything else.
func NewNormalizer(f *fetcher.Fetcher) *Normalizer {
	return &Normalizer{fetcher: f}
}

// Normalize applies every post-processing operation to feed in place.
func (n *Normalizer) Normalize(ctx context.Context, feed *entity.Feed, opts Options) {
	applyCommonTitle(feed)
	assignContentTypes(feed)

	if opts.InlineLogo && feed.Logo != "" {
		n.inlineLogo(ctx, feed, opts)
	}

	mode := opts.ProcessText
	if mode == "" && opts.StripHTML {
		mode = "strip_html"
	}
	if mode != "" && mode != "none" {
		applyTextProcessing(feed, mode)
	}
}

// assignContentTypes fills feed.ContentTypes from the mimetypes of
// every File across every episode, unless a source adapter already
// fixed content_types to an override value (YouTube/Vimeo/Soundcloud/
// FM4 all set a constant list; only the generic adapter relies on this
// default).
func assignContentTypes(feed *entity.Feed) {
	if len(feed.ContentTypes) > 0 {
		return
	}

	var mimetypes []string
	for _, ep := range feed.Episodes {
		for _, f := range ep.Files {
			mimetypes = append(mimetypes, f.Mimetype)
		}
	}

	categories := mimetype.SummarizeTypes(mimetypes)
	types := make([]string, 0, len(categories))
	for _, c := range categories {
		types = append(types, string(c))
	}
	feed.ContentTypes = types
}

func (n *Normalizer) inlineLogo(ctx context.Context, feed *entity.Feed, opts Options) {
	res, err := n.fetcher.Fetch(ctx, feed.Logo, fetcher.DefaultOptions())
	if err != nil {
		feed.AddWarning("fetch-logo", err.Error())
		return
	}

	data := res.Content
	mt := res.ContentType

	if opts.ScaleLogo > 0 || opts.LogoFormat != "" {
		transformed, transformedType, err := transformImage(data, opts.ScaleLogo, opts.LogoFormat)
		if err != nil {
			feed.AddWarning("fetch-logo", err.Error())
			return
		}
		data = transformed
		mt = transformedType
	}

	feed.LogoData = "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(data)
}
