package parse

import (
	"html"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"catchup-feed/internal/domain/entity"
)

var (
	brTagRe   = regexp.MustCompile(`(?i)<br\s*/?>`)
	liOpenRe  = regexp.MustCompile(`(?i)<li[^>]*>`)
	liCloseRe = regexp.MustCompile(`(?i)</li\s*>`)
	ulTagRe   = regexp.MustCompile(`(?i)</?ul[^>]*>`)
	pTagRe    = regexp.MustCompile(`(?i)</?p[^>]*>`)
	anyTagRe  = regexp.MustCompile(`<[^>]+>`)
)

// applyTextProcessing runs strip_html or markdown over every text
// field of feed except the fixed exclusion set (link, urls,
// new_location, logo, hubs, http_etag, flattr, license).
func applyTextProcessing(feed *entity.Feed, mode string) {
	transform := stripHTML
	if mode == "markdown" {
		transform = toMarkdown
	}

	feed.Title = transform(feed.Title)
	feed.Description = transform(feed.Description)
	feed.Author = transform(feed.Author)

	for i := range feed.Episodes {
		ep := &feed.Episodes[i]
		ep.Title = transform(ep.Title)
		ep.ShortTitle = transform(ep.ShortTitle)
		ep.Description = transform(ep.Description)
		ep.Content = transform(ep.Content)
		ep.Author = transform(ep.Author)
	}
}

// stripHTML is a direct port of the original's regex-based tag/entity
// stripping: block-level tags become newlines or "* " bullets, any
// remaining tag is dropped, and numeric + named entities are decoded.
func stripHTML(s string) string {
	s = brTagRe.ReplaceAllString(s, "\n")
	s = liOpenRe.ReplaceAllString(s, "* ")
	s = liCloseRe.ReplaceAllString(s, "\n")
	s = ulTagRe.ReplaceAllString(s, "\n")
	s = pTagRe.ReplaceAllString(s, "\n")
	s = anyTagRe.ReplaceAllString(s, "")
	return strings.TrimSpace(html.UnescapeString(s))
}

func toMarkdown(s string) string {
	converted, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		return s
	}
	return converted
}
