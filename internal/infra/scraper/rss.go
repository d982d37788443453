// Package scraper adapts upstream feed and page formats into the
// normalized entity.Feed model: a generic RSS/Atom adapter built on
// gofeed, plus source-specific adapters for YouTube, Vimeo, Soundcloud
// and FM4 On Demand.
package scraper

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/infra/mimetype"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// GenericAdapter implements the Feedparser adapter: it consumes a
// FeedResource representing an RSS or Atom document and produces a
// normalized Feed. It is the dispatcher's fallback, always matching.
type GenericAdapter struct{}

// NewGenericAdapter creates the fallback RSS/Atom adapter.
func NewGenericAdapter() *GenericAdapter {
	return &GenericAdapter{}
}

// Name identifies this adapter for dispatch metrics.
func (a *GenericAdapter) Name() string { return "rss" }

// HandlesURL always returns true; this adapter is the dispatcher's
// final fallback.
func (a *GenericAdapter) HandlesURL(string) bool { return true }

// Parse extracts a Feed from res's already-fetched content. The fetch
// itself is the caller's responsibility (routed through the fetcher
// and cache) so conditional-GET and the redirect collector stay in one
// place.
func (a *GenericAdapter) Parse(_ context.Context, res *entity.FeedResource, rawURL string) (entity.Feed, error) {
	fp := gofeed.NewParser()
	parsed, err := fp.Parse(bytes.NewReader(res.Content))
	if err != nil {
		return entity.Feed{}, err
	}

	feed := entity.Feed{
		Title:       parsed.Title,
		Link:        parsed.Link,
		Description: parsed.Description,
		Language:    parsed.Language,
		URLs:        res.URLs,
	}
	if feed.Link == "" {
		feed.Link = rawURL
	}

	feed.Author = feedAuthor(parsed)
	feed.NewLocation = res.PermanentRedirect

	links := rawLinks(res.Content)
	if feed.NewLocation == "" {
		feed.NewLocation = links.newLocation
	}
	feed.Hub = links.hub
	feed.Flattr = links.payment

	feed.Logo = urlFix(feedLogo(parsed))

	feed.Tags = dedupStrings(append(append([]string{}, parsed.Categories...), links.labels...))

	feed.HTTPETag = res.ETag
	if !res.LastModifiedUpstream.IsZero() {
		feed.HTTPLastModified = res.LastModifiedUpstream.UTC().Format(time.RFC1123)
	}

	for _, item := range parsed.Items {
		feed.Episodes = append(feed.Episodes, extractEpisode(item))
	}

	return feed, nil
}

func feedAuthor(f *gofeed.Feed) string {
	if len(f.Authors) > 0 && f.Authors[0].Name != "" {
		return f.Authors[0].Name
	}
	if f.Author != nil && f.Author.Name != "" {
		return f.Author.Name
	}
	if f.ITunesExt != nil {
		return f.ITunesExt.Author
	}
	return ""
}

func feedLogo(f *gofeed.Feed) string {
	if f.Image != nil && f.Image.URL != "" {
		return f.Image.URL
	}
	if f.ITunesExt != nil && f.ITunesExt.Image != "" {
		return f.ITunesExt.Image
	}
	return ""
}

// urlFix percent-encodes the path of a URL string, leaving an empty or
// unparseable input untouched.
func urlFix(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Path = (&url.URL{Path: u.Path}).EscapedPath()
	return u.String()
}

func extractEpisode(item *gofeed.Item) entity.Episode {
	ep := entity.Episode{
		GUID:  item.GUID,
		Title: item.Title,
		Link:  item.Link,
	}

	ep.Author = episodeAuthor(item)
	ep.Description = firstNonEmpty(item.Description, itunesSubtitle(item), item.Link)
	ep.Content = item.Content

	if item.ITunesExt != nil {
		ep.Duration = parseDuration(item.ITunesExt.Duration)
	}

	released := item.UpdatedParsed
	if released == nil {
		released = item.PublishedParsed
	}
	if released != nil {
		if sec := released.Unix(); sec >= 0 {
			ep.Released = sec
		}
	}

	var files []entity.File
	for _, enc := range item.Enclosures {
		if enc.URL == "" {
			continue
		}
		files = appendClassifiedFile(files, enc.URL, enc.Type, parseIntPtr(enc.Length))
	}
	for _, mediaURL := range mediaContentURLs(item) {
		if mediaURL == "" {
			continue
		}
		files = appendClassifiedFile(files, mediaURL, "", nil)
	}
	for _, link := range item.Links {
		if mt := watchURLMimetype(link); mt != "" {
			files = appendClassifiedFile(files, link, mt, nil)
		}
	}
	ep.Files = files

	return ep
}

func episodeAuthor(item *gofeed.Item) string {
	if len(item.Authors) > 0 && item.Authors[0].Name != "" {
		return item.Authors[0].Name
	}
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	if item.ITunesExt != nil {
		return item.ITunesExt.Author
	}
	return ""
}

func itunesSubtitle(item *gofeed.Item) string {
	if item.ITunesExt != nil {
		return item.ITunesExt.Subtitle
	}
	return ""
}

func appendClassifiedFile(files []entity.File, rawURL, declaredType string, size *int64) []entity.File {
	mt := declaredType
	if mt == "" {
		mt = mimetype.Guess("", rawURL)
	}
	if mimetype.Classify(mt) == mimetype.None {
		return files
	}
	return entity.AppendUniqueFile(files, entity.File{
		URLs:     []string{rawURL},
		Mimetype: mt,
		Filesize: size,
	})
}

var (
	youtubeWatchRe = regexp.MustCompile(`(?i)^https?://(www\.)?(youtube\.com/watch|youtu\.be/)`)
	vimeoWatchRe   = regexp.MustCompile(`(?i)^https?://(www\.)?vimeo\.com/\d+`)
)

func watchURLMimetype(rawURL string) string {
	switch {
	case youtubeWatchRe.MatchString(rawURL):
		return "application/x-youtube"
	case vimeoWatchRe.MatchString(rawURL):
		return "application/x-vimeo"
	default:
		return ""
	}
}

// mediaContentURLs pulls the `url` attribute out of every
// `<media:content>` element gofeed captured as a generic extension
// (gofeed has no first-class MediaRSS support).
func mediaContentURLs(item *gofeed.Item) []string {
	media, ok := item.Extensions["media"]
	if !ok {
		return nil
	}
	contents, ok := media["content"]
	if !ok {
		return nil
	}
	urls := make([]string, 0, len(contents))
	for _, c := range contents {
		if u, ok := c.Attrs["url"]; ok && u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

func parseIntPtr(s string) *int64 {
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// parseDuration implements parse_time: "HH:MM:SS" or "MM:SS" parsed to
// seconds; a bare integer passes through.
func parseDuration(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	parts := strings.Split(s, ":")
	var seconds int64
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return 0
		}
		seconds = seconds*60 + n
	}
	return seconds
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func dedupStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}

type rawLinkInfo struct {
	hub         string
	payment     string
	newLocation string
	labels      []string
}

// rawLinks scans the raw feed bytes with goquery for the rel-typed
// <link> elements and the <newLocation> element gofeed's parsed model
// does not expose, and for category "label" attributes the RSS/Atom
// translation drops.
func rawLinks(content []byte) rawLinkInfo {
	var info rawLinkInfo
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return info
	}
	doc.Find("link").Each(func(_ int, s *goquery.Selection) {
		rel, _ := s.Attr("rel")
		href, _ := s.Attr("href")
		if href == "" {
			return
		}
		switch rel {
		case "hub":
			if info.hub == "" {
				info.hub = href
			}
		case "payment":
			if info.payment == "" {
				info.payment = href
			}
		}
	})
	doc.Find("newlocation").Each(func(_ int, s *goquery.Selection) {
		if info.newLocation == "" {
			info.newLocation = strings.TrimSpace(s.Text())
		}
	})
	doc.Find("category").Each(func(_ int, s *goquery.Selection) {
		if label, ok := s.Attr("label"); ok && label != "" {
			info.labels = append(info.labels, label)
		}
	})
	return info
}
