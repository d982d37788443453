package scraper

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"regexp"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/infra/fetcher"

	"github.com/PuerkitoBio/goquery"
)

// YoutubeAdapter rewrites legacy channel/user URL shapes into the
// current canonical videos feed before delegating extraction to the
// generic RSS/Atom adapter. content_types is always ["video"]; YouTube
// does not surface a feed logo.
type YoutubeAdapter struct {
	fetcher *fetcher.Fetcher
	generic *GenericAdapter
}

// NewYoutubeAdapter creates the YouTube source adapter.
func NewYoutubeAdapter(f *fetcher.Fetcher, generic *GenericAdapter) *YoutubeAdapter {
	return &YoutubeAdapter{fetcher: f, generic: generic}
}

var youtubeHostRe = regexp.MustCompile(`(?i)(^|\.)youtube\.com$`)

// Name identifies this adapter for dispatch metrics.
func (a *YoutubeAdapter) Name() string { return "youtube" }

// HandlesURL reports whether rawURL's host is youtube.com or a subdomain.
func (a *YoutubeAdapter) HandlesURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return youtubeHostRe.MatchString(u.Hostname())
}

var (
	legacyUserVideosRSSRe = regexp.MustCompile(`(?i)/user/([^/]+)/videos\.rss$`)
	legacyProfileRe       = regexp.MustCompile(`(?i)[?&]user=([^&]+)`)
	gdataUserFeedRe       = regexp.MustCompile(`(?i)gdata\.youtube\.com/feeds/api/users/([^/]+)`)
	canonicalChannelRe    = regexp.MustCompile(`channel/([\w-]+)`)
	canonicalPlaylistRe   = regexp.MustCompile(`[?&]list=([\w-]+)`)
)

func legacyUsername(rawURL string) (string, bool) {
	for _, re := range []*regexp.Regexp{legacyUserVideosRSSRe, legacyProfileRe, gdataUserFeedRe} {
		if m := re.FindStringSubmatch(rawURL); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// Parse rewrites legacy YouTube URL shapes to the canonical videos feed
// URL (by scraping rel="canonical" off the channel page), then runs the
// generic RSS/Atom extractor against that feed. If the canonical-URL
// scrape fails, the adapter degrades to parsing the originally fetched
// resource as a generic feed rather than failing the whole request.
func (a *YoutubeAdapter) Parse(ctx context.Context, res *entity.FeedResource, rawURL string) (entity.Feed, error) {
	feedURL := rawURL
	feedRes := res

	if username, ok := legacyUsername(rawURL); ok {
		canonical, err := a.resolveCanonicalFeed(ctx, "https://www.youtube.com/user/"+username)
		if err == nil {
			feedURL = canonical
			fetched, fetchErr := a.fetcher.Fetch(ctx, feedURL, fetcher.DefaultOptions())
			if fetchErr == nil {
				feedRes = fetched
			} else {
				feedURL = rawURL
				feedRes = res
			}
		}
	}

	feed, err := a.generic.Parse(ctx, feedRes, feedURL)
	if err != nil {
		return entity.Feed{}, err
	}
	feed.ContentTypes = []string{"video"}
	feed.Logo = ""
	return feed, nil
}

func (a *YoutubeAdapter) resolveCanonicalFeed(ctx context.Context, userPageURL string) (string, error) {
	page, err := a.fetcher.Fetch(ctx, userPageURL, fetcher.DefaultOptions())
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Content))
	if err != nil {
		return "", err
	}
	canonical, ok := doc.Find(`link[rel="canonical"]`).Attr("href")
	if !ok || canonical == "" {
		return "", errors.New("youtube: no canonical link found")
	}
	if m := canonicalChannelRe.FindStringSubmatch(canonical); m != nil {
		return "https://www.youtube.com/feeds/videos.xml?channel_id=" + m[1], nil
	}
	if m := canonicalPlaylistRe.FindStringSubmatch(canonical); m != nil {
		return "https://www.youtube.com/feeds/videos.xml?playlist_id=" + m[1], nil
	}
	return "", errors.New("youtube: canonical link is not a channel or playlist URL")
}
