package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/infra/fetcher"
)

// soundcloudConsumerKey is the application's Soundcloud API client id,
// overridable so deployments can supply their own registered key.
var soundcloudConsumerKey = "catchup-feed-client"

// SoundcloudAdapter builds a Feed from a Soundcloud user's track list,
// fetched through Soundcloud's JSON API. The same adapter backs both
// the regular-tracks and favorites variants; favorites selects the
// /favorites URL suffix and API path.
type SoundcloudAdapter struct {
	fetcher   *fetcher.Fetcher
	favorites bool
}

// NewSoundcloudAdapter creates the Soundcloud source adapter.
// favorites selects the favorites-list variant over the user's own
// tracks.
func NewSoundcloudAdapter(f *fetcher.Fetcher, favorites bool) *SoundcloudAdapter {
	return &SoundcloudAdapter{fetcher: f, favorites: favorites}
}

var soundcloudURLRe = regexp.MustCompile(`(?i)^https?://([\w-]+\.)?soundcloud\.com/([\w-]+)(/favorites)?/?$`)

// Name identifies this adapter for dispatch metrics, distinguishing
// the favorites variant.
func (a *SoundcloudAdapter) Name() string {
	if a.favorites {
		return "soundcloud_favorites"
	}
	return "soundcloud"
}

// HandlesURL reports whether rawURL is a Soundcloud profile URL (or,
// for the favorites adapter, its /favorites variant).
func (a *SoundcloudAdapter) HandlesURL(rawURL string) bool {
	m := soundcloudURLRe.FindStringSubmatch(rawURL)
	if m == nil {
		return false
	}
	return (m[3] != "") == a.favorites
}

type soundcloudUser struct {
	ID int64 `json:"id"`
}

type soundcloudTrack struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	PermalinkURL string `json:"permalink_url"`
	StreamURL    string `json:"stream_url"`
	DownloadURL  string `json:"download_url"`
	Duration     int64  `json:"duration"` // milliseconds
	CreatedAt    string `json:"created_at"`
}

// Parse resolves the profile URL's username to a numeric user id, then
// fetches and normalizes the user's track (or favorites) list.
func (a *SoundcloudAdapter) Parse(ctx context.Context, res *entity.FeedResource, rawURL string) (entity.Feed, error) {
	m := soundcloudURLRe.FindStringSubmatch(rawURL)
	username := m[2]

	feed := entity.Feed{
		Title:        username,
		Link:         "https://soundcloud.com/" + username,
		Description:  username,
		URLs:         res.URLs,
		ContentTypes: []string{"audio"},
	}

	resolveURL := fmt.Sprintf("https://api.soundcloud.com/resolve.json?url=%s&client_id=%s",
		url.QueryEscape("https://soundcloud.com/"+username), soundcloudConsumerKey)
	userRes, err := a.fetcher.Fetch(ctx, resolveURL, fetcher.DefaultOptions())
	if err != nil {
		feed.AddError("fetch-feed", err.Error())
		return feed, nil
	}
	var user soundcloudUser
	if err := json.Unmarshal(userRes.Content, &user); err != nil {
		feed.AddError("fetch-feed", err.Error())
		return feed, nil
	}

	apiPath := "tracks"
	if a.favorites {
		apiPath = "favorites"
	}
	tracksURL := fmt.Sprintf("https://api.soundcloud.com/users/%d/%s.json?filter=downloadable&consumer_key=%s&limit=200",
		user.ID, apiPath, soundcloudConsumerKey)
	tracksRes, err := a.fetcher.Fetch(ctx, tracksURL, fetcher.DefaultOptions())
	if err != nil {
		feed.AddWarning("fetch-tracks", err.Error())
		return feed, nil
	}
	var tracks []soundcloudTrack
	if err := json.Unmarshal(tracksRes.Content, &tracks); err != nil {
		feed.AddWarning("fetch-tracks", err.Error())
		return feed, nil
	}

	for _, t := range tracks {
		ep := entity.Episode{
			GUID:        strconv.FormatInt(t.ID, 10),
			Title:       t.Title,
			Description: t.Description,
			Link:        stripConsumerKey(t.PermalinkURL),
			Duration:    t.Duration / 1000,
			Released:    parseSoundcloudDate(t.CreatedAt),
		}
		fileURL := t.StreamURL
		if fileURL == "" {
			fileURL = t.DownloadURL
		}
		if fileURL != "" {
			ep.Files = entity.AppendUniqueFile(ep.Files, entity.File{
				URLs:     []string{stripConsumerKey(fileURL)},
				Mimetype: "audio/mpeg",
			})
		}
		feed.Episodes = append(feed.Episodes, ep)
	}
	return feed, nil
}

// stripConsumerKey removes the consumer_key query parameter before a
// URL is surfaced to the client.
func stripConsumerKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Del("consumer_key")
	u.RawQuery = q.Encode()
	return u.String()
}

func parseSoundcloudDate(s string) int64 {
	for _, layout := range []string{"2006/01/02 15:04:05 -0700", "2006/01/02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			if sec := t.Unix(); sec >= 0 {
				return sec
			}
			return 0
		}
	}
	return 0
}
