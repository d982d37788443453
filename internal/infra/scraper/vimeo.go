package scraper

import (
	"context"
	"encoding/json"
	"html"
	"regexp"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/infra/fetcher"
)

// VimeoAdapter synthesizes a single-episode Feed from a Vimeo watch
// page: the episode's direct download URL is resolved by extracting
// the page's data-config-url token, fetching that JSON config, and
// picking the best progressive format by the fixed preference
// hd > sd > mobile.
type VimeoAdapter struct {
	fetcher *fetcher.Fetcher
}

// NewVimeoAdapter creates the Vimeo source adapter.
func NewVimeoAdapter(f *fetcher.Fetcher) *VimeoAdapter {
	return &VimeoAdapter{fetcher: f}
}

var vimeoURLRe = regexp.MustCompile(`(?i)^https?://(www\.)?vimeo\.com/(\d+)`)

// Name identifies this adapter for dispatch metrics.
func (a *VimeoAdapter) Name() string { return "vimeo" }

// HandlesURL reports whether rawURL is a Vimeo watch-page URL.
func (a *VimeoAdapter) HandlesURL(rawURL string) bool {
	return vimeoURLRe.MatchString(rawURL)
}

var dataConfigURLRe = regexp.MustCompile(`data-config-url="([^"]+)"`)

type vimeoConfig struct {
	Video struct {
		Title    string `json:"title"`
		Duration int64  `json:"duration"`
	} `json:"video"`
	Request struct {
		Files struct {
			Progressive []struct {
				URL     string `json:"url"`
				Quality string `json:"quality"`
			} `json:"progressive"`
		} `json:"files"`
	} `json:"request"`
}

var vimeoQualityRank = map[string]int{"hd": 3, "sd": 2, "mobile": 1}

// Parse fetches the config JSON referenced by the watch page and
// builds a single Episode carrying the best available progressive
// download URL.
func (a *VimeoAdapter) Parse(ctx context.Context, res *entity.FeedResource, rawURL string) (entity.Feed, error) {
	feed := entity.Feed{
		Title:        rawURL,
		Link:         rawURL,
		Description:  rawURL,
		URLs:         res.URLs,
		ContentTypes: []string{"video"},
	}

	episode := entity.Episode{Title: rawURL, Link: rawURL}

	if m := dataConfigURLRe.FindSubmatch(res.Content); m != nil {
		configURL := html.UnescapeString(string(m[1]))
		if cfgRes, err := a.fetcher.Fetch(ctx, configURL, fetcher.DefaultOptions()); err == nil {
			var cfg vimeoConfig
			if jsonErr := json.Unmarshal(cfgRes.Content, &cfg); jsonErr == nil {
				episode.Title = firstNonEmpty(cfg.Video.Title, rawURL)
				episode.Duration = cfg.Video.Duration
				if best := pickVimeoFormat(cfg.Request.Files.Progressive); best != "" {
					episode.Files = entity.AppendUniqueFile(episode.Files, entity.File{
						URLs:     []string{best},
						Mimetype: "application/x-vimeo",
					})
				}
			} else {
				feed.AddWarning("fetch-vimeo-config", jsonErr.Error())
			}
		} else {
			feed.AddWarning("fetch-vimeo-config", err.Error())
		}
	}

	if len(episode.Files) == 0 {
		episode.Files = entity.AppendUniqueFile(episode.Files, entity.File{
			URLs:     []string{rawURL},
			Mimetype: "application/x-vimeo",
		})
	}

	feed.Title = episode.Title
	feed.Episodes = []entity.Episode{episode}
	return feed, nil
}

func pickVimeoFormat(progressive []struct {
	URL     string `json:"url"`
	Quality string `json:"quality"`
}) string {
	best := ""
	bestScore := -1
	for _, p := range progressive {
		if score := vimeoQualityRank[p.Quality]; score > bestScore {
			bestScore = score
			best = p.URL
		}
	}
	return best
}
