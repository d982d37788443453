package parse

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"catchup-feed/internal/domain/entity"
)

var (
	leadingNumberRe         = regexp.MustCompile(`^\W*(\d+)`)
	leadingNonWordOrDigitRe = regexp.MustCompile(`^[\W\d]+`)
)

// applyCommonTitle computes the feed's common_title and, from it,
// each episode's number and short_title.
func applyCommonTitle(feed *entity.Feed) {
	titles := make([]string, 0, len(feed.Episodes))
	for _, ep := range feed.Episodes {
		if strings.TrimSpace(ep.Title) != "" {
			titles = append(titles, ep.Title)
		}
	}

	common := longestCommonSubstring(titles)
	feed.CommonTitle = common

	for i := range feed.Episodes {
		numberEpisode(&feed.Episodes[i], common)
	}
}

// longestCommonSubstring computes the longest common substring over
// all non-empty titles, using the shortest title as the reference
// (quadratic in its length: every [i:j] slice longer than the current
// best is tested against every other title). The result is truncated
// at the first digit and discarded if shorter than 2 characters after
// trimming.
func longestCommonSubstring(titles []string) string {
	if len(titles) == 0 {
		return ""
	}

	reference := titles[0]
	for _, t := range titles {
		if len(t) < len(reference) {
			reference = t
		}
	}

	best := ""
	for i := 0; i < len(reference); i++ {
		for j := i + len(best) + 1; j <= len(reference); j++ {
			candidate := reference[i:j]
			if allContain(titles, candidate) {
				best = candidate
			}
		}
	}

	best = truncateAtFirstDigit(best)
	if len(strings.TrimSpace(best)) < 2 {
		return ""
	}
	return best
}

func allContain(titles []string, substr string) bool {
	for _, t := range titles {
		if !strings.Contains(t, substr) {
			return false
		}
	}
	return true
}

func truncateAtFirstDigit(s string) string {
	idx := strings.IndexFunc(s, unicode.IsDigit)
	if idx < 0 {
		return s
	}
	return s[:idx]
}

func numberEpisode(ep *entity.Episode, commonTitle string) {
	stripped := ep.Title
	if commonTitle != "" {
		stripped = strings.ReplaceAll(stripped, commonTitle, "")
	}
	stripped = strings.TrimSpace(stripped)

	if m := leadingNumberRe.FindStringSubmatch(stripped); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			ep.Number = &n
		}
	}

	ep.ShortTitle = strings.TrimSpace(leadingNonWordOrDigitRe.ReplaceAllString(stripped, ""))
}
