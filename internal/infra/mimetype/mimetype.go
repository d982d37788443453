// Package mimetype classifies media mimetypes into the coarse categories
// (audio, video, image, vimeo) the normalizer needs for content-type
// summarization, and guesses a mimetype from a URL when none was declared.
package mimetype

import (
	"mime"
	"path/filepath"
	"sort"
	"strings"
)

// Category is one of the coarse content-type buckets the normalizer
// aggregates episodes into.
type Category string

const (
	Audio Category = "audio"
	Video Category = "video"
	Image Category = "image"
	Vimeo Category = "vimeo"
	None  Category = ""
)

// TypeThreshold is the minimum frequency ratio (count / total) a category
// must reach among a podcast's files to be listed in content_types.
const TypeThreshold = 0.20

const torrentExt = ".torrent"

// Classify maps a declared mimetype to its coarse category.
//
// Rules, in order: empty or missing "/" -> none; first segment is one of
// audio/video/image -> that segment; second segment "ogg" -> audio;
// second segment "x-youtube" -> video; second segment "x-vimeo" -> vimeo;
// anything else -> none.
func Classify(mt string) Category {
	if mt == "" {
		return None
	}
	slash := strings.IndexByte(mt, '/')
	if slash < 0 {
		return None
	}
	category, subtype := mt[:slash], mt[slash+1:]
	switch category {
	case "audio":
		return Audio
	case "video":
		return Video
	case "image":
		return Image
	}
	switch subtype {
	case "ogg":
		return Audio
	case "x-youtube":
		return Video
	case "x-vimeo":
		return Vimeo
	}
	return None
}

// Guess returns declared if non-empty; otherwise it strips a trailing
// ".torrent" suffix from url (so torrent-wrapped enclosures classify as
// their underlying media type) and guesses by file extension.
func Guess(declared, url string) string {
	if declared != "" {
		return declared
	}

	u := url
	if strings.HasSuffix(u, torrentExt) {
		u = strings.TrimSuffix(u, torrentExt)
	}

	ext := filepath.Ext(u)
	if ext == "" {
		return ""
	}
	if qi := strings.IndexAny(ext, "?#"); qi >= 0 {
		ext = ext[:qi]
	}
	return mime.TypeByExtension(ext)
}

// SummarizeTypes counts the classification of each mimetype, sorts
// descending by count (ties broken by descending count then first
// appearance order), and keeps categories whose frequency ratio is at
// least TypeThreshold. The result is idempotent: applying it again to its
// own output (treated as one mimetype per category) reproduces it.
func SummarizeTypes(mimetypes []string) []Category {
	order := make([]Category, 0, len(mimetypes))
	counts := make(map[Category]int)

	total := 0
	for _, mt := range mimetypes {
		cat := Classify(mt)
		if cat == None {
			continue
		}
		if _, seen := counts[cat]; !seen {
			order = append(order, cat)
		}
		counts[cat]++
		total++
	}

	if total == 0 {
		return nil
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	result := make([]Category, 0, len(order))
	for _, cat := range order {
		ratio := float64(counts[cat]) / float64(total)
		if ratio >= TypeThreshold {
			result = append(result, cat)
		}
	}
	return result
}
