package fetcher

import (
	"net/url"
	"strings"
)

// Sanitize lowercases the host and turns an empty path into "/", matching
// the reference fetcher's basic_sanitizing. It leaves scheme, query, and
// fragment untouched.
func Sanitize(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// SanitizeChain sanitizes every URL in a redirect chain and, if sanitizing
// changed the first hop, prepends the original un-sanitized URL so the
// caller's request URL is always urls[0].
func SanitizeChain(original string, chain []string) ([]string, error) {
	sanitized := make([]string, 0, len(chain)+1)
	for _, u := range chain {
		s, err := Sanitize(u)
		if err != nil {
			return nil, err
		}
		sanitized = append(sanitized, s)
	}
	if len(sanitized) == 0 || sanitized[0] != original {
		sanitized = append([]string{original}, sanitized...)
	}
	return sanitized, nil
}
