// Package parse implements the GET|POST /parse endpoint: it decodes the
// query parameters into usecase/parse.Options, runs the batch, and
// renders the resulting Feed documents as JSON (or pretty-printed,
// HTML-escaped JSON when the client asked for text/html).
package parse

import (
	"encoding/json"
	"html"
	"net/http"
	"net/mail"
	"strconv"
	"time"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/handler/http/respond"
	"catchup-feed/internal/usecase/parse"
)

// Handler serves GET|POST /parse.
type Handler struct {
	Service *parse.Service
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respond.Error(w, http.StatusBadRequest, err)
		return
	}

	urls := r.Form["url"]
	if len(urls) == 0 {
		w.Header().Set("Content-Type", "text/plain")
		http.Error(w, "parameter url missing", http.StatusBadRequest)
		return
	}

	opts := parseOptions(r.Form)
	opts.IfModifiedSince = ifModifiedSince(r)

	w.Header().Set("Vary", "Accept, User-Agent, Accept-Encoding")

	feeds, err := h.Service.ParseBatch(r.Context(), urls, opts)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}

	if lm := earliestLastModified(feeds); lm != "" {
		w.Header().Set("Last-Modified", lm)
	}

	if wantsHTML(r.Header.Get("Accept")) {
		renderHTML(w, feeds)
		return
	}
	respond.JSON(w, http.StatusOK, feeds)
}

func parseOptions(form map[string][]string) parse.Options {
	opts := parse.Options{UseCache: true}

	if v := formValue(form, "inline_logo"); v != "" {
		opts.InlineLogo = parseBool(v)
	}
	if v := formValue(form, "scale_logo"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.ScaleLogo = n
		}
	}
	opts.LogoFormat = formValue(form, "logo_format")

	if v := formValue(form, "strip_html"); v != "" {
		opts.StripHTML = parseBool(v)
	}
	opts.ProcessText = formValue(form, "process_text")

	if v := formValue(form, "use_cache"); v != "" {
		opts.UseCache = parseBool(v)
	}

	return opts
}

func formValue(form map[string][]string, key string) string {
	vs := form[key]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

func parseBool(v string) bool {
	return v == "1" || v == "true" || v == "yes"
}

// ifModifiedSince parses the caller's If-Modified-Since header (RFC 2822,
// per spec) so it can be forwarded into each fetch.
func ifModifiedSince(r *http.Request) time.Time {
	h := r.Header.Get("If-Modified-Since")
	if h == "" {
		return time.Time{}
	}
	if t, err := http.ParseTime(h); err == nil {
		return t
	}
	if t, err := mail.ParseDate(h); err == nil {
		return t
	}
	return time.Time{}
}

func earliestLastModified(feeds []entity.Feed) string {
	var earliest time.Time
	var raw string
	for _, f := range feeds {
		if f.HTTPLastModified == "" {
			continue
		}
		t, err := http.ParseTime(f.HTTPLastModified)
		if err != nil {
			continue
		}
		if earliest.IsZero() || t.Before(earliest) {
			earliest = t
			raw = f.HTTPLastModified
		}
	}
	return raw
}

func wantsHTML(accept string) bool {
	return accept != "" && accept != "*/*" && containsMediaType(accept, "text/html") && !containsMediaType(accept, "application/json")
}

func containsMediaType(accept, mediaType string) bool {
	for _, part := range splitComma(accept) {
		if part == mediaType || (len(part) > len(mediaType) && part[:len(mediaType)] == mediaType) {
			return true
		}
	}
	return false
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, trimSpace(s[start:i]))
			start = i + 1
		}
	}
	out = append(out, trimSpace(s[start:]))
	return out
}

func trimSpace(s string) string {
	for len(s) > 0 && s[0] == ' ' {
		s = s[1:]
	}
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}

func renderHTML(w http.ResponseWriter, feeds []entity.Feed) {
	body, err := json.MarshalIndent(feeds, "", "  ")
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("<pre>"))
	_, _ = w.Write([]byte(html.EscapeString(string(body))))
	_, _ = w.Write([]byte("</pre>"))
}
