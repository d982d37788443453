package fetcher

import "errors"

// ErrNotModified is returned by Fetch when the upstream server confirmed,
// via a 304 response, that content is unchanged since the caller's
// explicit IfModifiedSince. Per spec this is not a feed error: the
// dispatcher simply drops the URL from its output.
var ErrNotModified = errors.New("fetcher: not modified")

// ErrTooManyRedirects is returned when a 302/303 redirect chain exceeds
// MaxRedirects.
var ErrTooManyRedirects = errors.New("fetcher: too many redirects")
