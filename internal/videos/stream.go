package videos

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPDoer executes raw HTTP requests. *http.Client satisfies this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPStreamOpener fetches a format's locator with a plain GET and hands the
// response body to the caller unread.
type HTTPStreamOpener struct {
	Client    HTTPDoer
	UserAgent string
}

// NewHTTPStreamOpener returns an opener with no overall client timeout; the
// request context governs how long a stream may run.
func NewHTTPStreamOpener() *HTTPStreamOpener {
	return &HTTPStreamOpener{
		Client:    newStreamClient(),
		UserAgent: "Mozilla/5.0 (compatible; vidfriends-streamer/1.0)",
	}
}

// newStreamClient has no overall timeout since a download lasts as long as the
// client keeps reading.
func newStreamClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: 30 * time.Second,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConnsPerHost:   16,
		},
	}
}

// Open issues the upstream request. Non-2xx responses are classified and the
// body is closed before returning.
func (o *HTTPStreamOpener) Open(ctx context.Context, format Format) (io.ReadCloser, int64, error) {
	if o == nil || o.Client == nil {
		return nil, 0, ErrProviderUnavailable
	}
	if strings.TrimSpace(format.Locator) == "" {
		return nil, 0, fmt.Errorf("open stream: %w", ErrFormatUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, format.Locator, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("open stream: build request: %w", err)
	}
	if o.UserAgent != "" {
		req.Header.Set("User-Agent", o.UserAgent)
	}

	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, 0, Transient(fmt.Errorf("open stream: %w", err))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		size := resp.ContentLength
		if size < 0 {
			size = -1
		}
		return resp.Body, size, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, 0, RateLimited(fmt.Errorf("open stream: status %d", resp.StatusCode), parseRetryAfter(resp.Header.Get("Retry-After")))
	default:
		resp.Body.Close()
		return nil, 0, Transient(fmt.Errorf("open stream: unexpected status %d", resp.StatusCode))
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date. Unparseable values yield 0.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
