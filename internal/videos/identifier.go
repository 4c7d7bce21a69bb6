package videos

import (
	"net/url"
	"regexp"
	"strings"
)

// Identifier is the canonical video id used as the metadata cache key.
type Identifier string

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

var watchHosts = map[string]struct{}{
	"youtube.com":              {},
	"www.youtube.com":          {},
	"m.youtube.com":            {},
	"music.youtube.com":        {},
	"youtube-nocookie.com":     {},
	"www.youtube-nocookie.com": {},
}

var pathPrefixes = []string{"/shorts/", "/embed/", "/live/", "/v/"}

// ParseURL validates a media URL against the recognized host patterns and
// returns its normalized identifier. Any failure yields ErrInvalidURL.
func ParseURL(raw string) (Identifier, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidURL
	}

	host := strings.ToLower(u.Hostname())
	var candidate string

	switch {
	case host == "youtu.be" || host == "www.youtu.be":
		candidate = strings.Trim(u.Path, "/")
	case isWatchHost(host):
		if u.Path == "/watch" || u.Path == "/watch/" {
			candidate = u.Query().Get("v")
			break
		}
		for _, prefix := range pathPrefixes {
			if strings.HasPrefix(u.Path, prefix) {
				candidate = strings.SplitN(strings.TrimPrefix(u.Path, prefix), "/", 2)[0]
				break
			}
		}
	default:
		return "", ErrInvalidURL
	}

	if !videoIDPattern.MatchString(candidate) {
		return "", ErrInvalidURL
	}
	return Identifier(candidate), nil
}

func isWatchHost(host string) bool {
	_, ok := watchHosts[host]
	return ok
}

// URL returns the canonical watch URL for the identifier.
func (id Identifier) URL() string {
	return "https://www.youtube.com/watch?v=" + string(id)
}

func (id Identifier) String() string {
	return string(id)
}
