package videos

import (
	"context"
	"io"
	"strings"

	"github.com/kkdai/youtube/v2"
)

// UnknownChannel stands in for an author the upstream did not report.
const UnknownChannel = "Unknown"

// Metadata is an immutable snapshot of a resolved video.
type Metadata struct {
	ID        Identifier
	Title     string
	Channel   string
	Thumbnail string
	// Duration in whole seconds.
	Duration int
	Formats  []Format
}

// Format is one selectable rendition of a video.
type Format struct {
	Container   string
	MimeType    string
	HasAudio    bool
	HasVideo    bool
	Progressive bool
	// Bitrate ranks formats of the same kind; higher is better.
	Bitrate int
	// Locator is the opaque upstream address of the byte stream.
	Locator string
	// Itag is the YouTube format number, zero for other resolvers.
	Itag int

	// origin is the video a kkdai lookup produced this format from.
	origin *youtube.Video
}

// AudioOnly reports whether the format carries audio without a video track.
func (f Format) AudioOnly() bool {
	return f.HasAudio && !f.HasVideo
}

// Provider resolves metadata for a video identifier.
type Provider interface {
	Lookup(ctx context.Context, id Identifier) (Metadata, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, id Identifier) (Metadata, error)

// Lookup implements Provider.
func (f ProviderFunc) Lookup(ctx context.Context, id Identifier) (Metadata, error) {
	return f(ctx, id)
}

// StreamOpener opens the byte stream behind a selected format. The returned
// size is -1 when the upstream does not report one.
type StreamOpener interface {
	Open(ctx context.Context, format Format) (io.ReadCloser, int64, error)
}

func normalize(md Metadata) Metadata {
	md.Title = strings.TrimSpace(md.Title)
	md.Channel = strings.TrimSpace(md.Channel)
	if md.Channel == "" {
		md.Channel = UnknownChannel
	}
	if md.Duration < 0 {
		md.Duration = 0
	}
	return md
}

func containerFromMime(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	if i := strings.IndexByte(mime, '/'); i >= 0 {
		return strings.TrimSpace(mime[i+1:])
	}
	return mime
}
