package videos

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/kkdai/youtube/v2"
)

// YouTubeStreamClient is the subset of *youtube.Client used by YouTubeStreamOpener.
type YouTubeStreamClient interface {
	GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error)
}

// YouTubeStreamOpener streams formats resolved by YouTubeProvider through the
// kkdai client, which fetches googlevideo URLs in ranged chunks.
type YouTubeStreamOpener struct {
	Client YouTubeStreamClient
}

// NewYouTubeStreamOpener returns an opener whose client has no overall
// timeout; the request context governs how long a stream may run.
func NewYouTubeStreamOpener() *YouTubeStreamOpener {
	return &YouTubeStreamOpener{Client: &youtube.Client{HTTPClient: newStreamClient()}}
}

// Open starts the chunked download of the format. Formats that did not come
// from a kkdai lookup are reported as unavailable.
func (o *YouTubeStreamOpener) Open(ctx context.Context, format Format) (io.ReadCloser, int64, error) {
	if o == nil || o.Client == nil {
		return nil, 0, ErrProviderUnavailable
	}
	if format.origin == nil {
		return nil, 0, fmt.Errorf("open youtube stream: %w", ErrFormatUnavailable)
	}
	matches := format.origin.Formats.Itag(format.Itag)
	if len(matches) == 0 {
		return nil, 0, fmt.Errorf("open youtube stream: itag %d: %w", format.Itag, ErrFormatUnavailable)
	}

	body, size, err := o.Client.GetStreamContext(ctx, format.origin, &matches[0])
	if err != nil {
		return nil, 0, classifyYouTubeError("open youtube stream", err)
	}
	if size <= 0 {
		size = -1
	}
	return &youtubeStream{ReadCloser: body}, size, nil
}

// youtubeStream classifies chunk failures so a 429 before the first byte
// still reaches the client as a rate limit.
type youtubeStream struct {
	io.ReadCloser
}

func (s *youtubeStream) Read(p []byte) (int, error) {
	n, err := s.ReadCloser.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
		err = classifyYouTubeError("youtube stream", err)
	}
	return n, err
}
