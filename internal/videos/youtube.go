package videos

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/kkdai/youtube/v2"

	"github.com/vidfriends/streamer/internal/logging"
)

// YouTubeClient is the subset of *youtube.Client used by YouTubeProvider.
type YouTubeClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamURLContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (string, error)
}

// YouTubeProvider resolves metadata in-process with the kkdai/youtube client.
type YouTubeProvider struct {
	Client YouTubeClient
}

// NewYouTubeProvider constructs a provider backed by a fresh youtube.Client.
func NewYouTubeProvider(httpClient *http.Client) *YouTubeProvider {
	return &YouTubeProvider{Client: &youtube.Client{HTTPClient: httpClient}}
}

// Lookup fetches the video page data and converts every streamable format.
func (p *YouTubeProvider) Lookup(ctx context.Context, id Identifier) (Metadata, error) {
	if p == nil || p.Client == nil {
		return Metadata{}, ErrProviderUnavailable
	}

	video, err := p.Client.GetVideoContext(ctx, id.URL())
	if err != nil {
		return Metadata{}, classifyYouTubeError("youtube lookup", err)
	}

	md := Metadata{
		ID:        id,
		Title:     video.Title,
		Channel:   video.Author,
		Thumbnail: largestYouTubeThumbnail(video.Thumbnails),
		Duration:  int(video.Duration.Seconds()),
	}

	logger := logging.FromContext(ctx)
	for i := range video.Formats {
		f := &video.Formats[i]
		locator := f.URL
		if locator == "" {
			locator, err = p.Client.GetStreamURLContext(ctx, video, f)
			if err != nil {
				logger.Debug("skipping undecipherable format", "itag", f.ItagNo, "error", err)
				continue
			}
		}

		hasAudio := f.AudioChannels > 0
		hasVideo := f.Width > 0 || f.QualityLabel != ""
		bitrate := f.AverageBitrate
		if bitrate <= 0 {
			bitrate = f.Bitrate
		}

		md.Formats = append(md.Formats, Format{
			Container:   containerFromMime(f.MimeType),
			MimeType:    f.MimeType,
			HasAudio:    hasAudio,
			HasVideo:    hasVideo,
			Progressive: hasAudio && hasVideo,
			Bitrate:     bitrate,
			Locator:     locator,
			Itag:        f.ItagNo,
			origin:      video,
		})
	}

	return normalize(md), nil
}

func largestYouTubeThumbnail(thumbs youtube.Thumbnails) string {
	best, bestArea := "", -1
	for _, t := range thumbs {
		if area := int(t.Width) * int(t.Height); t.URL != "" && area > bestArea {
			best, bestArea = t.URL, area
		}
	}
	return best
}

func classifyYouTubeError(op string, err error) error {
	var status youtube.ErrUnexpectedStatusCode
	if errors.As(err, &status) && int(status) == http.StatusTooManyRequests {
		return RateLimited(fmt.Errorf("%s: %w", op, err), 0)
	}
	return Transient(fmt.Errorf("%s: %w", op, err))
}
