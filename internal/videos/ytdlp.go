package videos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CommandRunner executes external commands and returns stdout bytes.
type CommandRunner func(ctx context.Context, binary string, args ...string) ([]byte, error)

// YTDLPProvider fetches metadata using the yt-dlp CLI tool.
type YTDLPProvider struct {
	Binary  string
	Args    []string
	Run     CommandRunner
	Timeout time.Duration
}

// NewYTDLPProvider constructs a Provider that shells out to yt-dlp.
func NewYTDLPProvider(binary string, timeout time.Duration) *YTDLPProvider {
	if strings.TrimSpace(binary) == "" {
		binary = "yt-dlp"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &YTDLPProvider{
		Binary:  binary,
		Args:    []string{"--dump-single-json", "--no-warnings", "--no-playlist", "--skip-download"},
		Run:     defaultCommandRunner,
		Timeout: timeout,
	}
}

type ytdlpFormat struct {
	FormatID string  `json:"format_id"`
	Ext      string  `json:"ext"`
	ACodec   string  `json:"acodec"`
	VCodec   string  `json:"vcodec"`
	Protocol string  `json:"protocol"`
	URL      string  `json:"url"`
	ABR      float64 `json:"abr"`
	TBR      float64 `json:"tbr"`
}

type ytdlpThumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type ytdlpInfo struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	Channel    string           `json:"channel"`
	Uploader   string           `json:"uploader"`
	Duration   float64          `json:"duration"`
	Thumbnail  string           `json:"thumbnail"`
	Thumbnails []ytdlpThumbnail `json:"thumbnails"`
	Formats    []ytdlpFormat    `json:"formats"`
}

// Lookup executes yt-dlp for the provided identifier and parses the JSON response.
func (p *YTDLPProvider) Lookup(ctx context.Context, id Identifier) (Metadata, error) {
	if p == nil {
		return Metadata{}, ErrProviderUnavailable
	}
	run := p.Run
	if run == nil {
		run = defaultCommandRunner
	}

	execCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	args := append([]string{}, p.Args...)
	args = append(args, id.URL())

	out, err := run(execCtx, p.Binary, args...)
	if err != nil {
		return Metadata{}, classifyYTDLPError(err)
	}

	var payload ytdlpInfo
	if err := json.Unmarshal(out, &payload); err != nil {
		return Metadata{}, Transient(fmt.Errorf("parse yt-dlp response: %w", err))
	}
	if payload.Title == "" && len(payload.Formats) == 0 {
		return Metadata{}, Transient(errors.New("yt-dlp returned empty metadata"))
	}

	md := Metadata{
		ID:        id,
		Title:     payload.Title,
		Channel:   payload.Channel,
		Thumbnail: largestYTDLPThumbnail(payload),
		Duration:  int(math.Round(payload.Duration)),
	}
	if md.Channel == "" {
		md.Channel = payload.Uploader
	}

	// yt-dlp lists formats worst first.
	for i := len(payload.Formats) - 1; i >= 0; i-- {
		if f, ok := convertYTDLPFormat(payload.Formats[i]); ok {
			md.Formats = append(md.Formats, f)
		}
	}

	return normalize(md), nil
}

func convertYTDLPFormat(f ytdlpFormat) (Format, bool) {
	protocol := strings.ToLower(f.Protocol)
	if f.URL == "" || strings.Contains(protocol, "m3u8") || strings.Contains(protocol, "dash") || protocol == "mhtml" {
		return Format{}, false
	}

	hasAudio := f.ACodec != "" && f.ACodec != "none"
	hasVideo := f.VCodec != "" && f.VCodec != "none"
	if !hasAudio && !hasVideo {
		return Format{}, false
	}

	kbps := f.TBR
	if hasAudio && !hasVideo && f.ABR > 0 {
		kbps = f.ABR
	}

	return Format{
		Container:   strings.ToLower(f.Ext),
		HasAudio:    hasAudio,
		HasVideo:    hasVideo,
		Progressive: hasAudio && hasVideo,
		Bitrate:     int(kbps * 1000),
		Locator:     f.URL,
	}, true
}

func largestYTDLPThumbnail(info ytdlpInfo) string {
	best, bestArea := info.Thumbnail, -1
	for _, t := range info.Thumbnails {
		if t.URL == "" {
			continue
		}
		if area := t.Width * t.Height; area > bestArea {
			best, bestArea = t.URL, area
		}
	}
	return best
}

var retryAfterPattern = regexp.MustCompile(`(?i)retry[- ]after[:= ]+(\d+)`)

func classifyYTDLPError(err error) error {
	detail := err.Error()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		detail = strings.TrimSpace(string(exitErr.Stderr))
	}

	wrapped := fmt.Errorf("yt-dlp fetch: %w: %s", err, detail)
	lower := strings.ToLower(detail)
	if strings.Contains(lower, "http error 429") || strings.Contains(lower, "too many requests") {
		var retryAfter time.Duration
		if m := retryAfterPattern.FindStringSubmatch(detail); m != nil {
			if secs, convErr := strconv.Atoi(m[1]); convErr == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return RateLimited(wrapped, retryAfter)
	}
	return Transient(wrapped)
}

func defaultCommandRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	return cmd.Output()
}
