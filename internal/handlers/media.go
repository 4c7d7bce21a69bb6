package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/vidfriends/streamer/internal/logging"
	"github.com/vidfriends/streamer/internal/videos"
)

const (
	maxRequestBody    = 16 << 10
	defaultBufferSize = 32 << 10
)

const (
	msgInvalidBody     = "invalid request body"
	msgInvalidURL      = "Invalid media URL"
	msgUpstreamLimited = "The video service is rate limiting requests, please try again later."
	msgNoStream        = "No compatible stream available"
	msgInfoFailed      = "Failed to fetch video information"
	msgDownloadFailed  = "Failed to download media"
	msgUnavailable     = "media services unavailable"
)

var videoContentTypes = map[string]string{
	"mp4":  "video/mp4",
	"webm": "video/webm",
}

// MediaHandler implements the metadata and download endpoints.
type MediaHandler struct {
	Metadata MetadataResolver
	Streams  StreamOpener
	// VideoContainer is the container served by the video download.
	VideoContainer string
	// BufferSize is the relay chunk size in bytes.
	BufferSize int
	Production bool
}

type mediaRequest struct {
	URL string `json:"url"`
}

type infoResponse struct {
	Title     string `json:"title"`
	Channel   string `json:"channel"`
	Thumbnail string `json:"thumbnail"`
	Duration  int    `json:"duration"`
}

// Info handles POST /api/info.
func (h MediaHandler) Info(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Metadata == nil {
		logger.Error("metadata resolver unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, errorBody{Error: msgUnavailable})
		return
	}

	id, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	meta, err := h.Metadata.Lookup(ctx, id)
	if err != nil {
		h.respondResolveError(ctx, w, err, msgInfoFailed)
		return
	}

	respondJSON(ctx, w, http.StatusOK, infoResponse{
		Title:     meta.Title,
		Channel:   meta.Channel,
		Thumbnail: meta.Thumbnail,
		Duration:  meta.Duration,
	})
}

// DownloadAudio handles POST /api/download/mp3.
func (h MediaHandler) DownloadAudio(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, "mp3", "audio/mpeg", videos.SelectAudio)
}

// DownloadVideo handles POST /api/download/mp4.
func (h MediaHandler) DownloadVideo(w http.ResponseWriter, r *http.Request) {
	container := strings.ToLower(strings.TrimSpace(h.VideoContainer))
	if container == "" {
		container = "mp4"
	}
	contentType, ok := videoContentTypes[container]
	if !ok {
		contentType = "application/octet-stream"
	}
	h.download(w, r, container, contentType, func(formats []videos.Format) (videos.Format, error) {
		return videos.SelectVideo(formats, container)
	})
}

func (h MediaHandler) download(w http.ResponseWriter, r *http.Request, ext, contentType string, selectFormat func([]videos.Format) (videos.Format, error)) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Metadata == nil || h.Streams == nil {
		logger.Error("media dependencies unavailable", "hasMetadata", h.Metadata != nil, "hasStreams", h.Streams != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, errorBody{Error: msgUnavailable})
		return
	}

	id, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	meta, err := h.Metadata.Lookup(ctx, id)
	if err != nil {
		h.respondResolveError(ctx, w, err, msgDownloadFailed)
		return
	}

	format, err := selectFormat(meta.Formats)
	if err != nil {
		h.respondResolveError(ctx, w, err, msgDownloadFailed)
		return
	}

	body, size, err := h.Streams.Open(ctx, format)
	if err != nil {
		h.respondResolveError(ctx, w, err, msgDownloadFailed)
		return
	}

	header := w.Header()
	header.Set("Content-Type", contentType)
	header.Set("Content-Disposition", contentDisposition(meta.Title, ext))
	if size >= 0 {
		header.Set("Content-Length", strconv.FormatInt(size, 10))
	}

	relayCtx, span := logging.StartSpan(ctx, "stream.relay",
		"video_id", id.String(),
		"container", format.Container,
		"bitrate", format.Bitrate,
	)
	written, err := h.relay(relayCtx, w, body)
	span.End(err)
	if err == nil {
		return
	}

	switch {
	case ctx.Err() != nil:
		logger.Warn("client disconnected during download", "video_id", id.String(), "bytes", written)
	case written == 0:
		header.Del("Content-Disposition")
		header.Del("Content-Length")
		h.respondResolveError(ctx, w, err, msgDownloadFailed)
	default:
		logger.Error("upstream stream failed after headers were sent", "video_id", id.String(), "bytes", written, "error", err)
		panic(http.ErrAbortHandler)
	}
}

// relay copies src to w chunk by chunk, flushing after each write. The source
// is closed as soon as ctx is cancelled so a blocked read returns promptly.
func (h MediaHandler) relay(ctx context.Context, w http.ResponseWriter, src io.ReadCloser) (int64, error) {
	stop := context.AfterFunc(ctx, func() { src.Close() })
	defer func() {
		if stop() {
			src.Close()
		}
	}()

	size := h.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	buf := make([]byte, size)
	rc := http.NewResponseController(w)

	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return written, fmt.Errorf("write to client: %w", err)
			}
			written += int64(n)
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return written, fmt.Errorf("flush to client: %w", err)
			}
		}
		if errors.Is(readErr, io.EOF) {
			return written, nil
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return written, fmt.Errorf("relay cancelled: %w", context.Cause(ctx))
			}
			return written, fmt.Errorf("read upstream: %w", readErr)
		}
	}
}

func (h MediaHandler) parseRequest(w http.ResponseWriter, r *http.Request) (videos.Identifier, bool) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req mediaRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		logger.Warn("invalid media payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, msgInvalidBody, err, !h.Production)
		return "", false
	}

	id, err := videos.ParseURL(req.URL)
	if err != nil {
		logger.Warn("rejected media url", "url", req.URL)
		respondJSON(ctx, w, http.StatusBadRequest, errorBody{Error: msgInvalidURL})
		return "", false
	}
	return id, true
}

func (h MediaHandler) respondResolveError(ctx context.Context, w http.ResponseWriter, err error, fallback string) {
	if ctx.Err() != nil {
		logging.FromContext(ctx).Warn("client disconnected before response", "error", err)
		return
	}
	verbose := !h.Production

	if retryAfter, ok := videos.AsRateLimited(err); ok {
		seconds := int(math.Ceil(retryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		body := errorBody{Error: msgUpstreamLimited, RetryAfter: seconds}
		if verbose {
			body.Details = err.Error()
		}
		respondJSON(ctx, w, http.StatusTooManyRequests, body)
		return
	}

	switch {
	case errors.Is(err, videos.ErrInvalidURL):
		respondJSON(ctx, w, http.StatusBadRequest, errorBody{Error: msgInvalidURL})
	case errors.Is(err, videos.ErrFormatUnavailable):
		respondError(ctx, w, http.StatusBadRequest, msgNoStream, err, verbose)
	default:
		respondError(ctx, w, http.StatusInternalServerError, fallback, err, verbose)
	}
}

// contentDisposition builds an attachment header from the sanitized title.
// Non-ASCII names get an RFC 5987 filename* alongside an ASCII fallback.
func contentDisposition(title, ext string) string {
	name := videos.SanitizeFilename(title) + "." + ext

	var ascii strings.Builder
	for _, r := range name {
		if r < 0x80 {
			ascii.WriteRune(r)
		} else {
			ascii.WriteByte('_')
		}
	}

	value := fmt.Sprintf("attachment; filename=%q", ascii.String())
	if ascii.String() != name {
		value += "; filename*=UTF-8''" + url.PathEscape(name)
	}
	return value
}
