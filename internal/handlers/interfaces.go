package handlers

import (
	"context"
	"io"

	"github.com/vidfriends/streamer/internal/videos"
)

// MetadataResolver resolves video details for a parsed identifier.
type MetadataResolver interface {
	Lookup(ctx context.Context, id videos.Identifier) (videos.Metadata, error)
}

// StreamOpener opens the upstream byte stream for a selected format.
type StreamOpener interface {
	Open(ctx context.Context, format videos.Format) (io.ReadCloser, int64, error)
}

// RateLimiter is the minimal interface required to guard resolver-facing endpoints.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
