package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vidfriends/streamer/internal/config"
	"github.com/vidfriends/streamer/internal/handlers"
	"github.com/vidfriends/streamer/internal/middleware"
	"github.com/vidfriends/streamer/internal/videos"
)

const (
	upstreamRequestTimeout = 30 * time.Second
	redisPingTimeout       = 3 * time.Second
)

// newMetadataProvider is swapped in tests to avoid reaching the network.
var newMetadataProvider = defaultMetadataProvider

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(ctx context.Context, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, func() error, error) {
	provider, err := newMetadataProvider(cfg)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}
	streams, err := newStreamOpener(cfg)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	limiter, cleanup := newRateLimiter(ctx, cfg, logger)

	return handlers.Dependencies{
		Logger:          logger,
		Metadata:        newMetadataCache(cfg, provider),
		Streams:         streams,
		Limiter:         limiter,
		RateLimitWindow: cfg.RateLimit.Window,
		TrustedProxies:  cfg.TrustedProxies,
		AllowedOrigins:  cfg.AllowedOrigins,
		VideoContainer:  cfg.VideoContainer,
		StreamBuffer:    cfg.StreamBuffer,
		Production:      cfg.Production(),
	}, cleanup, nil
}

func defaultMetadataProvider(cfg config.Config) (videos.Provider, error) {
	switch cfg.Resolver {
	case config.ResolverYTDLP:
		return videos.NewYTDLPProvider(cfg.YTDLPPath, cfg.YTDLPTimeout), nil
	case config.ResolverYouTube, "":
		return videos.NewYouTubeProvider(&http.Client{Timeout: upstreamRequestTimeout}), nil
	default:
		return nil, fmt.Errorf("unsupported resolver %q", cfg.Resolver)
	}
}

// newStreamOpener pairs each resolver with the opener that understands its
// formats: kkdai lookups stream through kkdai's chunked downloader, yt-dlp
// locators are plain URLs.
func newStreamOpener(cfg config.Config) (videos.StreamOpener, error) {
	switch cfg.Resolver {
	case config.ResolverYTDLP:
		return videos.NewHTTPStreamOpener(), nil
	case config.ResolverYouTube, "":
		return videos.NewYouTubeStreamOpener(), nil
	default:
		return nil, fmt.Errorf("unsupported resolver %q", cfg.Resolver)
	}
}

// newMetadataCache puts the process-wide upstream throttle behind the cache so
// only real fetches consume tokens.
func newMetadataCache(cfg config.Config, provider videos.Provider) *videos.Cache {
	throttled := videos.NewThrottledProvider(provider, cfg.UpstreamRPS, cfg.UpstreamBurst)
	return videos.NewCache(throttled, videos.CacheOptions{
		TTL:     cfg.MetadataCacheTTL,
		Size:    cfg.MetadataCacheSize,
		Retries: cfg.ResolveRetries,
		Backoff: cfg.ResolveBackoff,
		Timeout: cfg.ResolveTimeout,
	})
}

// newRateLimiter prefers the shared Redis window and falls back to an
// in-process one when Redis is not configured or does not answer.
func newRateLimiter(ctx context.Context, cfg config.Config, logger *slog.Logger) (middleware.RateLimiter, func() error) {
	noop := func() error { return nil }
	inMemory := func() middleware.RateLimiter {
		return middleware.NewWindowLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}

	if cfg.Redis.Addr == "" {
		return inMemory(), noop
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, using in-memory rate limiter", "addr", cfg.Redis.Addr, "error", err)
		_ = client.Close()
		return inMemory(), noop
	}

	logger.Info("using redis rate limiter", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
	return middleware.NewRedisRateLimiter(client, cfg.RateLimit.Requests, cfg.RateLimit.Window), client.Close
}
