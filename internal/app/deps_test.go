package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/vidfriends/streamer/internal/config"
	"github.com/vidfriends/streamer/internal/middleware"
	"github.com/vidfriends/streamer/internal/videos"
)

func testConfig() config.Config {
	return config.Config{
		Resolver:         config.ResolverYTDLP,
		YTDLPPath:        "yt-dlp",
		YTDLPTimeout:     time.Second,
		MetadataCacheTTL: time.Minute,
		RateLimit:        config.RateLimitConfig{Requests: 20, Window: time.Minute},
		VideoContainer:   "mp4",
		Environment:      "development",
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestBuildDependencies(t *testing.T) {
	deps, cleanup, err := buildDependencies(context.Background(), testConfig(), discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cleanup == nil {
		t.Fatal("expected cleanup function")
	}
	defer cleanup()

	if _, ok := deps.Metadata.(*videos.Cache); !ok {
		t.Fatalf("expected metadata to be served through the cache got %T", deps.Metadata)
	}
	if deps.Streams == nil {
		t.Fatal("expected stream opener to be configured")
	}
	if deps.Limiter == nil {
		t.Fatal("expected rate limiter to be configured")
	}
	if _, ok := deps.Limiter.(*middleware.RedisRateLimiter); ok {
		t.Fatal("expected the in-memory limiter without redis")
	}
	if deps.Production {
		t.Fatal("expected development mode")
	}
}

func TestBuildDependenciesUsesRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Redis.Addr = mr.Addr()

	deps, cleanup, err := buildDependencies(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()

	if _, ok := deps.Limiter.(*middleware.RedisRateLimiter); !ok {
		t.Fatalf("expected redis limiter got %T", deps.Limiter)
	}
}

func TestBuildDependenciesFallsBackWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Redis.Addr = mr.Addr()
	mr.Close()

	deps, cleanup, err := buildDependencies(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()

	if _, ok := deps.Limiter.(*middleware.RedisRateLimiter); ok {
		t.Fatal("expected the in-memory limiter when redis does not answer")
	}
}

func TestDefaultMetadataProvider(t *testing.T) {
	cfg := testConfig()

	provider, err := defaultMetadataProvider(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := provider.(*videos.YTDLPProvider); !ok {
		t.Fatalf("expected yt-dlp provider got %T", provider)
	}

	cfg.Resolver = config.ResolverYouTube
	provider, err = defaultMetadataProvider(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := provider.(*videos.YouTubeProvider); !ok {
		t.Fatalf("expected youtube provider got %T", provider)
	}

	cfg.Resolver = "vimeo"
	if _, err := defaultMetadataProvider(cfg); err == nil {
		t.Fatal("expected an error for an unknown resolver")
	}
}

func TestNewStreamOpenerFollowsResolver(t *testing.T) {
	cfg := testConfig()

	opener, err := newStreamOpener(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := opener.(*videos.HTTPStreamOpener); !ok {
		t.Fatalf("expected plain http opener for yt-dlp got %T", opener)
	}

	cfg.Resolver = config.ResolverYouTube
	deps, cleanup, err := buildDependencies(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()
	if _, ok := deps.Streams.(*videos.YouTubeStreamOpener); !ok {
		t.Fatalf("expected kkdai opener for the youtube resolver got %T", deps.Streams)
	}

	cfg.Resolver = "vimeo"
	if _, err := newStreamOpener(cfg); err == nil {
		t.Fatal("expected an error for an unknown resolver")
	}
}
