package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// EnvProduction hides internal error details from API responses.
	EnvProduction = "production"

	ResolverYouTube = "youtube"
	ResolverYTDLP   = "ytdlp"
)

// Config captures the runtime configuration for the streamer service.
type Config struct {
	AppPort     int
	Environment string
	LogLevel    string

	Resolver       string
	YTDLPPath      string
	YTDLPTimeout   time.Duration
	ResolveTimeout time.Duration

	MetadataCacheTTL  time.Duration
	MetadataCacheSize int
	ResolveRetries    int
	ResolveBackoff    time.Duration

	UpstreamRPS   float64
	UpstreamBurst int

	RateLimit RateLimitConfig
	Redis     RedisConfig
	// TrustedProxies may set X-Forwarded-For. Requests from anywhere else are
	// keyed by their socket address.
	TrustedProxies []netip.Prefix

	AllowedOrigins []string
	StreamBuffer   int
	VideoContainer string
}

// RateLimitConfig bounds how many resolver-facing requests a client may issue per window.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// RedisConfig points the rate limiter at a shared Redis instance. An empty Addr keeps limits in memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Load reads configuration from environment variables, applying sensible defaults
// for local development while allowing overrides through environment variables.
func Load() (Config, error) {
	cfg := Config{
		AppPort:     getInt("STREAMER_PORT", 8080),
		Environment: getString("STREAMER_ENV", "development"),
		LogLevel:    getString("STREAMER_LOG_LEVEL", "info"),

		Resolver:       strings.ToLower(getString("STREAMER_RESOLVER", ResolverYouTube)),
		YTDLPPath:      getString("STREAMER_YTDLP_PATH", "yt-dlp"),
		YTDLPTimeout:   getDuration("STREAMER_YTDLP_TIMEOUT", 30*time.Second),
		ResolveTimeout: getDuration("STREAMER_RESOLVE_TIMEOUT", 45*time.Second),

		MetadataCacheTTL:  getDuration("STREAMER_METADATA_CACHE_TTL", 30*time.Minute),
		MetadataCacheSize: getInt("STREAMER_METADATA_CACHE_SIZE", 1024),
		ResolveRetries:    getInt("STREAMER_RESOLVE_RETRIES", 2),
		ResolveBackoff:    getDuration("STREAMER_RESOLVE_BACKOFF", 500*time.Millisecond),

		UpstreamRPS:   getFloat("STREAMER_UPSTREAM_RPS", 5),
		UpstreamBurst: getInt("STREAMER_UPSTREAM_BURST", 10),

		RateLimit: RateLimitConfig{
			Requests: getInt("STREAMER_RATE_LIMIT_REQUESTS", 20),
			Window:   getDuration("STREAMER_RATE_LIMIT_WINDOW", time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getString("STREAMER_REDIS_ADDR", ""),
			Password: getString("STREAMER_REDIS_PASSWORD", ""),
			DB:       getInt("STREAMER_REDIS_DB", 0),
		},

		AllowedOrigins: getList("STREAMER_ALLOWED_ORIGINS", []string{"*"}),
		StreamBuffer:   getInt("STREAMER_STREAM_BUFFER", 32*1024),
		VideoContainer: strings.ToLower(getString("STREAMER_VIDEO_CONTAINER", "mp4")),
	}

	switch cfg.Resolver {
	case ResolverYouTube, ResolverYTDLP:
	default:
		return Config{}, fmt.Errorf("unsupported resolver %q", cfg.Resolver)
	}

	proxies, err := parsePrefixes(getList("STREAMER_TRUSTED_PROXIES", nil))
	if err != nil {
		return Config{}, fmt.Errorf("STREAMER_TRUSTED_PROXIES: %w", err)
	}
	cfg.TrustedProxies = proxies

	return cfg, nil
}

// Production reports whether the service runs in production mode.
func (c Config) Production() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}

func getString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func getFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func getList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

// parsePrefixes accepts CIDR ranges and bare addresses, which trust a single host.
func parsePrefixes(values []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, value := range values {
		if strings.Contains(value, "/") {
			prefix, err := netip.ParsePrefix(value)
			if err != nil {
				return nil, err
			}
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(value)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
