package handlers

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/vidfriends/streamer/internal/middleware"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Logger          *slog.Logger
	Metadata        MetadataResolver
	Streams         StreamOpener
	Limiter         RateLimiter
	RateLimitWindow time.Duration
	TrustedProxies  []netip.Prefix
	AllowedOrigins  []string
	VideoContainer  string
	StreamBuffer    int
	Production      bool
}

// NewRouter wires HTTP handlers into a chi router. Only the resolver-facing
// routes sit behind the rate limiter.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	health := HealthHandler{}
	media := MediaHandler{
		Metadata:       deps.Metadata,
		Streams:        deps.Streams,
		VideoContainer: deps.VideoContainer,
		BufferSize:     deps.StreamBuffer,
		Production:     deps.Production,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", chimw.RequestIDHeader},
		ExposedHeaders: []string{"Content-Disposition", "Content-Length", "Retry-After", chimw.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/api/health", health.Handle)
	r.Group(func(r chi.Router) {
		r.Use(RateLimit(deps.Limiter, deps.RateLimitWindow, deps.TrustedProxies))
		r.Post("/api/info", media.Info)
		r.Post("/api/download/mp3", media.DownloadAudio)
		r.Post("/api/download/mp4", media.DownloadVideo)
	})

	return r
}
