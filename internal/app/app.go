package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/vidfriends/streamer/internal/config"
	"github.com/vidfriends/streamer/internal/handlers"
	"github.com/vidfriends/streamer/internal/httpserver"
	"github.com/vidfriends/streamer/internal/logging"
	"github.com/vidfriends/streamer/internal/videos"
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// Run bootstraps the streamer application.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve or resolve")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "resolve":
		return resolve(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.LogLevel)
	logger = logger.With("env", cfg.Environment)
	slog.SetDefault(logger)

	deps, cleanup, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := cleanup(); err != nil {
			logger.Warn("cleanup failed", "error", err)
		}
	}()

	srv := httpserver.New(cfg.AppPort, handlers.NewRouter(deps), logger)

	logger.Info("starting http server", "port", cfg.AppPort, "resolver", cfg.Resolver)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start()
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	select {
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	case sig := <-signalCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

type resolveOutput struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Channel   string         `json:"channel"`
	Thumbnail string         `json:"thumbnail"`
	Duration  int            `json:"duration"`
	Formats   []formatOutput `json:"formats"`
}

type formatOutput struct {
	Container   string `json:"container"`
	Audio       bool   `json:"audio"`
	Video       bool   `json:"video"`
	Progressive bool   `json:"progressive"`
	Bitrate     int    `json:"bitrate"`
}

// resolve runs one URL through the same cache and resolver pipeline the
// server uses and prints what the info endpoint would see.
func resolve(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected media URL")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.NewTo(stderr, cfg.LogLevel)
	ctx = logging.WithLogger(ctx, logger)

	id, err := videos.ParseURL(args[0])
	if err != nil {
		return fmt.Errorf("%q: %w", args[0], err)
	}

	provider, err := newMetadataProvider(cfg)
	if err != nil {
		return err
	}

	meta, err := newMetadataCache(cfg, provider).Lookup(ctx, id)
	if err != nil {
		if retryAfter, ok := videos.AsRateLimited(err); ok {
			return fmt.Errorf("upstream rate limited, retry after %s: %w", retryAfter, err)
		}
		return err
	}

	out := resolveOutput{
		ID:        meta.ID.String(),
		Title:     meta.Title,
		Channel:   meta.Channel,
		Thumbnail: meta.Thumbnail,
		Duration:  meta.Duration,
		Formats:   make([]formatOutput, 0, len(meta.Formats)),
	}
	for _, f := range meta.Formats {
		out.Formats = append(out.Formats, formatOutput{
			Container:   f.Container,
			Audio:       f.HasAudio,
			Video:       f.HasVideo,
			Progressive: f.Progressive,
			Bitrate:     f.Bitrate,
		})
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
