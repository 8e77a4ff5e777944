package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apihttp "github.com/tianzhicdev/dogetionary-sub001/internal/api/http"
	"github.com/tianzhicdev/dogetionary-sub001/internal/app"
	"github.com/tianzhicdev/dogetionary-sub001/internal/domain"
	"github.com/tianzhicdev/dogetionary-sub001/internal/domain/ports"
	"github.com/tianzhicdev/dogetionary-sub001/internal/download"
	"github.com/tianzhicdev/dogetionary-sub001/internal/media/ffprobe"
	"github.com/tianzhicdev/dogetionary-sub001/internal/metrics"
	"github.com/tianzhicdev/dogetionary-sub001/internal/player"
	mongorepo "github.com/tianzhicdev/dogetionary-sub001/internal/repository/mongo"
	"github.com/tianzhicdev/dogetionary-sub001/internal/telemetry"

	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "playback-engine", version)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "playback-engine"),
		slog.String("version", version),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("mediaDir", cfg.MediaDir),
		slog.String("mediaBaseURL", cfg.MediaBaseURL),
		slog.Int("playerCacheMax", cfg.PlayerCacheMax),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	defer cancel()

	mongoClient, err := mongorepo.Connect(ctx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		logger.Error("mongo connect failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
		logger.Error("mongo ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	watchHistoryRepo := mongorepo.NewWatchHistoryRepository(mongoClient, cfg.MongoDatabase)
	playerSettingsRepo := mongorepo.NewPlayerSettingsRepository(mongoClient, cfg.MongoDatabase)

	if err := watchHistoryRepo.EnsureIndexes(ctx); err != nil {
		logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
	}

	manager, err := download.NewManager(download.Config{
		BaseURL:        cfg.MediaBaseURL,
		Dir:            cfg.MediaDir,
		RateLimitBytes: cfg.DownloadRateBytes,
		Timeout:        time.Duration(cfg.DownloadTimeoutSec) * time.Second,
	}, logger)
	if err != nil {
		logger.Error("download manager init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	cache := player.NewCache(cfg.PlayerCacheMax, logger)
	factory := player.NewFactory(ffprobe.New(cfg.FFProbePath))
	pipeline := player.NewPipeline(cache, factory, manager, logger)
	service := player.NewService(cache, pipeline)

	go pipeline.Run(rootCtx)

	// Restore the last focused video and warm recently watched clips so the
	// first screen after a restart plays without a fetch.
	go warmStartupPlayers(rootCtx, cfg, service, playerSettingsRepo, watchHistoryRepo, logger)

	handler := apihttp.NewServer(service,
		apihttp.WithLogger(logger),
		apihttp.WithDownloads(manager),
		apihttp.WithWatchHistory(watchHistoryRepo),
		apihttp.WithPlayerSettings(playerSettingsRepo),
		apihttp.WithAllowedOrigins(cfg.CORSAllowedOrigins),
	)

	go broadcastUpdates(rootCtx, handler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	manager.Close()
	pipeline.Wait()
	cache.Clear()
	if err := mongoClient.Disconnect(context.Background()); err != nil {
		logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

// warmStartupPlayers asks the pipeline to prepare the video the user was last
// looking at plus the most recently watched clips. Best effort: anything not
// yet downloaded is picked up by the event subscription later.
func warmStartupPlayers(
	ctx context.Context,
	cfg app.Config,
	service *player.Service,
	settings ports.PlayerSettingsStore,
	history ports.WatchHistoryStore,
	logger *slog.Logger,
) {
	loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	seen := make(map[domain.VideoID]bool)
	var ids []domain.VideoID

	if current, ok, err := settings.GetCurrentVideoID(loadCtx); err != nil {
		logger.Warn("player settings load failed", slog.String("error", err.Error()))
	} else if ok && current != "" {
		seen[current] = true
		ids = append(ids, current)
	}

	if cfg.WarmRecentCount > 0 {
		recent, err := history.ListRecent(loadCtx, cfg.WarmRecentCount)
		if err != nil {
			logger.Warn("watch history load failed", slog.String("error", err.Error()))
		}
		for _, wp := range recent {
			if seen[wp.VideoID] {
				continue
			}
			seen[wp.VideoID] = true
			ids = append(ids, wp.VideoID)
		}
	}

	if len(ids) == 0 {
		return
	}
	logger.Info("warming players", slog.Int("count", len(ids)))
	service.PreparePlayers(ids)
}

// broadcastUpdates pushes download and player snapshots to WebSocket clients
// on a fixed cadence. The cache entries gauge is owned by the cache itself,
// which updates it on every mutation.
func broadcastUpdates(ctx context.Context, handler *apihttp.Server) {
	downloadTicker := time.NewTicker(5 * time.Second)
	playersTicker := time.NewTicker(15 * time.Second)
	defer downloadTicker.Stop()
	defer playersTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-downloadTicker.C:
			handler.BroadcastDownloads()
		case <-playersTicker.C:
			handler.BroadcastPlayers()
		}
	}
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
