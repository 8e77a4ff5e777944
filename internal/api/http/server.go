package apihttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tianzhicdev/dogetionary-sub001/internal/domain"
	"github.com/tianzhicdev/dogetionary-sub001/internal/player"
)

// PlayerService is the playback façade the handlers forward to.
type PlayerService interface {
	Get(id domain.VideoID) player.Handle
	Prepare(id domain.VideoID)
	PreparePlayers(ids []domain.VideoID)
	Release(id domain.VideoID)
	Clear()
	Info() (int, []domain.VideoID)
}

type DownloadManager interface {
	State(id domain.VideoID) domain.DownloadState
	Start(ctx context.Context, id domain.VideoID) error
	States() []domain.DownloadEvent
}

type WatchHistoryStore interface {
	Upsert(ctx context.Context, wp domain.WatchPosition) error
	Get(ctx context.Context, id domain.VideoID) (domain.WatchPosition, error)
	ListRecent(ctx context.Context, limit int) ([]domain.WatchPosition, error)
}

type PlayerSettingsStore interface {
	GetCurrentVideoID(ctx context.Context) (domain.VideoID, bool, error)
	SetCurrentVideoID(ctx context.Context, id domain.VideoID) error
}

type Server struct {
	players        PlayerService
	downloads      DownloadManager
	watchHistory   WatchHistoryStore
	playerSettings PlayerSettingsStore
	allowedOrigins []string
	logger         *slog.Logger
	handler        http.Handler
	wsHub          *wsHub
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithDownloads(downloads DownloadManager) ServerOption {
	return func(s *Server) {
		s.downloads = downloads
	}
}

func WithWatchHistory(store WatchHistoryStore) ServerOption {
	return func(s *Server) {
		s.watchHistory = store
	}
}

func WithPlayerSettings(store PlayerSettingsStore) ServerOption {
	return func(s *Server) {
		s.playerSettings = store
	}
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted (development mode).
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

func NewServer(players PlayerService, opts ...ServerOption) *Server {
	s := &Server{players: players}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/players", s.handlePlayers)
	mux.HandleFunc("/players/", s.handlePlayerByID)
	mux.HandleFunc("/videos/", s.handleVideoDownload)
	mux.HandleFunc("/watch-history", s.handleWatchHistory)
	mux.HandleFunc("/watch-history/", s.handleWatchHistoryByID)
	mux.HandleFunc("/settings/player", s.handlePlayerSettings)
	mux.HandleFunc("/internal/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "playback-engine",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/internal/health" && !strings.HasPrefix(p, "/ws")
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(100, 200, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close shuts down the WebSocket hub, disconnecting all clients.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.wsHub.register <- client
	go client.writePump()
	go client.readPump()
}

// BroadcastDownloads pushes the current download states to all WebSocket
// clients.
func (s *Server) BroadcastDownloads() {
	if s.wsHub == nil || s.downloads == nil {
		return
	}
	s.wsHub.Broadcast("downloads", s.downloads.States())
}

// BroadcastPlayers pushes the current player cache summary to all WebSocket
// clients.
func (s *Server) BroadcastPlayers() {
	if s.wsHub == nil || s.players == nil {
		return
	}
	count, ids := s.players.Info()
	s.wsHub.Broadcast("players", playerInfoResponse{Count: count, IDs: ids})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	count, _ := s.players.Info()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"cachedPlayers": count,
		"wsClients":     s.wsHub.clientCount(),
	})
}
