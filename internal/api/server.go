package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tourneyreel/studio/internal/editor"
	"github.com/tourneyreel/studio/internal/gallery"
	"github.com/tourneyreel/studio/internal/jobs"
	"github.com/tourneyreel/studio/internal/media"
	"github.com/tourneyreel/studio/internal/playback"
	"github.com/tourneyreel/studio/internal/posts"
)

// Settings reads values from the agent's config table.
type Settings interface {
	GetSetting(ctx context.Context, key string) (value string, ok bool, err error)
}

// AssetServer serves stored export outputs by file name.
type AssetServer interface {
	ServeAsset(w http.ResponseWriter, r *http.Request, name string) error
}

// PlaybackStatusFunc reports the playback driver of a campaign's session.
type PlaybackStatusFunc func(campaignID string) (playback.Status, bool)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port      int
	Version   string
	Settings  Settings
	Sessions  *editor.Manager
	Jobs      jobs.Repository
	Runner    *jobs.Runner
	Gallery   gallery.Repository
	Posts     posts.Repository
	Assets    AssetServer
	Doctor    *media.Doctor
	Playback  PlaybackStatusFunc
	Logger    *slog.Logger
	StartTime time.Time
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
