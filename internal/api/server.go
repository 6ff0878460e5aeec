package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ldang04/vibecut/internal/analysis"
	"github.com/ldang04/vibecut/internal/catalog"
	"github.com/ldang04/vibecut/internal/export"
	"github.com/ldang04/vibecut/internal/orchestrator"
	"github.com/ldang04/vibecut/internal/pipeline"
	"github.com/ldang04/vibecut/internal/plan"
	"github.com/ldang04/vibecut/internal/playback"
	"github.com/ldang04/vibecut/internal/profile"
	"github.com/ldang04/vibecut/internal/search"
)

// Server is the daemon's HTTP surface. It binds loopback only; the
// desktop UI is the sole intended caller.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port         int
	Repository   catalog.Repository
	Runner       *pipeline.Runner
	Orchestrator *orchestrator.Orchestrator
	Applier      *plan.Applier
	Profiles     *profile.Builder
	Exporter     *export.Exporter
	Playback     playback.Service
	Semantic     *search.Semantic
	Keyword      *search.Index
	Analysis     analysis.Service
	Logger       *slog.Logger
	StartTime    time.Time
	Version      string
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
