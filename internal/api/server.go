// Package api exposes the review session over a loopback HTTP API and
// serves the browser UI that drives it.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vidtriage/vidtriage/internal/ledger"
	"github.com/vidtriage/vidtriage/internal/playback"
	"github.com/vidtriage/vidtriage/internal/session"
)

// Prober reports a video's duration in milliseconds.
type Prober interface {
	ProbeDurationMs(ctx context.Context, path string) (int64, error)
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port      int
	AuthToken string
	Root      string
	Session   *session.Controller
	Ledger    *ledger.Ledger
	Streamer  *playback.Streamer
	Prober    Prober
	Logger    *slog.Logger
	StartTime time.Time
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:        fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:     router,
			ReadTimeout: 15 * time.Second,
			// Long-running video streams rule out a write timeout.
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
