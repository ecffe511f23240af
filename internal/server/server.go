// Package server implements the runtime that serves the live-operations
// HTTP API and manages the background session reaper.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/catalyst-dev/liveops/internal/core"
	"github.com/catalyst-dev/liveops/internal/handler"
	"github.com/catalyst-dev/liveops/internal/transport"
	"github.com/catalyst-dev/liveops/internal/transport/http"
)

// Config holds the runtime parameters for a Server.
type Config struct {
	Address        string
	AllowedOrigins []string
	ReapInterval   time.Duration
}

// Server binds the HTTP listener and the session reaper, running them
// in parallel via transport.Serve.
type Server struct {
	handler *handler.Handler
	store   *core.SessionStore
}

func NewServer(handler *handler.Handler, store *core.SessionStore) *Server {
	return &Server{handler: handler, store: store}
}

// Run starts the HTTP server and the background reaper. It blocks
// until ctx is cancelled or an unrecoverable error occurs.
func (s *Server) Run(ctx context.Context, cfg Config) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	s.handler.Mount(e)

	httpSrv, err := http.NewServer(
		http.WithAddress(cfg.Address),
		http.WithAllowedOrigins(cfg.AllowedOrigins),
		http.WithHandler(e),
	)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	reaper := &sessionReaperListener{store: s.store, interval: cfg.ReapInterval}

	return transport.Serve(ctx, httpSrv, reaper)
}
