// Package server implements the HTTP adapter (§6): a thin, out-of-core
// transport over the job-dispatch engine, grounded on vire's
// internal/server/{server.go,routes.go,helpers.go,middleware.go}.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/SystemGuard-official/docparse/internal/app"
	"github.com/SystemGuard-official/docparse/internal/common"
)

// Server wraps the HTTP server and the application it serves.
type Server struct {
	app    *app.App
	server *http.Server
	logger *common.Logger
}

// NewServer builds a Server with all routes registered and the middleware
// stack applied.
func NewServer(a *app.App) *Server {
	s := &Server{
		app:    a,
		logger: a.Logger,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	handler := applyMiddleware(mux, a.Logger)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", a.Config.Server.Host, a.Config.Server.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler, for tests to drive directly.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server (blocking).
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server, letting in-flight HTTP
// requests complete. It does not touch the worker pools — callers stop
// those separately via app.App.Close so in-flight jobs finish draining
// (§4.D's no-preemption shutdown semantics).
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
