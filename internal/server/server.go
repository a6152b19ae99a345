// Package server provides the HTTP surface: the MCP endpoint plus
// operational routes (health probes, version).
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/piolab/piobridge/internal/errors"
	"github.com/piolab/piobridge/internal/server/handlers"
	"github.com/piolab/piobridge/internal/server/middleware"
	"github.com/piolab/piobridge/pkg/mcp"
)

// maxMCPBodyBytes caps a single MCP-over-HTTP message.
const maxMCPBodyBytes = 4 << 20

// Server is the HTTP transport. Routes are fixed at construction apart from
// the MCP endpoint, which MountMCP adds.
type Server struct {
	host   string
	port   int
	router chi.Router
	logger *zap.Logger

	// Timeouts may be adjusted between New and Start.
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	httpServer *http.Server
}

// New creates a Server listening on host:port with the operational routes
// registered.
func New(host string, port int) *Server {
	s := &Server{
		host:            host,
		port:            port,
		logger:          zap.NewNop(),
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.NotFound(apperrors.NotFoundHandler)
	r.MethodNotAllowed(apperrors.MethodNotAllowedHandler)

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler)

	s.router = r
	return s
}

// SetLogger installs a logger. A nil logger keeps the no-op default.
func (s *Server) SetLogger(logger *zap.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// MountMCP registers the MCP endpoint: one JSON-RPC message per POST.
func (s *Server) MountMCP(m *mcp.Server) {
	s.router.Post("/mcp", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxMCPBodyBytes))
		if err != nil {
			apperrors.WriteError(w, r, http.StatusBadRequest,
				apperrors.CodeBadRequest, "reading request body: "+err.Error(), nil)
			return
		}

		resp := m.HandleMessage(r.Context(), body)
		if resp == nil {
			// Notification: acknowledged, nothing to return.
			w.WriteHeader(http.StatusAccepted)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(resp)
	})
}

// Handler returns the assembled router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.host, s.port)
}

// Start serves until the context is cancelled, then drains connections
// within ShutdownTimeout.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
		IdleTimeout:  s.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.Addr()))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
		defer cancel()
		s.logger.Info("http server shutting down")
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
