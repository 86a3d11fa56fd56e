// Package server hosts the HTTP facade of the memory engine.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/ai/metrics"
	"github.com/hrygo/mnemo/internal/profile"
	apiv1 "github.com/hrygo/mnemo/server/router/api/v1"
	"github.com/hrygo/mnemo/store"
)

// Server is the HTTP server.
type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	logger     *slog.Logger
}

// NewServer creates the echo server and registers its routes.
func NewServer(p *profile.Profile, st *store.Store, api *apiv1.APIV1Service, exporter *metrics.PrometheusExporter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Profile: p,
		Store:   st,
		logger:  logger,
	}

	echoServer := echo.New()
	echoServer.Debug = p.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(middleware.Recover())
	echoServer.HTTPErrorHandler = s.errorHandler(echoServer)
	s.echoServer = echoServer

	echoServer.GET("/healthz", s.healthz)
	if exporter != nil {
		echoServer.GET("/metrics", echo.WrapHandler(exporter.Handler()))
	}
	api.RegisterRoutes(echoServer)
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

// Start listens on the profile address and serves in the background.
func (s *Server) Start(_ context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", address)
	}
	s.echoServer.Listener = listener

	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("failed to serve", "error", err)
		}
	}()
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		s.logger.Error("failed to shutdown server", "error", err)
	}
	s.logger.Info("server stopped properly")
}

func (s *Server) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	caps := s.Store.Capabilities()
	status := map[string]any{
		"status":  "ok",
		"driver":  s.Profile.Driver,
		"version": s.Profile.Version,
		"capabilities": map[string]bool{
			"conversation":    caps.Conversation,
			"vector_search":   caps.VectorSearch,
			"embedding_queue": caps.EmbeddingQueue,
		},
	}
	if caps.EmbeddingQueue {
		counts, err := s.Store.CountEmbeddingJobs(ctx)
		if err != nil {
			s.logger.Warn("healthz: failed to count embedding jobs", "error", err)
			status["status"] = "degraded"
			return c.JSON(http.StatusServiceUnavailable, status)
		}
		status["embedding_jobs"] = counts
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) errorHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) && httpErr.Code >= http.StatusInternalServerError && httpErr.Internal != nil {
			s.logger.Error("API: request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"status", httpErr.Code,
				"error", httpErr.Internal)
		}
		e.DefaultHTTPErrorHandler(err, c)
	}
}
