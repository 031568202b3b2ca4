// Package server exposes the QA engine over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brunobiangulo/docqa"
)

// Config holds HTTP server configuration.
type Config struct {
	Addr string

	// APIKey enables bearer authentication when set. /health and
	// /metrics are always open.
	APIKey string

	// CORSOrigins lists allowed origins. Empty disables CORS headers.
	CORSOrigins []string

	// RequestTimeout bounds each request's context. Zero disables it.
	RequestTimeout time.Duration
}

// Server serves the QA API.
type Server struct {
	echo   *echo.Echo
	engine docqa.Engine
	cfg    Config
}

// New creates a server around engine.
func New(engine docqa.Engine, cfg Config) (*Server, error) {
	if engine == nil {
		return nil, errors.New("server: engine is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":3000"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	// Middleware chain: recovery -> request id -> logging -> cors -> auth -> timeout
	e.Use(recoveryMiddleware())
	e.Use(middleware.RequestID())
	e.Use(logMiddleware())
	if len(cfg.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
			MaxAge:       86400,
		}))
	}
	e.Use(authMiddleware(cfg.APIKey))
	if cfg.RequestTimeout > 0 {
		e.Use(timeoutMiddleware(cfg.RequestTimeout))
	}

	s := &Server{echo: e, engine: engine, cfg: cfg}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	qa := s.echo.Group("/api/qa")
	qa.POST("/ask", s.handleAsk)
	qa.GET("/history", s.handleHistory)

	docs := s.echo.Group("/api/documents")
	docs.POST("", s.handleIngest)
	docs.GET("", s.handleListDocuments)
	docs.GET("/:id", s.handleGetDocument)
	docs.DELETE("/:id", s.handleDeleteDocument)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on the configured address until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("server starting", "addr", s.cfg.Addr)
	srv := &http.Server{
		Addr:        s.cfg.Addr,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	if err := s.echo.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down server...")
	return s.echo.Shutdown(ctx)
}
