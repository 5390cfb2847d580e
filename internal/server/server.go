// Package server exposes a search provider over HTTP for remote clients.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sst/mentions/internal/search"
	"github.com/sst/mentions/internal/trigger"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	provider search.Provider
	kinds    []trigger.Kind
	echo     *echo.Echo
	addr     string
	log      *slog.Logger
}

type Option func(*Server)

// WithKinds restricts the kinds the server answers for. Unknown kinds get a
// 400.
func WithKinds(kinds ...trigger.Kind) Option {
	return func(s *Server) {
		s.kinds = kinds
	}
}

func New(provider search.Provider, addr string, opts ...Option) *Server {
	s := &Server{
		provider: provider,
		echo:     echo.New(),
		addr:     addr,
		log:      slog.With("service", "server"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Debug("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	s.echo.GET("/healthz", s.health)
	s.echo.GET("/search", s.search)
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on the configured address until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.echo.Listener = listener
	s.log.Info("starting server", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("shutdown failed", "error", err)
		}
	}()

	if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) search(c echo.Context) error {
	kind := trigger.Kind(c.QueryParam("kind"))
	if kind == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "kind is required")
	}
	if !s.allowed(kind) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown kind "+string(kind))
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}

	candidates, err := search.Limit(s.provider, limit).Search(c.Request().Context(), kind, c.QueryParam("q"))
	if err != nil {
		s.log.Warn("search failed", "kind", kind, "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, "search failed")
	}
	if candidates == nil {
		candidates = []search.Candidate{}
	}
	return c.JSON(http.StatusOK, search.Response{Candidates: candidates})
}

func (s *Server) allowed(kind trigger.Kind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	for _, k := range s.kinds {
		if k == kind {
			return true
		}
	}
	return false
}
