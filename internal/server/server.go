// Package server hosts the landing page that keeps the bot's host
// reachable and exposes a health endpoint.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Server is the landing/health HTTP server run alongside the bot loop.
type Server struct {
	echo    *echo.Echo
	port    int
	started time.Time

	lastEdit atomic.Value // time.Time of the last successful edit
}

// New creates the server.
func New(port int) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())

	s := &Server{
		echo:    e,
		port:    port,
		started: time.Now(),
	}

	e.GET("/", s.index)
	e.GET("/health", s.health)

	return s
}

// RecordEdit notes a successful edit for the health report.
func (s *Server) RecordEdit(ts time.Time) {
	s.lastEdit.Store(ts)
}

func (s *Server) index(c echo.Context) error {
	return c.String(http.StatusOK, "reportmark is running.\n")
}

func (s *Server) health(c echo.Context) error {
	body := map[string]any{
		"status": "healthy",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}
	if ts, ok := s.lastEdit.Load().(time.Time); ok {
		body["last_edit"] = ts.UTC().Format(time.RFC3339)
	}
	return c.JSON(http.StatusOK, body)
}

// Start begins serving and blocks until the server stops.
func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%d", s.port))
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
