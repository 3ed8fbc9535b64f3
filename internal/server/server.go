package server

import (
	"context"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/NJTYTYTY/Backend-depa/internal/config"
	apperrors "github.com/NJTYTYTY/Backend-depa/internal/errors"
	"github.com/NJTYTYTY/Backend-depa/internal/eventsource"
	"github.com/NJTYTYTY/Backend-depa/internal/realtime"
)

type Server struct {
	echo     *echo.Echo
	config   *config.Config
	hub      *realtime.Hub
	notifier *eventsource.Notifier
}

func NewServer(cfg *config.Config, hub *realtime.Hub, notifier *eventsource.Notifier) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:     e,
		config:   cfg,
		hub:      hub,
		notifier: notifier,
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
