package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Connection statistics
	s.echo.GET("/ws/stats", s.handleStats)

	// WebSocket subscription endpoint (authorization already resolved upstream)
	s.echo.GET("/ws/:pond_id", s.handleWebSocket, newRateLimiter(s.config.WSRateLimit, s.config.WSRateBurst))

	// Event ingress for the CRUD layer (shared secret, no CSRF)
	s.echo.POST("/internal/events", s.handleIngestEvent)
}
