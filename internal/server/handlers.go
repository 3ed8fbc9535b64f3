package server

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	apperrors "github.com/NJTYTYTY/Backend-depa/internal/errors"
	"github.com/NJTYTYTY/Backend-depa/internal/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is enforced by the upstream gateway
	},
}

func (s *Server) handleWebSocket(c echo.Context) error {
	pondID := realtime.PondID(c.Param("pond_id"))
	if pondID == "" {
		return apperrors.ValidationError("pond id is required")
	}

	// The caller-supplied principal reference; opaque here, authorization
	// was already checked upstream.
	clientID := c.QueryParam("client_id")
	if clientID == "" {
		clientID = c.RealIP()
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}

	transport := realtime.NewWebSocketTransport(conn)
	if _, err := s.hub.Admit(pondID, clientID, transport); err != nil {
		slog.Warn("Admission rejected", "pond_id", string(pondID), "client_id", clientID, "error", err)
		_ = transport.Close()
	}

	// The connection's read pump owns the socket from here on; the already
	// upgraded response has nothing useful left to report.
	return nil
}

type ingestRequest struct {
	PondID    string          `json:"pondId"`
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
}

// handleIngestEvent accepts fire-and-forget domain events from the CRUD
// layer. Responds 202 before delivery; pondId "*" fans out to every pond
// with subscribers.
func (s *Server) handleIngestEvent(c echo.Context) error {
	secret := c.Request().Header.Get("X-Event-Secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.config.EventIngestSecret)) != 1 {
		return apperrors.UnauthorizedError("invalid event ingest secret")
	}

	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid event body")
	}
	if req.EventType == "" {
		return apperrors.ValidationError("eventType is required")
	}
	if req.PondID == "" {
		return apperrors.ValidationError("pondId is required")
	}

	if req.PondID == "*" {
		s.notifier.NotifyAll(realtime.EventType(req.EventType), req.Payload)
	} else {
		s.notifier.Notify(realtime.PondID(req.PondID), realtime.EventType(req.EventType), req.Payload)
	}

	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.hub.Stats())
}

func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(c echo.Context) error {
	stats := s.hub.Stats()
	return c.JSON(http.StatusOK, map[string]any{
		"status":             "ok",
		"active_connections": stats.ActiveConnections,
	})
}
