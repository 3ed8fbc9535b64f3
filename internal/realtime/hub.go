package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/NJTYTYTY/Backend-depa/internal/logging"
	"github.com/NJTYTYTY/Backend-depa/internal/metrics"
)

// HubConfig carries the tuning knobs for the realtime subsystem.
type HubConfig struct {
	HeartbeatInterval        time.Duration
	HeartbeatMissedThreshold time.Duration
	HeartbeatGraceWindow     time.Duration
	SendTimeout              time.Duration
	MaxClientsPerPond        int
	MaxConnections           int
}

// Stats is the point-in-time connection statistics snapshot.
type Stats struct {
	ActiveConnections    int   `json:"active_connections"`
	PondsWithConnections int   `json:"ponds_with_connections"`
	TotalAdmissions      int64 `json:"total_admissions"`
	MessagesReceived     int64 `json:"messages_received"`
}

// Hub owns the Registry, Broadcaster, and heartbeat Monitor and implements
// the admission contract. Authorization is assumed already resolved by the
// caller before Admit is invoked.
type Hub struct {
	registry    *Registry
	broadcaster *Broadcaster
	monitor     *Monitor
	limiter     *connectionLimiter
	clock       clockwork.Clock
	cfg         HubConfig

	cancel      context.CancelFunc
	monitorDone chan struct{}

	admitted atomic.Int64
	received atomic.Int64
	down     atomic.Bool
}

// NewHub wires the realtime subsystem and starts the heartbeat monitor.
func NewHub(cfg HubConfig, clock clockwork.Clock) *Hub {
	registry := NewRegistry()

	h := &Hub{
		registry:    registry,
		broadcaster: NewBroadcaster(registry, clock),
		monitor:     NewMonitor(registry, clock, cfg.HeartbeatInterval, cfg.HeartbeatMissedThreshold, cfg.HeartbeatGraceWindow),
		limiter:     newConnectionLimiter(int64(cfg.MaxConnections)),
		clock:       clock,
		cfg:         cfg,
		monitorDone: make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		defer close(h.monitorDone)
		h.monitor.Run(ctx)
	}()

	return h
}

// Admit creates a Connection for an already-authorized subscriber, registers
// it, performs the welcome handshake, and starts its read pump. On any error
// the connection never remains in the registry; rejected transports are left
// open for the caller to release.
func (h *Hub) Admit(pondID PondID, clientIdentity string, transport Transport) (*Connection, error) {
	if transport == nil {
		panic("realtime: admit with nil transport")
	}
	if pondID == "" {
		panic("realtime: admit with empty pond id")
	}

	if h.down.Load() {
		metrics.AdmissionsTotal.WithLabelValues("rejected").Inc()
		return nil, &AdmissionError{PondID: pondID, Reason: "hub is shutting down"}
	}

	if !h.limiter.acquire() {
		metrics.AdmissionsTotal.WithLabelValues("rejected").Inc()
		slog.Warn("Rejecting client: connection capacity reached", "pond_id", string(pondID), "max_connections", h.cfg.MaxConnections)
		return nil, &AdmissionError{PondID: pondID, Reason: "connection capacity reached"}
	}

	conn := newConnection(pondID, clientIdentity, transport, h.clock, h.cfg.SendTimeout)
	conn.onClose = func(c *Connection, reason string) {
		h.registry.Unsubscribe(c.PondID(), c)
		h.limiter.release()
		metrics.ConnectedClients.Dec()
	}

	if !h.registry.subscribeIfBelow(pondID, conn, h.cfg.MaxClientsPerPond) {
		h.limiter.release()
		metrics.AdmissionsTotal.WithLabelValues("rejected").Inc()
		slog.Warn("Rejecting client: max clients reached", "pond_id", string(pondID), "max_clients", h.cfg.MaxClientsPerPond)
		return nil, &AdmissionError{PondID: pondID, Reason: "pond at capacity"}
	}
	metrics.ConnectedClients.Inc()

	// Shutdown may have started after the check above and already snapshotted
	// the registry without this connection; tear it down here so no socket
	// outlives the shutdown sweep.
	if h.down.Load() {
		conn.Close(ReasonShutdown)
		metrics.AdmissionsTotal.WithLabelValues("rejected").Inc()
		return nil, &AdmissionError{PondID: pondID, Reason: "hub is shutting down"}
	}

	welcome := Event{
		PondID:    pondID,
		Type:      EventPondUpdate,
		Payload:   map[string]any{"status": "connected", "pondId": string(pondID)},
		Timestamp: h.clock.Now().UTC(),
	}
	if err := conn.Send(welcome); err != nil {
		conn.Close(ReasonHandshakeFailed)
		metrics.AdmissionsTotal.WithLabelValues("rejected").Inc()
		return nil, &AdmissionError{PondID: pondID, Reason: "handshake failed", Cause: err}
	}

	conn.setActive()
	h.admitted.Add(1)
	metrics.AdmissionsTotal.WithLabelValues("admitted").Inc()
	logging.WithPond(string(pondID)).Info("Connection admitted",
		"connection_id", conn.ID().String(),
		"client_id", clientIdentity,
	)

	go h.readPump(conn)
	return conn, nil
}

// clientFrame is the inbound envelope: liveness pings and the small command
// vocabulary clients may send. Unknown types are ignored.
type clientFrame struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

// readPump drains inbound frames until the transport fails. Every inbound
// frame counts as activity; ping frames get a pong reply and status commands
// a pond_update. Client payloads are not routed anywhere and control frames
// never reach the event source.
func (h *Hub) readPump(conn *Connection) {
	defer conn.Close(ReasonClientDisconnect)

	for {
		data, err := conn.transport.ReadFrame()
		if err != nil {
			return
		}

		metrics.MessagesReceivedTotal.Inc()
		h.received.Add(1)
		conn.Touch()

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Debug("Ignoring non-JSON inbound frame", "connection_id", conn.ID().String())
			continue
		}

		switch {
		case frame.Type == controlPing:
			if err := conn.sendFrame(pongFrame(h.clock.Now())); err != nil {
				return
			}
		case frame.Type == "command" && frame.Command == "get_pond_status":
			status := Event{
				PondID: conn.PondID(),
				Type:   EventPondUpdate,
				Payload: map[string]any{
					"command": "pond_status",
					"pondId":  string(conn.PondID()),
					"clients": h.registry.Count(conn.PondID()),
				},
				Timestamp: h.clock.Now().UTC(),
			}
			if err := conn.Send(status); err != nil {
				return
			}
		}
	}
}

// Publish fans the event out to the pond's current subscribers.
func (h *Hub) Publish(event Event) DeliveryReport {
	return h.broadcaster.Publish(event)
}

// Ponds returns the ponds that currently have subscribers.
func (h *Hub) Ponds() []PondID {
	return h.registry.Ponds()
}

// ClientCount returns the number of connections subscribed to a pond.
func (h *Hub) ClientCount(pondID PondID) int {
	return h.registry.Count(pondID)
}

// Snapshot exposes the registry's copy-on-read subscriber view.
func (h *Hub) Snapshot(pondID PondID) []*Connection {
	return h.registry.Snapshot(pondID)
}

// Stats returns connection statistics for the stats endpoint.
func (h *Hub) Stats() Stats {
	return Stats{
		ActiveConnections:    h.registry.TotalConnections(),
		PondsWithConnections: len(h.registry.Ponds()),
		TotalAdmissions:      h.admitted.Load(),
		MessagesReceived:     h.received.Load(),
	}
}

// Shutdown stops the monitor and closes every open connection
// deterministically. Close errors during teardown are absorbed.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.down.Store(true)
	h.cancel()

	conns := h.registry.Connections()
	slog.Info("Realtime hub shutting down", "connections", len(conns))
	for _, conn := range conns {
		conn.Close(ReasonShutdown)
	}

	select {
	case <-h.monitorDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
