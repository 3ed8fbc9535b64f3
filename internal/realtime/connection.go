package realtime

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/NJTYTYTY/Backend-depa/internal/metrics"
)

// State is the lifecycle state of a Connection.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is one admitted bidirectional channel tied to a pond.
// It exclusively owns its Transport; the transport is released exactly once,
// no matter how many triggers race on Close.
type Connection struct {
	id          uuid.UUID
	pondID      PondID
	clientID    string
	transport   Transport
	clock       clockwork.Clock
	sendTimeout time.Duration

	state   atomic.Int32
	writeMu sync.Mutex

	mu       sync.Mutex
	lastSeen time.Time
	probedAt time.Time // zero when no probe is outstanding

	closeOnce sync.Once

	// onClose removes the connection from the registry and releases its
	// capacity slot. Set by the Hub at admission, invoked before the
	// transition to Closed.
	onClose func(c *Connection, reason string)
}

func newConnection(pondID PondID, clientID string, transport Transport, clock clockwork.Clock, sendTimeout time.Duration) *Connection {
	c := &Connection{
		id:          uuid.New(),
		pondID:      pondID,
		clientID:    clientID,
		transport:   transport,
		clock:       clock,
		sendTimeout: sendTimeout,
		lastSeen:    clock.Now(),
	}
	c.state.Store(int32(StateConnecting))
	return c
}

// ID returns the process-unique connection identifier.
func (c *Connection) ID() uuid.UUID { return c.id }

// PondID returns the pond this connection subscribes to. Immutable.
func (c *Connection) PondID() PondID { return c.pondID }

// ClientID returns the caller-supplied principal reference. Logging only.
func (c *Connection) ClientID() string { return c.clientID }

// State returns the current lifecycle state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// Touch records inbound activity and clears any outstanding probe.
func (c *Connection) Touch() {
	c.mu.Lock()
	c.lastSeen = c.clock.Now()
	c.probedAt = time.Time{}
	c.mu.Unlock()
}

// LastSeen returns the time of the most recent inbound activity.
func (c *Connection) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// markProbed records that a liveness probe was sent, unless activity
// arrived since the probe decision.
func (c *Connection) markProbed(now time.Time) {
	c.mu.Lock()
	if c.probedAt.IsZero() {
		c.probedAt = now
	}
	c.mu.Unlock()
}

// probeOutstanding reports whether a probe is awaiting a response.
func (c *Connection) probeOutstanding() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.probedAt, !c.probedAt.IsZero()
}

// setActive completes the admission handshake.
func (c *Connection) setActive() {
	c.state.CompareAndSwap(int32(StateConnecting), int32(StateActive))
}

// Send delivers a single event to the transport. It does not retry; the
// removal policy on failure belongs to the Broadcaster.
func (c *Connection) Send(event Event) error {
	frame, err := event.MarshalFrame()
	if err != nil {
		return err
	}
	return c.sendFrame(frame)
}

// sendFrame writes a pre-encoded frame with the per-send deadline. Writes
// are serialized so a broadcast and a heartbeat probe never interleave on
// the wire.
func (c *Connection) sendFrame(frame []byte) error {
	if s := c.State(); s != StateActive && s != StateConnecting {
		return ErrConnectionClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := c.clock.Now().Add(c.sendTimeout)
	if err := c.transport.WriteFrame(frame, deadline); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	metrics.MessagesSentTotal.Inc()
	return nil
}

// Close tears the connection down. Idempotent: concurrent calls collapse to
// a single teardown and the transport is released exactly once. The registry
// entry is removed before the transition to Closed.
func (c *Connection) Close(reason string) {
	c.closeOnce.Do(func() {
		// A failed handshake goes Connecting -> Closed directly.
		if c.State() != StateConnecting {
			c.state.Store(int32(StateClosing))
		}

		if c.onClose != nil {
			c.onClose(c, reason)
		}

		if err := c.transport.Close(); err != nil {
			// Absorbed: the socket may already be gone.
			slog.Debug("Transport close error", "connection_id", c.id.String(), "error", err)
		}

		c.state.Store(int32(StateClosed))
		metrics.ConnectionsClosedTotal.WithLabelValues(reason).Inc()
		slog.Debug("Connection closed", "connection_id", c.id.String(), "pond_id", string(c.pondID), "reason", reason)
	})
}
