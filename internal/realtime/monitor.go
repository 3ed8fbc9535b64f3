package realtime

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/NJTYTYTY/Backend-depa/internal/logging"
	"github.com/NJTYTYTY/Backend-depa/internal/metrics"
)

// Monitor is the periodic liveness sweep. A connection idle for longer than
// missedThreshold gets an application-level ping; one that stays silent for
// graceWindow after the probe is closed and drops out of the registry. This
// bounds the lifetime of half-open sockets, which otherwise accumulate as
// stale subscriber entries.
type Monitor struct {
	registry        *Registry
	clock           clockwork.Clock
	interval        time.Duration
	missedThreshold time.Duration
	graceWindow     time.Duration
}

func NewMonitor(registry *Registry, clock clockwork.Clock, interval, missedThreshold, graceWindow time.Duration) *Monitor {
	return &Monitor{
		registry:        registry,
		clock:           clock,
		interval:        interval,
		missedThreshold: missedThreshold,
		graceWindow:     graceWindow,
	}
}

// Run starts the sweep loop. It blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.sweep(m.clock.Now())
		}
	}
}

// sweep runs one pass over all active connections. Safe to run concurrently
// with subscribe, unsubscribe, and broadcast: eviction goes through the
// idempotent Close, so a connection racing with another teardown trigger is
// never double-closed.
func (m *Monitor) sweep(now time.Time) {
	for _, conn := range m.registry.Connections() {
		if conn.State() != StateActive {
			continue
		}

		if probedAt, outstanding := conn.probeOutstanding(); outstanding {
			if now.Sub(probedAt) > m.graceWindow {
				logging.WithConnection(conn.ID().String()).Info("Evicting unresponsive connection",
					"pond_id", string(conn.PondID()),
					"client_id", conn.ClientID(),
					"idle", now.Sub(conn.LastSeen()).String(),
				)
				metrics.HeartbeatEvictionsTotal.Inc()
				conn.Close(ReasonHeartbeatTimeout)
			}
			continue
		}

		if now.Sub(conn.LastSeen()) > m.missedThreshold {
			if err := conn.sendFrame(pingFrame(now)); err != nil {
				logging.WithConnection(conn.ID().String()).Info("Probe write failed, closing connection",
					"pond_id", string(conn.PondID()),
					"error", err,
				)
				metrics.HeartbeatEvictionsTotal.Inc()
				conn.Close(ReasonHeartbeatTimeout)
				continue
			}
			conn.markProbed(now)
			metrics.HeartbeatProbesTotal.Inc()
		}
	}
}
