package realtime

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/NJTYTYTY/Backend-depa/internal/logging"
	"github.com/NJTYTYTY/Backend-depa/internal/metrics"
)

// DeliveryReport records the outcome of one publish. Purely observational.
type DeliveryReport struct {
	PondID    PondID      `json:"pondId"`
	Targets   int         `json:"targets"`
	Delivered int         `json:"delivered"`
	Failed    []uuid.UUID `json:"failed,omitempty"`
}

// Broadcaster fans events out to the current subscribers of a pond.
// Safe for arbitrary concurrent callers; events published by a single caller
// reach each subscriber in publish order.
type Broadcaster struct {
	registry *Registry
	clock    clockwork.Clock
}

func NewBroadcaster(registry *Registry, clock clockwork.Clock) *Broadcaster {
	return &Broadcaster{registry: registry, clock: clock}
}

// Publish delivers the event to every connection subscribed to its pond.
// A send failure for one connection never blocks or fails delivery to the
// others; failed connections are closed and thereby unsubscribed, so they
// are not delivered to again without re-admission. Publish never returns an
// error, only the report.
func (b *Broadcaster) Publish(event Event) DeliveryReport {
	start := b.clock.Now()
	defer func() {
		metrics.PublishDuration.Observe(b.clock.Since(start).Seconds())
	}()

	conns := b.registry.Snapshot(event.PondID)
	report := DeliveryReport{PondID: event.PondID, Targets: len(conns)}
	if len(conns) == 0 {
		return report
	}

	frame, err := event.MarshalFrame()
	if err != nil {
		// Unmarshalable payloads come from the caller; nothing to deliver.
		slog.Error("Failed to marshal event frame", "pond_id", string(event.PondID), "event_type", string(event.Type), "error", err)
		return report
	}

	for _, conn := range conns {
		if err := conn.sendFrame(frame); err != nil {
			metrics.SendFailuresTotal.Inc()
			report.Failed = append(report.Failed, conn.ID())
			logging.WithError(err).Warn("Disconnecting client after send failure",
				"pond_id", string(event.PondID),
				"connection_id", conn.ID().String(),
			)
			conn.Close(ReasonSendFailure)
			continue
		}
		report.Delivered++
	}

	metrics.EventsPublishedTotal.WithLabelValues(string(event.Type)).Inc()
	return report
}
