// Package eventsource is the boundary between the CRUD layer and the
// realtime subsystem. Notify is fire-and-forget: events go onto bounded
// per-pond queues so the originating transaction never blocks and a slow
// pond never delays another.
package eventsource

import (
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/NJTYTYTY/Backend-depa/internal/metrics"
	"github.com/NJTYTYTY/Backend-depa/internal/realtime"
)

// Publisher is the slice of the realtime hub the notifier needs.
type Publisher interface {
	Publish(event realtime.Event) realtime.DeliveryReport
	Ponds() []realtime.PondID
}

// Notifier forwards domain events to the Broadcaster. One worker goroutine
// per pond drains its queue, preserving publish order within a pond.
type Notifier struct {
	publisher Publisher
	clock     clockwork.Clock
	queueSize int

	mu     sync.Mutex
	queues map[realtime.PondID]chan realtime.Event
	closed bool

	wg sync.WaitGroup
}

func NewNotifier(publisher Publisher, clock clockwork.Clock, queueSize int) *Notifier {
	return &Notifier{
		publisher: publisher,
		clock:     clock,
		queueSize: queueSize,
		queues:    make(map[realtime.PondID]chan realtime.Event),
	}
}

// Notify enqueues a domain event for broadcast. Never blocks: when the pond
// queue is full the event is dropped and counted (best-effort, at-most-once
// delivery). Calling Notify after Close is a logged no-op.
func (n *Notifier) Notify(pondID realtime.PondID, eventType realtime.EventType, payload any) {
	event := realtime.Event{
		PondID:    pondID,
		Type:      eventType,
		Payload:   payload,
		Timestamp: n.clock.Now().UTC(),
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		slog.Warn("Notify after close, event dropped", "pond_id", string(pondID), "event_type", string(eventType))
		return
	}
	queue, ok := n.queues[pondID]
	if !ok {
		queue = make(chan realtime.Event, n.queueSize)
		n.queues[pondID] = queue
		metrics.EventQueueDepth.Set(float64(len(n.queues)))
		n.wg.Add(1)
		go n.drain(queue)
	}

	// The enqueue stays under the lock: Close closes the queues under the
	// same lock, so the send can never hit a closed channel.
	select {
	case queue <- event:
	default:
		metrics.EventQueueDroppedTotal.Inc()
		slog.Warn("Event dropped, pond queue full", "pond_id", string(pondID), "event_type", string(eventType))
	}
}

// NotifyAll sends a system-wide event to every pond that currently has
// subscribers.
func (n *Notifier) NotifyAll(eventType realtime.EventType, payload any) {
	for _, pondID := range n.publisher.Ponds() {
		n.Notify(pondID, eventType, payload)
	}
}

func (n *Notifier) drain(queue <-chan realtime.Event) {
	defer n.wg.Done()
	for event := range queue {
		report := n.publisher.Publish(event)
		if len(report.Failed) > 0 {
			slog.Debug("Publish completed with failures",
				"pond_id", string(event.PondID),
				"targets", report.Targets,
				"delivered", report.Delivered,
				"failed", len(report.Failed),
			)
		}
	}
}

// Close stops accepting events, drains the queues, and waits for the
// workers to finish.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	for _, queue := range n.queues {
		close(queue)
	}
	n.queues = nil
	n.mu.Unlock()

	n.wg.Wait()
	metrics.EventQueueDepth.Set(0)
	slog.Info("Event notifier stopped")
}
