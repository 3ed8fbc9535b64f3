package eventsource

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NJTYTYTY/Backend-depa/internal/realtime"
)

// recordingPublisher captures published events and optionally blocks
// delivery until released, to exercise queue backpressure.
type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
	ponds  []realtime.PondID
	gate   chan struct{}
}

func newRecordingPublisher(ponds ...realtime.PondID) *recordingPublisher {
	return &recordingPublisher{ponds: ponds}
}

func (p *recordingPublisher) Publish(event realtime.Event) realtime.DeliveryReport {
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return realtime.DeliveryReport{PondID: event.PondID, Targets: 1, Delivered: 1}
}

func (p *recordingPublisher) Ponds() []realtime.PondID {
	return p.ponds
}

func (p *recordingPublisher) published() []realtime.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]realtime.Event, len(p.events))
	copy(out, p.events)
	return out
}

func TestNotifier_DeliversAsynchronously(t *testing.T) {
	publisher := newRecordingPublisher()
	notifier := NewNotifier(publisher, clockwork.NewRealClock(), 16)
	defer notifier.Close()

	notifier.Notify("P1", realtime.EventSensorUpdate, map[string]any{"temp": 27.5})

	require.Eventually(t, func() bool {
		return len(publisher.published()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	event := publisher.published()[0]
	assert.Equal(t, realtime.PondID("P1"), event.PondID)
	assert.Equal(t, realtime.EventSensorUpdate, event.Type)
	assert.Equal(t, map[string]any{"temp": 27.5}, event.Payload)
	assert.False(t, event.Timestamp.IsZero())
}

func TestNotifier_OrderPreservedWithinPond(t *testing.T) {
	publisher := newRecordingPublisher()
	notifier := NewNotifier(publisher, clockwork.NewRealClock(), 64)

	for i := 0; i < 10; i++ {
		notifier.Notify("P1", realtime.EventSensorUpdate, i)
	}
	notifier.Close()

	events := publisher.published()
	require.Len(t, events, 10)
	for i, event := range events {
		assert.Equal(t, i, event.Payload)
	}
}

func TestNotifier_NotifyAllFansOutToActivePonds(t *testing.T) {
	publisher := newRecordingPublisher("P1", "P2", "P3")
	notifier := NewNotifier(publisher, clockwork.NewRealClock(), 16)

	notifier.NotifyAll(realtime.EventSystemAlert, map[string]any{"message": "maintenance"})
	notifier.Close()

	events := publisher.published()
	require.Len(t, events, 3)
	seen := make(map[realtime.PondID]bool)
	for _, event := range events {
		assert.Equal(t, realtime.EventSystemAlert, event.Type)
		seen[event.PondID] = true
	}
	assert.Len(t, seen, 3)
}

// A full pond queue drops events instead of blocking the caller.
func TestNotifier_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	publisher := newRecordingPublisher()
	publisher.gate = make(chan struct{})
	notifier := NewNotifier(publisher, clockwork.NewRealClock(), 2)

	done := make(chan struct{})
	go func() {
		// One event is parked in Publish, two fill the queue, the rest drop.
		for i := 0; i < 10; i++ {
			notifier.Notify("P1", realtime.EventSensorUpdate, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a full queue")
	}

	close(publisher.gate)
	notifier.Close()

	events := publisher.published()
	assert.GreaterOrEqual(t, len(events), 1)
	assert.LessOrEqual(t, len(events), 4)
}

func TestNotifier_PondQueuesAreIndependent(t *testing.T) {
	publisher := newRecordingPublisher()
	notifier := NewNotifier(publisher, clockwork.NewRealClock(), 16)

	notifier.Notify("P1", realtime.EventSensorUpdate, "a")
	notifier.Notify("P2", realtime.EventPondUpdate, "b")
	notifier.Close()

	events := publisher.published()
	require.Len(t, events, 2)
	ponds := map[realtime.PondID]realtime.EventType{}
	for _, event := range events {
		ponds[event.PondID] = event.Type
	}
	assert.Equal(t, realtime.EventSensorUpdate, ponds["P1"])
	assert.Equal(t, realtime.EventPondUpdate, ponds["P2"])
}

func TestNotifier_NotifyAfterCloseIsNoop(t *testing.T) {
	publisher := newRecordingPublisher()
	notifier := NewNotifier(publisher, clockwork.NewRealClock(), 16)
	notifier.Close()

	notifier.Notify("P1", realtime.EventSensorUpdate, "late")
	assert.Empty(t, publisher.published())
}

// Close must be safe to call while other goroutines are mid-Notify: the
// enqueue and the channel close are serialized by the notifier's lock, so a
// racing Notify either lands before the close or becomes a no-op, never a
// send on a closed channel.
func TestNotifier_ConcurrentNotifyAndClose(t *testing.T) {
	publisher := newRecordingPublisher()
	notifier := NewNotifier(publisher, clockwork.NewRealClock(), 4)

	ponds := []realtime.PondID{"P1", "P2", "P3", "P4"}
	start := make(chan struct{})

	var wg sync.WaitGroup
	for _, pondID := range ponds {
		pondID := pondID
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for i := 0; i < 500; i++ {
				notifier.Notify(pondID, realtime.EventSensorUpdate, i)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		notifier.Close()
	}()

	close(start)
	wg.Wait()

	// Late notifies after the close above must still be no-ops.
	notifier.Notify("P1", realtime.EventSensorUpdate, "late")
}

func TestNotifier_CloseIsIdempotent(t *testing.T) {
	publisher := newRecordingPublisher()
	notifier := NewNotifier(publisher, clockwork.NewRealClock(), 16)

	notifier.Notify("P1", realtime.EventSensorUpdate, "x")
	notifier.Close()
	notifier.Close()

	assert.Len(t, publisher.published(), 1)
}
