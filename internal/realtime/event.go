package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// PondID identifies the broadcast group a connection subscribes to.
// Opaque to this package beyond being non-empty.
type PondID string

// EventType classifies a domain event on the wire.
type EventType string

const (
	EventSensorUpdate EventType = "sensor_update"
	EventPondUpdate   EventType = "pond_update"
	EventSystemAlert  EventType = "system_alert"
)

// Event is an immutable domain event handed to the Broadcaster.
type Event struct {
	PondID    PondID
	Type      EventType
	Payload   any
	Timestamp time.Time
}

// eventFrame is the outbound wire representation of an Event.
type eventFrame struct {
	EventType string `json:"eventType"`
	PondID    string `json:"pondId"`
	Payload   any    `json:"payload"`
	Timestamp string `json:"timestamp"`
}

// MarshalFrame encodes the event into its outbound frame.
func (e Event) MarshalFrame() ([]byte, error) {
	frame := eventFrame{
		EventType: string(e.Type),
		PondID:    string(e.PondID),
		Payload:   e.Payload,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshal event frame: %w", err)
	}
	return data, nil
}

// controlFrame is the envelope for liveness probes and responses. It is
// deliberately distinct from the domain event frame and is never surfaced
// to the event source.
type controlFrame struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp,omitempty"`
}

const (
	controlPing = "ping"
	controlPong = "pong"
)

func pingFrame(now time.Time) []byte {
	data, _ := json.Marshal(controlFrame{Type: controlPing, Timestamp: now.UTC().Format(time.RFC3339Nano)})
	return data
}

func pongFrame(now time.Time) []byte {
	data, _ := json.Marshal(controlFrame{Type: controlPong, Timestamp: now.UTC().Format(time.RFC3339Nano)})
	return data
}
