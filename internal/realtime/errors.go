package realtime

import (
	"errors"
	"fmt"
)

// ErrConnectionClosed is returned by Send once a connection has left the
// active states. The caller must not deliver to it again.
var ErrConnectionClosed = errors.New("connection closed")

// Close reasons, used for logging and the close metric label.
const (
	ReasonClientDisconnect = "client_disconnect"
	ReasonSendFailure      = "send_failure"
	ReasonHeartbeatTimeout = "heartbeat_timeout"
	ReasonHandshakeFailed  = "handshake_failed"
	ReasonShutdown         = "shutdown"
)

// AdmissionError reports a rejected or failed admission. The connection
// never entered the registry.
type AdmissionError struct {
	PondID PondID
	Reason string
	Cause  error
}

func (e *AdmissionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("admission to pond %q rejected: %s: %v", e.PondID, e.Reason, e.Cause)
	}
	return fmt.Sprintf("admission to pond %q rejected: %s", e.PondID, e.Reason)
}

func (e *AdmissionError) Unwrap() error {
	return e.Cause
}
