// Package realtime implements the live connection and broadcast subsystem.
//
// Connections are grouped by pond in a Registry with per-pond locking. The
// Broadcaster fans events out to a point-in-time snapshot of subscribers, and
// the heartbeat Monitor probes idle connections and evicts the unresponsive
// ones so half-open sockets never accumulate.
package realtime
