package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/NJTYTYTY/Backend-depa/internal/metrics"
)

// Registry is the concurrency-safe index of active connections keyed by
// pond. It tracks membership only; connection lifecycle belongs to the
// connections themselves. Each pond set carries its own lock so unrelated
// ponds never contend, and the outer lock is held only for map bookkeeping.
//
// A pond entry is created lazily on first subscriber and removed when its
// set becomes empty.
type Registry struct {
	mu    sync.RWMutex
	ponds map[PondID]*pondSet
}

type pondSet struct {
	mu    sync.Mutex
	conns map[uuid.UUID]*Connection
}

func NewRegistry() *Registry {
	return &Registry{ponds: make(map[PondID]*pondSet)}
}

// Subscribe adds the connection under pondID. Idempotent if already present.
func (r *Registry) Subscribe(pondID PondID, conn *Connection) {
	r.subscribeIfBelow(pondID, conn, 0)
}

// subscribeIfBelow adds the connection unless the pond already holds max
// subscribers (max <= 0 means unlimited). Returns false when rejected.
// The cap check and the insert happen under the pond lock so a burst of
// concurrent admissions cannot overshoot.
func (r *Registry) subscribeIfBelow(pondID PondID, conn *Connection, max int) bool {
	if pondID == "" || conn == nil {
		panic("realtime: subscribe with empty pond id or nil connection")
	}
	if conn.PondID() != pondID {
		panic("realtime: connection subscribed under a foreign pond id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.ponds[pondID]
	if !ok {
		set = &pondSet{conns: make(map[uuid.UUID]*Connection)}
		r.ponds[pondID] = set
		metrics.ActivePonds.Set(float64(len(r.ponds)))
	}

	set.mu.Lock()
	defer set.mu.Unlock()

	if _, present := set.conns[conn.ID()]; present {
		return true
	}
	if max > 0 && len(set.conns) >= max {
		return false
	}
	set.conns[conn.ID()] = conn
	return true
}

// Unsubscribe removes the connection. No-op if absent. The pond entry is
// dropped once its last subscriber leaves.
func (r *Registry) Unsubscribe(pondID PondID, conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.ponds[pondID]
	if !ok {
		return
	}

	set.mu.Lock()
	delete(set.conns, conn.ID())
	empty := len(set.conns) == 0
	set.mu.Unlock()

	if empty {
		delete(r.ponds, pondID)
		metrics.ActivePonds.Set(float64(len(r.ponds)))
	}
}

// Snapshot returns a point-in-time copy of the pond's subscribers, never a
// live view, so broadcast iteration cannot race with mutation.
func (r *Registry) Snapshot(pondID PondID) []*Connection {
	r.mu.RLock()
	set, ok := r.ponds[pondID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	set.mu.Lock()
	defer set.mu.Unlock()

	out := make([]*Connection, 0, len(set.conns))
	for _, c := range set.conns {
		out = append(out, c)
	}
	return out
}

// Connections returns a copy of every registered connection across ponds.
func (r *Registry) Connections() []*Connection {
	r.mu.RLock()
	sets := make([]*pondSet, 0, len(r.ponds))
	for _, set := range r.ponds {
		sets = append(sets, set)
	}
	r.mu.RUnlock()

	var out []*Connection
	for _, set := range sets {
		set.mu.Lock()
		for _, c := range set.conns {
			out = append(out, c)
		}
		set.mu.Unlock()
	}
	return out
}

// Ponds returns the ponds that currently have subscribers.
func (r *Registry) Ponds() []PondID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PondID, 0, len(r.ponds))
	for id := range r.ponds {
		out = append(out, id)
	}
	return out
}

// Count returns the number of subscribers for a pond.
func (r *Registry) Count(pondID PondID) int {
	r.mu.RLock()
	set, ok := r.ponds[pondID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	set.mu.Lock()
	defer set.mu.Unlock()
	return len(set.conns)
}

// TotalConnections returns the number of subscribers across all ponds.
func (r *Registry) TotalConnections() int {
	r.mu.RLock()
	sets := make([]*pondSet, 0, len(r.ponds))
	for _, set := range r.ponds {
		sets = append(sets, set)
	}
	r.mu.RUnlock()

	total := 0
	for _, set := range sets {
		set.mu.Lock()
		total += len(set.conns)
		set.mu.Unlock()
	}
	return total
}
