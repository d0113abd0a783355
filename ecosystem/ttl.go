// Copyright (c) 2024 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package ecosystem

import (
	"time"

	"github.com/lf-edge/atomgraph/graph"
)

// ttlTimer wraps the standard library's monotonic-clock timer backing
// an instance's ttl countdown (SPEC_FULL.md §13 Open Question decision:
// ttl uses time.AfterFunc's runtime clock, not a wall-clock deadline,
// so it is unaffected by NTP steps or system clock changes).
type ttlTimer struct {
	timer *time.Timer
}

// maybeScheduleTTL starts id's ttl countdown if it has both a
// configured ttl and zero current dependents (Invariant 6). Called
// after any edge removal that might have dropped a dependency to zero
// dependents, and once after initial construction.
func (e *Ecosystem) maybeScheduleTTL(id graph.NodeID) {
	e.mu.Lock()
	inst, ok := e.instances[id]
	if !ok {
		e.mu.Unlock()
		return
	}
	if !inst.HasTTL {
		e.mu.Unlock()
		return
	}
	if e.g.DependentCount(id) > 0 {
		e.mu.Unlock()
		return
	}
	if _, armed := e.ttlTimers[id]; armed {
		e.mu.Unlock()
		return
	}
	ttl := inst.TTL
	t := time.AfterFunc(ttl, func() { e.onTTLExpire(id) })
	e.ttlTimers[id] = ttlTimer{timer: t}
	e.mu.Unlock()
}

// cancelTTL stops id's pending ttl countdown, if armed — called the
// moment id gains a new dependent (Invariant 6: a ttl-destroy is
// cancelled if a dependent is reacquired before it fires).
func (e *Ecosystem) cancelTTL(id graph.NodeID) {
	e.mu.Lock()
	t, ok := e.ttlTimers[id]
	if ok {
		delete(e.ttlTimers, id)
	}
	e.mu.Unlock()
	if ok {
		t.timer.Stop()
	}
}

// onTTLExpire runs on the timer's own goroutine (time.AfterFunc never
// calls back on the caller's goroutine); host bindings embedding this
// engine in a single-threaded run loop should route ecosystem access
// through that loop rather than calling it directly from arbitrary
// goroutines, consistent with the engine's single-logical-thread model.
func (e *Ecosystem) onTTLExpire(id graph.NodeID) {
	e.mu.Lock()
	delete(e.ttlTimers, id)
	inst, ok := e.instances[id]
	stillZero := ok && e.g.DependentCount(id) == 0
	e.mu.Unlock()
	if !ok || !stillZero {
		return
	}
	e.destroyInstance(id, inst)
}
