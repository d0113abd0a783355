// Copyright (c) 2024 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package ecosystem

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the devtools event log's action types (SPEC_FULL.md /
// spec.md §6 "Event log format").
type EventType string

const (
	EventEdgeCreated                EventType = "edgeCreated"
	EventEdgeRemoved                EventType = "edgeRemoved"
	// EventGhostEdgeCreated/Destroyed bracket the brief window, during an
	// instance destroy, where dependents still hold an edge pointing at a
	// node that is about to vanish from the registry: Created is logged
	// right before the dangling edge is torn down, Destroyed once the
	// edge is actually gone, just before that dependent is notified. This
	// mirrors the teacher's habit (depgraph.go's dotRenderer) of keeping
	// edges whose destination is missing visible for troubleshooting,
	// rather than silently dropping them.
	EventGhostEdgeCreated            EventType = "ghostEdgeCreated"
	EventGhostEdgeDestroyed          EventType = "ghostEdgeDestroyed"
	EventInstanceActiveStateChanged EventType = "instanceActiveStateChanged"
	EventInstanceStateChanged       EventType = "instanceStateChanged"
)

// Action is the payload of a single Event.
type Action struct {
	Type    EventType
	Payload interface{}
}

// Event is one entry of the append-only devtools log.
type Event struct {
	ID            int64
	CorrelationID uuid.UUID
	Timestamp     time.Time
	Action        Action
}

// eventLog is a bounded ring buffer; eviction drops the oldest entry,
// per spec.md §6 ("capacity configurable; default 10k").
type eventLog struct {
	mu       sync.Mutex
	capacity int
	nextID   int64
	entries  []Event
	start    int // index of the oldest entry in entries
}

const defaultLogCapacity = 10000

func newEventLog(capacity int) *eventLog {
	if capacity <= 0 {
		capacity = defaultLogCapacity
	}
	return &eventLog{capacity: capacity}
}

// append records a new event, evicting the oldest if the ring is full.
// All events emitted within one flush share the same correlation id so
// an external devtools consumer can group a burst of notifications
// triggered by a single externally-initiated turn.
func (l *eventLog) append(correlation uuid.UUID, action Action) Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	ev := Event{ID: l.nextID, CorrelationID: correlation, Timestamp: now(), Action: action}
	if len(l.entries) < l.capacity {
		l.entries = append(l.entries, ev)
		return ev
	}
	l.entries[l.start] = ev
	l.start = (l.start + 1) % l.capacity
	return ev
}

// snapshot returns a copy of the log's current contents, oldest first.
func (l *eventLog) snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, 0, len(l.entries))
	if len(l.entries) < l.capacity {
		out = append(out, l.entries...)
		return out
	}
	out = append(out, l.entries[l.start:]...)
	out = append(out, l.entries[:l.start]...)
	return out
}

// now is a seam so tests can freeze time if ever needed; production
// code always uses the real wall clock for event timestamps (only ttl
// scheduling uses the monotonic runtime clock, per SPEC_FULL.md §13).
var now = time.Now
