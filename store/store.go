// Copyright (c) 2024 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package store implements the minimal state-holder contract the core
// engine requires from stores (SPEC_FULL.md §4.4 / §6). It is
// intentionally small: the action/reducer "store" primitive's inner
// hierarchy composition (branch/reducer/store node reduction) is out
// of scope for this engine (spec.md §1) — the engine only ever talks
// to a store through the Holder interface below.
package store

import "sync"

// Updater computes the next state from the previous one, the settable
// half of SetState's `T | (prev: T) → T` contract.
type Updater func(prev interface{}) interface{}

// Reducer folds a dispatched action into the next state.
type Reducer func(prev interface{}, action interface{}) interface{}

// Subscription is returned by Subscribe; call Unsubscribe to stop
// receiving notifications.
type Subscription interface {
	Unsubscribe()
}

// Holder is the only surface the core engine requires from a store:
//   - setState is synchronous; the new state is observable to GetState
//     before SetState returns.
//   - listeners are invoked synchronously in subscription order after
//     the state is committed.
//   - a listener that itself calls SetState enqueues a new commit that
//     runs only after the current listener pass completes (no reentrancy).
type Holder interface {
	GetState() interface{}
	SetState(next interface{}) interface{}
	Update(fn Updater) interface{}
	Dispatch(action interface{}) interface{}
	Subscribe(listener func(interface{})) Subscription
}

// holder is the default Holder implementation.
type holder struct {
	mu        sync.Mutex
	state     interface{}
	reducer   Reducer
	listeners []*subscription
	nextID    int

	notifying bool
	pending   []interface{} // queued next-states while notifying
}

type subscription struct {
	h      *holder
	id     int
	listen func(interface{})
	active bool
}

func (s *subscription) Unsubscribe() {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	s.active = false
	for i, sub := range s.h.listeners {
		if sub == s {
			s.h.listeners = append(s.h.listeners[:i], s.h.listeners[i+1:]...)
			break
		}
	}
}

// New creates a Holder seeded with initial. reducer may be nil, in
// which case Dispatch panics with a descriptive message (matching the
// teacher's habit of panicking on programmer error rather than silently
// no-op-ing).
func New(initial interface{}, reducer Reducer) Holder {
	return &holder{state: initial, reducer: reducer}
}

func (h *holder) GetState() interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *holder) SetState(next interface{}) interface{} {
	h.mu.Lock()
	if h.notifying {
		// Reentrant call from within a listener: queue it, the
		// in-progress notify pass will pick it up once it drains.
		h.pending = append(h.pending, next)
		h.mu.Unlock()
		return next
	}
	h.state = next
	h.mu.Unlock()
	h.runNotifyLoop()
	return next
}

func (h *holder) Update(fn Updater) interface{} {
	h.mu.Lock()
	prev := h.state
	h.mu.Unlock()
	return h.SetState(fn(prev))
}

func (h *holder) Dispatch(action interface{}) interface{} {
	h.mu.Lock()
	if h.reducer == nil {
		h.mu.Unlock()
		panic("store: Dispatch called on a holder with no reducer")
	}
	reducer := h.reducer
	prev := h.state
	h.mu.Unlock()
	return h.SetState(reducer(prev, action))
}

func (h *holder) Subscribe(listener func(interface{})) Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &subscription{h: h, id: h.nextID, listen: listener, active: true}
	h.listeners = append(h.listeners, sub)
	return sub
}

// runNotifyLoop delivers the just-committed state to every listener, in
// subscription order, then drains any SetState calls queued reentrantly
// during that pass — each drained value gets its own, later, complete
// notify pass, never interleaved with the one in progress.
func (h *holder) runNotifyLoop() {
	h.mu.Lock()
	if h.notifying {
		h.mu.Unlock()
		return
	}
	h.notifying = true
	h.mu.Unlock()

	for {
		h.mu.Lock()
		listeners := make([]*subscription, len(h.listeners))
		copy(listeners, h.listeners)
		state := h.state
		h.mu.Unlock()

		for _, sub := range listeners {
			if sub.active {
				sub.listen(state)
			}
		}

		h.mu.Lock()
		if len(h.pending) == 0 {
			h.notifying = false
			h.mu.Unlock()
			return
		}
		next := h.pending[0]
		h.pending = h.pending[1:]
		h.state = next
		h.mu.Unlock()
	}
}
