// Copyright (c) 2024 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package atom

import (
	"sync"
	"time"

	"github.com/lf-edge/atomgraph/atomerr"
	"github.com/lf-edge/atomgraph/internal/xlog"
	"github.com/lf-edge/atomgraph/store"
)

// ActiveState is the per-instance lifecycle state machine (SPEC_FULL.md §3).
type ActiveState int

const (
	StateInitializing ActiveState = iota
	StateActive
	StateStale
	StateDestroyed
)

func (s ActiveState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateStale:
		return "stale"
	case StateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// Instance is the live materialization of (Template, params): it owns a
// state holder, its exports, its promise (if any), the active-state
// machine and the set of destructors registered during construction.
type Instance struct {
	instanceID  string
	TemplateKey string
	ParamsHash  uint64
	Params      []interface{}
	OverrideOf  string

	TTL    time.Duration
	HasTTL bool

	mu            sync.Mutex
	holder        store.Holder
	exports       interface{}
	promise       *Promise
	promiseStatus PromiseStatus
	state         ActiveState
	destructors   []func()

	// refs/memo persist across factory re-runs, keyed by call order
	// within the run (see ecosystem's injector implementation).
	Refs map[interface{}]*Ref
	Memo map[interface{}]memoEntry
}

type memoEntry struct {
	key   interface{}
	value interface{}
}

// New constructs an Instance in Initializing state. The Ecosystem is
// responsible for registering it in the graph before returning it from
// a construction call; Instance itself knows nothing about the graph.
func New(id, templateKey string, paramsHash uint64, params []interface{}) *Instance {
	return &Instance{
		instanceID:  id,
		TemplateKey: templateKey,
		ParamsHash:  paramsHash,
		Params:      params,
		state:       StateInitializing,
		Refs:        make(map[interface{}]*Ref),
		Memo:        make(map[interface{}]memoEntry),
	}
}

// State returns the current lifecycle state.
func (inst *Instance) State() ActiveState {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.state
}

// SetHolder adopts the store.Holder backing this instance's state,
// constructed from step 5 of §4.3's factory-completion unpacking.
func (inst *Instance) SetHolder(h store.Holder) { inst.holder = h }

// Holder returns the backing store.Holder.
func (inst *Instance) Holder() store.Holder { return inst.holder }

// Get returns the instance's current state, permitted even while
// Initializing (§3: "reads from this instance by others are permitted
// and return its current (possibly intermediate) value"). A reference
// held across destruction does not silently keep observing the last
// value: once Destroyed, Get surfaces atomerr.ErrInstanceDestroyed
// instead (§3, §7).
func (inst *Instance) Get() (interface{}, error) {
	if err := inst.EnsureLive(); err != nil {
		return nil, err
	}
	if inst.holder == nil {
		return nil, nil
	}
	return inst.holder.GetState(), nil
}

// ID satisfies InstanceHandle.
func (inst *Instance) ID() string { return inst.instanceID }

// MemoGet returns the cached value for slot if its guard key still
// matches, the memo() injection primitive's "recompute only when key
// changes" half.
func (inst *Instance) MemoGet(slot int, key interface{}) (interface{}, bool) {
	entry, ok := inst.Memo[slot]
	if !ok || entry.key != key {
		return nil, false
	}
	return entry.value, true
}

// MemoSet stores value under slot, guarded by key.
func (inst *Instance) MemoSet(slot int, key, value interface{}) {
	inst.Memo[slot] = memoEntry{key: key, value: value}
}

// Exports / SetExports implement the exports() injection primitive.
// Exports is not gated by EnsureLive: the exported object is a fixed
// value handed off at construction time (typically a struct of plain
// functions/data), not a live read of instance state, so it stays valid
// to inspect after destruction the same way a closed file's already-read
// bytes remain valid.
func (inst *Instance) Exports() interface{}     { return inst.exports }
func (inst *Instance) SetExports(v interface{}) { inst.exports = v }

// Promise / PromiseError implement the remaining promise-reading half
// of the InstanceHandle / subscription interface (§6). Neither is gated
// by EnsureLive: Destroy detaches the promise but never clears its
// already-settled value/error, so both remain meaningful to read after
// destruction (PromiseStatus, which reports live loading/success/error
// state, is gated instead).
func (inst *Instance) Promise() *Promise { return inst.promise }

func (inst *Instance) PromiseStatus() (PromiseStatus, error) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.state == StateDestroyed {
		return inst.promiseStatus, atomerr.ErrInstanceDestroyed
	}
	return inst.promiseStatus, nil
}

func (inst *Instance) PromiseError() error {
	if inst.promise == nil {
		return nil
	}
	return inst.promise.Err()
}

// SetPromise attaches p and wires its settlement to advance
// promiseStatus and the instance's own Active/Stale transition (the
// caller, ecosystem, still decides whether to transition to Stale —
// SetPromise only updates bookkeeping local to the instance).
func (inst *Instance) SetPromise(p *Promise, onSettle func(PromiseStatus)) {
	inst.promise = p
	inst.promiseStatus = PromiseLoading
	p.OnSettle(func(status PromiseStatus, _ interface{}, _ error) {
		inst.mu.Lock()
		inst.promiseStatus = status
		inst.mu.Unlock()
		if onSettle != nil {
			onSettle(status)
		}
	})
}

// AddDestructor registers fn to run, LIFO, at destruction time (the
// effect() injection primitive's returned cleanup, and destructors
// registered directly by the Ecosystem for e.g. ttl timers).
func (inst *Instance) AddDestructor(fn func()) {
	inst.destructors = append(inst.destructors, fn)
}

// Activate transitions Initializing/Stale -> Active.
func (inst *Instance) Activate() {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.state = StateActive
}

// MarkStale transitions -> Stale (a pending promise is still unresolved).
func (inst *Instance) MarkStale() {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.state = StateStale
}

// EnsureLive returns atomerr.ErrInstanceDestroyed if the instance has
// already been destroyed. Get checks liveness through it (PromiseStatus
// does the same check inline); Exports, Promise and PromiseError are not
// gated, see their doc comments.
func (inst *Instance) EnsureLive() error {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.state == StateDestroyed {
		return atomerr.ErrInstanceDestroyed
	}
	return nil
}

// Destroy transitions to Destroyed and runs destructors LIFO, logging
// (never propagating) any destructor panic/error per §4.3 step 2. It
// does not touch the graph; the Ecosystem removes edges/registry entry
// in the same atomic step per Invariant 4.
func (inst *Instance) Destroy(log *xlog.Logger) {
	inst.mu.Lock()
	if inst.state == StateDestroyed {
		inst.mu.Unlock()
		return
	}
	inst.state = StateDestroyed
	destructors := inst.destructors
	inst.destructors = nil
	promise := inst.promise
	inst.mu.Unlock()

	if promise != nil {
		promise.Detach()
	}

	for i := len(destructors) - 1; i >= 0; i-- {
		runDestructor(destructors[i], log)
	}
}

func runDestructor(fn func(), log *xlog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			if log != nil {
				log.Warnf("destructor panicked: %v", r)
			}
		}
	}()
	fn()
}
