// Copyright (c) 2024 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package atom

import "sync"

// PromiseStatus tracks an async readiness promise attached by a factory
// (SPEC_FULL.md §4.3 "Promise semantics").
type PromiseStatus int

const (
	PromiseIdle PromiseStatus = iota
	PromiseLoading
	PromiseSuccess
	PromiseError
)

func (s PromiseStatus) String() string {
	switch s {
	case PromiseIdle:
		return "idle"
	case PromiseLoading:
		return "loading"
	case PromiseSuccess:
		return "success"
	case PromiseError:
		return "error"
	}
	return "unknown"
}

// Promise is a minimal, engine-owned future. The core never blocks on
// it (§4.3: "this is advisory: the core does not block on the
// promise"); it only tracks status transitions and lets interested
// parties (the owning Instance, host bindings) subscribe to settlement.
type Promise struct {
	mu       sync.Mutex
	status   PromiseStatus
	value    interface{}
	err      error
	settled  []func(PromiseStatus, interface{}, error)
	detached bool
}

// NewPromise returns a Promise in the Loading state.
func NewPromise() *Promise {
	return &Promise{status: PromiseLoading}
}

// Resolve transitions the promise to Success, unless it was detached
// (its owning instance was destroyed before settlement — §5
// Cancellation: detached observers are ignored, not errored).
func (p *Promise) Resolve(value interface{}) {
	p.settle(PromiseSuccess, value, nil)
}

// Reject transitions the promise to Error.
func (p *Promise) Reject(err error) {
	p.settle(PromiseError, nil, err)
}

func (p *Promise) settle(status PromiseStatus, value interface{}, err error) {
	p.mu.Lock()
	if p.detached || p.status != PromiseLoading {
		p.mu.Unlock()
		return
	}
	p.status = status
	p.value = value
	p.err = err
	subs := make([]func(PromiseStatus, interface{}, error), len(p.settled))
	copy(subs, p.settled)
	p.mu.Unlock()

	for _, fn := range subs {
		fn(status, value, err)
	}
}

// OnSettle registers fn to run once, when the promise transitions out
// of Loading. If already settled, fn runs synchronously and immediately.
func (p *Promise) OnSettle(fn func(PromiseStatus, interface{}, error)) {
	p.mu.Lock()
	if p.status != PromiseLoading {
		status, value, err := p.status, p.value, p.err
		p.mu.Unlock()
		fn(status, value, err)
		return
	}
	p.settled = append(p.settled, fn)
	p.mu.Unlock()
}

// Status returns the current status.
func (p *Promise) Status() PromiseStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Value and Err return the settled value/error; both are zero until settled.
func (p *Promise) Value() interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

func (p *Promise) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Detach marks the promise as detached: future Resolve/Reject calls are
// ignored rather than delivered. Used when the owning instance is
// destroyed while the promise is still pending (§5 Cancellation).
func (p *Promise) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detached = true
}
