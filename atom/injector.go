// Copyright (c) 2024 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package atom

import (
	"time"

	"github.com/lf-edge/atomgraph/store"
)

// Injector is the value passed to a Template's factory (SPEC_FULL.md
// §4.5). The concrete implementation lives in package ecosystem, which
// is the only component with access to the graph, the registry and the
// per-Ecosystem injection stack; atom only declares the contract so
// factories can be authored without importing ecosystem. In that
// implementation, Get and GetInstance return
// atomerr.ErrInjectionOutOfScope when called outside the factory run the
// injector was handed to; the other methods have no error result and do
// not check.
type Injector interface {
	// Get resolves (or creates) the instance for (tmpl, params),
	// registers an Explicit dynamic incoming edge from it into the
	// calling instance, and returns its current state.
	Get(tmpl *Template, params ...interface{}) (interface{}, error)
	// GetInstance is like Get but registers an Explicit Static edge
	// (no stateChanged delivery) and returns a handle instead of state.
	GetInstance(tmpl *Template, params ...interface{}) (InstanceHandle, error)
	// Store creates a local state holder owned by this instance; its
	// lifetime is tied to the instance and it is not itself a graph node.
	Store(initial interface{}, reducer store.Reducer) store.Holder
	// Effect registers fn to run after the factory returns; fn may
	// return a destructor, run LIFO at instance destruction.
	Effect(fn func() func())
	// Ref creates a per-instance mutable cell that survives re-runs.
	Ref(initial interface{}) *Ref
	// Memo caches factory() across re-runs, recomputing only when key changes.
	Memo(key interface{}, factory func() interface{}) interface{}
	// TTL declares the destruction delay after the last dependent leaves.
	TTL(d time.Duration)
	// Promise declares an async readiness promise for this instance.
	Promise(p *Promise)
	// Exports declares the stable methods/object exposed on the instance.
	Exports(obj interface{})
}

// InstanceHandle is the read-only view of an Instance exposed to
// factories via GetInstance and to host bindings via the Subscription
// interface (SPEC_FULL.md §6). A handle retained across the instance's
// destruction is exactly the "held reference after destroy" case in §3:
// Get and PromiseStatus surface atomerr.ErrInstanceDestroyed rather than
// silently returning the last-observed value.
type InstanceHandle interface {
	ID() string
	Get() (interface{}, error)
	PromiseStatus() (PromiseStatus, error)
	Promise() *Promise
	PromiseError() error
}

// Ref is a per-instance mutable cell surviving factory re-runs, the
// equivalent of a React-style ref for an atom factory.
type Ref struct {
	Value interface{}
}
