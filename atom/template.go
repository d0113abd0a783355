// Copyright (c) 2024 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package atom implements the Atom template and Atom instance
// components of SPEC_FULL.md §4.3 / §4.5: the immutable description of
// a keyed state cell, its live materialization, and the injection
// contract factories are run under. The graph/registry bookkeeping and
// the construction algorithm live in package ecosystem, which is the
// only consumer of Injector; atom itself stays free of that import so
// templates can be declared without pulling in the whole engine.
package atom

import "time"

// Scope mirrors the host-framework scoping hint carried on a template;
// the core engine does not interpret it beyond storing and exposing it.
type Scope int

const (
	ScopeApp Scope = iota
	ScopeGlobal
	ScopeLocal
)

func (s Scope) String() string {
	switch s {
	case ScopeApp:
		return "app"
	case ScopeGlobal:
		return "global"
	case ScopeLocal:
		return "local"
	}
	return "unknown"
}

// Flag is a string-keyed template flag, left open-ended (as in
// SPEC_FULL.md's template descriptor) rather than a closed enum, since
// host bindings may define their own.
type Flag string

// FlagRequireParams marks a template whose factory cannot run without
// at least one param; GetNode/Get/GetInstance reject a zero-length
// params list for such a template with atomerr.ErrInvalidParams.
const FlagRequireParams Flag = "requireParams"

// FactoryFunc is the function a Template wraps. It is handed the
// injection context for the run plus the resolved params, and must
// return one of:
//   - a plain value (the atom's state, adopted as-is by a new store.Holder),
//   - a store.Holder (adopted directly, see ecosystem.adoptHolder),
//   - an Envelope (unpacked into value/exports/promise/ttl).
// Go has no sum types, so the three shapes are distinguished at the
// unpacking site (ecosystem.unpackResult) via a type switch,
// exactly like the teacher's Dependency implementations are
// distinguished via type switches in depgraph.go.
type FactoryFunc func(inj Injector, params []interface{}) interface{}

// Envelope is the "atom API envelope" alternative factory return shape.
type Envelope struct {
	Value   interface{}
	Exports interface{}
	Promise *Promise
	// TTL / HasTTL mirror the ttl() injection primitive, but expressed
	// as an envelope field for factories that prefer a single return
	// statement over calling inj.TTL mid-run.
	TTL    time.Duration
	HasTTL bool
}

// Template is the immutable description of a keyed state cell: key,
// factory, flags, ttl, instance bound, readonly hint and scope. It has
// no overridability setting: any key may be replaced via
// Ecosystem.Overrides.
type Template struct {
	// Key uniquely identifies this template within an Ecosystem.
	// Duplicate keys across distinct Template values are rejected by
	// the Ecosystem unless introduced via Overrides.
	Key string
	// Factory produces (or adopts) the state for a new instance.
	Factory FactoryFunc
	// Flags are opaque, host-interpreted template flags.
	Flags []Flag
	// TTL is the delay, after an instance loses its last dependent,
	// before it becomes eligible for destruction. Zero means "destroy
	// immediately when the last dependent leaves" (see Invariant 6).
	TTL time.Duration
	// HasTTL distinguishes "ttl of zero" from "no ttl configured"
	// (in which case the instance is never destroyed for lack of
	// dependents and must be destroyed explicitly).
	HasTTL bool
	// MaxInstances optionally bounds how many distinct param hashes may
	// be simultaneously materialized for this template; zero means
	// unbounded. Enforced by the Ecosystem when constructing a brand-new
	// instance (a param hash already live is always a cache hit, never
	// counted against the bound again) — reaching it surfaces
	// atomerr.ErrTooManyInstances rather than silently evicting an
	// existing instance to make room.
	MaxInstances int
	// Readonly is stored for host bindings and caller-supplied stores to
	// interpret. The engine does not read it: holders the engine creates
	// (Injector.Store, or a plain factory value) accept SetState either way.
	Readonly bool
	// Scope is advisory, consumed by host bindings only.
	Scope Scope
}

// HasFlag reports whether f is present in t.Flags.
func (t *Template) HasFlag(f Flag) bool {
	for _, fl := range t.Flags {
		if fl == f {
			return true
		}
	}
	return false
}
