// Copyright (c) 2024 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package ecosystem

import (
	"github.com/google/uuid"

	"github.com/lf-edge/atomgraph/atom"
	"github.com/lf-edge/atomgraph/graph"
)

// makeNotify builds the NotifyFunc attached to one specific edge
// pointing at dependentID, invoked by destroyInstance when that edge's
// dependency is destroyed (stateChanged propagation instead goes
// through runFlush's own traversal of graph.AffectedOrder, which
// already excludes Static edges at the graph level — see traverse.go).
// It closes over that edge's own Static-ness, the property that
// decides whether the destroy signal cascades (Static: the dependent
// required this parent to exist) or simply triggers a re-evaluation
// (dynamic: the dependent will transparently re-resolve a fresh
// instance of the same template/params next time it reads it).
func (e *Ecosystem) makeNotify(dependentID graph.NodeID, flags graph.Flags) graph.NotifyFunc {
	static := flags.Has(graph.FlagStatic)
	return func(reason graph.NotifyReason) {
		if reason == graph.ReasonDestroyed && static {
			e.cascadeDestroy(dependentID)
			return
		}
		e.deliverToDependent(dependentID, reason)
	}
}

// deliverToDependent is reached either directly from makeNotify (destroy
// cascades, non-static) or from runFlush's traversal of the stateChanged
// propagation graph (which already excludes Static edges, see
// graph.AffectedOrder). It routes to whichever of the two dependent
// kinds id is.
func (e *Ecosystem) deliverToDependent(id graph.NodeID, reason graph.NotifyReason) {
	e.mu.Lock()
	sub, isSub := e.subscribers[id]
	inst, isInst := e.instances[id]
	e.mu.Unlock()

	if isSub {
		e.notifyExternal(sub, reason)
		return
	}
	if isInst {
		// Both a dependency's stateChanged and a non-static destroyed
		// notification are handled the same way: re-run the dependent's
		// factory. On destroyed, the re-run's own Get()/GetInstance()
		// call will transparently reconstruct a fresh instance of the
		// same (template, params) if the dependent still wants it.
		e.rerunDependent(id, inst)
	}
}

func (e *Ecosystem) cascadeDestroy(id graph.NodeID) {
	e.mu.Lock()
	inst, ok := e.instances[id]
	e.mu.Unlock()
	if !ok {
		return
	}
	e.destroyInstance(id, inst)
}

// notifyExternal invokes a host subscriber's callback, catching and
// logging (never propagating) a panicking listener per §5 / atomerr.ErrListenerThrew.
func (e *Ecosystem) notifyExternal(sub *subscriberNode, reason graph.NotifyReason) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warnf("external subscriber %s listener panicked: %v", sub.id, r)
		}
	}()
	sub.notify(reason)
}

// rerunDependent re-invokes an atom instance's factory in response to a
// dependency's stateChanged or destroyed notification. A re-run that
// itself fails destroys the dependent, per §4.3 ("a factory that throws
// during re-evaluation destroys its own instance").
func (e *Ecosystem) rerunDependent(id graph.NodeID, inst *atom.Instance) {
	if inst.State() == atom.StateDestroyed {
		return
	}
	e.mu.Lock()
	tmpl, ok := e.templatesByKey[inst.TemplateKey]
	e.mu.Unlock()
	if !ok {
		return
	}
	effective := e.resolveOverride(tmpl)

	prev := e.activeRerun
	e.activeRerun = &id
	defer func() { e.activeRerun = prev }()

	if err := e.runFactory(inst, effective, inst.Params); err != nil {
		e.log.Warnf("re-run of %s failed: %v", id, err)
		e.destroyInstance(id, inst)
	}
}

// onInstanceStateChanged is the bridge target wired up in
// construct.go's bridgeHolder: called synchronously, inline, whenever
// an instance's backing holder commits a new state, whether that
// commit came from this engine's own rerunDependent or from host code
// holding a direct reference to an adopted holder (the Counter scenario).
func (e *Ecosystem) onInstanceStateChanged(id graph.NodeID) {
	if e.activeRerun != nil && *e.activeRerun == id {
		// Our own rerunDependent just committed this instance's new
		// value; its dependents are already accounted for by the
		// in-progress flush's precomputed traversal order (or, if there
		// is no flush in progress yet, one is about to start below with
		// this id as its root anyway).
		if e.flushing {
			return
		}
	}
	e.emit(EventInstanceStateChanged, stateChangedPayload{ID: string(id)})
	e.scheduleFlush(id)
}

type stateChangedPayload struct {
	ID string
}

// scheduleFlush enqueues root and, if no flush is currently running,
// drives one to completion. Per §4.2's reentrancy rule, a mutation
// performed by code reached *during* an in-progress flush (e.g. an
// external subscriber's listener calling setState) is simply appended
// here and picked up by the next iteration of runFlush's own loop,
// which only begins after the current pass's full traversal completes.
func (e *Ecosystem) scheduleFlush(root graph.NodeID) {
	e.pendingRoots = append(e.pendingRoots, root)
	if e.flushing {
		return
	}
	e.runFlush()
}

// runFlush drains e.pendingRoots to completion. Each iteration of the
// outer loop is one complete "flush" with its own single-notify
// guarantee (graph.AffectedOrder never repeats a node within one call);
// a reentrant mutation observed while flushing starts a new iteration,
// which is the "new flush that begins only after the current one
// completes" behavior called for by §4.2.
func (e *Ecosystem) runFlush() {
	e.flushing = true
	defer func() {
		e.flushing = false
		e.drainDeferredOverrides()
	}()

	for len(e.pendingRoots) > 0 {
		batch := e.pendingRoots
		e.pendingRoots = nil

		correlation := uuid.New()
		e.correlation = &correlation

		e.mu.Lock()
		order := e.g.AffectedOrder(batch)
		e.mu.Unlock()

		for _, id := range order {
			e.deliverToDependent(id, graph.ReasonStateChanged)
		}

		e.correlation = nil
	}
}
