// Copyright (c) 2024 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package ecosystem

import (
	"errors"
	"fmt"

	"github.com/lf-edge/atomgraph/atom"
	"github.com/lf-edge/atomgraph/atomerr"
	"github.com/lf-edge/atomgraph/graph"
	"github.com/lf-edge/atomgraph/store"
)

// resolve is the shared entry point behind GetNode, injector.Get and
// injector.GetInstance: it implements §4.3's "getNode" algorithm — find
// an existing live instance for (tmpl, params) or construct a new one —
// and, when called on behalf of a factory (caller != nil), links the
// calling frame to the result as a dependency edge.
func (e *Ecosystem) resolve(caller *frame, tmpl *atom.Template, params []interface{}, edgeFlags graph.Flags) (*atom.Instance, error) {
	if tmpl == nil {
		return nil, fmt.Errorf("atomgraph: nil template")
	}

	e.mu.Lock()
	if prev, seen := e.templatesByKey[tmpl.Key]; !seen {
		e.templatesByKey[tmpl.Key] = tmpl
	} else if ov := e.overrides[tmpl.Key]; prev != tmpl && tmpl != ov && prev != ov {
		e.mu.Unlock()
		return nil, fmt.Errorf("atomgraph: duplicate template key %q", tmpl.Key)
	}
	e.mu.Unlock()

	effective := e.resolveOverride(tmpl)
	if effective.HasFlag(atom.FlagRequireParams) && len(params) == 0 {
		return nil, atomerr.ErrInvalidParams
	}

	hash := paramsHash(params)
	id := instanceID(effective.Key, hash)

	if inst := e.lookupLive(id, params); inst != nil {
		if err := e.linkCaller(caller, inst, edgeFlags); err != nil {
			return nil, err
		}
		return inst, nil
	}

	v, err, _ := e.sf.Do(string(id), func() (interface{}, error) {
		if inst := e.lookupLive(id, params); inst != nil {
			return inst, nil
		}
		return e.buildInstance(id, effective, hash, params)
	})
	if err != nil {
		return nil, err
	}
	inst := v.(*atom.Instance)
	if err := e.linkCaller(caller, inst, edgeFlags); err != nil {
		return nil, err
	}
	return inst, nil
}

func (e *Ecosystem) lookupLive(id graph.NodeID, params []interface{}) *atom.Instance {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.instances[id]
	if !ok || inst.State() == atom.StateDestroyed {
		return nil
	}
	if !sameParams(inst.Params, params) {
		// 64-bit hash collision between distinct param sets: treat as a
		// miss (Invariant 1's guard — see ecosystem/hash.go sameParams).
		return nil
	}
	return inst
}

func (e *Ecosystem) resolveOverride(tmpl *atom.Template) *atom.Template {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ov, ok := e.overrides[tmpl.Key]; ok {
		return ov
	}
	return tmpl
}

// linkCaller registers the incoming (dependency -> caller) edge for a
// factory-initiated read. caller is nil for top-level GetNode calls,
// which create no edge.
func (e *Ecosystem) linkCaller(caller *frame, dep *atom.Instance, flags graph.Flags) error {
	if caller == nil {
		return nil
	}
	depID := graph.NodeID(dep.ID())
	callerID := graph.NodeID(caller.instance.ID())

	e.mu.Lock()
	notify := e.makeNotify(callerID, flags)
	err := e.g.AddEdge(depID, callerID, flags|graph.FlagExplicit, "get", notify)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	caller.newIncoming[depID] = true
	e.cancelTTL(depID)
	e.emit(EventEdgeCreated, edgePayload{From: string(depID), To: string(callerID)})

	e.mu.Lock()
	cycle := e.g.DetectCycleFrom(callerID)
	e.mu.Unlock()
	if len(cycle) > 0 {
		panic(fmt.Errorf("%w: %v", atomerr.ErrCyclicDependency, cycle))
	}
	return nil
}

// buildInstance constructs a brand-new instance: registers its node,
// runs the factory, and if the factory fails, destroys the instance and
// rolls its node back out of the graph and registry (§4.3 step 2).
func (e *Ecosystem) buildInstance(id graph.NodeID, tmpl *atom.Template, hash uint64, params []interface{}) (*atom.Instance, error) {
	inst := atom.New(string(id), tmpl.Key, hash, params)

	e.mu.Lock()
	if tmpl.MaxInstances > 0 && e.liveInstanceCount(tmpl.Key) >= tmpl.MaxInstances {
		e.mu.Unlock()
		return nil, atomerr.ErrTooManyInstances
	}
	e.g.PutNode(id, graph.KindAtomInstance)
	e.instances[id] = inst
	e.mu.Unlock()
	e.emit(EventInstanceActiveStateChanged, activeStatePayload{ID: string(id), State: atom.StateInitializing.String()})

	if err := e.runFactory(inst, tmpl, params); err != nil {
		inst.Destroy(e.log)
		e.mu.Lock()
		delete(e.instances, id)
		e.g.DelNode(id)
		e.mu.Unlock()
		return nil, err
	}
	e.emit(EventInstanceActiveStateChanged, activeStatePayload{ID: string(id), State: inst.State().String()})
	e.maybeScheduleTTL(id)
	return inst, nil
}

// runFactory pushes a fresh frame, invokes tmpl.Factory, and unpacks its
// result; it is also used, unchanged, to re-run an existing instance's
// factory on a dependency's state change (ecosystem/flush.go).
func (e *Ecosystem) runFactory(inst *atom.Instance, tmpl *atom.Template, params []interface{}) (err error) {
	fr := newFrame(inst)
	e.pushFrame(fr)
	defer e.popFrame()

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if asErr, ok := r.(error); ok && errors.Is(asErr, atomerr.ErrCyclicDependency) {
			err = atomerr.ErrCyclicDependency
			return
		}
		var cause error
		if asErr, ok := r.(error); ok {
			cause = asErr
		} else {
			cause = fmt.Errorf("%v", r)
		}
		e.log.Warnf("factory %s panicked: %v", tmpl.Key, r)
		err = &atomerr.FactoryError{TemplateKey: tmpl.Key, Cause: cause}
	}()

	inj := &injector{eco: e, fr: fr}
	result := tmpl.Factory(inj, params)
	e.unpackResult(inst, fr, result)
	e.reconcileEdges(inst, fr)

	if fr.hasTTL {
		inst.TTL, inst.HasTTL = fr.ttl, true
	} else {
		inst.TTL, inst.HasTTL = tmpl.TTL, tmpl.HasTTL
	}
	for _, eff := range fr.effects {
		if cleanup := eff(); cleanup != nil {
			inst.AddDestructor(cleanup)
		}
	}
	if fr.exports != nil {
		inst.SetExports(fr.exports)
	}
	if fr.promise != nil {
		inst.SetPromise(fr.promise, func(status atom.PromiseStatus) {
			if status == atom.PromiseSuccess {
				inst.Activate()
			}
		})
		inst.MarkStale()
	} else {
		inst.Activate()
	}
	return nil
}

// unpackResult implements §4.3 step 5's three accepted factory return
// shapes, distinguished via a type switch exactly like the teacher's
// Dependency implementations are distinguished in depgraph.go.
func (e *Ecosystem) unpackResult(inst *atom.Instance, fr *frame, result interface{}) {
	switch v := result.(type) {
	case store.Holder:
		e.adoptHolder(inst, v)
	case atom.Envelope:
		if v.Promise != nil {
			fr.promise = v.Promise
		}
		if v.HasTTL {
			fr.hasTTL, fr.ttl = true, v.TTL
		}
		if v.Exports != nil {
			fr.exports = v.Exports
		}
		e.adoptValue(inst, v.Value)
	default:
		e.adoptValue(inst, result)
	}
}

func (e *Ecosystem) adoptHolder(inst *atom.Instance, h store.Holder) {
	if inst.Holder() != nil {
		return
	}
	inst.SetHolder(h)
	e.bridgeHolder(inst, h)
}

func (e *Ecosystem) adoptValue(inst *atom.Instance, value interface{}) {
	if h := inst.Holder(); h != nil {
		h.SetState(value)
		return
	}
	h := store.New(value, nil)
	inst.SetHolder(h)
	e.bridgeHolder(inst, h)
}

// bridgeHolder wires the holder's own pub/sub into the graph's notify
// path: any SetState on it, whether issued by the factory's own re-run
// or by outside code holding a direct reference to an adopted holder
// (the Counter scenario), funnels through onInstanceStateChanged.
func (e *Ecosystem) bridgeHolder(inst *atom.Instance, h store.Holder) {
	id := graph.NodeID(inst.ID())
	h.Subscribe(func(interface{}) {
		e.onInstanceStateChanged(id)
	})
}

// reconcileEdges implements §4.2 dependency retraction: any incoming
// edge present before this run that was not re-read during it is torn
// down, and its dependency's ttl clock starts if it has lost its last
// dependent.
func (e *Ecosystem) reconcileEdges(inst *atom.Instance, fr *frame) {
	id := graph.NodeID(inst.ID())
	e.mu.Lock()
	stale := e.g.IncomingEdges(id)
	e.mu.Unlock()

	for _, edge := range stale {
		if fr.newIncoming[edge.From] {
			continue
		}
		e.mu.Lock()
		e.g.RemoveEdge(edge.From, id)
		e.mu.Unlock()
		e.emit(EventEdgeRemoved, edgePayload{From: string(edge.From), To: string(id)})
		e.maybeScheduleTTL(edge.From)
	}
}

type edgePayload struct {
	From, To string
}

type activeStatePayload struct {
	ID    string
	State string
}
