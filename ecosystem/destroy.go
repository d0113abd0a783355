// Copyright (c) 2024 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package ecosystem

import (
	"github.com/lf-edge/atomgraph/atom"
	"github.com/lf-edge/atomgraph/graph"
)

// Destroy destroys the instance registered under id. If it still has
// live dependents, Destroy is a no-op and returns false unless force is
// set (§4.3 "force destroy"). Returns true if the instance existed and
// was destroyed.
func (e *Ecosystem) Destroy(id string, force bool) bool {
	nid := graph.NodeID(id)
	e.mu.Lock()
	inst, ok := e.instances[nid]
	dependents := 0
	if ok {
		dependents = e.g.DependentCount(nid)
	}
	e.mu.Unlock()
	if !ok {
		return false
	}
	if dependents > 0 && !force {
		return false
	}
	e.destroyInstance(nid, inst)
	return true
}

// destroyInstance implements Invariant 4: the node is removed from the
// graph (tearing down every remaining edge) in the same atomic step as
// the instance's transition to Destroyed, so no observer can witness a
// Destroyed instance with live edges. Dependents still attached at the
// moment of destruction are captured before the edges are torn down so
// they can still be notified afterward.
func (e *Ecosystem) destroyInstance(id graph.NodeID, inst *atom.Instance) {
	if inst.State() == atom.StateDestroyed {
		return
	}
	e.cancelTTL(id)

	e.mu.Lock()
	dependencies := e.g.IncomingEdges(id) // what id itself reads
	dependents := e.g.OutgoingEdges(id)   // who reads id
	e.mu.Unlock()

	for _, edge := range dependents {
		e.emit(EventGhostEdgeCreated, edgePayload{From: string(edge.From), To: string(edge.To)})
	}

	inst.Destroy(e.log)

	e.mu.Lock()
	e.g.DelNode(id)
	delete(e.instances, id)
	e.mu.Unlock()

	e.emit(EventInstanceActiveStateChanged, activeStatePayload{ID: string(id), State: atom.StateDestroyed.String()})

	for _, edge := range dependencies {
		e.emit(EventEdgeRemoved, edgePayload{From: string(edge.From), To: string(id)})
		e.maybeScheduleTTL(edge.From)
	}
	for _, edge := range dependents {
		e.emit(EventEdgeRemoved, edgePayload{From: string(edge.From), To: string(edge.To)})
		e.emit(EventGhostEdgeDestroyed, edgePayload{From: string(edge.From), To: string(edge.To)})
		if edge.Notify != nil {
			edge.Notify(graph.ReasonDestroyed)
		}
	}
}
