// Copyright (c) 2024 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package graph implements the directed, bidirectionally-indexed
// dependency graph that the Ecosystem schedules notifications over.
// Edges point from a dependency towards its dependents (Edge.From is
// the node being read, Edge.To is the node doing the reading), which
// is the direction a state change is propagated: on a state change of
// N, the engine walks N's outgoing edges to find who must be notified.
// For more information, see the package README of the teacher library
// this was grounded on (lf-edge/eve libs/depgraph) and SPEC_FULL.md §4.2.
package graph

import (
	"fmt"

	"github.com/lf-edge/atomgraph/internal/xlog"
)

// NodeID uniquely identifies a node inside a Graph.
type NodeID string

// NodeKind distinguishes the three node variants the engine manages.
type NodeKind int

const (
	// KindAtomInstance is a live materialization of (template, params).
	KindAtomInstance NodeKind = iota
	// KindExternalSubscriber is a host-framework observer; it never
	// recurses into the graph and is notified last per flush.
	KindExternalSubscriber
	// KindSelectorCache is a derived, cached read over one or more atoms.
	KindSelectorCache
)

// Flags is a bitset of edge properties.
type Flags uint8

const (
	// FlagExplicit marks an edge created by a direct dependency call
	// (injection.get/getInstance), as opposed to one synthesized internally.
	FlagExplicit Flags = 1 << iota
	// FlagExternal marks an edge whose dependent (To) endpoint is a host
	// subscriber rather than an atom instance.
	FlagExternal
	// FlagStatic marks an edge whose dependent does not want stateChanged
	// notifications. A Static edge still pins the lifetime of its
	// dependency (see Open Question decision in SPEC_FULL.md §13): lifetime
	// pinning is symmetric for Static and dynamic edges, only delivery of
	// stateChanged is suppressed.
	FlagStatic
	// FlagDeferred is reserved; no behavior is currently attached to it.
	FlagDeferred
)

// Has reports whether the flag set contains f.
func (fl Flags) Has(f Flags) bool { return fl&f != 0 }

// NotifyReason identifies why a dependent is being notified.
type NotifyReason int

const (
	// ReasonStateChanged: the dependency's observable state changed.
	ReasonStateChanged NotifyReason = iota
	// ReasonDestroyed: the dependency was destroyed.
	ReasonDestroyed
	// ReasonEdgeAdded: a new edge was added (used to let a fresh
	// subscriber synchronize to current state without a full flush).
	ReasonEdgeAdded
)

func (r NotifyReason) String() string {
	switch r {
	case ReasonStateChanged:
		return "stateChanged"
	case ReasonDestroyed:
		return "destroyed"
	case ReasonEdgeAdded:
		return "edgeAdded"
	}
	return "unknown"
}

// NotifyFunc is invoked on the dependent endpoint of an edge when the
// dependency fires a notification it has not suppressed.
type NotifyFunc func(reason NotifyReason)

// Edge is a directed dependency: From is read by To.
type Edge struct {
	From, To   NodeID
	Flags      Flags
	Operation  string
	Notify     NotifyFunc
}

// Node is the registry's view of a graph participant; the heavier,
// mutable bookkeeping (edge sets) lives in the unexported node type
// and is reached only through Graph's methods.
type Node struct {
	ID     NodeID
	Kind   NodeKind
	Weight int
}

// node is the internal, mutable representation kept in the registry.
type node struct {
	id     NodeID
	kind   NodeKind
	weight int

	// Both directions are stored on every node so traversal in either
	// direction is O(degree) rather than O(edges); see SPEC_FULL.md / Design
	// Notes §9 on representing the weak bidirectional runtime relation.
	outgoing map[NodeID]*Edge // edges where this node is From (its dependents)
	incoming map[NodeID]*Edge // edges where this node is To (its dependencies)
}

// Graph is the mutable dependency graph owned exclusively by an Ecosystem.
type Graph struct {
	log   *xlog.Logger
	nodes map[NodeID]*node
}

// New creates an empty Graph.
func New(log *xlog.Logger) *Graph {
	if log == nil {
		log = xlog.Default("graph")
	}
	return &Graph{
		log:   log,
		nodes: make(map[NodeID]*node),
	}
}

// PutNode registers a new node. Panics if the id is already registered,
// since the Ecosystem is expected to have already checked for existence
// before deciding to construct a new instance (Invariant 1).
func (g *Graph) PutNode(id NodeID, kind NodeKind) {
	if _, exists := g.nodes[id]; exists {
		panic(fmt.Sprintf("graph: node %q already registered", id))
	}
	g.nodes[id] = &node{
		id:       id,
		kind:     kind,
		weight:   1,
		outgoing: make(map[NodeID]*Edge),
		incoming: make(map[NodeID]*Edge),
	}
}

// Node returns the node registered under id.
func (g *Graph) Node(id NodeID) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return Node{ID: n.id, Kind: n.kind, Weight: n.weight}, true
}

// Nodes returns a snapshot of every registered node id.
func (g *Graph) Nodes() []NodeID {
	ids := make([]NodeID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	return ids
}

// DelNode removes a node and all of its edges. Per Invariant 4, an
// instance in state Destroyed must have zero edges by the time it is
// removed from the registry; DelNode enforces that by tearing down
// both edge sets first.
func (g *Graph) DelNode(id NodeID) bool {
	n, ok := g.nodes[id]
	if !ok {
		return false
	}
	for otherID := range n.outgoing {
		if other, ok := g.nodes[otherID]; ok {
			delete(other.incoming, id)
		}
	}
	for otherID := range n.incoming {
		if other, ok := g.nodes[otherID]; ok {
			delete(other.outgoing, id)
		}
	}
	delete(g.nodes, id)
	return true
}

// AddEdge is idempotent on (from, to): if an edge already exists, its
// flags are OR-merged and the notify callback is left untouched (per
// §4.2). Returns ErrUnknownNode if either endpoint is not registered
// (Invariant 2: both endpoints of a stored edge must be registered).
func (g *Graph) AddEdge(from, to NodeID, flags Flags, operation string, notify NotifyFunc) error {
	fromNode, ok := g.nodes[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, from)
	}
	toNode, ok := g.nodes[to]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, to)
	}
	if existing, exists := fromNode.outgoing[to]; exists {
		existing.Flags |= flags
		g.recomputeWeight(toNode)
		return nil
	}
	e := &Edge{From: from, To: to, Flags: flags, Operation: operation, Notify: notify}
	fromNode.outgoing[to] = e
	toNode.incoming[from] = e
	g.recomputeWeight(toNode)
	g.log.Tracef("edge added %s -> %s (flags=%x op=%s)", from, to, flags, operation)
	return nil
}

// RemoveEdge deletes the edge from->to, if present, and reports whether
// `from`'s dependent count reached zero as a result (whether `from`, the
// dependency, became eligible for ttl-based destruction).
func (g *Graph) RemoveEdge(from, to NodeID) (lastDependent bool, removed bool) {
	fromNode, ok := g.nodes[from]
	if !ok {
		return false, false
	}
	toNode, ok := g.nodes[to]
	if !ok {
		return false, false
	}
	if _, exists := fromNode.outgoing[to]; !exists {
		return false, false
	}
	delete(fromNode.outgoing, to)
	delete(toNode.incoming, from)
	g.log.Tracef("edge removed %s -> %s", from, to)
	return len(fromNode.outgoing) == 0, true
}

// DependentCount returns the number of distinct nodes that depend on id,
// static or dynamic (per the Open Question decision in SPEC_FULL.md §13,
// both kinds of edge count towards lifetime pinning).
func (g *Graph) DependentCount(id NodeID) int {
	n, ok := g.nodes[id]
	if !ok {
		return 0
	}
	return len(n.outgoing)
}

// OutgoingEdges returns the edges where id is the From endpoint (id's
// dependents) — the direction walked to propagate a state change.
func (g *Graph) OutgoingEdges(id NodeID) []Edge {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	out := make([]Edge, 0, len(n.outgoing))
	for _, e := range n.outgoing {
		out = append(out, *e)
	}
	return out
}

// IncomingEdges returns the edges where id is the To endpoint (id's own
// dependencies) — used for weight computation and dependency retraction.
func (g *Graph) IncomingEdges(id NodeID) []Edge {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	out := make([]Edge, 0, len(n.incoming))
	for _, e := range n.incoming {
		out = append(out, *e)
	}
	return out
}

// recomputeWeight updates n's weight per Invariant 5: weight = 1 + sum
// of the weights of n's own dependencies (its incoming edges). Since
// the graph is acyclic at factory-resolution time, a single pass after
// each edge addition is sufficient; it does not need to cascade to n's
// dependents here because their weight is recomputed lazily the next
// time an edge into them changes (weight is only ever read during a
// flush, by which point all edges for the current round are settled).
func (g *Graph) recomputeWeight(n *node) {
	weight := 1
	for _, e := range n.incoming {
		if dep, ok := g.nodes[e.From]; ok {
			weight += dep.weight
		}
	}
	n.weight = weight
}

// ErrUnknownNode is returned by AddEdge when an endpoint is not registered.
var ErrUnknownNode = fmt.Errorf("graph: unknown node")
