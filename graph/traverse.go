// Copyright (c) 2024 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package graph

import "sort"

// stack is a simple LIFO used for the cycle-detection DFS, following the
// same shape as the teacher's depgraph_stack.go / reconciler/stack.go.
type stack struct {
	items []NodeID
}

func (s *stack) push(id NodeID) { s.items = append(s.items, id) }

func (s *stack) pop() (NodeID, bool) {
	if len(s.items) == 0 {
		return "", false
	}
	id := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return id, true
}

// DetectCycleFrom walks the dependency edges starting at id (i.e. the
// edges id itself depends on, and transitively theirs) and returns the
// first cycle found as an ordered list of node ids, or nil if none.
// This is invoked by the Ecosystem only while a factory run is still in
// progress (Invariant 3: the graph must be acyclic at factory-resolution
// time); a cycle discovered here is a fatal configuration error
// (ErrCyclicDependency).
func (g *Graph) DetectCycleFrom(id NodeID) []NodeID {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // fully explored
	)
	color := make(map[NodeID]int)
	parent := make(map[NodeID]NodeID)

	var dfs func(NodeID) []NodeID
	dfs = func(cur NodeID) []NodeID {
		color[cur] = gray
		n, ok := g.nodes[cur]
		if ok {
			// Dependencies of cur are its incoming edges (cur is To).
			for _, e := range n.incoming {
				dep := e.From
				switch color[dep] {
				case white:
					parent[dep] = cur
					if cyc := dfs(dep); cyc != nil {
						return cyc
					}
				case gray:
					// Found the back-edge; reconstruct the cycle cur -> ... -> dep -> cur.
					cycle := []NodeID{dep}
					for at := cur; at != dep; at = parent[at] {
						cycle = append(cycle, at)
					}
					cycle = append(cycle, dep)
					reverse(cycle)
					return cycle
				}
			}
		}
		color[cur] = black
		return nil
	}
	return dfs(id)
}

func reverse(ids []NodeID) {
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
}

// AffectedOrder computes the set of nodes transitively reachable by
// walking outgoing edges (dependents) from every root in roots, exactly
// once each, ordered per §4.2's notification-ordering rule: ascending by
// weight among atom/selector nodes, with External-subscriber nodes
// drained last so host re-renders observe a fully-settled graph.
//
// Traversal does not cross a Static edge: a Static dependent declared
// (via getInstance) that it does not want stateChanged delivery, so it
// is neither notified nor used as a relay to its own dependents — it
// has nothing new to relay, since it never re-evaluates on its own.
func (g *Graph) AffectedOrder(roots []NodeID) []NodeID {
	visited := make(map[NodeID]bool, len(roots))
	var affected []NodeID

	var queue []NodeID
	for _, r := range roots {
		if !visited[r] {
			visited[r] = true
		}
	}
	queue = append(queue, roots...)

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		n, ok := g.nodes[cur]
		if !ok {
			continue
		}
		for toID, e := range n.outgoing {
			if e.Flags.Has(FlagStatic) {
				continue
			}
			if visited[toID] {
				continue
			}
			visited[toID] = true
			affected = append(affected, toID)
			queue = append(queue, toID)
		}
	}

	// Traversal itself walks Go maps, whose iteration order is randomized
	// per call; without a total order here, two dependents tied on
	// weight could swap relative position between otherwise-identical
	// flushes. Break ties on id so repeated identical mutations always
	// produce the same listener-invocation sequence (§8 "Determinism of
	// order").
	sort.SliceStable(affected, func(i, j int) bool {
		ni, oki := g.nodes[affected[i]]
		nj, okj := g.nodes[affected[j]]
		iExternal := !oki || ni.kind == KindExternalSubscriber
		jExternal := !okj || nj.kind == KindExternalSubscriber
		if iExternal != jExternal {
			return !iExternal // non-external sorts before external
		}
		wi, wj := 0, 0
		if oki {
			wi = ni.weight
		}
		if okj {
			wj = nj.weight
		}
		if wi != wj {
			return wi < wj
		}
		return affected[i] < affected[j]
	})
	return affected
}
