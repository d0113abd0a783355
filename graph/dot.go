// Copyright (c) 2024 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"sort"
	"strings"
)

// RenderDOT returns a Graphviz DOT description of the graph, useful for
// troubleshooting the live dependency graph the same way the teacher's
// DepGraph.RenderDOT() does.
func (g *Graph) RenderDOT() string {
	var sb strings.Builder
	sb.WriteString("digraph G {\n")

	ids := g.Nodes()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		n := g.nodes[id]
		var shape string
		switch n.kind {
		case KindExternalSubscriber:
			shape = "box"
		case KindSelectorCache:
			shape = "octagon"
		default:
			shape = "ellipse"
		}
		sb.WriteString(fmt.Sprintf("\t%s [shape=%s, tooltip=\"weight=%d\"];\n",
			escapeName(id), shape, n.weight))
		for _, e := range n.outgoing {
			color := "black"
			if e.Flags.Has(FlagStatic) {
				color = "grey"
			}
			style := "solid"
			if e.Flags.Has(FlagExternal) {
				style = "dashed"
			}
			sb.WriteString(fmt.Sprintf("\t%s -> %s [color=%s, style=%s, tooltip=\"%s\"];\n",
				escapeName(e.From), escapeName(e.To), color, style, e.Operation))
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

func escapeName(id NodeID) string {
	return fmt.Sprintf("%q", string(id))
}
