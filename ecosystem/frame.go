// Copyright (c) 2024 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package ecosystem

import (
	"time"

	"github.com/lf-edge/atomgraph/atom"
	"github.com/lf-edge/atomgraph/graph"
)

// frame is one entry of the per-Ecosystem injection stack (SPEC_FULL.md
// §4.5 / Design Notes §9): "the current factory" is a stack, not
// ambient global state, so a factory constructing atom A that itself
// triggers construction of atom B (which reads A back, or anything
// else) gets its own frame pushed on top without disturbing A's.
type frame struct {
	instance *atom.Instance

	// newIncoming is the set of dependency ids read during this run,
	// used at pop time to retract edges that existed before the run
	// but were not read again (§4.2 "Dependency retraction").
	newIncoming map[graph.NodeID]bool

	refSeq  int
	memoSeq int

	effects []func() func()

	hasTTL bool
	ttl    time.Duration

	promise *atom.Promise
	exports interface{}
}

func newFrame(inst *atom.Instance) *frame {
	return &frame{
		instance:    inst,
		newIncoming: make(map[graph.NodeID]bool),
	}
}
