// Copyright (c) 2024 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package ecosystem

import (
	"github.com/lf-edge/atomgraph/atom"
	"github.com/lf-edge/atomgraph/graph"
)

// Overrides swaps in replacement templates keyed by template key
// (SPEC_FULL.md §4.6 "Override replacement"): future resolutions of a
// template with an overridden key get the replacement's factory
// instead. Every currently-live instance of an overridden key is
// force-destroyed so the next read reconstructs it fresh under the new
// factory; their dependents are notified exactly as any other destroy
// (§4.3's "may trigger re-evaluation or their own destruction").
//
// If called while a factory is running or a flush is in progress, the
// swap and the affected destructions are deferred until that run
// completes (Design Notes §9): swapping mid-factory would let a
// construction observe a template different from the one it started
// resolving against.
func (e *Ecosystem) Overrides(overrides map[string]*atom.Template) {
	e.mu.Lock()
	if len(e.stack) > 0 || e.flushing {
		if e.deferredOverrides == nil {
			e.deferredOverrides = make(map[string]*atom.Template)
		}
		for k, v := range overrides {
			e.deferredOverrides[k] = v
		}
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.applyOverrides(overrides)
}

func (e *Ecosystem) applyOverrides(overrides map[string]*atom.Template) {
	e.mu.Lock()
	var affected []graph.NodeID
	for key, tmpl := range overrides {
		e.overrides[key] = tmpl
		for id, inst := range e.instances {
			if inst.TemplateKey == key {
				affected = append(affected, id)
			}
		}
	}
	e.mu.Unlock()

	for _, id := range affected {
		e.Destroy(string(id), true)
	}
}

func (e *Ecosystem) drainDeferredOverrides() {
	e.mu.Lock()
	if len(e.stack) > 0 || e.flushing || len(e.deferredOverrides) == 0 {
		e.mu.Unlock()
		return
	}
	pending := e.deferredOverrides
	e.deferredOverrides = nil
	e.mu.Unlock()
	e.applyOverrides(pending)
}
