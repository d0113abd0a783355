// Copyright (c) 2024 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package ecosystem implements the Ecosystem component of SPEC_FULL.md
// §4: the construction algorithm, the injection stack, the override
// table, the notification flush scheduler and the devtools event log.
// It is the only package that wires atom.Template/atom.Instance to
// package graph; atom and graph both stay ignorant of it.
package ecosystem

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/lf-edge/atomgraph/atom"
	"github.com/lf-edge/atomgraph/graph"
	"github.com/lf-edge/atomgraph/internal/xlog"
)

// Config configures a new Ecosystem. Zero value is a usable default.
type Config struct {
	// LogSource names this ecosystem in its logger's source field.
	LogSource string
	// EventLogCapacity bounds the devtools ring buffer (0 = default 10k).
	EventLogCapacity int
	// Overrides seeds the override table at construction time, keyed by
	// template key. Equivalent to calling Overrides after New.
	Overrides map[string]*atom.Template
}

// Option mutates a Config; New accepts a Config directly, Option exists
// for call sites that prefer the functional-options idiom (matching the
// teacher's own cmd/*/config.go convention of small With* helpers).
type Option func(*Config)

func WithLogSource(name string) Option { return func(c *Config) { c.LogSource = name } }
func WithEventLogCapacity(n int) Option {
	return func(c *Config) { c.EventLogCapacity = n }
}

// subscriberNode bookkeeps a host-framework observer registered via
// Subscribe: it is a graph node (KindExternalSubscriber) but has no
// backing atom.Instance.
type subscriberNode struct {
	id     graph.NodeID
	notify func(graph.NotifyReason)
}

// Ecosystem is the runtime root: one per independent "app" (SPEC_FULL.md
// §4.1), owning its own graph, registry, override table and event log.
// It is not safe for concurrent use by multiple goroutines without
// external synchronization beyond what mu provides — per spec.md's
// concurrency model (§1 Non-goals), the engine is built for a single
// logical thread of control; mu exists to make accidental concurrent
// access fail safely (serialize) rather than corrupt the graph, not to
// offer a supported concurrent API.
type Ecosystem struct {
	mu  sync.Mutex
	log *xlog.Logger
	g   *graph.Graph

	templatesByKey    map[string]*atom.Template
	instances         map[graph.NodeID]*atom.Instance
	subscribers       map[graph.NodeID]*subscriberNode
	overrides         map[string]*atom.Template
	deferredOverrides map[string]*atom.Template

	stack []*frame

	pendingRoots []graph.NodeID
	flushing     bool
	activeRerun  *graph.NodeID
	correlation  *uuid.UUID

	ttlTimers map[graph.NodeID]ttlTimer

	events *eventLog
	sf     singleflight.Group

	nextSubscriberID uint64
}

// New constructs a ready-to-use Ecosystem.
func New(cfg Config) *Ecosystem {
	source := cfg.LogSource
	if source == "" {
		source = "ecosystem"
	}
	log := xlog.Default(source)
	e := &Ecosystem{
		log:            log,
		g:              graph.New(log.WithField("component", "graph")),
		templatesByKey: make(map[string]*atom.Template),
		instances:      make(map[graph.NodeID]*atom.Instance),
		subscribers:    make(map[graph.NodeID]*subscriberNode),
		overrides:      make(map[string]*atom.Template),
		ttlTimers:      make(map[graph.NodeID]ttlTimer),
		events:         newEventLog(cfg.EventLogCapacity),
	}
	for key, tmpl := range cfg.Overrides {
		e.overrides[key] = tmpl
	}
	return e
}

// NewWithOptions is New for call sites preferring functional options.
func NewWithOptions(opts ...Option) *Ecosystem {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(cfg)
}

// GetNode resolves (constructing if necessary) the instance for
// (tmpl, params) with no caller edge — the entry point host bindings
// use before calling Subscribe (SPEC_FULL.md §6).
func (e *Ecosystem) GetNode(tmpl *atom.Template, params ...interface{}) (*atom.Instance, error) {
	return e.resolve(nil, tmpl, params, 0)
}

// GetNodeByID returns the already-materialized instance registered
// under id, if any.
func (e *Ecosystem) GetNodeByID(id string) (*atom.Instance, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.instances[graph.NodeID(id)]
	return inst, ok
}

// liveInstanceCount counts materialized instances for templateKey,
// backing Template.MaxInstances enforcement in buildInstance. Callers
// must hold mu.
func (e *Ecosystem) liveInstanceCount(templateKey string) int {
	n := 0
	for _, inst := range e.instances {
		if inst.TemplateKey == templateKey {
			n++
		}
	}
	return n
}

// Log returns the ecosystem's logger, for host bindings that want to
// attach their own structured fields (xlog.Logger.WithField).
func (e *Ecosystem) Log() *xlog.Logger { return e.log }

// Events returns a snapshot of the devtools event log.
func (e *Ecosystem) Events() []Event { return e.events.snapshot() }

// RenderDOT renders the current dependency graph as Graphviz DOT, for
// the same debugging use case as the teacher's depgraph_dot.go.
func (e *Ecosystem) RenderDOT() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.g.RenderDOT()
}

func (e *Ecosystem) topFrame() *frame {
	if len(e.stack) == 0 {
		return nil
	}
	return e.stack[len(e.stack)-1]
}

func (e *Ecosystem) pushFrame(fr *frame) {
	e.stack = append(e.stack, fr)
}

func (e *Ecosystem) popFrame() {
	e.stack = e.stack[:len(e.stack)-1]
	if len(e.stack) == 0 {
		e.drainDeferredOverrides()
	}
}

func (e *Ecosystem) emit(t EventType, payload interface{}) {
	e.events.append(e.currentCorrelation(), Action{Type: t, Payload: payload})
}

// currentCorrelation returns the uuid grouping events emitted during
// the in-progress flush, or a fresh one if none is in progress (e.g. an
// event emitted synchronously from a construction call outside any
// flush still gets a unique, if single-event, correlation group).
func (e *Ecosystem) currentCorrelation() uuid.UUID {
	if e.correlation != nil {
		return *e.correlation
	}
	return uuid.New()
}

func instanceID(templateKey string, hash uint64) graph.NodeID {
	return graph.NodeID(fmt.Sprintf("%s@%016x", templateKey, hash))
}
