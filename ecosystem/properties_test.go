// Copyright (c) 2024 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package ecosystem_test

import (
	"testing"

	. "github.com/onsi/gomega"

	"github.com/lf-edge/atomgraph/atom"
	"github.com/lf-edge/atomgraph/atomerr"
	"github.com/lf-edge/atomgraph/ecosystem"
	"github.com/lf-edge/atomgraph/graph"
)

// TestCyclicDependencyIsRejected covers spec.md §9 Invariant 3: a factory
// that transitively reads back to itself during its own initial
// construction surfaces ErrCyclicDependency instead of deadlocking or
// silently looping.
func TestCyclicDependencyIsRejected(t *testing.T) {
	g := NewGomegaWithT(t)
	eco := ecosystem.New(ecosystem.Config{})

	var a, b *atom.Template
	a = &atom.Template{
		Key: "a",
		Factory: func(inj atom.Injector, params []interface{}) interface{} {
			_, err := inj.GetInstance(b)
			if err != nil {
				panic(err)
			}
			return "a-value"
		},
	}
	b = &atom.Template{
		Key: "b",
		Factory: func(inj atom.Injector, params []interface{}) interface{} {
			_, err := inj.GetInstance(a)
			if err != nil {
				panic(err)
			}
			return "b-value"
		},
	}

	_, err := eco.GetNode(a)
	g.Expect(err).To(MatchError(atomerr.ErrCyclicDependency))
}

// TestSuspensionSurfacesPromiseThenActivates covers spec.md §8 scenario 5:
// a factory attaching a pending promise leaves the instance Stale with a
// readable (possibly intermediate) value; once the promise settles the
// instance transitions to Active and promiseStatus reports success.
func TestSuspensionSurfacesPromiseThenActivates(t *testing.T) {
	g := NewGomegaWithT(t)
	eco := ecosystem.New(ecosystem.Config{})

	var promise *atom.Promise
	remote := &atom.Template{
		Key: "remote",
		Factory: func(inj atom.Injector, params []interface{}) interface{} {
			promise = atom.NewPromise()
			inj.Promise(promise)
			return inj.Store(nil, nil)
		},
	}

	inst, err := eco.GetNode(remote)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(inst.State()).To(Equal(atom.StateStale))
	g.Expect(inst.PromiseStatus()).To(Equal(atom.PromiseLoading))

	inst.Holder().SetState("ready")
	promise.Resolve("ready")

	g.Expect(inst.PromiseStatus()).To(Equal(atom.PromiseSuccess))
	g.Expect(inst.State()).To(Equal(atom.StateActive))
	g.Expect(inst.Get()).To(Equal("ready"))
}

// TestNotificationOrderIsDeterministic covers spec.md §8's "Determinism
// of order" invariant: repeated, identical mutations over two separately
// constructed but structurally identical graphs yield identical listener
// invocation sequences.
func TestNotificationOrderIsDeterministic(t *testing.T) {
	g := NewGomegaWithT(t)

	build := func() (setCount func(int), order *[]string) {
		eco := ecosystem.New(ecosystem.Config{})
		count := counterTemplate()
		double := doubleTemplate(count)
		triple := &atom.Template{
			Key: "triple",
			Factory: func(inj atom.Injector, params []interface{}) interface{} {
				v, _ := inj.Get(count)
				return v.(int) * 3
			},
		}

		countInst, _ := eco.GetNode(count)
		doubleInst, _ := eco.GetNode(double)
		tripleInst, _ := eco.GetNode(triple)

		var seen []string
		_, _ = eco.Subscribe(doubleInst, func(graph.NotifyReason) { seen = append(seen, "double") })
		_, _ = eco.Subscribe(tripleInst, func(graph.NotifyReason) { seen = append(seen, "triple") })
		seen = nil // discount the edgeAdded sync notifications

		return func(v int) { countInst.Holder().SetState(v) }, &seen
	}

	set1, order1 := build()
	set2, order2 := build()

	set1(7)
	set2(7)

	g.Expect(*order1).To(Equal(*order2))
	g.Expect(*order1).To(HaveLen(2))
}

// TestMaxInstancesRejectsOverflow covers spec.md §6: a template bounding
// how many distinct param hashes may coexist rejects a new one past the
// bound, while re-reading an already-live param hash remains a cache hit
// that never counts against it.
func TestMaxInstancesRejectsOverflow(t *testing.T) {
	g := NewGomegaWithT(t)
	eco := ecosystem.New(ecosystem.Config{})

	tmpl := &atom.Template{
		Key:          "bounded",
		MaxInstances: 2,
		Factory: func(inj atom.Injector, params []interface{}) interface{} {
			return inj.Store(params[0], nil)
		},
	}

	_, err := eco.GetNode(tmpl, "a")
	g.Expect(err).NotTo(HaveOccurred())
	_, err = eco.GetNode(tmpl, "b")
	g.Expect(err).NotTo(HaveOccurred())

	// Re-reading an already-live param hash is a cache hit, not a new
	// instance, and must not be rejected by the bound.
	_, err = eco.GetNode(tmpl, "a")
	g.Expect(err).NotTo(HaveOccurred())

	_, err = eco.GetNode(tmpl, "c")
	g.Expect(err).To(MatchError(atomerr.ErrTooManyInstances))
}
