// Copyright (c) 2024 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package ecosystem_test

import (
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/lf-edge/atomgraph/atom"
	"github.com/lf-edge/atomgraph/ecosystem"
	"github.com/lf-edge/atomgraph/graph"
)

func counterTemplate() *atom.Template {
	return &atom.Template{
		Key: "counter",
		Factory: func(inj atom.Injector, params []interface{}) interface{} {
			return inj.Store(0, nil)
		},
	}
}

func doubleTemplate(count *atom.Template) *atom.Template {
	return &atom.Template{
		Key: "double",
		Factory: func(inj atom.Injector, params []interface{}) interface{} {
			v, err := inj.Get(count)
			if err != nil {
				panic(err)
			}
			return v.(int) * 2
		},
	}
}

func TestCounterSetStateNotifiesSubscriber(t *testing.T) {
	g := NewGomegaWithT(t)
	eco := ecosystem.New(ecosystem.Config{})
	count := counterTemplate()

	inst, err := eco.GetNode(count)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(inst.Get()).To(Equal(0))

	var seen interface{}
	sub, err := eco.Subscribe(inst, func(graph.NotifyReason) { seen, _ = inst.Get() })
	g.Expect(err).NotTo(HaveOccurred())
	defer sub.Unsubscribe()
	g.Expect(seen).To(Equal(0)) // ReasonEdgeAdded sync-on-subscribe

	inst.Holder().SetState(1)
	g.Expect(inst.Get()).To(Equal(1))
	g.Expect(seen).To(Equal(1))
}

func TestDerivedAtomRecomputesOnDependencyChange(t *testing.T) {
	g := NewGomegaWithT(t)
	eco := ecosystem.New(ecosystem.Config{})
	count := counterTemplate()
	double := doubleTemplate(count)

	countInst, err := eco.GetNode(count)
	g.Expect(err).NotTo(HaveOccurred())
	doubleInst, err := eco.GetNode(double)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(doubleInst.Get()).To(Equal(0))

	countInst.Holder().SetState(5)
	g.Expect(doubleInst.Get()).To(Equal(10))
}

func TestUniquenessSameParamsReuseInstance(t *testing.T) {
	g := NewGomegaWithT(t)
	eco := ecosystem.New(ecosystem.Config{})
	tmpl := &atom.Template{
		Key: "keyed",
		Factory: func(inj atom.Injector, params []interface{}) interface{} {
			return inj.Store(params[0], nil)
		},
	}

	a, err := eco.GetNode(tmpl, "x")
	g.Expect(err).NotTo(HaveOccurred())
	b, err := eco.GetNode(tmpl, "x")
	g.Expect(err).NotTo(HaveOccurred())
	c, err := eco.GetNode(tmpl, "y")
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(a).To(BeIdenticalTo(b))
	g.Expect(a).NotTo(BeIdenticalTo(c))
}

func TestDependencyRetractionRemovesStaleEdge(t *testing.T) {
	g := NewGomegaWithT(t)
	eco := ecosystem.New(ecosystem.Config{})

	toggle := &atom.Template{
		Key: "toggle",
		Factory: func(inj atom.Injector, params []interface{}) interface{} {
			return inj.Store(true, nil)
		},
	}
	a := &atom.Template{
		Key: "a",
		Factory: func(inj atom.Injector, params []interface{}) interface{} {
			return inj.Store("a-value", nil)
		},
	}
	branching := &atom.Template{
		Key: "branching",
		Factory: func(inj atom.Injector, params []interface{}) interface{} {
			t, _ := inj.Get(toggle)
			if t.(bool) {
				v, _ := inj.Get(a)
				return v
			}
			return "fallback"
		},
	}

	toggleInst, _ := eco.GetNode(toggle)
	branchInst, err := eco.GetNode(branching)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(branchInst.Get()).To(Equal("a-value"))

	toggleInst.Holder().SetState(false)
	g.Expect(branchInst.Get()).To(Equal("fallback"))

	// "a" lost its only dependent; with no ttl configured it is never
	// auto-destroyed (HasTTL=false), but the edge itself must be gone.
	dot := eco.RenderDOT()
	g.Expect(dot).NotTo(ContainSubstring("\"a@0000000000000000\" -> "))
}

func TestTTLDestroysAfterLastDependentLeaves(t *testing.T) {
	g := NewGomegaWithT(t)
	eco := ecosystem.New(ecosystem.Config{})

	leaf := &atom.Template{
		Key: "leaf",
		TTL: 10 * time.Millisecond,
		HasTTL: true,
		Factory: func(inj atom.Injector, params []interface{}) interface{} {
			return inj.Store(1, nil)
		},
	}
	root := &atom.Template{
		Key: "root",
		Factory: func(inj atom.Injector, params []interface{}) interface{} {
			v, _ := inj.Get(leaf)
			return v
		},
	}

	rootInst, err := eco.GetNode(root)
	g.Expect(err).NotTo(HaveOccurred())
	// leaf was constructed with zero params, so its id is deterministic:
	// paramsHash(nil) == 0 (ecosystem/hash.go), formatted as "<key>@<hash>".
	const leafID = "leaf@0000000000000000"
	_, stillLive := eco.GetNodeByID(leafID)
	g.Expect(stillLive).To(BeTrue())

	eco.Destroy(rootInst.ID(), false)

	g.Eventually(func() bool {
		_, ok := eco.GetNodeByID(leafID)
		return ok
	}, "200ms", "5ms").Should(BeFalse())
}

func TestOverrideReplacesFactoryForFutureReads(t *testing.T) {
	g := NewGomegaWithT(t)
	orig := &atom.Template{
		Key: "greeting",
		Factory: func(inj atom.Injector, params []interface{}) interface{} {
			return inj.Store("hello", nil)
		},
	}
	replacement := &atom.Template{
		Key: "greeting",
		Factory: func(inj atom.Injector, params []interface{}) interface{} {
			return inj.Store("overridden", nil)
		},
	}
	eco := ecosystem.New(ecosystem.Config{})

	inst, err := eco.GetNode(orig)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(inst.Get()).To(Equal("hello"))

	eco.Overrides(map[string]*atom.Template{"greeting": replacement})

	inst2, err := eco.GetNode(orig)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(inst2.Get()).To(Equal("overridden"))
}

func TestSingleFlushNotifiesEachDependentOnce(t *testing.T) {
	g := NewGomegaWithT(t)
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
	sum := &atom.Template{
		Key: "sum",
		Factory: func(inj atom.Injector, params []interface{}) interface{} {
			d, _ := inj.Get(double)
			tr, _ := inj.Get(triple)
			return d.(int) + tr.(int)
		},
	}

	countInst, _ := eco.GetNode(count)
	sumInst, err := eco.GetNode(sum)
	g.Expect(err).NotTo(HaveOccurred())

	notifyCount := 0
	sub, err := eco.Subscribe(sumInst, func(graph.NotifyReason) { notifyCount++ })
	g.Expect(err).NotTo(HaveOccurred())
	defer sub.Unsubscribe()
	notifyCount = 0 // discount the initial edgeAdded sync

	countInst.Holder().SetState(2)
	g.Expect(sumInst.Get()).To(Equal(10)) // double=4, triple=6
	g.Expect(notifyCount).To(Equal(1))
}
