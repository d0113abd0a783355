// Copyright (c) 2024 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package ecosystem

import (
	"time"

	"github.com/lf-edge/atomgraph/atom"
	"github.com/lf-edge/atomgraph/atomerr"
	"github.com/lf-edge/atomgraph/graph"
	"github.com/lf-edge/atomgraph/store"
)

// injector is the concrete atom.Injector handed to a Template's factory
// for the duration of one frame. Get and GetInstance re-check via
// requireActive that this frame is still on top of the Ecosystem's
// stack, so a factory that leaks the injector out of its own call (e.g.
// into a goroutine or a later callback) gets ErrInjectionOutOfScope from
// them. The other methods do no such check and write into the frame
// (or, for Ref and Memo, the instance) whenever they are called.
type injector struct {
	eco *Ecosystem
	fr  *frame
}

func (inj *injector) requireActive() error {
	if inj.eco.topFrame() != inj.fr {
		return atomerr.ErrInjectionOutOfScope
	}
	return nil
}

func (inj *injector) Get(tmpl *atom.Template, params ...interface{}) (interface{}, error) {
	if err := inj.requireActive(); err != nil {
		return nil, err
	}
	dep, err := inj.eco.resolve(inj.fr, tmpl, params, 0)
	if err != nil {
		return nil, err
	}
	return dep.Get()
}

func (inj *injector) GetInstance(tmpl *atom.Template, params ...interface{}) (atom.InstanceHandle, error) {
	if err := inj.requireActive(); err != nil {
		return nil, err
	}
	dep, err := inj.eco.resolve(inj.fr, tmpl, params, graph.FlagStatic)
	if err != nil {
		return nil, err
	}
	return dep, nil
}

func (inj *injector) Store(initial interface{}, reducer store.Reducer) store.Holder {
	return store.New(initial, reducer)
}

func (inj *injector) Effect(fn func() func()) {
	inj.fr.effects = append(inj.fr.effects, fn)
}

func (inj *injector) Ref(initial interface{}) *atom.Ref {
	inst := inj.fr.instance
	key := inj.fr.refSeq
	inj.fr.refSeq++
	if r, ok := inst.Refs[key]; ok {
		return r
	}
	r := &atom.Ref{Value: initial}
	inst.Refs[key] = r
	return r
}

func (inj *injector) Memo(key interface{}, factory func() interface{}) interface{} {
	inst := inj.fr.instance
	slot := inj.fr.memoSeq
	inj.fr.memoSeq++
	if v, ok := inst.MemoGet(slot, key); ok {
		return v
	}
	v := factory()
	inst.MemoSet(slot, key, v)
	return v
}

func (inj *injector) TTL(d time.Duration) {
	inj.fr.hasTTL = true
	inj.fr.ttl = d
}

func (inj *injector) Promise(p *atom.Promise) {
	inj.fr.promise = p
}

func (inj *injector) Exports(obj interface{}) {
	inj.fr.exports = obj
}
