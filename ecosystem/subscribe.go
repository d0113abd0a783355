// Copyright (c) 2024 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package ecosystem

import (
	"fmt"

	"github.com/lf-edge/atomgraph/atom"
	"github.com/lf-edge/atomgraph/graph"
)

// Subscription is returned by Subscribe; Unsubscribe detaches the host
// listener and, if this was the instance's last dependent, starts its
// ttl countdown (SPEC_FULL.md §6).
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	eco   *Ecosystem
	id    graph.NodeID
	depID graph.NodeID
}

func (s *subscription) Unsubscribe() {
	s.eco.mu.Lock()
	s.eco.g.RemoveEdge(s.depID, s.id)
	s.eco.g.DelNode(s.id)
	delete(s.eco.subscribers, s.id)
	s.eco.mu.Unlock()

	s.eco.emit(EventEdgeRemoved, edgePayload{From: string(s.depID), To: string(s.id)})
	s.eco.maybeScheduleTTL(s.depID)
}

// Subscribe registers a host-framework observer on inst, the External
// edge counterpart to a factory's Get()/GetInstance() calls. notify is
// invoked once immediately (ReasonEdgeAdded, so the host can read the
// instance's current value without waiting for the next flush), then
// again on every subsequent stateChanged/destroyed notification until
// Unsubscribe is called.
func (e *Ecosystem) Subscribe(inst *atom.Instance, notify func(graph.NotifyReason)) (Subscription, error) {
	depID := graph.NodeID(inst.ID())

	e.mu.Lock()
	e.nextSubscriberID++
	subID := graph.NodeID(fmt.Sprintf("subscriber-%d", e.nextSubscriberID))
	e.g.PutNode(subID, graph.KindExternalSubscriber)
	sub := &subscriberNode{id: subID, notify: notify}
	e.subscribers[subID] = sub
	err := e.g.AddEdge(depID, subID, graph.FlagExternal, "subscribe", e.makeNotify(subID, graph.FlagExternal))
	e.mu.Unlock()

	if err != nil {
		e.mu.Lock()
		e.g.DelNode(subID)
		delete(e.subscribers, subID)
		e.mu.Unlock()
		return nil, err
	}

	e.cancelTTL(depID)
	e.emit(EventEdgeCreated, edgePayload{From: string(depID), To: string(subID)})
	e.notifyExternal(sub, graph.ReasonEdgeAdded)

	return &subscription{eco: e, id: subID, depID: depID}, nil
}
