// Copyright (c) 2024 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package store_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lf-edge/atomgraph/store"
)

func TestReadYourWrites(t *testing.T) {
	h := store.New(0, nil)
	h.SetState(5)
	require.Equal(t, 5, h.GetState())
}

func TestUpdateAppliesPrevious(t *testing.T) {
	h := store.New(1, nil)
	h.Update(func(prev interface{}) interface{} { return prev.(int) + 2 })
	require.Equal(t, 3, h.GetState())
}

func TestListenersInvokedInSubscriptionOrder(t *testing.T) {
	h := store.New(0, nil)
	var order []string
	h.Subscribe(func(interface{}) { order = append(order, "first") })
	h.Subscribe(func(interface{}) { order = append(order, "second") })
	h.SetState(1)
	require.Equal(t, []string{"first", "second"}, order)
}

func TestReentrantSetStateIsDeferredToNextPass(t *testing.T) {
	h := store.New(0, nil)
	var observed []interface{}
	h.Subscribe(func(v interface{}) {
		observed = append(observed, v)
		if v.(int) == 1 {
			h.SetState(2) // reentrant: must not run inline
		}
	})
	h.SetState(1)
	require.Equal(t, []interface{}{1, 2}, observed)
}

func TestDispatchUsesReducer(t *testing.T) {
	type incr struct{ by int }
	h := store.New(0, func(prev interface{}, action interface{}) interface{} {
		return prev.(int) + action.(incr).by
	})
	h.Dispatch(incr{by: 4})
	require.Equal(t, 4, h.GetState())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := store.New(0, nil)
	var calls int
	sub := h.Subscribe(func(interface{}) { calls++ })
	h.SetState(1)
	sub.Unsubscribe()
	h.SetState(2)
	require.Equal(t, 1, calls)
}
