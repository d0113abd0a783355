// Copyright (c) 2024 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package atom_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lf-edge/atomgraph/atom"
	"github.com/lf-edge/atomgraph/atomerr"
	"github.com/lf-edge/atomgraph/store"
)

func TestNewInstanceStartsInitializing(t *testing.T) {
	inst := atom.New("count@0", "count", 0, nil)
	require.Equal(t, atom.StateInitializing, inst.State())
	v, err := inst.Get()
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestGetReturnsAdoptedHolderState(t *testing.T) {
	inst := atom.New("count@0", "count", 0, nil)
	h := store.New(5, nil)
	inst.SetHolder(h)
	v, err := inst.Get()
	require.NoError(t, err)
	require.Equal(t, 5, v)

	h.SetState(9)
	v, err = inst.Get()
	require.NoError(t, err)
	require.Equal(t, 9, v)
}

func TestActivateTransitionsToActive(t *testing.T) {
	inst := atom.New("count@0", "count", 0, nil)
	inst.Activate()
	require.Equal(t, atom.StateActive, inst.State())
}

func TestMarkStaleTransitionsToStale(t *testing.T) {
	inst := atom.New("count@0", "count", 0, nil)
	inst.MarkStale()
	require.Equal(t, atom.StateStale, inst.State())
}

func TestEnsureLiveFailsAfterDestroy(t *testing.T) {
	inst := atom.New("count@0", "count", 0, nil)
	require.NoError(t, inst.EnsureLive())

	inst.Destroy(nil)
	require.ErrorIs(t, inst.EnsureLive(), atomerr.ErrInstanceDestroyed)
	require.Equal(t, atom.StateDestroyed, inst.State())

	_, err := inst.Get()
	require.ErrorIs(t, err, atomerr.ErrInstanceDestroyed)

	_, err = inst.PromiseStatus()
	require.ErrorIs(t, err, atomerr.ErrInstanceDestroyed)
}

func TestDestroyRunsDestructorsLIFO(t *testing.T) {
	inst := atom.New("count@0", "count", 0, nil)
	var order []int
	inst.AddDestructor(func() { order = append(order, 1) })
	inst.AddDestructor(func() { order = append(order, 2) })
	inst.AddDestructor(func() { order = append(order, 3) })

	inst.Destroy(nil)
	require.Equal(t, []int{3, 2, 1}, order)
}

func TestDestroyIsIdempotent(t *testing.T) {
	inst := atom.New("count@0", "count", 0, nil)
	calls := 0
	inst.AddDestructor(func() { calls++ })

	inst.Destroy(nil)
	inst.Destroy(nil)
	require.Equal(t, 1, calls)
}

func TestDestroyCatchesPanickingDestructor(t *testing.T) {
	inst := atom.New("count@0", "count", 0, nil)
	ranAfter := false
	inst.AddDestructor(func() { ranAfter = true })
	inst.AddDestructor(func() { panic("boom") })

	require.NotPanics(t, func() { inst.Destroy(nil) })
	require.True(t, ranAfter)
}

func TestMemoRecomputesOnlyWhenKeyChanges(t *testing.T) {
	inst := atom.New("double@0", "double", 0, nil)

	_, ok := inst.MemoGet(0, "k1")
	require.False(t, ok)

	inst.MemoSet(0, "k1", 42)
	v, ok := inst.MemoGet(0, "k1")
	require.True(t, ok)
	require.Equal(t, 42, v)

	_, ok = inst.MemoGet(0, "k2")
	require.False(t, ok, "a changed guard key must miss, forcing recompute")
}

func TestExportsRoundTrip(t *testing.T) {
	inst := atom.New("svc@0", "svc", 0, nil)
	require.Nil(t, inst.Exports())

	type api struct{ Name string }
	inst.SetExports(api{Name: "svc"})
	require.Equal(t, api{Name: "svc"}, inst.Exports())
}
