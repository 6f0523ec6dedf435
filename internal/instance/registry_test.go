// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package instance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRootThenChildren(t *testing.T) {
	r := New(0)

	root, err := r.Create(Spec{Name: RootName, Role: RoleGeneral, Kind: KindClaude, WorkspacePath: "/ws/root"})
	require.NoError(t, err)
	assert.Equal(t, root.ID, r.RootID())

	childID := root.ID
	_, err = r.Create(Spec{Name: "a", Role: RoleGeneral, Kind: KindClaude, ParentID: &childID, WorkspacePath: "/ws/a"})
	require.NoError(t, err)

	assert.Len(t, r.Children(root.ID), 1)
}

func TestCreateSecondRootFails(t *testing.T) {
	r := New(0)
	_, err := r.Create(Spec{Name: RootName, WorkspacePath: "/ws/1"})
	require.NoError(t, err)

	_, err = r.Create(Spec{Name: RootName, WorkspacePath: "/ws/2"})
	assert.Error(t, err)
}

func TestCreateNonRootWithoutParentFails(t *testing.T) {
	r := New(0)
	_, err := r.Create(Spec{Name: "w", WorkspacePath: "/ws/w"})
	assert.Error(t, err)
}

func TestCreateDuplicateWorkspacePathFails(t *testing.T) {
	r := New(0)
	root, err := r.Create(Spec{Name: RootName, WorkspacePath: "/ws/root"})
	require.NoError(t, err)

	_, err = r.Create(Spec{Name: "a", ParentID: &root.ID, WorkspacePath: "/ws/root"})
	assert.Error(t, err)
}

func TestMaxInstancesEnforced(t *testing.T) {
	r := New(1)
	_, err := r.Create(Spec{Name: RootName, WorkspacePath: "/ws/root"})
	require.NoError(t, err)

	_, err = r.Create(Spec{Name: "a", WorkspacePath: "/ws/a"})
	assert.Error(t, err)
}

func TestTransitionRejectsReverseMoves(t *testing.T) {
	r := New(0)
	root, err := r.Create(Spec{Name: RootName, WorkspacePath: "/ws/root"})
	require.NoError(t, err)

	_, err = r.Transition(root.ID, StateInitializing)
	require.NoError(t, err)
	_, err = r.Transition(root.ID, StateReady)
	require.NoError(t, err)
	_, err = r.Transition(root.ID, StateTerminating)
	require.NoError(t, err)
	_, err = r.Transition(root.ID, StateTerminated)
	require.NoError(t, err)

	_, err = r.Transition(root.ID, StateReady)
	assert.Error(t, err)
}

func TestErrorReachableFromAnyLiveState(t *testing.T) {
	for _, from := range []State{StateSpawning, StateInitializing, StateReady, StateBusy, StateIdle} {
		assert.True(t, CanTransition(from, StateError), "expected %s -> error", from)
	}
	assert.False(t, CanTransition(StateTerminated, StateError))
}

func TestInboxOverflowDropsOldest(t *testing.T) {
	r := New(0)
	root, err := r.Create(Spec{Name: RootName, WorkspacePath: "/ws/root"})
	require.NoError(t, err)

	q := NewQueue(2)
	var dropped []Message
	q.OnOverflow = func(m Message) { dropped = append(dropped, m) }

	q.Push(Message{Payload: "1"})
	q.Push(Message{Payload: "2"})
	q.Push(Message{Payload: "3"})

	require.Len(t, dropped, 1)
	assert.Equal(t, "1", dropped[0].Payload)

	drained := q.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, "2", drained[0].Payload)
	assert.Equal(t, "3", drained[1].Payload)

	_ = root
}
