// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"madrox/internal/apierr"
	"madrox/internal/artifacts"
	"madrox/internal/bus"
	"madrox/internal/instance"
	"madrox/internal/orchestrator"
)

type fakeExecutor struct {
	mu       sync.Mutex
	sessions map[string]bool
}

func newFakeExecutor() *fakeExecutor { return &fakeExecutor{sessions: make(map[string]bool)} }

func (f *fakeExecutor) HasSession(_ context.Context, session string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[session]
}
func (f *fakeExecutor) NewSession(_ context.Context, session, _ string, _ []string, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[session] = true
	return nil
}
func (f *fakeExecutor) KillSession(_ context.Context, session string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, session)
	return nil
}
func (f *fakeExecutor) CapturePane(_ context.Context, _ string, _ bool) ([]byte, error) {
	return []byte("pane"), nil
}
func (f *fakeExecutor) SendKeys(_ context.Context, _ string, _ string, _ bool) error { return nil }
func (f *fakeExecutor) SendText(_ context.Context, _ string, _ string) error         { return nil }

func newHarness(t *testing.T) *Dispatcher {
	t.Helper()
	reg := instance.New(0)
	exec := newFakeExecutor()
	orch := orchestrator.New(reg, nil, exec, t.TempDir(), nil)
	b := bus.New(reg, orch.InjectorFor, orch.InterrupterFor, nil)
	collector := artifacts.New(reg, orch, artifacts.Config{Root: t.TempDir()})
	return New(reg, b, orch, collector, nil)
}

func spawnRoot(t *testing.T, d *Dispatcher) *instance.Record {
	t.Helper()
	rec, err := d.SpawnClaude(context.Background(), SpawnArgs{Name: instance.RootName})
	require.Nil(t, err)
	return rec
}

func TestSpawnRootAllowsNilParent(t *testing.T) {
	d := newHarness(t)
	rec := spawnRoot(t, d)
	assert.Nil(t, rec.ParentID)
	assert.Equal(t, instance.StateReady, rec.State)
}

func TestSpawnNonRootWithoutParentFailsParentRequired(t *testing.T) {
	d := newHarness(t)
	_, err := d.SpawnClaude(context.Background(), SpawnArgs{Name: "worker"})
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindParentRequired, err.Kind())
}

func TestSpawnNonRootWithExplicitParentSucceeds(t *testing.T) {
	d := newHarness(t)
	root := spawnRoot(t, d)
	child, err := d.SpawnClaude(context.Background(), SpawnArgs{Name: "worker", ParentInstanceID: &root.ID})
	require.Nil(t, err)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, root.ID, *child.ParentID)
}

func TestSpawnUnknownRoleRejected(t *testing.T) {
	d := newHarness(t)
	root := spawnRoot(t, d)
	_, err := d.SpawnClaude(context.Background(), SpawnArgs{Name: "worker", ParentInstanceID: &root.ID, Role: "not_a_role"})
	require.NotNil(t, err)
}

func TestSpawnMultipleInstancesSharesParentAndTracksPerItemFailure(t *testing.T) {
	d := newHarness(t)
	root := spawnRoot(t, d)

	results, err := d.SpawnMultipleInstances(context.Background(), instance.KindClaude, []SpawnArgs{
		{Name: "a", ParentInstanceID: &root.ID},
		{Name: "b", Role: "bogus-role"},
	})
	require.Nil(t, err)
	require.Len(t, results, 2)
	assert.Empty(t, results[0].Error)
	require.NotNil(t, results[0].Record)
	require.NotEmpty(t, results[1].Error)
}

func TestReplyToCallerRejectsMismatchedIdentity(t *testing.T) {
	d := newHarness(t)
	root := spawnRoot(t, d)
	err := d.ReplyToCaller("someone-else", root.ID, "hi", "K1")
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindInvalidInstanceID, err.Kind())
}

func TestDetectCallerOrReturnsFallbackWithNoBusyInstance(t *testing.T) {
	d := newHarness(t)
	root := spawnRoot(t, d)
	assert.Equal(t, root.ID, d.detectCallerOr(root.ID))
}

func TestDetectCallerOrPrefersTheBusyInstance(t *testing.T) {
	d := newHarness(t)
	root := spawnRoot(t, d)
	child, err := d.SpawnClaude(context.Background(), SpawnArgs{Name: "worker", ParentInstanceID: &root.ID})
	require.Nil(t, err)

	_, terr := d.registry.Transition(child.ID, instance.StateBusy)
	require.NoError(t, terr)

	assert.Equal(t, child.ID, d.detectCallerOr(root.ID))
}

// TestReplyAsAnotherInstanceIsRejectedEvenWhenThatInstanceIsBusy exercises the
// path tools.go actually takes for reply_to_caller: the caller id is the
// busy-heuristic's guess, not whatever instance_id the request named, so a
// spoofed instance_id is still caught by the identity check it feeds into.
func TestReplyAsAnotherInstanceIsRejectedEvenWhenThatInstanceIsBusy(t *testing.T) {
	d := newHarness(t)
	root := spawnRoot(t, d)
	child, err := d.SpawnClaude(context.Background(), SpawnArgs{Name: "worker", ParentInstanceID: &root.ID})
	require.Nil(t, err)

	_, terr := d.registry.Transition(child.ID, instance.StateBusy)
	require.NoError(t, terr)

	caller := d.detectCallerOr(root.ID) // mirrors tools.go's reply_to_caller wiring
	assert.Equal(t, child.ID, caller)

	aerr := d.ReplyToCaller(caller, root.ID, "pretending to be root", "K1")
	require.NotNil(t, aerr)
	assert.Equal(t, apierr.KindInvalidInstanceID, aerr.Kind())
}

func TestReplyRoundTripThroughPendingReplies(t *testing.T) {
	d := newHarness(t)
	root := spawnRoot(t, d)
	require.Nil(t, d.ReplyToCaller(root.ID, root.ID, "y", "K1"))

	replies, err := d.GetPendingReplies(root.ID)
	require.Nil(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "y", replies[0].Payload)

	replies, err = d.GetPendingReplies(root.ID)
	require.Nil(t, err)
	assert.Empty(t, replies)
}

func TestGetMainInstanceIDIsDeprecatedWithoutSideEffects(t *testing.T) {
	d := newHarness(t)
	err := d.GetMainInstanceID()
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindDeprecated, err.Kind())
	assert.Empty(t, d.registry.All())
}

func TestTerminateInstanceIsIdempotent(t *testing.T) {
	d := newHarness(t)
	root := spawnRoot(t, d)
	require.Nil(t, d.TerminateInstance(context.Background(), root.ID))
	require.Nil(t, d.TerminateInstance(context.Background(), root.ID))
}

func TestCoordinateInstancesRunsStepsInOrder(t *testing.T) {
	d := newHarness(t)
	root := spawnRoot(t, d)
	childID := root.ID

	results, err := d.CoordinateInstances(context.Background(), []CoordinationStep{
		{InstanceIDs: []string{childID}, Message: "step1", Sequential: true},
		{InstanceIDs: []string{childID}, Message: "step2", Sequential: false},
	})
	require.Nil(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0][0].OK)
	assert.True(t, results[1][0].OK)
}

func TestListAndRetrieveFilesThroughDispatcher(t *testing.T) {
	d := newHarness(t)
	root := spawnRoot(t, d)

	_, err := d.ListInstanceFiles(root.ID, ".")
	require.Nil(t, err)

	_, err = d.RetrieveInstanceFile(root.ID, "../../../etc/passwd")
	require.NotNil(t, err)
}

func TestCollectTeamArtifactsRejectsMalformedTeamID(t *testing.T) {
	d := newHarness(t)
	_, err := d.CollectTeamArtifacts(context.Background(), "bad team id!")
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindEmptyTeamID, err.Kind())
}
