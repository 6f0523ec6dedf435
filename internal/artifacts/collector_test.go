// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package artifacts

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"madrox/internal/instance"
)

type fakePanes struct{ content string }

func (f *fakePanes) CapturePane(_ context.Context, _ string) (string, error) {
	return f.content, nil
}

func newMember(t *testing.T, reg *instance.Registry, teamID, name, workspace string) instance.Record {
	t.Helper()
	require.NoError(t, os.MkdirAll(workspace, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "main.go"), []byte("package main"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "notes.txt"), []byte("scratch"), 0o644))

	rec, err := reg.Create(instance.Spec{
		Name: name, Role: instance.RoleGeneral, Kind: instance.KindClaude,
		TeamSessionID: teamID, WorkspacePath: workspace,
	})
	require.NoError(t, err)
	reg.IncrementCounters(rec.ID, 1, 2, 100, 0.01)
	got, ok := reg.Get(rec.ID)
	require.True(t, ok)
	return got
}

func TestCollectTeamArtifactsWritesSnapshot(t *testing.T) {
	reg := instance.New(0)
	root := t.TempDir()
	ws1 := t.TempDir()
	ws2 := t.TempDir()
	newMember(t, reg, "team-1", "alpha", ws1)
	newMember(t, reg, "team-1", "beta", ws2)

	c := New(reg, &fakePanes{content: "hello from pane"}, Config{Root: root})
	result, err := c.CollectTeamArtifacts(context.Background(), "team-1")
	require.NoError(t, err)
	require.Len(t, result.Instances, 2)
	assert.True(t, result.ExecutionSummary.AllCompleted)
	assert.Equal(t, int64(200), result.ExecutionSummary.TokensUsed)

	metaPath := filepath.Join(result.Dir, "metadata.json")
	data, err := os.ReadFile(metaPath)
	require.NoError(t, err)
	var onDisk Result
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, "team-1", onDisk.TeamSessionID)

	_, err = os.Stat(filepath.Join(result.Dir, "summary.md"))
	require.NoError(t, err)

	for _, ir := range result.Instances {
		outputLog := filepath.Join(result.Dir, "instances", ir.InstanceID, "output.log")
		content, err := os.ReadFile(outputLog)
		require.NoError(t, err)
		assert.Equal(t, "hello from pane", string(content))

		wsFile := filepath.Join(result.Dir, "instances", ir.InstanceID, "workspace", "main.go")
		_, err = os.Stat(wsFile)
		require.NoError(t, err)
	}
}

func TestCollectTeamArtifactsRejectsEmptyTeamID(t *testing.T) {
	c := New(instance.New(0), nil, Config{Root: t.TempDir()})
	_, err := c.CollectTeamArtifacts(context.Background(), "")
	require.Error(t, err)
}

func TestCollectTeamArtifactsRejectsUnknownTeam(t *testing.T) {
	c := New(instance.New(0), nil, Config{Root: t.TempDir()})
	_, err := c.CollectTeamArtifacts(context.Background(), "nonexistent-team")
	require.Error(t, err)
}

func TestCollectTeamArtifactsIsIdempotentAcrossCalls(t *testing.T) {
	reg := instance.New(0)
	root := t.TempDir()
	newMember(t, reg, "team-2", "solo", t.TempDir())

	c := New(reg, nil, Config{Root: root})
	r1, err := c.CollectTeamArtifacts(context.Background(), "team-2")
	require.NoError(t, err)
	r2, err := c.CollectTeamArtifacts(context.Background(), "team-2")
	require.NoError(t, err)
	assert.NotEqual(t, r1.Dir, r2.Dir)
}

func TestCollectTeamArtifactsExcludePattern(t *testing.T) {
	reg := instance.New(0)
	root := t.TempDir()
	ws := t.TempDir()
	rec := newMember(t, reg, "team-3", "alpha", ws)

	c := New(reg, nil, Config{Root: root, ExcludePatterns: []string{"*.txt"}})
	result, err := c.CollectTeamArtifacts(context.Background(), "team-3")
	require.NoError(t, err)

	wsDir := filepath.Join(result.Dir, "instances", rec.ID, "workspace")
	_, err = os.Stat(filepath.Join(wsDir, "main.go"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(wsDir, "notes.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestReaperDeletesOldSnapshots(t *testing.T) {
	root := t.TempDir()
	oldDir := filepath.Join(root, "2020-01-01_00-00-00-team")
	require.NoError(t, os.MkdirAll(oldDir, 0o755))
	old := time.Now().Add(-60 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(oldDir, old, old))

	freshDir := filepath.Join(root, "2026-07-31_00-00-00-team")
	require.NoError(t, os.MkdirAll(freshDir, 0o755))

	r := NewReaper(Config{Root: root, RetentionDays: 30})
	require.NoError(t, r.Reap())

	_, err := os.Stat(oldDir)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(freshDir)
	assert.NoError(t, err)
}
