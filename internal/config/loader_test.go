// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"ARTIFACTS_DIR", "ARTIFACTS_COMPRESS", "ARTIFACTS_RETENTION_DAYS",
		"ARTIFACTS_PATTERNS", "ARTIFACTS_EXCLUDE_PATTERNS", "WORKSPACE_DIR",
		"MAX_INSTANCES", "LOG_LEVEL", "MADROX_TRANSPORT", "ORCHESTRATOR_PORT",
	}
	for _, v := range vars {
		old, had := os.LookupEnv(v)
		os.Unsetenv(v)
		t.Cleanup(func() {
			if had {
				os.Setenv(v, old)
			}
		})
	}
}

func TestLoad_DefaultsWithNoFileOrEnv(t *testing.T) {
	clearEnv(t)
	cfg, err := NewLoader().Load("")
	require.NoError(t, err)

	assert.Equal(t, "./artifacts", cfg.Artifacts.Dir)
	assert.Equal(t, []string{"*"}, cfg.Artifacts.Patterns)
	assert.Equal(t, []string{".git", "node_modules"}, cfg.Artifacts.ExcludePatterns)
	assert.Equal(t, "./workspaces", cfg.Workspace.Dir)
	assert.Equal(t, 50, cfg.Instances.Max)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 8765, cfg.Transport.Port)
	assert.False(t, cfg.Artifacts.Compress)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "madrox.hjson")
	require.NoError(t, os.WriteFile(path, []byte(`{
		artifacts: { dir: "/from-file" }
		instances: { max: 10 }
	}`), 0o644))

	os.Setenv("ARTIFACTS_DIR", "/from-env")
	cfg, err := NewLoader().Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/from-env", cfg.Artifacts.Dir, "env must win over file")
	assert.Equal(t, 10, cfg.Instances.Max, "file value kept when env unset")
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	clearEnv(t)
	_, err := NewLoader().Load(filepath.Join(t.TempDir(), "does-not-exist.hjson"))
	require.NoError(t, err)
}

func TestLoad_ParsesCSVAndBoolEnv(t *testing.T) {
	clearEnv(t)
	os.Setenv("ARTIFACTS_PATTERNS", "*.go, *.md")
	os.Setenv("ARTIFACTS_EXCLUDE_PATTERNS", ".git,node_modules, dist")
	os.Setenv("ARTIFACTS_COMPRESS", "true")
	os.Setenv("ARTIFACTS_RETENTION_DAYS", "14")
	os.Setenv("MAX_INSTANCES", "5")
	os.Setenv("ORCHESTRATOR_PORT", "9000")
	os.Setenv("MADROX_TRANSPORT", "stdio")

	cfg, err := NewLoader().Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"*.go", "*.md"}, cfg.Artifacts.Patterns)
	assert.Equal(t, []string{".git", "node_modules", "dist"}, cfg.Artifacts.ExcludePatterns)
	assert.True(t, cfg.Artifacts.Compress)
	assert.Equal(t, 14, cfg.Artifacts.RetentionDays)
	assert.Equal(t, 5, cfg.Instances.Max)
	assert.Equal(t, 9000, cfg.Transport.Port)
	assert.Equal(t, "stdio", cfg.Transport.Mode)
}

func TestLoad_MalformedIntEnvFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	os.Setenv("MAX_INSTANCES", "not-a-number")
	cfg, err := NewLoader().Load("")
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Instances.Max)
}
