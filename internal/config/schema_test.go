// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_JSONRoundTrip(t *testing.T) {
	cfg := Config{
		Artifacts: ArtifactsConfig{
			Dir:             "./artifacts",
			Compress:        true,
			RetentionDays:   7,
			Patterns:        []string{"*"},
			ExcludePatterns: []string{".git"},
		},
		Workspace: WorkspaceConfig{Dir: "./workspaces"},
		Instances: InstancesConfig{Max: 50},
		Logging:   LoggingConfig{Level: "info"},
		Transport: TransportConfig{Mode: "http", Port: 8765},
	}

	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	var decoded Config
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, cfg, decoded)
}
