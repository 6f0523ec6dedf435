// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Artifacts: ArtifactsConfig{Dir: "./artifacts", RetentionDays: 0, Patterns: []string{"*"}},
		Workspace: WorkspaceConfig{Dir: "./workspaces"},
		Instances: InstancesConfig{Max: 50},
		Logging:   LoggingConfig{Level: "info"},
		Transport: TransportConfig{Mode: "http", Port: 8765},
	}
}

func TestValidate_AcceptsDefaultConfig(t *testing.T) {
	err := NewValidator().Validate(validConfig())
	require.NoError(t, err)
}

func TestValidate_RejectsNonPositiveMaxInstances(t *testing.T) {
	cfg := validConfig()
	cfg.Instances.Max = 0

	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	verr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.False(t, verr.IsEmpty())
}

func TestValidate_RejectsUnknownLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "verbose"

	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestValidate_RejectsUnknownTransportMode(t *testing.T) {
	cfg := validConfig()
	cfg.Transport.Mode = "carrier-pigeon"

	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport.mode")
}

func TestValidate_RejectsPortOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Transport.Port = 70000

	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport.port")
}

func TestValidate_RejectsNegativeRetentionDays(t *testing.T) {
	cfg := validConfig()
	cfg.Artifacts.RetentionDays = -1

	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "artifacts.retention_days")
}

func TestValidate_AccumulatesMultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Instances.Max = -1
	cfg.Logging.Level = "bogus"

	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	verr := err.(*ValidationError)
	assert.Len(t, verr.Errors, 2)
}
