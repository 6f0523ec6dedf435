// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hjson/hjson-go/v4"
)

// Loader resolves Config from environment variables, with an optional HJSON
// file providing lower-precedence defaults for any variable left unset.
type Loader struct{}

// NewLoader creates a new config loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load resolves configuration. path may be empty; when set and the file
// exists, its values seed the config before environment variables are
// applied, so a set environment variable always wins over the file.
func (l *Loader) Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		if err := l.loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func (l *Loader) loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var raw map[string]interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse hjson: %w", err)
	}

	jsonData, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("convert to json: %w", err)
	}
	if err := json.Unmarshal(jsonData, cfg); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// applyEnv overlays environment variables onto cfg, overriding any value the
// optional config file set. Unset variables leave the existing value alone.
func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("ARTIFACTS_DIR"); ok {
		cfg.Artifacts.Dir = v
	}
	if v, ok := os.LookupEnv("ARTIFACTS_COMPRESS"); ok {
		cfg.Artifacts.Compress = parseBool(v, cfg.Artifacts.Compress)
	}
	if v, ok := os.LookupEnv("ARTIFACTS_RETENTION_DAYS"); ok {
		cfg.Artifacts.RetentionDays = parseInt(v, cfg.Artifacts.RetentionDays)
	}
	if v, ok := os.LookupEnv("ARTIFACTS_PATTERNS"); ok {
		cfg.Artifacts.Patterns = splitCSV(v)
	}
	if v, ok := os.LookupEnv("ARTIFACTS_EXCLUDE_PATTERNS"); ok {
		cfg.Artifacts.ExcludePatterns = splitCSV(v)
	}
	if v, ok := os.LookupEnv("WORKSPACE_DIR"); ok {
		cfg.Workspace.Dir = v
	}
	if v, ok := os.LookupEnv("MAX_INSTANCES"); ok {
		cfg.Instances.Max = parseInt(v, cfg.Instances.Max)
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := os.LookupEnv("MADROX_TRANSPORT"); ok {
		cfg.Transport.Mode = v
	}
	if v, ok := os.LookupEnv("ORCHESTRATOR_PORT"); ok {
		cfg.Transport.Port = parseInt(v, cfg.Transport.Port)
	}
}

// applyDefaults fills in anything still zero-valued after the file and
// environment passes.
func applyDefaults(cfg *Config) {
	if cfg.Artifacts.Dir == "" {
		cfg.Artifacts.Dir = "./artifacts"
	}
	if len(cfg.Artifacts.Patterns) == 0 {
		cfg.Artifacts.Patterns = []string{"*"}
	}
	if len(cfg.Artifacts.ExcludePatterns) == 0 {
		cfg.Artifacts.ExcludePatterns = []string{".git", "node_modules"}
	}
	if cfg.Workspace.Dir == "" {
		cfg.Workspace.Dir = "./workspaces"
	}
	if cfg.Instances.Max == 0 {
		cfg.Instances.Max = 50
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Transport.Port == 0 {
		cfg.Transport.Port = 8765
	}
}

func parseBool(s string, fallback bool) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return b
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}
