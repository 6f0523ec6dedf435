// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator wires the instance registry, terminal adapters, and
// paste-buffer injectors together into the operations the MCP tool surface
// exposes: spawn, terminate, interrupt, pane capture, and workspace browse.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"madrox/internal/bus"
	"madrox/internal/instance"
	"madrox/internal/pasteinjector"
	"madrox/internal/terminal"
)

// LaunchCommand resolves the argv used to start an instance of kind/model.
type LaunchCommand func(kind instance.Kind, model string) []string

// DefaultLaunchCommand assumes the child CLIs are on PATH under their
// conventional names.
func DefaultLaunchCommand(kind instance.Kind, model string) []string {
	name := "claude"
	if kind == instance.KindCodex {
		name = "codex"
	}
	cmd := []string{name}
	if model != "" {
		cmd = append(cmd, "--model", model)
	}
	return cmd
}

type binding struct {
	adapter  *terminal.Adapter
	injector *pasteinjector.Injector
}

// Orchestrator is the live, in-memory counterpart to the registry: for every
// spawned instance it also holds the terminal session and injector that
// actually reach its pane.
type Orchestrator struct {
	registry      *instance.Registry
	bus           *bus.Bus
	exec          terminal.Executor
	workspaceRoot string
	launchCmd     LaunchCommand

	mu       sync.RWMutex
	bindings map[string]*binding
}

// New builds an Orchestrator. workspaceRoot is where per-instance workspace
// directories are created.
func New(registry *instance.Registry, b *bus.Bus, exec terminal.Executor, workspaceRoot string, launchCmd LaunchCommand) *Orchestrator {
	if launchCmd == nil {
		launchCmd = DefaultLaunchCommand
	}
	return &Orchestrator{
		registry:      registry,
		bus:           b,
		exec:          exec,
		workspaceRoot: workspaceRoot,
		launchCmd:     launchCmd,
		bindings:      make(map[string]*binding),
	}
}

// InjectorFor and InterrupterFor satisfy the lookup functions bus.New needs;
// pass o.InjectorFor / o.InterrupterFor directly to bus.New.
func (o *Orchestrator) InjectorFor(id string) bus.Injector {
	o.mu.RLock()
	defer o.mu.RUnlock()
	b, ok := o.bindings[id]
	if !ok {
		return nil
	}
	return b.injector
}

func (o *Orchestrator) InterrupterFor(id string) bus.Interrupter {
	o.mu.RLock()
	defer o.mu.RUnlock()
	b, ok := o.bindings[id]
	if !ok {
		return nil
	}
	return b.adapter
}

// CapturePane satisfies supervisor.PaneReader and artifacts.PaneCapturer.
func (o *Orchestrator) CapturePane(ctx context.Context, id string) (string, error) {
	o.mu.RLock()
	b, ok := o.bindings[id]
	o.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("instance %s has no active session", id)
	}
	return b.adapter.CapturePane(ctx)
}

// SpawnSpec describes a spawn_claude/spawn_codex/spawn_multiple_instances
// request for one instance.
type SpawnSpec struct {
	Name          string
	Role          instance.Role
	Kind          instance.Kind
	Model         string
	ParentID      *string
	TeamSessionID string
	EnableMadrox  bool
}

// Spawn creates the registry record, a fresh workspace directory, and a live
// terminal session for spec, transitioning the new instance through
// spawning -> initializing -> ready. On any failure after the registry
// insert the instance is left in (or moved to) the error state rather than
// removed — the record stays visible for diagnosis.
func (o *Orchestrator) Spawn(ctx context.Context, spec SpawnSpec) (*instance.Record, error) {
	rec, err := o.registry.Create(instance.Spec{
		Name: spec.Name, Role: spec.Role, Kind: spec.Kind, Model: spec.Model,
		ParentID: spec.ParentID, TeamSessionID: spec.TeamSessionID,
		WorkspacePath: o.newWorkspacePath(spec.Name),
		EnableMadrox:  spec.EnableMadrox,
	})
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(rec.WorkspacePath, 0o755); err != nil {
		o.registry.Transition(rec.ID, instance.StateError)
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	adapter := terminal.NewAdapter(o.exec, rec.ID)
	cmd := o.launchCmd(spec.Kind, spec.Model)
	if err := adapter.Start(ctx, cmd, nil, rec.WorkspacePath); err != nil {
		o.registry.Transition(rec.ID, instance.StateError)
		return nil, fmt.Errorf("start session: %w", err)
	}

	o.mu.Lock()
	o.bindings[rec.ID] = &binding{adapter: adapter, injector: pasteinjector.New(adapter, nil)}
	o.mu.Unlock()

	o.registry.SetSessionHandle(rec.ID, adapter.SessionHandle())
	if _, err := o.registry.Transition(rec.ID, instance.StateInitializing); err != nil {
		return nil, err
	}
	if _, err := o.registry.Transition(rec.ID, instance.StateReady); err != nil {
		return nil, err
	}

	got, _ := o.registry.Get(rec.ID)
	return &got, nil
}

// Terminate kills the instance's terminal session and transitions it to
// terminated. The registry record is retained (never deleted) so later
// artifact collection and status queries still resolve it.
func (o *Orchestrator) Terminate(ctx context.Context, id string) error {
	o.mu.RLock()
	b, ok := o.bindings[id]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("instance %s has no active session", id)
	}

	if _, err := o.registry.Transition(id, instance.StateTerminating); err != nil {
		return err
	}
	killErr := b.adapter.Kill(ctx)
	if _, err := o.registry.Transition(id, instance.StateTerminated); err != nil {
		return err
	}
	return killErr
}

func (o *Orchestrator) newWorkspacePath(name string) string {
	return filepath.Join(o.workspaceRoot, sanitizeSegment(name)+"-"+instance.NewInstanceID()[:8])
}

func sanitizeSegment(s string) string {
	r := make([]rune, 0, len(s))
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			r = append(r, c)
		default:
			r = append(r, '-')
		}
	}
	if len(r) == 0 {
		return "instance"
	}
	return string(r)
}

// ListFiles lists the contents of rel (relative to id's workspace root).
func (o *Orchestrator) ListFiles(id, rel string) ([]string, error) {
	rec, ok := o.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown instance %s", id)
	}
	dir, err := safeJoin(rec.WorkspacePath, rel)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// RetrieveFile reads rel (relative to id's workspace root).
func (o *Orchestrator) RetrieveFile(id, rel string) ([]byte, error) {
	rec, ok := o.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown instance %s", id)
	}
	path, err := safeJoin(rec.WorkspacePath, rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// safeJoin resolves rel against root, rejecting any path that would escape
// root (e.g. via "../").
func safeJoin(root, rel string) (string, error) {
	root = filepath.Clean(root)
	joined := filepath.Join(root, filepath.Clean(string(filepath.Separator)+rel))
	if joined != root && !strings.HasPrefix(joined, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes workspace root", rel)
	}
	return joined, nil
}

// TreeNode is one node of the instance forest returned by get_instance_tree.
type TreeNode struct {
	Record   instance.Record `json:"record"`
	Children []*TreeNode     `json:"children,omitempty"`
}

// Tree builds the full forest rooted at the registry's root instance, or nil
// if no root has spawned yet.
func (o *Orchestrator) Tree() *TreeNode {
	rootID := o.registry.RootID()
	if rootID == "" {
		return nil
	}
	return o.buildNode(rootID)
}

func (o *Orchestrator) buildNode(id string) *TreeNode {
	rec, ok := o.registry.Get(id)
	if !ok {
		return nil
	}
	node := &TreeNode{Record: rec}
	for _, childID := range o.registry.Children(id) {
		if child := o.buildNode(childID); child != nil {
			node.Children = append(node.Children, child)
		}
	}
	return node
}
