// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// RealExecutor executes real tmux commands.
type RealExecutor struct{}

// NewRealExecutor creates a tmux-backed executor.
func NewRealExecutor() *RealExecutor {
	return &RealExecutor{}
}

// HasSession checks if a session exists.
func (e *RealExecutor) HasSession(ctx context.Context, session string) bool {
	cmd := exec.CommandContext(ctx, "tmux", "has-session", "-t", session)
	return cmd.Run() == nil
}

// NewSession creates a new detached tmux session running cmd.
func (e *RealExecutor) NewSession(ctx context.Context, session, workdir string, cmd []string, env []string) error {
	args := []string{"new-session", "-d", "-s", session}
	if workdir != "" {
		args = append(args, "-c", workdir)
	}
	args = append(args, cmd...)

	c := exec.CommandContext(ctx, "tmux", args...)
	c.Env = append(filterTMUXEnv(os.Environ()), env...)

	var stderr bytes.Buffer
	c.Stderr = &stderr

	if err := c.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() != 0 {
			return Transient(fmt.Errorf("tmux new-session: %s: %w", stderr.String(), err))
		}
		return Transient(fmt.Errorf("tmux new-session: %s: %w", stderr.String(), err))
	}
	return nil
}

// KillSession kills a tmux session.
func (e *RealExecutor) KillSession(ctx context.Context, session string) error {
	cmd := exec.CommandContext(ctx, "tmux", "kill-session", "-t", session)
	if err := cmd.Run(); err != nil {
		if !e.HasSession(ctx, session) {
			return nil // already gone, kill is idempotent
		}
		return Transient(err)
	}
	return nil
}

// CapturePane captures the pane content.
func (e *RealExecutor) CapturePane(ctx context.Context, session string, withHistory bool) ([]byte, error) {
	if !e.HasSession(ctx, session) {
		return nil, Gone(fmt.Errorf("session %s not found", session))
	}
	args := []string{"capture-pane", "-t", session, "-p", "-e"}
	if withHistory {
		args = append(args, "-S", "-")
	}
	cmd := exec.CommandContext(ctx, "tmux", args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, Transient(err)
	}
	return out, nil
}

// SendKeys sends keys to a pane.
func (e *RealExecutor) SendKeys(ctx context.Context, session string, keys string, literal bool) error {
	if !e.HasSession(ctx, session) {
		return Gone(fmt.Errorf("session %s not found", session))
	}
	args := []string{"send-keys", "-t", session}
	if literal {
		args = append(args, "-l")
	}
	args = append(args, keys)

	cmd := exec.CommandContext(ctx, "tmux", args...)
	if err := cmd.Run(); err != nil {
		return Transient(err)
	}
	return nil
}

// SendText sends text via the paste buffer so it arrives as one terminal event.
func (e *RealExecutor) SendText(ctx context.Context, session string, text string) error {
	if !e.HasSession(ctx, session) {
		return Gone(fmt.Errorf("session %s not found", session))
	}

	loadCmd := exec.CommandContext(ctx, "tmux", "load-buffer", "-")
	loadCmd.Stdin = strings.NewReader(text)
	if err := loadCmd.Run(); err != nil {
		return Transient(fmt.Errorf("tmux load-buffer: %w", err))
	}

	pasteCmd := exec.CommandContext(ctx, "tmux", "paste-buffer", "-d", "-t", session)
	if err := pasteCmd.Run(); err != nil {
		return Transient(fmt.Errorf("tmux paste-buffer: %w", err))
	}
	return nil
}

// filterTMUXEnv strips TMUX so a session can be created from inside another one.
func filterTMUXEnv(env []string) []string {
	result := make([]string, 0, len(env))
	for _, e := range env {
		if !strings.HasPrefix(e, "TMUX=") {
			result = append(result, e)
		}
	}
	return result
}
