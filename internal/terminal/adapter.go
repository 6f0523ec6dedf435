// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"context"
	"fmt"
)

// Adapter owns the multiplexer session for one instance.
type Adapter struct {
	exec    Executor
	session string
}

// NewAdapter returns an adapter bound to a fresh session name for instanceID.
// Start must be called before any other operation.
func NewAdapter(exec Executor, instanceID string) *Adapter {
	return &Adapter{exec: exec, session: SessionName(instanceID)}
}

// SessionHandle returns the opaque session reference recorded on the instance.
func (a *Adapter) SessionHandle() string { return a.session }

// Start launches cmd inside a fresh detached session rooted at cwd.
func (a *Adapter) Start(ctx context.Context, cmd []string, env []string, cwd string) error {
	if a.exec.HasSession(ctx, a.session) {
		return fmt.Errorf("session %s already exists", a.session)
	}
	return a.exec.NewSession(ctx, a.session, cwd, cmd, env)
}

// CapturePane returns the pane's visible content plus scrollback.
func (a *Adapter) CapturePane(ctx context.Context) (string, error) {
	out, err := a.exec.CapturePane(ctx, a.session, true)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// SendKeys injects literal characters, optionally followed by Enter.
func (a *Adapter) SendKeys(ctx context.Context, text string, withEnter bool) error {
	if text != "" {
		if err := a.exec.SendKeys(ctx, a.session, text, true); err != nil {
			return err
		}
	}
	if withEnter {
		return a.exec.SendKeys(ctx, a.session, "Enter", false)
	}
	return nil
}

// SendSoftNewline inserts a line break without submitting the pane's current
// input, for multi-line keystroke delivery (Shift-Enter in most terminal
// chat UIs, as opposed to the submitting Enter sent by SendKeys).
func (a *Adapter) SendSoftNewline(ctx context.Context) error {
	return a.exec.SendKeys(ctx, a.session, "S-Enter", false)
}

// LoadBufferAndPaste writes text into the paste buffer and pastes it as a
// single terminal input event, bypassing interactive paste-guard heuristics.
func (a *Adapter) LoadBufferAndPaste(ctx context.Context, text string) error {
	return a.exec.SendText(ctx, a.session, text)
}

// Interrupt delivers the session's interrupt keystroke (Ctrl-C).
func (a *Adapter) Interrupt(ctx context.Context) error {
	return a.exec.SendKeys(ctx, a.session, "C-c", false)
}

// Kill terminates the session, freeing its pty.
func (a *Adapter) Kill(ctx context.Context) error {
	return a.exec.KillSession(ctx, a.session)
}
