// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package terminal owns one multiplexed pseudo-terminal session per
// instance: creating it, injecting keystrokes or paste-buffer content,
// capturing its pane, and tearing it down.
package terminal

import "context"

// Executor executes multiplexer commands against a named session.
// RealExecutor shells out to tmux; tests substitute a fake.
type Executor interface {
	// HasSession reports whether the named session exists.
	HasSession(ctx context.Context, session string) bool
	// NewSession launches cmd inside a fresh detached session rooted at workdir.
	NewSession(ctx context.Context, session, workdir string, cmd []string, env []string) error
	// KillSession destroys a session, freeing its pty.
	KillSession(ctx context.Context, session string) error
	// CapturePane returns the pane's visible content plus scrollback when withHistory is set.
	CapturePane(ctx context.Context, session string, withHistory bool) ([]byte, error)
	// SendKeys injects keys as terminal input. literal suppresses key-name interpretation.
	SendKeys(ctx context.Context, session string, keys string, literal bool) error
	// SendText loads text into the paste buffer and pastes it as one terminal event.
	SendText(ctx context.Context, session string, text string) error
}

// ErrSessionGone indicates the adapter could not reach the pane because the
// underlying session no longer exists.
var ErrSessionGone = &SessionError{Kind: "session_gone"}

// SessionError distinguishes a dead session from a transient multiplexer failure.
type SessionError struct {
	Kind string // "session_gone" or "transient"
	Err  error
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return e.Kind + ": " + e.Err.Error()
	}
	return e.Kind
}

func (e *SessionError) Unwrap() error { return e.Err }

// Transient wraps err as a transient multiplexer error. No adapter operation
// retries: a transient error reaches the caller on the first failure.
func Transient(err error) error { return &SessionError{Kind: "transient", Err: err} }

// Gone wraps err as a session-gone error (the caller should transition the
// owning instance to terminated or error).
func Gone(err error) error { return &SessionError{Kind: "session_gone", Err: err} }

// IsGone reports whether err represents a dead session.
func IsGone(err error) bool {
	var se *SessionError
	if e, ok := err.(*SessionError); ok {
		se = e
	} else {
		return false
	}
	return se.Kind == "session_gone"
}

// SessionName derives a multiplexer-safe session name from an instance id.
// Multiplexer session names may not contain dots or colons.
func SessionName(instanceID string) string {
	result := make([]byte, 0, len(instanceID)+7)
	result = append(result, "madrox-"...)
	for i := 0; i < len(instanceID); i++ {
		c := instanceID[i]
		if c == '.' || c == ':' {
			result = append(result, '_')
		} else {
			result = append(result, c)
		}
	}
	return string(result)
}
