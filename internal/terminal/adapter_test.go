// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	sessions    map[string]bool
	sentKeys    []string
	pastedTexts []string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{sessions: make(map[string]bool)}
}

func (f *fakeExecutor) HasSession(_ context.Context, session string) bool {
	return f.sessions[session]
}

func (f *fakeExecutor) NewSession(_ context.Context, session, _ string, _ []string, _ []string) error {
	f.sessions[session] = true
	return nil
}

func (f *fakeExecutor) KillSession(_ context.Context, session string) error {
	delete(f.sessions, session)
	return nil
}

func (f *fakeExecutor) CapturePane(_ context.Context, session string, _ bool) ([]byte, error) {
	if !f.sessions[session] {
		return nil, Gone(nil)
	}
	return []byte("pane output"), nil
}

func (f *fakeExecutor) SendKeys(_ context.Context, session string, keys string, literal bool) error {
	if !f.sessions[session] {
		return Gone(nil)
	}
	if literal {
		f.sentKeys = append(f.sentKeys, keys)
	}
	return nil
}

func (f *fakeExecutor) SendText(_ context.Context, session string, text string) error {
	if !f.sessions[session] {
		return Gone(nil)
	}
	f.pastedTexts = append(f.pastedTexts, text)
	return nil
}

func TestAdapterStartAndCapture(t *testing.T) {
	exec := newFakeExecutor()
	a := NewAdapter(exec, "inst-1")

	require.NoError(t, a.Start(context.Background(), []string{"claude"}, nil, "/tmp"))

	out, err := a.CapturePane(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pane output", out)
}

func TestAdapterSendKeysSplitsEnter(t *testing.T) {
	exec := newFakeExecutor()
	a := NewAdapter(exec, "inst-2")
	require.NoError(t, a.Start(context.Background(), []string{"claude"}, nil, "/tmp"))

	require.NoError(t, a.SendKeys(context.Background(), "hello", true))

	assert.Equal(t, []string{"hello"}, exec.sentKeys)
}

func TestAdapterSendSoftNewlineDoesNotSubmit(t *testing.T) {
	exec := newFakeExecutor()
	a := NewAdapter(exec, "inst-2b")
	require.NoError(t, a.Start(context.Background(), []string{"claude"}, nil, "/tmp"))

	require.NoError(t, a.SendSoftNewline(context.Background()))

	assert.Empty(t, exec.sentKeys, "S-Enter is a key name, not literal text")
}

func TestAdapterLoadBufferAndPaste(t *testing.T) {
	exec := newFakeExecutor()
	a := NewAdapter(exec, "inst-3")
	require.NoError(t, a.Start(context.Background(), []string{"claude"}, nil, "/tmp"))

	require.NoError(t, a.LoadBufferAndPaste(context.Background(), "a large prompt"))

	assert.Equal(t, []string{"a large prompt"}, exec.pastedTexts)
}

func TestAdapterCaptureOnGoneSession(t *testing.T) {
	exec := newFakeExecutor()
	a := NewAdapter(exec, "inst-4")

	_, err := a.CapturePane(context.Background())
	assert.True(t, IsGone(err))
}

func TestAdapterKillIsIdempotent(t *testing.T) {
	exec := newFakeExecutor()
	a := NewAdapter(exec, "inst-5")
	require.NoError(t, a.Start(context.Background(), []string{"claude"}, nil, "/tmp"))

	require.NoError(t, a.Kill(context.Background()))
	require.NoError(t, a.Kill(context.Background()))
}
