// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package pasteinjector routes prompts of arbitrary size into a child CLI's
// pane without tripping its interactive paste-guard heuristics.
package pasteinjector

import (
	"context"
	"log"
	"strings"
	"time"
)

// Threshold is the size (bytes) at which a message switches from the
// keystroke path to the paste-buffer path.
const Threshold = 3 * 1024

// settleDelay is slept after a paste-buffer load, before sending Enter.
const settleDelay = 100 * time.Millisecond

// perLineDelay is the adaptive settle delay for keystroke-path messages:
// after every line except the last, the injector sleeps perLineDelay times
// that line's length plus one, so the total delay grows with message length.
// The delay has no upper bound.
const perLineDelay = 2 * time.Millisecond

// Adapter is the subset of terminal.Adapter the injector needs. Declared
// locally so this package doesn't import terminal, keeping the dependency
// direction the same as the bus depending down into the injector.
type Adapter interface {
	SendKeys(ctx context.Context, text string, withEnter bool) error
	SendSoftNewline(ctx context.Context) error
	LoadBufferAndPaste(ctx context.Context, text string) error
}

// Sleeper abstracts time.Sleep for deterministic tests.
type Sleeper func(time.Duration)

// Injector sends messages to a single adapter, choosing the keystroke or
// paste-buffer path by message size.
type Injector struct {
	adapter Adapter
	sleep   Sleeper
}

// New returns an injector bound to adapter. A nil sleeper uses time.Sleep.
func New(adapter Adapter, sleep Sleeper) *Injector {
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Injector{adapter: adapter, sleep: sleep}
}

// Send delivers msg to the adapter's pane, choosing paste-buffer for
// messages at or above Threshold and keystrokes below it. On paste-buffer
// failure it falls back to the keystroke path rather than dropping msg.
func (i *Injector) Send(ctx context.Context, msg string) error {
	if len(msg) >= Threshold {
		if err := i.adapter.LoadBufferAndPaste(ctx, msg); err == nil {
			i.sleep(settleDelay)
			return i.adapter.SendKeys(ctx, "", true)
		} else {
			log.Printf("pasteinjector: paste-buffer failed, falling back to keystrokes: %v", err)
		}
	}
	return i.sendByKeystroke(ctx, msg)
}

// sendByKeystroke splits msg line-by-line, sending a soft-newline key
// between lines and a single terminal Enter at the end.
func (i *Injector) sendByKeystroke(ctx context.Context, msg string) error {
	lines := strings.Split(msg, "\n")
	for idx, line := range lines {
		last := idx == len(lines)-1
		if err := i.adapter.SendKeys(ctx, line, false); err != nil {
			return err
		}
		if !last {
			if err := i.adapter.SendSoftNewline(ctx); err != nil {
				return err
			}
			i.sleep(perLineDelay * time.Duration(len(line)+1))
		}
	}
	return i.adapter.SendKeys(ctx, "", true)
}
