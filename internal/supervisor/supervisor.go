// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package supervisor runs the periodic idle/blocked classification loop
// over the instance registry, nudging quiet children and advising parents
// of children that look stuck.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sync"
	"time"

	gops "github.com/mitchellh/go-ps"

	"madrox/internal/audit"
	"madrox/internal/bus"
	"madrox/internal/instance"
)

const (
	// DefaultInterval is how often the classification sweep runs.
	DefaultInterval = 60 * time.Second
	// DefaultIdleThreshold is how long an instance may sit with no activity
	// before it is nudged.
	DefaultIdleThreshold = 2 * time.Minute
	// DefaultQuiescenceWindow is how long a busy instance's pane must hold
	// unchanged content before it is moved to idle.
	DefaultQuiescenceWindow = 2 * time.Second
	// quiescencePollInterval is how often the quiescence watcher re-captures
	// panes; it runs far tighter than the classification sweep since the
	// window it's measuring is itself only a couple of seconds.
	quiescencePollInterval = 500 * time.Millisecond
)

// knownErrorSignatures are pane-transcript substrings that mark an instance
// as blocked even when its recorded state is still "busy" or "ready" — the
// session adapter has no way to push state transitions from inside the
// child's own output.
var knownErrorSignatures = []*regexp.Regexp{
	regexp.MustCompile(`(?i)panic:`),
	regexp.MustCompile(`(?i)fatal error:`),
	regexp.MustCompile(`(?i)rate limit exceeded`),
	regexp.MustCompile(`(?i)connection refused`),
	regexp.MustCompile(`(?i)authentication failed`),
	regexp.MustCompile(`(?i)context deadline exceeded`),
}

// PaneReader captures an instance's current pane transcript for blocked
// detection. orchestrator.Orchestrator satisfies this and is passed in
// directly at wiring time.
type PaneReader interface {
	CapturePane(ctx context.Context, instanceID string) (string, error)
}

// paneSnapshot records the last pane content observed for a busy instance
// and when that content last changed, for quiescence detection.
type paneSnapshot struct {
	content   string
	changedAt time.Time
}

// Supervisor periodically classifies every non-terminated instance as idle,
// blocked, or neither, and reacts without ever auto-terminating.
type Supervisor struct {
	registry         *instance.Registry
	bus              *bus.Bus
	panes            PaneReader
	audit            *audit.Bus
	interval         time.Duration
	idleThreshold    time.Duration
	quiescenceWindow time.Duration

	mu        sync.Mutex
	lastTools map[string]int
	panesSeen map[string]paneSnapshot
}

// New builds a Supervisor. panes and auditBus may be nil (pane-based blocked
// detection and audit publication are both best-effort extras).
func New(registry *instance.Registry, b *bus.Bus, panes PaneReader, auditBus *audit.Bus, interval, idleThreshold time.Duration) *Supervisor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if idleThreshold <= 0 {
		idleThreshold = DefaultIdleThreshold
	}
	return &Supervisor{
		registry:         registry,
		bus:              b,
		panes:            panes,
		audit:            auditBus,
		interval:         interval,
		idleThreshold:    idleThreshold,
		quiescenceWindow: DefaultQuiescenceWindow,
		lastTools:        make(map[string]int),
		panesSeen:        make(map[string]paneSnapshot),
	}
}

// Run blocks, sweeping every interval until ctx is cancelled, alongside a
// much tighter quiescence watch that classifies busy→idle on its own clock.
// The loop is single-threaded by design: its shared-state writes, all made
// through the registry's and the bus's own locking, are busy→idle state
// transitions, check-in enqueues on idle instances' inboxes, and advisory
// enqueues on parents' reply queues. It does not update last_activity.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	quiescence := time.NewTicker(quiescencePollInterval)
	defer quiescence.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		case <-quiescence.C:
			s.CheckQuiescence(ctx)
		}
	}
}

// CheckQuiescence captures every busy instance's pane and transitions it to
// idle once that pane has held identical content for quiescenceWindow.
// Exported so callers (and tests) can drive it without waiting on the
// ticker. A nil PaneReader makes this a no-op: there's nothing to diff.
func (s *Supervisor) CheckQuiescence(ctx context.Context) {
	if s.panes == nil {
		return
	}
	now := time.Now()
	for _, rec := range s.registry.All() {
		if rec.State != instance.StateBusy {
			s.mu.Lock()
			delete(s.panesSeen, rec.ID)
			s.mu.Unlock()
			continue
		}

		pane, err := s.panes.CapturePane(ctx, rec.ID)
		if err != nil {
			continue
		}

		s.mu.Lock()
		prev, seen := s.panesSeen[rec.ID]
		if !seen || prev.content != pane {
			s.panesSeen[rec.ID] = paneSnapshot{content: pane, changedAt: now}
			s.mu.Unlock()
			continue
		}
		quietFor := now.Sub(prev.changedAt)
		s.mu.Unlock()

		if quietFor < s.quiescenceWindow {
			continue
		}
		if _, err := s.registry.Transition(rec.ID, instance.StateIdle); err != nil {
			continue
		}
		s.mu.Lock()
		delete(s.panesSeen, rec.ID)
		s.mu.Unlock()
		s.publish(rec.ID, audit.ActionStateChange, map[string]interface{}{
			"from":   "busy",
			"to":     "idle",
			"reason": "quiescent",
		})
	}
}

// Tick runs one classification sweep. Exported so callers (and tests) can
// drive it without waiting on the ticker.
func (s *Supervisor) Tick(ctx context.Context) {
	for _, rec := range s.registry.All() {
		if rec.State == instance.StateTerminated || rec.State == instance.StateTerminating {
			continue
		}
		s.classify(ctx, rec)
	}
}

func (s *Supervisor) classify(ctx context.Context, rec instance.Record) {
	if s.isBlocked(ctx, rec) {
		s.notifyBlocked(rec)
		return
	}
	if s.isIdle(rec) {
		s.checkIn(rec)
	}
}

// isIdle reports whether rec has gone quiet: no activity within the idle
// threshold and no tool executions since the last sweep that observed it.
func (s *Supervisor) isIdle(rec instance.Record) bool {
	if rec.State != instance.StateIdle && rec.State != instance.StateReady && rec.State != instance.StateBusy {
		return false
	}
	if time.Since(rec.LastActivity) <= s.idleThreshold {
		return false
	}

	s.mu.Lock()
	prevTools, seen := s.lastTools[rec.ID]
	s.lastTools[rec.ID] = rec.Counters.ToolsExecuted
	s.mu.Unlock()

	return !seen || rec.Counters.ToolsExecuted == prevTools
}

// isBlocked reports whether rec is stuck: its own state already says error,
// its backing process has died, or its pane transcript carries a known
// error signature.
func (s *Supervisor) isBlocked(ctx context.Context, rec instance.Record) bool {
	if rec.State == instance.StateError {
		return true
	}
	if rec.PID != 0 && !processAlive(rec.PID) {
		return true
	}
	if s.panes == nil {
		return false
	}
	pane, err := s.panes.CapturePane(ctx, rec.ID)
	if err != nil {
		return false
	}
	for _, sig := range knownErrorSignatures {
		if sig.MatchString(pane) {
			return true
		}
	}
	return false
}

// checkIn enqueues a non-blocking, correlation-tagged nudge on rec's inbox.
// The supervisor never waits for a reply; a cooperative child may answer it
// through the normal reply_to_caller path on its own schedule.
func (s *Supervisor) checkIn(rec instance.Record) {
	correlationID := bus.NewCorrelationID()
	if err := s.bus.Enqueue(rec.ID, "are you still making progress?", correlationID); err != nil {
		log.Printf("supervisor: check-in enqueue failed for %s: %v", rec.ID, err)
		return
	}
	s.publish(rec.ID, audit.ActionTimeout, map[string]interface{}{
		"classification": "idle",
		"correlation_id": correlationID,
	})
}

// notifyBlocked pushes a supervisor-generated advisory onto rec's parent's
// reply_queue. Root instances have no parent to notify.
func (s *Supervisor) notifyBlocked(rec instance.Record) {
	if rec.ParentID == nil {
		return
	}
	msg := fmt.Sprintf("child %s (%s) looks blocked", rec.ID, rec.Name)
	if err := s.bus.NotifyAdvisory(*rec.ParentID, msg, ""); err != nil {
		log.Printf("supervisor: blocked advisory failed for %s: %v", rec.ID, err)
		return
	}
	s.publish(rec.ID, audit.ActionError, map[string]interface{}{
		"classification": "blocked",
		"parent_id":      *rec.ParentID,
	})
}

func (s *Supervisor) publish(instanceID, action string, meta map[string]interface{}) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Publish(context.Background(), audit.Record{
		Type:       "instance.supervisor",
		InstanceID: instanceID,
		Action:     action,
		Metadata:   meta,
	})
}

// processAlive reports whether pid still names a running OS process.
func processAlive(pid int) bool {
	proc, err := gops.FindProcess(pid)
	if err != nil {
		return true // lookup failure isn't evidence of death
	}
	return proc != nil
}
