// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package instance

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the process-wide, authoritative map from instance id to
// record. Structural edits (insert/delete) serialize on a single mutex;
// per-instance field mutations serialize on that instance's own mutex so a
// slow adapter call on one instance never blocks others.
type Registry struct {
	structMu sync.RWMutex
	records  map[string]*entry
	children map[string][]string // parent id -> child ids, insertion order
	rootID   string
	maxSize  int
}

type entry struct {
	mu     sync.Mutex
	record *Record
}

// New returns an empty registry. maxInstances <= 0 means unbounded.
func New(maxInstances int) *Registry {
	return &Registry{
		records:  make(map[string]*entry),
		children: make(map[string][]string),
		maxSize:  maxInstances,
	}
}

// NewInstanceID generates a fresh opaque instance identifier.
func NewInstanceID() string { return uuid.NewString() }

// Spec describes a to-be-created instance. ParentID nil is only legal when
// Name == RootName and no root yet exists.
type Spec struct {
	Name          string
	Role          Role
	Kind          Kind
	Model         string
	ParentID      *string
	TeamSessionID string
	WorkspacePath string
	EnableMadrox  bool
}

// Create inserts a new spawning-state record, enforcing the forest
// invariant (at most one root, every non-root parent must already exist)
// and workspace-path uniqueness.
func (r *Registry) Create(spec Spec) (*Record, error) {
	r.structMu.Lock()
	defer r.structMu.Unlock()

	if r.maxSize > 0 && len(r.records) >= r.maxSize {
		return nil, fmt.Errorf("max instance count (%d) reached", r.maxSize)
	}

	if spec.ParentID == nil {
		if spec.Name != RootName {
			return nil, fmt.Errorf("only %q may have a nil parent_id", RootName)
		}
		if r.rootID != "" {
			return nil, fmt.Errorf("root instance already exists")
		}
	} else {
		if _, ok := r.records[*spec.ParentID]; !ok {
			return nil, fmt.Errorf("parent instance %s does not exist", *spec.ParentID)
		}
	}

	for _, e := range r.records {
		if e.record.WorkspacePath == spec.WorkspacePath {
			return nil, fmt.Errorf("workspace_path %s already in use", spec.WorkspacePath)
		}
	}

	now := time.Now()
	rec := &Record{
		ID:            NewInstanceID(),
		Name:          spec.Name,
		Role:          spec.Role,
		Kind:          spec.Kind,
		Model:         spec.Model,
		ParentID:      spec.ParentID,
		TeamSessionID: spec.TeamSessionID,
		WorkspacePath: spec.WorkspacePath,
		State:         StateSpawning,
		CreatedAt:     now,
		LastActivity:  now,
		EnableMadrox:  spec.EnableMadrox,
		Inbox:         NewQueue(DefaultQueueCapacity),
		ReplyQueue:    NewQueue(DefaultQueueCapacity),
	}

	r.records[rec.ID] = &entry{record: rec}
	if spec.ParentID == nil {
		r.rootID = rec.ID
	} else {
		r.children[*spec.ParentID] = append(r.children[*spec.ParentID], rec.ID)
	}
	return rec, nil
}

// Get returns a value snapshot of the instance, or false if unknown.
func (r *Registry) Get(id string) (Record, bool) {
	r.structMu.RLock()
	e, ok := r.records[id]
	r.structMu.RUnlock()
	if !ok {
		return Record{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record.snapshot(), true
}

// RootID returns the id of the root instance, or "" if none has spawned yet.
func (r *Registry) RootID() string {
	r.structMu.RLock()
	defer r.structMu.RUnlock()
	return r.rootID
}

// Exists reports whether id names a known instance (live or terminated).
func (r *Registry) Exists(id string) bool {
	r.structMu.RLock()
	defer r.structMu.RUnlock()
	_, ok := r.records[id]
	return ok
}

// Children returns the direct child ids of parentID, in spawn order.
func (r *Registry) Children(parentID string) []string {
	r.structMu.RLock()
	defer r.structMu.RUnlock()
	ids := r.children[parentID]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// All returns a snapshot of every known instance.
func (r *Registry) All() []Record {
	r.structMu.RLock()
	entries := make([]*entry, 0, len(r.records))
	for _, e := range r.records {
		entries = append(entries, e)
	}
	r.structMu.RUnlock()

	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.record.snapshot())
		e.mu.Unlock()
	}
	return out
}

// mutate applies fn to the live record under its per-instance lock. Returns
// false if id is unknown.
func (r *Registry) mutate(id string, fn func(rec *Record)) bool {
	r.structMu.RLock()
	e, ok := r.records[id]
	r.structMu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	fn(e.record)
	e.mu.Unlock()
	return true
}

// Transition moves id from its current state to to, rejecting illegal
// edges. Returns the prior state on success.
func (r *Registry) Transition(id string, to State) (State, error) {
	var prev State
	var transErr error
	ok := r.mutate(id, func(rec *Record) {
		prev = rec.State
		if !CanTransition(rec.State, to) {
			transErr = &ErrInvalidTransition{From: rec.State, To: to}
			return
		}
		rec.State = to
		if to == StateTerminated {
			now := time.Now()
			rec.TerminatedAt = &now
		}
	})
	if !ok {
		return "", fmt.Errorf("instance %s not found", id)
	}
	return prev, transErr
}

// TouchActivity records now as the instance's last_activity.
func (r *Registry) TouchActivity(id string) {
	r.mutate(id, func(rec *Record) {
		rec.LastActivity = time.Now()
	})
}

// SetLastActivity overrides id's last_activity timestamp directly, bypassing
// the now() default TouchActivity uses.
func (r *Registry) SetLastActivity(id string, when time.Time) {
	r.mutate(id, func(rec *Record) {
		rec.LastActivity = when
	})
}

// SetSessionHandle records the adapter's session handle for id.
func (r *Registry) SetSessionHandle(id, handle string) {
	r.mutate(id, func(rec *Record) { rec.SessionHandle = handle })
}

// SetPID records the OS process id backing id's session, used by the
// supervisor's liveness check.
func (r *Registry) SetPID(id string, pid int) {
	r.mutate(id, func(rec *Record) { rec.PID = pid })
}

// IncrementCounters adds the given deltas to id's usage counters.
func (r *Registry) IncrementCounters(id string, requests, tools int, tokens int64, cost float64) {
	r.mutate(id, func(rec *Record) {
		rec.Counters.RequestCount += requests
		rec.Counters.ToolsExecuted += tools
		rec.Counters.TokensUsed += tokens
		rec.Counters.Cost += cost
	})
}

// InboxOf returns the bounded inbox queue for id, or nil if unknown.
func (r *Registry) InboxOf(id string) *Queue {
	r.structMu.RLock()
	defer r.structMu.RUnlock()
	e, ok := r.records[id]
	if !ok {
		return nil
	}
	return e.record.Inbox
}

// ReplyQueueOf returns the bounded reply_queue for id, or nil if unknown.
func (r *Registry) ReplyQueueOf(id string) *Queue {
	r.structMu.RLock()
	defer r.structMu.RUnlock()
	e, ok := r.records[id]
	if !ok {
		return nil
	}
	return e.record.ReplyQueue
}
