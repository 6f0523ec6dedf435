// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package instance holds the authoritative registry of managed
// AI-assistant processes: their identity, hierarchy, and state machine.
package instance

import "time"

// State is a node in the instance lifecycle state machine.
type State string

const (
	StateSpawning     State = "spawning"
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateBusy         State = "busy"
	StateIdle         State = "idle"
	StateTerminating  State = "terminating"
	StateTerminated   State = "terminated"
	StateError        State = "error"
)

// Kind selects the launch command and paste semantics for an instance.
type Kind string

const (
	KindClaude Kind = "claude"
	KindCodex  Kind = "codex"
)

// Role tags an instance's function within a team. The set is fixed so
// tool callers can't invent ad-hoc roles.
type Role string

const (
	RoleGeneral            Role = "general"
	RoleArchitect          Role = "architect"
	RoleFrontendDeveloper  Role = "frontend_developer"
	RoleBackendDeveloper   Role = "backend_developer"
	RoleDataScientist      Role = "data_scientist"
	RoleDevOpsEngineer     Role = "devops_engineer"
	RoleDesigner           Role = "designer"
	RoleQAEngineer         Role = "qa_engineer"
	RoleSecurityAnalyst    Role = "security_analyst"
	RoleTechnicalWriter    Role = "technical_writer"
	RoleProjectManager     Role = "project_manager"
)

// ValidRoles is the fixed set tool arguments are validated against.
var ValidRoles = map[Role]bool{
	RoleGeneral:           true,
	RoleArchitect:         true,
	RoleFrontendDeveloper: true,
	RoleBackendDeveloper:  true,
	RoleDataScientist:     true,
	RoleDevOpsEngineer:    true,
	RoleDesigner:          true,
	RoleQAEngineer:        true,
	RoleSecurityAnalyst:   true,
	RoleTechnicalWriter:   true,
	RoleProjectManager:    true,
}

// RootName is the one instance name permitted a nil parent_id.
const RootName = "main-orchestrator"

// MessageKind discriminates a Message envelope's role on the bus.
type MessageKind string

const (
	MessageRequest   MessageKind = "request"
	MessageReply     MessageKind = "reply"
	MessageBroadcast MessageKind = "broadcast"
)

// Message is the bidirectional IPC envelope. CorrelationID is chosen by the
// sender and is never valid as an instance id.
type Message struct {
	CorrelationID string      `json:"correlation_id"`
	SenderID      string      `json:"sender_id"`
	RecipientID   string      `json:"recipient_id"`
	Payload       string      `json:"payload"`
	CreatedAt     time.Time   `json:"created_at"`
	Kind          MessageKind `json:"kind"`
}

// Counters tracks per-instance usage totals.
type Counters struct {
	RequestCount  int     `json:"request_count"`
	TokensUsed    int64   `json:"tokens_used"`
	Cost          float64 `json:"cost"`
	ToolsExecuted int     `json:"tools_executed"`
}

// Record is one managed instance. Fields other than the bounded queues are
// immutable after creation except under the owning Registry's locks.
type Record struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Role          Role       `json:"role"`
	Kind          Kind       `json:"kind"`
	Model         string     `json:"model,omitempty"`
	ParentID      *string    `json:"parent_id,omitempty"`
	TeamSessionID string     `json:"team_session_id,omitempty"`
	SessionHandle string     `json:"session_handle"`
	WorkspacePath string     `json:"workspace_path"`
	State         State      `json:"state"`
	CreatedAt     time.Time  `json:"created_at"`
	LastActivity  time.Time  `json:"last_activity"`
	TerminatedAt  *time.Time `json:"terminated_at,omitempty"`
	Counters      Counters   `json:"counters"`
	EnableMadrox  bool       `json:"enable_madrox"`
	PID           int        `json:"pid,omitempty"`

	Inbox      *Queue `json:"-"`
	ReplyQueue *Queue `json:"-"`
}

// snapshot returns a value copy of r with queues stripped, safe to hand to
// callers without exposing mutable state or the owning mutex.
func (r *Record) snapshot() Record {
	cp := *r
	cp.Inbox = nil
	cp.ReplyQueue = nil
	if r.ParentID != nil {
		id := *r.ParentID
		cp.ParentID = &id
	}
	if r.TerminatedAt != nil {
		t := *r.TerminatedAt
		cp.TerminatedAt = &t
	}
	return cp
}
