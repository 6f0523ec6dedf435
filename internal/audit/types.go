// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package audit provides the two categorical logging streams: system
// (free-text diagnostics) and audit (typed, structured event records).
// Each stream is a singleton in-memory pub/sub bus broadcasting live to
// WebSocket subscribers. A bus also appends every record to an append-only,
// daily-rotated file when its BusConfig.Writer is set; without one, records
// are kept only in the bus's bounded in-memory history.
package audit

import (
	"context"
	"time"
)

// Record is an immutable audit event.
type Record struct {
	ID         string                 `json:"id"`
	Version    string                 `json:"version"`
	Type       string                 `json:"type"`
	Timestamp  time.Time              `json:"timestamp"`
	InstanceID string                 `json:"instance_id,omitempty"`
	Action     string                 `json:"action"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// SystemLogEntry is a free-text diagnostic record.
type SystemLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Module    string    `json:"module"`
	Line      string    `json:"line"`
	Message   string    `json:"message"`
}

// Handler processes received audit records.
type Handler func(ctx context.Context, rec Record) error

// SubscriptionID uniquely identifies a subscription.
type SubscriptionID string

// Filter queries audit history.
type Filter struct {
	Types      []string
	InstanceID string
	Since      time.Time
	Until      time.Time
	Limit      int
}

// Typed audit event actions (§4.9).
const (
	ActionInstanceSpawn    = "instance_spawn"
	ActionInstanceTerminate = "instance_terminate"
	ActionMessageSent      = "message_sent"
	ActionMessageReceived  = "message_received"
	ActionStateChange      = "state_change"
	ActionError            = "error"
	ActionTimeout          = "timeout"
	ActionQueueOverflow    = "queue_overflow"
)
