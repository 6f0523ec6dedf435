// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package apierr defines the tool-facing error taxonomy and its JSON shape.
package apierr

import "encoding/json"

// Kind is one of the stable error kinds surfaced to MCP tool callers.
type Kind string

const (
	KindParentRequired     Kind = "PARENT_REQUIRED"
	KindInvalidInstanceID  Kind = "INVALID_INSTANCE_ID"
	KindDeprecated         Kind = "DEPRECATED"
	KindEmptyTeamID        Kind = "EMPTY_TEAM_ID"
	KindNoMembers          Kind = "NO_MEMBERS"
	KindSessionGone        Kind = "SESSION_GONE"
	KindTimeout            Kind = "TIMEOUT"
	KindQueueOverflow      Kind = "QUEUE_OVERFLOW"
	KindIO                 Kind = "IO"
	KindInternal           Kind = "INTERNAL"
)

// Response is the fixed error shape returned to every tool caller:
// {status:"error", error:<kind>, message:<human>}.
type Response struct {
	Status  string `json:"status"`
	Error   Kind   `json:"error"`
	Message string `json:"message"`
}

// New builds an error Response.
func New(kind Kind, message string) Response {
	return Response{Status: "error", Error: kind, Message: message}
}

// Err wraps kind/message as a Go error carrying the Response, so tool
// handlers can both `return err` and marshal it as the wire shape.
type Err struct {
	Response
}

func (e *Err) Error() string { return string(e.Kind()) + ": " + e.Message }

// Kind returns the wrapped error kind.
func (e *Err) Kind() Kind { return e.Response.Error }

// Newf constructs an *Err.
func Newf(kind Kind, message string) *Err {
	return &Err{Response: New(kind, message)}
}

// MarshalJSON keeps the wire shape stable when an *Err is serialized.
func (e *Err) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Response)
}
