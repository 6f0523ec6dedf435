// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package mcp exposes the managed-instance tool surface: a transport-agnostic
// Dispatcher implementing every named operation, plus the mark3labs/mcp-go
// tool registration that makes it reachable over STDIO and HTTP.
package mcp

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"madrox/internal/apierr"
	"madrox/internal/artifacts"
	"madrox/internal/audit"
	"madrox/internal/bus"
	"madrox/internal/instance"
	"madrox/internal/orchestrator"
)

var teamIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Dispatcher implements the full tool surface against a live registry, bus,
// orchestrator, and artifact collector. Both transports in internal/transport
// share one Dispatcher instance.
type Dispatcher struct {
	registry  *instance.Registry
	bus       *bus.Bus
	orch      *orchestrator.Orchestrator
	artifacts *artifacts.Collector
	audit     *audit.Bus
}

// New builds a Dispatcher. auditBus may be nil (audit events are then dropped).
func New(registry *instance.Registry, b *bus.Bus, orch *orchestrator.Orchestrator, collector *artifacts.Collector, auditBus *audit.Bus) *Dispatcher {
	return &Dispatcher{registry: registry, bus: b, orch: orch, artifacts: collector, audit: auditBus}
}

func (d *Dispatcher) publish(instanceID, action string, meta map[string]interface{}) {
	if d.audit == nil {
		return
	}
	_ = d.audit.Publish(context.Background(), audit.Record{
		Type:       "instance.dispatcher",
		InstanceID: instanceID,
		Action:     action,
		Metadata:   meta,
	})
}

// SpawnArgs describes one spawn_claude/spawn_codex/spawn_multiple_instances
// request.
type SpawnArgs struct {
	Name             string
	Role             instance.Role
	Model            string
	ParentInstanceID *string
	TeamSessionID    string
	EnableMadrox     bool
}

func (d *Dispatcher) validateSpawnArgs(args SpawnArgs) *apierr.Err {
	if args.Name == "" {
		return apierr.Newf(apierr.KindInternal, "name is required")
	}
	if args.Role != "" && !instance.ValidRoles[args.Role] {
		return apierr.Newf(apierr.KindInternal, fmt.Sprintf("unknown role %q", args.Role))
	}
	if args.ParentInstanceID != nil && !d.registry.Exists(*args.ParentInstanceID) {
		return apierr.Newf(apierr.KindInvalidInstanceID, fmt.Sprintf("parent_instance_id %q does not exist", *args.ParentInstanceID))
	}
	return nil
}

// resolveParent implements §4.7's four-step parent auto-detection. It never
// substitutes the root silently: a miss is always PARENT_REQUIRED unless name
// is the one root name permitted a nil parent.
func (d *Dispatcher) resolveParent(explicit *string, name string) (*string, *apierr.Err) {
	if explicit != nil {
		return explicit, nil
	}
	if caller, ok := d.detectCaller(); ok {
		return &caller, nil
	}
	if name == instance.RootName {
		return nil, nil
	}
	return nil, apierr.Newf(apierr.KindParentRequired, "no parent_instance_id given and no calling instance could be identified")
}

// detectCaller applies the busy/most-recent-activity heuristic both
// transports share: the most recently active instance currently in the busy
// state, tie-broken by last_activity. Neither STDIO nor HTTP can otherwise
// prove which instance issued a call.
func (d *Dispatcher) detectCaller() (string, bool) {
	var best instance.Record
	found := false
	for _, rec := range d.registry.All() {
		if rec.State != instance.StateBusy {
			continue
		}
		if !found || rec.LastActivity.After(best.LastActivity) {
			best = rec
			found = true
		}
	}
	if !found {
		return "", false
	}
	return best.ID, true
}

// detectCallerOr applies the same busy/most-recent-activity heuristic as
// resolveParent, falling back to fallback when no instance currently looks
// like the caller. Used by send_to_instance (fallback "", an anonymous
// sender) and reply_to_caller (fallback the instance id the request named,
// so the identity check in bus.ReplyToCaller still runs against something).
func (d *Dispatcher) detectCallerOr(fallback string) string {
	if caller, ok := d.detectCaller(); ok {
		return caller
	}
	return fallback
}

func (d *Dispatcher) spawn(ctx context.Context, kind instance.Kind, args SpawnArgs) (*instance.Record, *apierr.Err) {
	if err := d.validateSpawnArgs(args); err != nil {
		return nil, err
	}
	parentID, perr := d.resolveParent(args.ParentInstanceID, args.Name)
	if perr != nil {
		return nil, perr
	}
	role := args.Role
	if role == "" {
		role = instance.RoleGeneral
	}

	rec, err := d.orch.Spawn(ctx, orchestrator.SpawnSpec{
		Name: args.Name, Role: role, Kind: kind, Model: args.Model,
		ParentID: parentID, TeamSessionID: args.TeamSessionID, EnableMadrox: args.EnableMadrox,
	})
	if err != nil {
		return nil, apierr.Newf(apierr.KindInternal, err.Error())
	}
	d.publish(rec.ID, audit.ActionInstanceSpawn, map[string]interface{}{"name": rec.Name, "kind": string(rec.Kind)})
	return rec, nil
}

// SpawnClaude creates a new claude-backed instance.
func (d *Dispatcher) SpawnClaude(ctx context.Context, args SpawnArgs) (*instance.Record, *apierr.Err) {
	return d.spawn(ctx, instance.KindClaude, args)
}

// SpawnCodex creates a new codex-backed instance.
func (d *Dispatcher) SpawnCodex(ctx context.Context, args SpawnArgs) (*instance.Record, *apierr.Err) {
	return d.spawn(ctx, instance.KindCodex, args)
}

// SpawnResult is one member of a spawn_multiple_instances response.
type SpawnResult struct {
	Name      string           `json:"name"`
	Record    *instance.Record `json:"record,omitempty"`
	Error     string           `json:"error,omitempty"`
	ErrorKind apierr.Kind      `json:"error_kind,omitempty"`
}

// SpawnMultipleInstances batch-spawns args, resolving the parent once (via
// the same auto-detection rule) and applying it to every item that doesn't
// supply its own parent_instance_id. One item's failure does not abort the
// rest.
func (d *Dispatcher) SpawnMultipleInstances(ctx context.Context, kind instance.Kind, items []SpawnArgs) ([]SpawnResult, *apierr.Err) {
	if len(items) == 0 {
		return nil, apierr.Newf(apierr.KindInternal, "no instances requested")
	}

	var sharedParent *string
	if items[0].ParentInstanceID == nil {
		if caller, ok := d.detectCaller(); ok {
			sharedParent = &caller
		}
	}

	results := make([]SpawnResult, 0, len(items))
	for _, item := range items {
		if item.ParentInstanceID == nil {
			item.ParentInstanceID = sharedParent
		}
		rec, err := d.spawn(ctx, kind, item)
		if err != nil {
			results = append(results, SpawnResult{Name: item.Name, Error: err.Message, ErrorKind: err.Kind()})
			continue
		}
		results = append(results, SpawnResult{Name: item.Name, Record: rec})
	}
	return results, nil
}

// SendToInstance injects message into instanceID's pane, optionally blocking
// for a correlated reply.
func (d *Dispatcher) SendToInstance(ctx context.Context, senderID, instanceID, message string, waitForResponse bool, correlationID string, timeout time.Duration) (*instance.Message, *apierr.Err) {
	if !d.registry.Exists(instanceID) {
		return nil, apierr.Newf(apierr.KindInvalidInstanceID, fmt.Sprintf("unknown instance %s", instanceID))
	}
	if correlationID == "" && waitForResponse {
		correlationID = bus.NewCorrelationID()
	}
	reply, err := d.bus.Send(ctx, senderID, instanceID, message, waitForResponse, correlationID, timeout)
	if err != nil {
		if err == bus.ErrTimeout {
			return nil, apierr.Newf(apierr.KindTimeout, err.Error())
		}
		return nil, apierr.Newf(apierr.KindInternal, err.Error())
	}
	d.publish(instanceID, audit.ActionMessageSent, map[string]interface{}{"correlation_id": correlationID})
	return reply, nil
}

// ReplyToCaller enqueues replyMessage on asInstanceID's reply_queue.
// callerInstanceID must equal asInstanceID.
func (d *Dispatcher) ReplyToCaller(callerInstanceID, asInstanceID, replyMessage, correlationID string) *apierr.Err {
	if err := d.bus.ReplyToCaller(callerInstanceID, asInstanceID, replyMessage, correlationID); err != nil {
		return apierr.Newf(apierr.KindInvalidInstanceID, err.Error())
	}
	d.publish(asInstanceID, audit.ActionMessageReceived, map[string]interface{}{"correlation_id": correlationID})
	return nil
}

// GetPendingReplies drains instanceID's reply_queue.
func (d *Dispatcher) GetPendingReplies(instanceID string) ([]instance.Message, *apierr.Err) {
	replies, err := d.bus.GetPendingReplies(instanceID)
	if err != nil {
		return nil, apierr.Newf(apierr.KindInvalidInstanceID, err.Error())
	}
	return replies, nil
}

// BroadcastToChildren fans message out to every live direct child of
// parentID.
func (d *Dispatcher) BroadcastToChildren(ctx context.Context, parentID, message string) (map[string]bus.BroadcastResult, *apierr.Err) {
	results, err := d.bus.BroadcastToChildren(ctx, parentID, message)
	if err != nil {
		return nil, apierr.Newf(apierr.KindInvalidInstanceID, err.Error())
	}
	return results, nil
}

// CoordinationStep is one step of a coordinate_instances script.
type CoordinationStep struct {
	InstanceIDs []string
	Message     string
	Sequential  bool // within this step: true = send to each instance in turn, waiting for its reply when CorrelationID is set; false = fan out concurrently
	CorrelationID string
	Timeout     time.Duration
}

// CoordinationStepResult is the per-instance outcome of one step.
type CoordinationStepResult struct {
	InstanceID string `json:"instance_id"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
}

// CoordinateInstances runs a scripted sequence of steps, each fanning a
// message out to a set of instances either sequentially or in parallel.
// Steps themselves always run in the order given.
func (d *Dispatcher) CoordinateInstances(ctx context.Context, steps []CoordinationStep) ([][]CoordinationStepResult, *apierr.Err) {
	out := make([][]CoordinationStepResult, 0, len(steps))
	for _, step := range steps {
		if step.Sequential {
			out = append(out, d.runSequentialStep(ctx, step))
		} else {
			out = append(out, d.runParallelStep(ctx, step))
		}
	}
	return out, nil
}

func (d *Dispatcher) runSequentialStep(ctx context.Context, step CoordinationStep) []CoordinationStepResult {
	results := make([]CoordinationStepResult, 0, len(step.InstanceIDs))
	for _, id := range step.InstanceIDs {
		_, err := d.bus.Send(ctx, "coordinator", id, step.Message, step.CorrelationID != "", step.CorrelationID, step.Timeout)
		results = append(results, stepResult(id, err))
	}
	return results
}

func (d *Dispatcher) runParallelStep(ctx context.Context, step CoordinationStep) []CoordinationStepResult {
	type indexed struct {
		idx int
		res CoordinationStepResult
	}
	ch := make(chan indexed, len(step.InstanceIDs))
	for i, id := range step.InstanceIDs {
		go func(i int, id string) {
			_, err := d.bus.Send(ctx, "coordinator", id, step.Message, step.CorrelationID != "", step.CorrelationID, step.Timeout)
			ch <- indexed{i, stepResult(id, err)}
		}(i, id)
	}
	results := make([]CoordinationStepResult, len(step.InstanceIDs))
	for range step.InstanceIDs {
		r := <-ch
		results[r.idx] = r.res
	}
	return results
}

func stepResult(id string, err error) CoordinationStepResult {
	if err != nil {
		return CoordinationStepResult{InstanceID: id, OK: false, Error: err.Error()}
	}
	return CoordinationStepResult{InstanceID: id, OK: true}
}

// GetInstanceStatus returns a registry snapshot for instanceID.
func (d *Dispatcher) GetInstanceStatus(instanceID string) (*instance.Record, *apierr.Err) {
	rec, ok := d.registry.Get(instanceID)
	if !ok {
		return nil, apierr.Newf(apierr.KindInvalidInstanceID, fmt.Sprintf("unknown instance %s", instanceID))
	}
	return &rec, nil
}

// LiveStatus pairs a registry snapshot with a fresh pane capture.
type LiveStatus struct {
	Record instance.Record `json:"record"`
	Pane   string          `json:"pane"`
}

// GetLiveInstanceStatus returns a registry snapshot plus a fresh pane
// capture, re-reading the terminal rather than relying on cached state.
func (d *Dispatcher) GetLiveInstanceStatus(ctx context.Context, instanceID string) (*LiveStatus, *apierr.Err) {
	rec, ok := d.registry.Get(instanceID)
	if !ok {
		return nil, apierr.Newf(apierr.KindInvalidInstanceID, fmt.Sprintf("unknown instance %s", instanceID))
	}
	pane, err := d.orch.CapturePane(ctx, instanceID)
	if err != nil {
		return nil, apierr.Newf(apierr.KindSessionGone, err.Error())
	}
	return &LiveStatus{Record: rec, Pane: pane}, nil
}

// GetInstanceTree returns the full instance forest.
func (d *Dispatcher) GetInstanceTree() *orchestrator.TreeNode {
	return d.orch.Tree()
}

// GetTmuxPaneContent returns instanceID's raw pane transcript.
func (d *Dispatcher) GetTmuxPaneContent(ctx context.Context, instanceID string) (string, *apierr.Err) {
	if !d.registry.Exists(instanceID) {
		return "", apierr.Newf(apierr.KindInvalidInstanceID, fmt.Sprintf("unknown instance %s", instanceID))
	}
	pane, err := d.orch.CapturePane(ctx, instanceID)
	if err != nil {
		return "", apierr.Newf(apierr.KindSessionGone, err.Error())
	}
	return pane, nil
}

// InterruptInstance delivers an interrupt keystroke. Fire and forget.
func (d *Dispatcher) InterruptInstance(ctx context.Context, instanceID string) *apierr.Err {
	if err := d.bus.InterruptInstance(ctx, instanceID); err != nil {
		return apierr.Newf(apierr.KindInvalidInstanceID, err.Error())
	}
	return nil
}

// TerminateInstance kills instanceID's session. Idempotent: terminating an
// already-terminated instance succeeds without side effects.
func (d *Dispatcher) TerminateInstance(ctx context.Context, instanceID string) *apierr.Err {
	rec, ok := d.registry.Get(instanceID)
	if !ok {
		return apierr.Newf(apierr.KindInvalidInstanceID, fmt.Sprintf("unknown instance %s", instanceID))
	}
	if rec.State == instance.StateTerminated {
		return nil
	}
	if err := d.orch.Terminate(ctx, instanceID); err != nil {
		return apierr.Newf(apierr.KindInternal, err.Error())
	}
	d.publish(instanceID, audit.ActionInstanceTerminate, nil)
	return nil
}

// ListInstanceFiles lists rel inside instanceID's workspace.
func (d *Dispatcher) ListInstanceFiles(instanceID, rel string) ([]string, *apierr.Err) {
	names, err := d.orch.ListFiles(instanceID, rel)
	if err != nil {
		return nil, apierr.Newf(apierr.KindIO, err.Error())
	}
	return names, nil
}

// RetrieveInstanceFile reads rel inside instanceID's workspace.
func (d *Dispatcher) RetrieveInstanceFile(instanceID, rel string) ([]byte, *apierr.Err) {
	data, err := d.orch.RetrieveFile(instanceID, rel)
	if err != nil {
		return nil, apierr.Newf(apierr.KindIO, err.Error())
	}
	return data, nil
}

// CollectTeamArtifacts snapshots every instance tagged teamSessionID.
func (d *Dispatcher) CollectTeamArtifacts(ctx context.Context, teamSessionID string) (*artifacts.Result, *apierr.Err) {
	if teamSessionID != "" && !teamIDPattern.MatchString(teamSessionID) {
		return nil, apierr.Newf(apierr.KindEmptyTeamID, "team_session_id must match [A-Za-z0-9_-]+")
	}
	result, err := d.artifacts.CollectTeamArtifacts(ctx, teamSessionID)
	if err != nil {
		if aerr, ok := err.(*apierr.Err); ok {
			return nil, aerr
		}
		return nil, apierr.Newf(apierr.KindInternal, err.Error())
	}
	return result, nil
}

// GetMainInstanceID is deprecated: it never spawns anything, only errors.
func (d *Dispatcher) GetMainInstanceID() *apierr.Err {
	return apierr.Newf(apierr.KindDeprecated, "get_main_instance_id is deprecated; use your own instance id")
}
