// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"madrox/internal/apierr"
	"madrox/internal/instance"
)

// NewServer builds the mcp-go MCPServer exposing every tool d implements.
// Both the STDIO and HTTP transports in internal/transport mount this same
// server, guaranteeing identical behavior for identical arguments.
func NewServer(d *Dispatcher) *server.MCPServer {
	s := server.NewMCPServer(
		"madrox",
		"1.0.0",
		server.WithInstructions("Spawn and coordinate hierarchical teams of terminal-attached AI assistant processes."),
		server.WithResourceCapabilities(false, false),
	)

	s.AddTool(mcp.NewTool("spawn_claude",
		mcp.WithDescription("Spawn a new claude-backed instance."),
		mcp.WithString("name", mcp.Required(), mcp.Description("instance name")),
		mcp.WithString("role", mcp.Description("instance role, default general")),
		mcp.WithString("model", mcp.Description("model override")),
		mcp.WithString("parent_instance_id", mcp.Description("explicit parent; auto-detected when omitted")),
		mcp.WithString("team_session_id", mcp.Description("team grouping for artifact collection")),
		mcp.WithBoolean("enable_madrox", mcp.Description("grant this instance its own orchestration tools")),
	), toolHandler(func(ctx context.Context, req mcp.CallToolRequest) (interface{}, *apierr.Err) {
		args := spawnArgsFromRequest(req)
		return d.SpawnClaude(ctx, args)
	}))

	s.AddTool(mcp.NewTool("spawn_codex",
		mcp.WithDescription("Spawn a new codex-backed instance."),
		mcp.WithString("name", mcp.Required(), mcp.Description("instance name")),
		mcp.WithString("role", mcp.Description("instance role, default general")),
		mcp.WithString("model", mcp.Description("model override")),
		mcp.WithString("parent_instance_id", mcp.Description("explicit parent; auto-detected when omitted")),
		mcp.WithString("team_session_id", mcp.Description("team grouping for artifact collection")),
		mcp.WithBoolean("enable_madrox", mcp.Description("grant this instance its own orchestration tools")),
	), toolHandler(func(ctx context.Context, req mcp.CallToolRequest) (interface{}, *apierr.Err) {
		args := spawnArgsFromRequest(req)
		return d.SpawnCodex(ctx, args)
	}))

	s.AddTool(mcp.NewTool("spawn_multiple_instances",
		mcp.WithDescription("Batch-spawn several instances of one kind, sharing an auto-detected parent unless overridden per item."),
		mcp.WithString("kind", mcp.Required(), mcp.Description("claude or codex")),
		mcp.WithArray("instances", mcp.Required(), mcp.Description("array of {name, role, model, parent_instance_id, team_session_id}")),
	), toolHandler(func(ctx context.Context, req mcp.CallToolRequest) (interface{}, *apierr.Err) {
		kind := instance.Kind(req.GetString("kind", string(instance.KindClaude)))
		items, err := spawnArgsListFromRequest(req)
		if err != nil {
			return nil, err
		}
		return d.SpawnMultipleInstances(ctx, kind, items)
	}))

	s.AddTool(mcp.NewTool("send_to_instance",
		mcp.WithDescription("Enqueue a prompt on an instance's pane, optionally waiting for a correlated reply."),
		mcp.WithString("instance_id", mcp.Required()),
		mcp.WithString("message", mcp.Required()),
		mcp.WithBoolean("wait_for_response"),
		mcp.WithString("correlation_id"),
		mcp.WithNumber("timeout_seconds"),
	), toolHandler(func(ctx context.Context, req mcp.CallToolRequest) (interface{}, *apierr.Err) {
		instanceID, err := req.RequireString("instance_id")
		if err != nil {
			return nil, apierr.Newf(apierr.KindInvalidInstanceID, err.Error())
		}
		message, err := req.RequireString("message")
		if err != nil {
			return nil, apierr.Newf(apierr.KindInternal, err.Error())
		}
		wait := req.GetBool("wait_for_response", false)
		correlationID := req.GetString("correlation_id", "")
		timeoutSec := req.GetFloat("timeout_seconds", 30)
		senderID := d.detectCallerOr("")
		return d.SendToInstance(ctx, senderID, instanceID, message, wait, correlationID, time.Duration(timeoutSec*float64(time.Second)))
	}))

	s.AddTool(mcp.NewTool("reply_to_caller",
		mcp.WithDescription("Enqueue a reply as the calling instance's own id."),
		mcp.WithString("instance_id", mcp.Required(), mcp.Description("must equal the caller's own id")),
		mcp.WithString("reply_message", mcp.Required()),
		mcp.WithString("correlation_id", mcp.Required()),
	), toolHandler(func(ctx context.Context, req mcp.CallToolRequest) (interface{}, *apierr.Err) {
		instanceID, err := req.RequireString("instance_id")
		if err != nil {
			return nil, apierr.Newf(apierr.KindInvalidInstanceID, err.Error())
		}
		replyMessage, err := req.RequireString("reply_message")
		if err != nil {
			return nil, apierr.Newf(apierr.KindInternal, err.Error())
		}
		correlationID, err := req.RequireString("correlation_id")
		if err != nil {
			return nil, apierr.Newf(apierr.KindInternal, err.Error())
		}
		caller := d.detectCallerOr(instanceID)
		if aerr := d.ReplyToCaller(caller, instanceID, replyMessage, correlationID); aerr != nil {
			return nil, aerr
		}
		return map[string]string{"status": "ok"}, nil
	}))

	s.AddTool(mcp.NewTool("get_pending_replies",
		mcp.WithDescription("Drain an instance's reply queue."),
		mcp.WithString("instance_id", mcp.Required()),
	), toolHandler(func(ctx context.Context, req mcp.CallToolRequest) (interface{}, *apierr.Err) {
		instanceID, err := req.RequireString("instance_id")
		if err != nil {
			return nil, apierr.Newf(apierr.KindInvalidInstanceID, err.Error())
		}
		return d.GetPendingReplies(instanceID)
	}))

	s.AddTool(mcp.NewTool("broadcast_to_children",
		mcp.WithDescription("Fan a message out to every live direct child."),
		mcp.WithString("parent_id", mcp.Required()),
		mcp.WithString("message", mcp.Required()),
	), toolHandler(func(ctx context.Context, req mcp.CallToolRequest) (interface{}, *apierr.Err) {
		parentID, err := req.RequireString("parent_id")
		if err != nil {
			return nil, apierr.Newf(apierr.KindInvalidInstanceID, err.Error())
		}
		message, err := req.RequireString("message")
		if err != nil {
			return nil, apierr.Newf(apierr.KindInternal, err.Error())
		}
		return d.BroadcastToChildren(ctx, parentID, message)
	}))

	s.AddTool(mcp.NewTool("coordinate_instances",
		mcp.WithDescription("Run a scripted sequence of parallel/sequential fan-out steps."),
		mcp.WithArray("steps", mcp.Required(), mcp.Description("array of {instance_ids, message, sequential, correlation_id, timeout_seconds}")),
	), toolHandler(func(ctx context.Context, req mcp.CallToolRequest) (interface{}, *apierr.Err) {
		steps, aerr := coordinationStepsFromRequest(req)
		if aerr != nil {
			return nil, aerr
		}
		return d.CoordinateInstances(ctx, steps)
	}))

	s.AddTool(mcp.NewTool("get_instance_status",
		mcp.WithDescription("Read a registry snapshot for an instance."),
		mcp.WithString("instance_id", mcp.Required()),
	), toolHandler(func(ctx context.Context, req mcp.CallToolRequest) (interface{}, *apierr.Err) {
		instanceID, err := req.RequireString("instance_id")
		if err != nil {
			return nil, apierr.Newf(apierr.KindInvalidInstanceID, err.Error())
		}
		return d.GetInstanceStatus(instanceID)
	}))

	s.AddTool(mcp.NewTool("get_live_instance_status",
		mcp.WithDescription("Read a registry snapshot plus a fresh pane capture."),
		mcp.WithString("instance_id", mcp.Required()),
	), toolHandler(func(ctx context.Context, req mcp.CallToolRequest) (interface{}, *apierr.Err) {
		instanceID, err := req.RequireString("instance_id")
		if err != nil {
			return nil, apierr.Newf(apierr.KindInvalidInstanceID, err.Error())
		}
		return d.GetLiveInstanceStatus(ctx, instanceID)
	}))

	s.AddTool(mcp.NewTool("get_instance_tree",
		mcp.WithDescription("Return the full instance forest."),
	), toolHandler(func(ctx context.Context, req mcp.CallToolRequest) (interface{}, *apierr.Err) {
		return d.GetInstanceTree(), nil
	}))

	s.AddTool(mcp.NewTool("get_tmux_pane_content",
		mcp.WithDescription("Capture an instance's raw pane transcript."),
		mcp.WithString("instance_id", mcp.Required()),
	), toolHandler(func(ctx context.Context, req mcp.CallToolRequest) (interface{}, *apierr.Err) {
		instanceID, err := req.RequireString("instance_id")
		if err != nil {
			return nil, apierr.Newf(apierr.KindInvalidInstanceID, err.Error())
		}
		return d.GetTmuxPaneContent(ctx, instanceID)
	}))

	s.AddTool(mcp.NewTool("interrupt_instance",
		mcp.WithDescription("Send an interrupt keystroke. Fire and forget."),
		mcp.WithString("instance_id", mcp.Required()),
	), toolHandler(func(ctx context.Context, req mcp.CallToolRequest) (interface{}, *apierr.Err) {
		instanceID, err := req.RequireString("instance_id")
		if err != nil {
			return nil, apierr.Newf(apierr.KindInvalidInstanceID, err.Error())
		}
		if aerr := d.InterruptInstance(ctx, instanceID); aerr != nil {
			return nil, aerr
		}
		return map[string]string{"status": "ok"}, nil
	}))

	s.AddTool(mcp.NewTool("terminate_instance",
		mcp.WithDescription("Kill an instance's session. Idempotent."),
		mcp.WithString("instance_id", mcp.Required()),
	), toolHandler(func(ctx context.Context, req mcp.CallToolRequest) (interface{}, *apierr.Err) {
		instanceID, err := req.RequireString("instance_id")
		if err != nil {
			return nil, apierr.Newf(apierr.KindInvalidInstanceID, err.Error())
		}
		if aerr := d.TerminateInstance(ctx, instanceID); aerr != nil {
			return nil, aerr
		}
		return map[string]string{"status": "ok"}, nil
	}))

	s.AddTool(mcp.NewTool("list_instance_files",
		mcp.WithDescription("List a directory inside an instance's workspace."),
		mcp.WithString("instance_id", mcp.Required()),
		mcp.WithString("path", mcp.Description("workspace-relative directory, default .")),
	), toolHandler(func(ctx context.Context, req mcp.CallToolRequest) (interface{}, *apierr.Err) {
		instanceID, err := req.RequireString("instance_id")
		if err != nil {
			return nil, apierr.Newf(apierr.KindInvalidInstanceID, err.Error())
		}
		path := req.GetString("path", ".")
		return d.ListInstanceFiles(instanceID, path)
	}))

	s.AddTool(mcp.NewTool("retrieve_instance_file",
		mcp.WithDescription("Read a file inside an instance's workspace."),
		mcp.WithString("instance_id", mcp.Required()),
		mcp.WithString("path", mcp.Required()),
	), toolHandler(func(ctx context.Context, req mcp.CallToolRequest) (interface{}, *apierr.Err) {
		instanceID, err := req.RequireString("instance_id")
		if err != nil {
			return nil, apierr.Newf(apierr.KindInvalidInstanceID, err.Error())
		}
		path, err := req.RequireString("path")
		if err != nil {
			return nil, apierr.Newf(apierr.KindInternal, err.Error())
		}
		data, aerr := d.RetrieveInstanceFile(instanceID, path)
		if aerr != nil {
			return nil, aerr
		}
		return string(data), nil
	}))

	s.AddTool(mcp.NewTool("collect_team_artifacts",
		mcp.WithDescription("Snapshot every instance tagged with a team session id."),
		mcp.WithString("team_session_id", mcp.Required()),
	), toolHandler(func(ctx context.Context, req mcp.CallToolRequest) (interface{}, *apierr.Err) {
		teamSessionID := req.GetString("team_session_id", "")
		return d.CollectTeamArtifacts(ctx, teamSessionID)
	}))

	s.AddTool(mcp.NewTool("get_main_instance_id",
		mcp.WithDescription("Deprecated. Use your own instance id instead."),
	), toolHandler(func(ctx context.Context, req mcp.CallToolRequest) (interface{}, *apierr.Err) {
		return nil, d.GetMainInstanceID()
	}))

	return s
}

// toolHandler adapts a Dispatcher-calling closure into the mcp-go tool
// handler signature, marshaling the success value to JSON text and apierr
// failures to the fixed {status,error,message} shape both transports share.
func toolHandler(fn func(ctx context.Context, req mcp.CallToolRequest) (interface{}, *apierr.Err)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, aerr := fn(ctx, req)
		if aerr != nil {
			body, _ := json.Marshal(aerr.Response)
			return mcp.NewToolResultError(string(body)), nil
		}
		if s, ok := result.(string); ok {
			return mcp.NewToolResultText(s), nil
		}
		body, err := json.Marshal(result)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

func spawnArgsFromRequest(req mcp.CallToolRequest) SpawnArgs {
	args := SpawnArgs{
		Name:          req.GetString("name", ""),
		Role:          instance.Role(req.GetString("role", "")),
		Model:         req.GetString("model", ""),
		TeamSessionID: req.GetString("team_session_id", ""),
		EnableMadrox:  req.GetBool("enable_madrox", false),
	}
	if parent := req.GetString("parent_instance_id", ""); parent != "" {
		args.ParentInstanceID = &parent
	}
	return args
}

func spawnArgsListFromRequest(req mcp.CallToolRequest) ([]SpawnArgs, *apierr.Err) {
	raw, ok := req.GetArguments()["instances"].([]interface{})
	if !ok {
		return nil, apierr.Newf(apierr.KindInternal, "instances must be an array")
	}
	items := make([]SpawnArgs, 0, len(raw))
	for _, v := range raw {
		m, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		args := SpawnArgs{
			Name:          stringField(m, "name"),
			Role:          instance.Role(stringField(m, "role")),
			Model:         stringField(m, "model"),
			TeamSessionID: stringField(m, "team_session_id"),
		}
		if parent := stringField(m, "parent_instance_id"); parent != "" {
			args.ParentInstanceID = &parent
		}
		items = append(items, args)
	}
	return items, nil
}

func coordinationStepsFromRequest(req mcp.CallToolRequest) ([]CoordinationStep, *apierr.Err) {
	raw, ok := req.GetArguments()["steps"].([]interface{})
	if !ok {
		return nil, apierr.Newf(apierr.KindInternal, "steps must be an array")
	}
	steps := make([]CoordinationStep, 0, len(raw))
	for _, v := range raw {
		m, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		idsRaw, _ := m["instance_ids"].([]interface{})
		ids := make([]string, 0, len(idsRaw))
		for _, id := range idsRaw {
			if s, ok := id.(string); ok {
				ids = append(ids, s)
			}
		}
		sequential, _ := m["sequential"].(bool)
		timeoutSec, _ := m["timeout_seconds"].(float64)
		steps = append(steps, CoordinationStep{
			InstanceIDs:   ids,
			Message:       stringField(m, "message"),
			Sequential:    sequential,
			CorrelationID: stringField(m, "correlation_id"),
			Timeout:       time.Duration(timeoutSec * float64(time.Second)),
		})
	}
	return steps, nil
}

func stringField(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
