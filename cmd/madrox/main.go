// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Command madrox is the orchestrator for hierarchical teams of
// terminal-attached AI assistant processes. It is a single binary with no
// subcommands: it resolves configuration, wires the instance registry,
// message bus, supervisor, and artifact collector, then serves MCP tool
// calls over whichever transport fits how it was invoked.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"madrox/internal/artifacts"
	"madrox/internal/audit"
	"madrox/internal/bus"
	"madrox/internal/config"
	"madrox/internal/instance"
	"madrox/internal/mcp"
	"madrox/internal/orchestrator"
	"madrox/internal/supervisor"
	"madrox/internal/terminal"
	"madrox/internal/transport"
)

var version = "0.1.0"

const (
	exitOK          = 0
	exitFatal       = 1
	exitConfigError = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath   string
		port         int
		workspaceDir string
		debug        bool
		showVersion  bool
	)

	flag.StringVar(&configPath, "config", "", "path to an optional HJSON config file")
	flag.IntVar(&port, "port", 0, "HTTP port (overrides config and ORCHESTRATOR_PORT)")
	flag.StringVar(&workspaceDir, "workspace-dir", "", "root directory for instance workspaces (overrides config and WORKSPACE_DIR)")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("madrox %s\n", version)
		return exitOK
	}

	cfg, err := config.NewLoader().Load(configPath)
	if err != nil {
		log.Printf("config: %v", err)
		return exitConfigError
	}
	if port != 0 {
		cfg.Transport.Port = port
	}
	if workspaceDir != "" {
		cfg.Workspace.Dir = workspaceDir
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		log.Printf("config: %v", err)
		return exitConfigError
	}

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, func(reloaded *config.Config) {
			log.Printf("config: %s changed, reloaded (restart to apply: components are wired from the config read at startup)", configPath)
			_ = reloaded
		})
		if err != nil {
			log.Printf("config: watcher disabled: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	if err := os.MkdirAll(cfg.Workspace.Dir, 0o755); err != nil {
		log.Printf("workspace dir: %v", err)
		return exitFatal
	}
	if err := os.MkdirAll(cfg.Artifacts.Dir, 0o755); err != nil {
		log.Printf("artifacts dir: %v", err)
		return exitFatal
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signal.Ignore(syscall.SIGHUP)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	systemBus := audit.NewBus(audit.BusConfig{HistoryMaxRecords: 4096})
	defer systemBus.Close()
	auditBus := audit.NewBus(audit.BusConfig{HistoryMaxRecords: 4096})
	defer auditBus.Close()

	registry := instance.New(cfg.Instances.Max)
	exec := terminal.NewRealExecutor()
	orch := orchestrator.New(registry, nil, exec, cfg.Workspace.Dir, orchestrator.DefaultLaunchCommand)
	msgBus := bus.New(registry, orch.InjectorFor, orch.InterrupterFor, func(instanceID string, msg instance.Message) {
		auditBus.Publish(ctx, audit.Record{
			Type:       "audit",
			Action:     audit.ActionQueueOverflow,
			InstanceID: instanceID,
			Metadata:   map[string]interface{}{"correlation_id": msg.CorrelationID},
		})
	})

	sup := supervisor.New(registry, msgBus, orch, auditBus, supervisor.DefaultInterval, supervisor.DefaultIdleThreshold)
	go sup.Run(ctx)

	collector := artifacts.New(registry, orch, artifacts.Config{
		Root:            cfg.Artifacts.Dir,
		IncludePatterns: cfg.Artifacts.Patterns,
		ExcludePatterns: cfg.Artifacts.ExcludePatterns,
		RetentionDays:   cfg.Artifacts.RetentionDays,
		Compress:        cfg.Artifacts.Compress,
	})
	reaper := artifacts.NewReaper(artifacts.Config{
		Root:          cfg.Artifacts.Dir,
		RetentionDays: cfg.Artifacts.RetentionDays,
	})
	if cfg.Artifacts.RetentionDays > 0 {
		go reaper.Run(ctx)
	}

	dispatcher := mcp.New(registry, msgBus, orch, collector, auditBus)
	mcpServer := mcp.NewServer(dispatcher)

	mode := transport.DetectMode(cfg.Transport.Mode)
	log.Printf("madrox %s starting (transport=%s, workspace=%s, artifacts=%s)", version, mode, cfg.Workspace.Dir, cfg.Artifacts.Dir)

	if err := transport.Run(ctx, mode, mcpServer, cfg.Transport.Port, systemBus, auditBus); err != nil {
		log.Printf("transport: %v", err)
		return exitFatal
	}
	return exitOK
}
