// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package transport runs the dual STDIO/HTTP surface over one mcp-go server:
// line-delimited JSON-RPC on STDIO, or a mux serving Streamable HTTP, SSE,
// health, and a WebSocket log stream. Both modes dispatch through the same
// server.MCPServer, so both return byte-identical responses for identical
// tool arguments.
package transport

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/mark3labs/mcp-go/server"

	"madrox/internal/api/middleware"
	"madrox/internal/audit"
)

// Mode selects which transport the server runs under.
type Mode string

const (
	ModeStdio Mode = "stdio"
	ModeHTTP  Mode = "http"

	shutdownGrace = 30 * time.Second
)

// DetectMode honours the MADROX_TRANSPORT override, then falls back to
// inspecting whether stdin is attached to a terminal: attached means an
// interactive operator, so HTTP; piped means a parent process is driving
// STDIO JSON-RPC directly.
func DetectMode(override string) Mode {
	switch Mode(override) {
	case ModeHTTP, ModeStdio:
		return Mode(override)
	}
	info, err := os.Stdin.Stat()
	if err != nil {
		return ModeHTTP
	}
	if info.Mode()&os.ModeCharDevice != 0 {
		return ModeHTTP
	}
	return ModeStdio
}

// Run blocks serving mcpServer under mode until ctx is cancelled.
func Run(ctx context.Context, mode Mode, mcpServer *server.MCPServer, port int, systemBus, auditBus *audit.Bus) error {
	switch mode {
	case ModeStdio:
		return runStdio(ctx, mcpServer)
	default:
		return runHTTP(ctx, mcpServer, port, systemBus, auditBus)
	}
}

func runStdio(ctx context.Context, mcpServer *server.MCPServer) error {
	log.Println("transport: running in stdio mode")
	stdioSrv := server.NewStdioServer(mcpServer)
	return stdioSrv.Listen(ctx, os.Stdin, os.Stdout)
}

func runHTTP(ctx context.Context, mcpServer *server.MCPServer, port int, systemBus, auditBus *audit.Bus) error {
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseSrv := server.NewSSEServer(mcpServer, server.WithBaseURL(baseURL))
	streamSrv := server.NewStreamableHTTPServer(mcpServer)

	router := mux.NewRouter()
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	router.Handle("/sse", sseSrv)
	router.Handle("/sse/", sseSrv)
	router.Handle("/message", sseSrv)
	router.Handle("/mcp", streamSrv)
	router.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	router.HandleFunc("/ws/logs", newLogStreamHandler(systemBus, auditBus)).Methods(http.MethodGet)

	httpServer := &http.Server{Addr: addr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("transport: running in http mode on %s (sse %s/sse, streamable %s/mcp)", addr, baseURL, baseURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
