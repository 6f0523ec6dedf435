// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"madrox/internal/audit"
)

func TestDetectMode_Override(t *testing.T) {
	assert.Equal(t, ModeHTTP, DetectMode("http"))
	assert.Equal(t, ModeStdio, DetectMode("stdio"))
}

func TestDetectMode_FallsBackToStdinInspection(t *testing.T) {
	mode := DetectMode("")
	assert.Contains(t, []Mode{ModeStdio, ModeHTTP}, mode)
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	healthHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestLogStreamHandler_StreamsPublishedRecords(t *testing.T) {
	systemBus := audit.NewBus(audit.BusConfig{HistoryMaxRecords: 16})
	defer systemBus.Close()

	srv := httptest.NewServer(newLogStreamHandler(systemBus, nil))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/logs"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(20 * time.Millisecond)
	err = systemBus.Publish(context.Background(), audit.Record{
		Type:       "system",
		Action:     "instance.spawn",
		InstanceID: "inst-1",
	})
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(payload), "instance.spawn")
}

func TestLogStreamHandler_UnavailableBusReturns503(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws/logs?bus=audit", nil)
	newLogStreamHandler(nil, nil)(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPickPattern_DefaultsToWildcard(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws/logs", nil)
	assert.Equal(t, "*", pickPattern(req.URL.Query()))

	req = httptest.NewRequest(http.MethodGet, "/ws/logs?pattern=instance.*", nil)
	assert.Equal(t, "instance.*", pickPattern(req.URL.Query()))
}
