// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"madrox/internal/audit"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const logStreamBuffer = 64

// newLogStreamHandler returns a handler for GET /ws/logs. The query string
// selects which bus to tail (?bus=audit, default system) and an optional
// ?pattern= filter passed straight to audit.Bus.SubscribeAsync. Every record
// published after the socket opens is written as one JSON frame of the form
// {"type": "system_log"|"audit_log", "data": record}; a failed write prunes
// the subscription and closes the connection.
func newLogStreamHandler(systemBus, auditBus *audit.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, streamType := systemBus, "system_log"
		if r.URL.Query().Get("bus") == "audit" {
			target, streamType = auditBus, "audit_log"
		}
		if target == nil {
			http.Error(w, "log bus unavailable", http.StatusServiceUnavailable)
			return
		}

		pattern := pickPattern(r.URL.Query())

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("transport: ws upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		errCh := make(chan error, 1)
		subID, err := target.SubscribeAsync(pattern, func(_ context.Context, rec audit.Record) error {
			payload, mErr := json.Marshal(map[string]interface{}{"type": streamType, "data": rec})
			if mErr != nil {
				return nil
			}
			if wErr := conn.WriteMessage(websocket.TextMessage, payload); wErr != nil {
				select {
				case errCh <- wErr:
				default:
				}
				return wErr
			}
			return nil
		}, logStreamBuffer)
		if err != nil {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"subscribe failed"}`))
			return
		}
		defer target.Unsubscribe(subID)

		pingTicker := time.NewTicker(30 * time.Second)
		defer pingTicker.Stop()

		readErrCh := make(chan error, 1)
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					readErrCh <- err
					return
				}
			}
		}()

		for {
			select {
			case <-errCh:
				return
			case <-readErrCh:
				return
			case <-pingTicker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}

func pickPattern(q url.Values) string {
	if p := q.Get("pattern"); p != "" {
		return p
	}
	return "*"
}
