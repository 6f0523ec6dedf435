// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToMatchingSubscriber(t *testing.T) {
	bus := NewBus(BusConfig{})
	defer bus.Close()

	received := make(chan Record, 1)
	_, err := bus.Subscribe("instance.*", func(_ context.Context, rec Record) error {
		received <- rec
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), Record{Type: "instance.spawn", Action: ActionInstanceSpawn}))

	select {
	case rec := <-received:
		assert.Equal(t, "instance.spawn", rec.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber")
	}
}

func TestPublishSkipsNonMatchingSubscriber(t *testing.T) {
	bus := NewBus(BusConfig{})
	defer bus.Close()

	received := make(chan Record, 1)
	_, err := bus.Subscribe("message.*", func(_ context.Context, rec Record) error {
		received <- rec
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), Record{Type: "instance.spawn"}))

	select {
	case <-received:
		t.Fatal("unexpected delivery to non-matching subscriber")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHistoryQueryByType(t *testing.T) {
	bus := NewBus(BusConfig{})
	defer bus.Close()

	require.NoError(t, bus.Publish(context.Background(), Record{Type: "instance.spawn"}))
	require.NoError(t, bus.Publish(context.Background(), Record{Type: "message.sent"}))

	records := bus.History(Filter{Types: []string{"instance.*"}})
	require.Len(t, records, 1)
	assert.Equal(t, "instance.spawn", records[0].Type)
}

func TestFileWriterAppendsJSONLines(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWriter(dir, "audit")
	require.NoError(t, err)
	fixedDay := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	w.nowFunc = func() time.Time { return fixedDay }

	require.NoError(t, w.Append(Record{Type: "instance.spawn"}))
	require.NoError(t, w.Append(Record{Type: "instance.terminate"}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(dir + "/audit-2026-07-31.jsonl")
	require.NoError(t, err)
	assert.Contains(t, string(data), "instance.spawn")
	assert.Contains(t, string(data), "instance.terminate")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(BusConfig{})
	defer bus.Close()

	received := make(chan Record, 1)
	id, err := bus.Subscribe("*", func(_ context.Context, rec Record) error {
		received <- rec
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Unsubscribe(id))

	require.NoError(t, bus.Publish(context.Background(), Record{Type: "instance.spawn"}))

	select {
	case <-received:
		t.Fatal("unexpected delivery after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}
