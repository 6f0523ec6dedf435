// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package bus implements the bidirectional messaging core: correlation-id
// tracked send/reply, per-instance inbox and reply_queue, and broadcast
// fan-out to children.
package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"madrox/internal/instance"
)

// Sentinel errors mirroring the tool-facing error taxonomy. Tool handlers
// translate these into {status:"error", error:<kind>, message:<human>}.
var (
	ErrInvalidInstanceID = errors.New("invalid instance id")
	ErrTimeout           = errors.New("timeout waiting for reply")
)

// Injector delivers text to one instance's pane. pasteinjector.Injector
// satisfies it (terminal.Adapter satisfies Interrupter); this narrow
// interface keeps the bus independent of the multiplexer.
type Injector interface {
	Send(ctx context.Context, msg string) error
}

// Interrupter delivers an interrupt keystroke to one instance's pane.
type Interrupter interface {
	Interrupt(ctx context.Context) error
}

// Bus routes messages between instances via the registry's bounded queues
// and the per-instance terminal injector.
type Bus struct {
	registry    *instance.Registry
	injectors   func(instanceID string) Injector
	interrupter func(instanceID string) Interrupter
	onOverflow  func(instanceID string, dropped instance.Message)
}

// New returns a bus bound to registry. injectors/interrupter resolve an
// instance id to the adapter-backed collaborator that can reach its pane;
// onOverflow (optional) is called whenever a bounded queue drops a message,
// so the audit layer can emit queue_overflow.
func New(registry *instance.Registry, injectors func(string) Injector, interrupter func(string) Interrupter, onOverflow func(string, instance.Message)) *Bus {
	return &Bus{registry: registry, injectors: injectors, interrupter: interrupter, onOverflow: onOverflow}
}

// NewCorrelationID generates a fresh opaque correlation id.
func NewCorrelationID() string { return uuid.NewString() }

// Send injects message into recipientID's pane. If waitForResponse is true
// and correlationID is non-empty, it blocks up to timeout for a matching
// reply on the recipient's own reply_queue; otherwise it returns as soon as
// the message is delivered.
func (b *Bus) Send(ctx context.Context, senderID, recipientID, message string, waitForResponse bool, correlationID string, timeout time.Duration) (*instance.Message, error) {
	if correlationID != "" && b.registry.Exists(correlationID) {
		return nil, fmt.Errorf("%w: correlation_id must not be an instance id", ErrInvalidInstanceID)
	}
	if !b.registry.Exists(recipientID) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInstanceID, recipientID)
	}

	inj := b.injectors(recipientID)
	if inj == nil {
		return nil, fmt.Errorf("no terminal injector bound for %s", recipientID)
	}
	if err := inj.Send(ctx, message); err != nil {
		return nil, err
	}
	b.registry.TouchActivity(recipientID)
	_, _ = b.registry.Transition(recipientID, instance.StateBusy)

	if !waitForResponse || correlationID == "" {
		return nil, nil
	}

	q := b.registry.ReplyQueueOf(recipientID)
	if q == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInstanceID, recipientID)
	}
	reply, ok := q.WaitFor(func(m instance.Message) bool {
		return m.CorrelationID == correlationID && m.Kind == instance.MessageReply
	}, timeout)
	if !ok {
		return nil, ErrTimeout
	}
	return &reply, nil
}

// ReplyToCaller enqueues replyMessage on asInstanceID's own reply_queue.
// asInstanceID must equal callerInstanceID, the caller's own id; mismatches
// are rejected without enqueuing anything.
func (b *Bus) ReplyToCaller(callerInstanceID, asInstanceID, replyMessage, correlationID string) error {
	if callerInstanceID != asInstanceID {
		return fmt.Errorf("%w: reply must be made as the caller's own id", ErrInvalidInstanceID)
	}
	if !b.registry.Exists(asInstanceID) {
		return fmt.Errorf("%w: %s", ErrInvalidInstanceID, asInstanceID)
	}
	q := b.registry.ReplyQueueOf(asInstanceID)
	if q == nil {
		return fmt.Errorf("%w: %s", ErrInvalidInstanceID, asInstanceID)
	}
	if q.OnOverflow == nil && b.onOverflow != nil {
		q.OnOverflow = func(dropped instance.Message) { b.onOverflow(asInstanceID, dropped) }
	}
	q.Push(instance.Message{
		CorrelationID: correlationID,
		SenderID:      asInstanceID,
		RecipientID:   "", // parent polls by instance id, not stored here
		Payload:       replyMessage,
		CreatedAt:     time.Now(),
		Kind:          instance.MessageReply,
	})
	return nil
}

// GetPendingReplies drains instanceID's reply_queue. Order is preserved; a
// second call on an already-drained queue returns an empty slice.
func (b *Bus) GetPendingReplies(instanceID string) ([]instance.Message, error) {
	if !b.registry.Exists(instanceID) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInstanceID, instanceID)
	}
	q := b.registry.ReplyQueueOf(instanceID)
	if q == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInstanceID, instanceID)
	}
	return q.Drain(), nil
}

// BroadcastResult is the per-recipient outcome of a broadcast.
type BroadcastResult struct {
	OK    bool
	Error string
}

// BroadcastToChildren fans message out to every live, non-terminated direct
// child of parentID. A single recipient's failure never aborts the fan-out.
func (b *Bus) BroadcastToChildren(ctx context.Context, parentID, message string) (map[string]BroadcastResult, error) {
	if !b.registry.Exists(parentID) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInstanceID, parentID)
	}

	results := make(map[string]BroadcastResult)
	for _, childID := range b.registry.Children(parentID) {
		rec, ok := b.registry.Get(childID)
		if !ok || rec.State == instance.StateTerminated {
			continue
		}
		_, err := b.Send(ctx, parentID, childID, message, false, "", 0)
		if err != nil {
			results[childID] = BroadcastResult{OK: false, Error: err.Error()}
			continue
		}
		results[childID] = BroadcastResult{OK: true}
	}
	return results, nil
}

// InterruptInstance delivers an interrupt keystroke to instanceID. Fire and
// forget: it does not wait for the instance to acknowledge.
func (b *Bus) InterruptInstance(ctx context.Context, instanceID string) error {
	if !b.registry.Exists(instanceID) {
		return fmt.Errorf("%w: %s", ErrInvalidInstanceID, instanceID)
	}
	it := b.interrupter(instanceID)
	if it == nil {
		return fmt.Errorf("no interrupter bound for %s", instanceID)
	}
	return it.Interrupt(ctx)
}

// Enqueue pushes message onto instanceID's inbox without touching the
// terminal — used by the supervisor for non-blocking check-ins.
func (b *Bus) Enqueue(instanceID string, message string, correlationID string) error {
	if !b.registry.Exists(instanceID) {
		return fmt.Errorf("%w: %s", ErrInvalidInstanceID, instanceID)
	}
	q := b.registry.InboxOf(instanceID)
	if q == nil {
		return fmt.Errorf("%w: %s", ErrInvalidInstanceID, instanceID)
	}
	if q.OnOverflow == nil && b.onOverflow != nil {
		q.OnOverflow = func(dropped instance.Message) { b.onOverflow(instanceID, dropped) }
	}
	q.Push(instance.Message{
		CorrelationID: correlationID,
		RecipientID:   instanceID,
		Payload:       message,
		CreatedAt:     time.Now(),
		Kind:          instance.MessageRequest,
	})
	return nil
}
