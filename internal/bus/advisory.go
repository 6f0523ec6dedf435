// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"fmt"
	"time"

	"madrox/internal/instance"
)

// NotifyAdvisory pushes a supervisor-generated advisory record directly
// onto instanceID's reply_queue. Unlike ReplyToCaller this is not
// restricted to the instance replying as itself — the supervisor acts on
// the registry's behalf, not as the instance.
func (b *Bus) NotifyAdvisory(instanceID, message, correlationID string) error {
	if !b.registry.Exists(instanceID) {
		return fmt.Errorf("%w: %s", ErrInvalidInstanceID, instanceID)
	}
	q := b.registry.ReplyQueueOf(instanceID)
	if q == nil {
		return fmt.Errorf("%w: %s", ErrInvalidInstanceID, instanceID)
	}
	if q.OnOverflow == nil && b.onOverflow != nil {
		q.OnOverflow = func(dropped instance.Message) { b.onOverflow(instanceID, dropped) }
	}
	q.Push(instance.Message{
		CorrelationID: correlationID,
		SenderID:      "supervisor",
		RecipientID:   instanceID,
		Payload:       message,
		CreatedAt:     time.Now(),
		Kind:          instance.MessageReply,
	})
	return nil
}
