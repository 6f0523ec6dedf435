// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package instance

import "fmt"

// transitions enumerates the legal edges of the instance state machine.
// State moves monotonically towards terminated; error is reachable from
// every live state and terminated has no outgoing edges.
var transitions = map[State]map[State]bool{
	StateSpawning:     {StateInitializing: true, StateError: true, StateTerminating: true},
	StateInitializing: {StateReady: true, StateError: true, StateTerminating: true},
	StateReady:        {StateBusy: true, StateIdle: true, StateError: true, StateTerminating: true},
	StateBusy:         {StateIdle: true, StateError: true, StateTerminating: true},
	StateIdle:         {StateBusy: true, StateError: true, StateTerminating: true},
	StateError:        {StateTerminating: true},
	StateTerminating:  {StateTerminated: true},
	StateTerminated:   {},
}

// ErrInvalidTransition is returned when a caller attempts to move an
// instance out of a state the machine doesn't permit.
type ErrInvalidTransition struct {
	From, To State
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid state transition %s -> %s", e.From, e.To)
}

// CanTransition reports whether moving from -> to is a legal edge.
func CanTransition(from, to State) bool {
	if from == to {
		return false
	}
	edges, ok := transitions[from]
	if !ok {
		return false
	}
	return edges[to]
}
