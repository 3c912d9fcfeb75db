// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import "fmt"

// State is the lifecycle state of a Peer. Transitions are linear:
// Stopped → Starting → Listening → Running → Closing → Stopped.
// Listening covers the window where the node's listeners are bound
// but the overlay join has not finished. Anything else is a caller
// error and is rejected.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateListening
	StateRunning
	StateClosing
)

var stateNames = map[State]string{
	StateStopped:   "stopped",
	StateStarting:  "starting",
	StateListening: "listening",
	StateRunning:   "running",
	StateClosing:   "closing",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// transition moves the peer from expected to next under p.mu,
// rejecting the move if the peer is not in the expected state.
func (p *Peer) transition(expected, next State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != expected {
		return fmt.Errorf("peer: cannot move to %s from %s (need %s)", next, p.state, expected)
	}
	p.state = next
	return nil
}

// State reports the peer's current lifecycle state.
func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}
