// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import (
	"fmt"
	"strings"
	"sync"
	"time"

	libp2ppeer "github.com/libp2p/go-libp2p/core/peer"

	"github.com/acn-foundation/acn/acn"
	"github.com/acn-foundation/acn/lib/clock"
)

// connKind names how an agent is attached to this node.
type connKind int

const (
	// connLocal is the co-located agent process on the local socket.
	connLocal connKind = iota
	// connDelegate is a plain TCP client using the node as its
	// network presence.
	connDelegate
	// connRelay is a DHT client node registered over libp2p; inbound
	// envelopes for it are sent over a fresh stream to its peer ID.
	connRelay
)

var connKindNames = map[connKind]string{
	connLocal:    "local",
	connDelegate: "delegate",
	connRelay:    "relay",
}

func (k connKind) String() string { return connKindNames[k] }

// agentConn is one live agent attachment: the agent's accepted record
// plus the way envelopes reach it. Local and delegate agents own a
// framed pipe; relay agents are reached through the outbox by peer ID.
type agentConn struct {
	record *acn.AgentRecord
	kind   connKind

	// pipe-backed kinds only.
	pipe acn.Pipe

	// relay kind only.
	peerID libp2ppeer.ID

	// writeMu serializes envelope+ack exchanges on the pipe so
	// concurrent deliveries to one agent cannot interleave frames or
	// steal each other's acknowledgements.
	writeMu sync.Mutex

	// ackMu guards pending, the reply channel of the delivery in
	// flight. Each delivery installs a fresh channel, so an ack that
	// arrives after its exchange timed out is dropped instead of
	// answering the next delivery.
	ackMu   sync.Mutex
	pending chan *acn.Status

	closeOnce sync.Once
	closed    chan struct{}
}

func newPipeConn(record *acn.AgentRecord, kind connKind, pipe acn.Pipe) *agentConn {
	return &agentConn{
		record: record,
		kind:   kind,
		pipe:   pipe,
		closed: make(chan struct{}),
	}
}

func newRelayConn(record *acn.AgentRecord, peerID libp2ppeer.ID) *agentConn {
	return &agentConn{
		record: record,
		kind:   connRelay,
		peerID: peerID,
		closed: make(chan struct{}),
	}
}

func (c *agentConn) address() string { return c.record.Address }

// close tears the attachment down. Safe to call more than once; the
// read loop and the registry both do.
func (c *agentConn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.pipe != nil {
			_ = c.pipe.Close()
		}
	})
}

// deliver writes one envelope to the agent's pipe and waits for its
// acknowledgement. A non-success acknowledgement comes back as an
// *acn.Error carrying the agent's code.
func (c *agentConn) deliver(clk clock.Clock, envelope []byte, record *acn.AgentRecord, timeout time.Duration) error {
	if c.pipe == nil {
		return fmt.Errorf("peer: %s connection for %s has no pipe", c.kind, c.address())
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	reply := make(chan *acn.Status, 1)
	c.ackMu.Lock()
	c.pending = reply
	c.ackMu.Unlock()
	defer func() {
		c.ackMu.Lock()
		c.pending = nil
		c.ackMu.Unlock()
	}()
	if err := acn.SendEnvelope(c.pipe, envelope, record); err != nil {
		return fmt.Errorf("peer: writing envelope to %s agent %s: %w", c.kind, c.address(), err)
	}
	status, err := acn.AwaitStatus(clk, reply, timeout)
	if err != nil {
		return fmt.Errorf("peer: awaiting acknowledgement from %s agent %s: %w", c.kind, c.address(), err)
	}
	if status.Code != acn.StatusSuccess {
		return acn.Errorf(status.Code, "agent %s refused envelope: %s",
			c.address(), strings.Join(status.Messages, "; "))
	}
	return nil
}

// submitAck hands an acknowledgement read off the pipe to the delivery
// in flight. Acknowledgements with no delivery waiting, including
// those for exchanges that already timed out, are dropped.
func (c *agentConn) submitAck(status *acn.Status) {
	c.ackMu.Lock()
	pending := c.pending
	c.ackMu.Unlock()
	if pending == nil {
		return
	}
	select {
	case pending <- status:
	default:
	}
}
