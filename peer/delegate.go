// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import (
	"errors"
	"net"

	"github.com/acn-foundation/acn/acn"
	"github.com/acn-foundation/acn/identity"
)

// acceptLoop serves one TCP listener. The delegate listener and the
// local agent listener speak the same protocol; they differ only in
// who is expected on the other end and in how they are counted.
func (p *Peer) acceptLoop(listener net.Listener, kind connKind) {
	defer p.wg.Done()
	for {
		tcpConn, err := listener.Accept()
		if err != nil {
			// Listener closed during shutdown.
			return
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.serveAgentConn(tcpConn, kind)
		}()
	}
}

// serveAgentConn runs the agent-facing protocol on one connection:
// a registration handshake first, then an envelope exchange loop
// until the connection drops. A connection whose very first frame is
// not a valid registration is closed outright; there is nothing to
// negotiate with a speaker of the wrong protocol.
func (p *Peer) serveAgentConn(tcpConn net.Conn, kind connKind) {
	pipe := acn.NewPipe(tcpConn)
	record, err := acn.ReadRegister(pipe)
	if err != nil {
		p.logger.Debug("agent handshake failed",
			"remote", tcpConn.RemoteAddr().String(), "error", err)
		_ = pipe.Close()
		return
	}
	// The agent authorizes this node: the record must name our key.
	if code, err := identity.CheckRecord(record, record.Address, p.publicKeyHex, p.clock.Now()); err != nil {
		p.logger.Info("agent registration rejected",
			"agent", record.Address, "kind", kind.String(),
			"status", code.String(), "error", err)
		_ = acn.SendError(pipe, code, err.Error())
		_ = pipe.Close()
		return
	}
	conn := newPipeConn(record, kind, pipe)
	p.registry.addLocal(conn)
	if err := acn.SendSuccess(pipe); err != nil {
		p.registry.removeLocal(conn)
		return
	}
	p.logger.Info("agent registered", "agent", record.Address, "kind", kind.String())
	if p.store != nil {
		if err := p.store.Save(record); err != nil {
			p.logger.Warn("persisting record failed", "agent", record.Address, "error", err)
		}
	}
	p.announce(record.Address)
	p.serveAgent(conn)
}

// serveAgent is the post-handshake read loop: envelopes from the
// agent are routed into the network and acknowledged; status frames
// are acknowledgements for envelopes we delivered to the agent and
// are handed to the waiting delivery.
//
// Routing runs on a single worker per connection, not inline: the
// read loop must stay free to dispatch acknowledgements, or two
// agents on one node sending to each other would wedge until the ack
// timeout. One worker keeps the agent's envelopes in order.
func (p *Peer) serveAgent(conn *agentConn) {
	defer p.registry.removeLocal(conn)
	tasks := make(chan *acn.EnvelopeMessage, outboxQueueDepth)
	defer close(tasks)
	go func() {
		for em := range tasks {
			p.routeForAgent(conn, em)
		}
	}()
	for {
		m, err := acn.ReadMessage(conn.pipe)
		if err != nil {
			var coded *acn.Error
			if errors.As(err, &coded) {
				_ = acn.SendError(conn.pipe, coded.Code, coded.Err.Error())
				continue
			}
			return
		}
		switch {
		case m.Status != nil:
			conn.submitAck(m.Status)
		case m.Envelope != nil:
			tasks <- m.Envelope
		default:
			_ = acn.SendError(conn.pipe, acn.StatusErrorUnexpectedPayload,
				"agent connection accepts envelopes and acknowledgements")
		}
	}
}

// routeForAgent routes one outbound envelope from an attached agent
// and acknowledges it with the delivery result. The agent may only
// send as itself; the attached record rides along as the proof shown
// to the destination node.
func (p *Peer) routeForAgent(conn *agentConn, em *acn.EnvelopeMessage) {
	env, err := acn.UnmarshalEnvelope(em.Envelope)
	if err != nil {
		_ = acn.SendError(conn.pipe, acn.StatusErrorDecode, err.Error())
		return
	}
	if env.Sender != conn.record.Address {
		_ = acn.SendError(conn.pipe, acn.StatusErrorWrongAgentAddress,
			"envelope sender "+env.Sender+" is not the registered agent "+conn.record.Address)
		return
	}
	record := em.Record
	if record == nil {
		record = conn.record
	}
	if err := p.routeEnvelope(p.ctx, em.Envelope, record); err != nil {
		var coded *acn.Error
		if errors.As(err, &coded) {
			_ = acn.SendError(conn.pipe, coded.Code, coded.Err.Error())
		} else {
			_ = acn.SendError(conn.pipe, acn.StatusErrorGeneric, err.Error())
		}
		return
	}
	_ = acn.SendSuccess(conn.pipe)
}
