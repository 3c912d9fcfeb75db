// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import (
	"errors"

	"github.com/libp2p/go-libp2p/core/network"
	libp2ppeer "github.com/libp2p/go-libp2p/core/peer"

	"github.com/acn-foundation/acn/acn"
	"github.com/acn-foundation/acn/identity"
)

// handleEnvelopeStream serves node-to-node envelope delivery. Each
// envelope frame is acknowledged with a status frame before the next
// is read, which keeps one stream strictly ordered end to end.
func (p *Peer) handleEnvelopeStream(stream network.Stream) {
	pipe := acn.NewPipe(stream)
	defer pipe.Close()
	remoteID := stream.Conn().RemotePeer()
	for {
		m, err := acn.ReadMessage(pipe)
		if err != nil {
			var coded *acn.Error
			if errors.As(err, &coded) {
				_ = acn.SendError(pipe, coded.Code, coded.Err.Error())
				continue
			}
			return
		}
		if m.Envelope == nil {
			_ = acn.SendError(pipe, acn.StatusErrorUnexpectedPayload,
				"envelope stream accepts only envelopes")
			continue
		}
		if err := p.processInbound(m.Envelope, remoteID); err != nil {
			var coded *acn.Error
			if errors.As(err, &coded) {
				_ = acn.SendError(pipe, coded.Code, coded.Err.Error())
			} else {
				_ = acn.SendError(pipe, acn.StatusErrorGeneric, err.Error())
			}
			continue
		}
		if err := acn.SendSuccess(pipe); err != nil {
			return
		}
	}
}

// processInbound handles one envelope that arrived over libp2p: check
// the attached proof of representation, then either deliver to the
// destination agent or, when the sender is one of this node's relay
// clients, route the envelope onward on its behalf.
func (p *Peer) processInbound(em *acn.EnvelopeMessage, remoteID libp2ppeer.ID) error {
	env, err := acn.UnmarshalEnvelope(em.Envelope)
	if err != nil {
		return acn.NewError(acn.StatusErrorDecode, err)
	}
	if em.Record != nil {
		if code, err := identity.CheckRecord(em.Record, env.Sender, em.Record.PeerPublicKey, p.clock.Now()); err != nil {
			return acn.NewError(code, err)
		}
	}
	if conn, ok := p.registry.lookupLocal(env.To); ok {
		if conn.kind == connRelay && conn.peerID == remoteID {
			// A relay client cannot address itself through us.
			return acn.Errorf(acn.StatusErrorUnknownAgentAddress,
				"agent %s is the sending client itself", env.To)
		}
		err := p.deliverLocal(p.ctx, conn, em.Envelope, em.Record)
		p.countDelivery(err)
		return err
	}
	if p.isRelayClient(remoteID) {
		// Outbound traffic from a client node we represent: resolve
		// and forward like our own agents' traffic.
		return p.routeEnvelope(p.ctx, em.Envelope, em.Record)
	}
	p.envelopesFailed.Inc()
	return acn.Errorf(acn.StatusErrorUnknownAgentAddress,
		"agent %s is not attached to this node", env.To)
}

// isRelayClient reports whether id is registered here as a relaying
// client node.
func (p *Peer) isRelayClient(id libp2ppeer.ID) bool {
	p.registry.mu.Lock()
	defer p.registry.mu.Unlock()
	for _, conn := range p.registry.local {
		if conn.kind == connRelay && conn.peerID == id {
			return true
		}
	}
	return false
}

// handleLookupStream answers address resolution requests, for agents
// attached to this node and from its cache of verified resolutions.
// Cached answers carry the original signed record, so the requester
// re-verifies the proof no matter where the answer came from.
func (p *Peer) handleLookupStream(stream network.Stream) {
	pipe := acn.NewPipe(stream)
	defer pipe.Close()
	for {
		m, err := acn.ReadMessage(pipe)
		if err != nil {
			var coded *acn.Error
			if errors.As(err, &coded) {
				_ = acn.SendError(pipe, coded.Code, coded.Err.Error())
				continue
			}
			return
		}
		if m.LookupRequest == nil {
			_ = acn.SendError(pipe, acn.StatusErrorUnexpectedPayload,
				"lookup stream accepts only lookup requests")
			continue
		}
		address := m.LookupRequest.AgentAddress
		var record *acn.AgentRecord
		if conn, ok := p.registry.lookupLocal(address); ok {
			record = conn.record
		} else if entry, ok := p.registry.cacheGet(address); ok {
			record = entry.record
		}
		if record == nil {
			_ = acn.SendError(pipe, acn.StatusErrorUnknownAgentAddress,
				"agent "+address+" is not known to this node")
			continue
		}
		p.lookupsServed.Inc()
		if err := acn.SendMessage(pipe, acn.Message{
			LookupResponse: &acn.LookupResponse{Record: record},
		}); err != nil {
			return
		}
	}
}

// handleRegisterStream attaches a client node as a relay client. The
// expected representing key is the remote stream peer's own transport
// key: a client can only register agents that authorized it, not this
// node. The stream stays open afterwards purely as a liveness signal;
// when it drops, the registration is retracted.
func (p *Peer) handleRegisterStream(stream network.Stream) {
	pipe := acn.NewPipe(stream)
	record, err := acn.ReadRegister(pipe)
	if err != nil {
		p.logger.Debug("relay registration failed", "error", err)
		_ = pipe.Close()
		return
	}
	remotePublicKey, err := identity.PublicKeyHex(stream.Conn().RemotePublicKey())
	if err != nil {
		_ = acn.SendError(pipe, acn.StatusErrorGeneric, "cannot read remote peer key")
		_ = pipe.Close()
		return
	}
	if code, err := identity.CheckRecord(record, record.Address, remotePublicKey, p.clock.Now()); err != nil {
		p.logger.Info("relay registration rejected",
			"agent", record.Address, "status", code.String(), "error", err)
		_ = acn.SendError(pipe, code, err.Error())
		_ = pipe.Close()
		return
	}
	conn := newRelayConn(record, stream.Conn().RemotePeer())
	p.registry.addLocal(conn)
	if err := acn.SendSuccess(pipe); err != nil {
		p.registry.removeLocal(conn)
		_ = pipe.Close()
		return
	}
	p.logger.Info("relay client registered",
		"agent", record.Address, "peer_id", conn.peerID.String())
	if p.store != nil {
		if err := p.store.Save(record); err != nil {
			p.logger.Warn("persisting record failed", "agent", record.Address, "error", err)
		}
	}
	p.announce(record.Address)

	// Liveness watch: the client sends nothing further on this
	// stream; the read unblocks when the client goes away.
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.registry.removeLocal(conn)
		for {
			if _, err := pipe.Read(); err != nil {
				p.logger.Info("relay client disconnected", "agent", record.Address)
				return
			}
		}
	}()
}
