// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import (
	"context"
	"fmt"

	libp2ppeer "github.com/libp2p/go-libp2p/core/peer"

	"github.com/acn-foundation/acn/acn"
	"github.com/acn-foundation/acn/identity"
)

// routeEnvelope delivers one envelope on behalf of sender. The
// resolution order is: locally attached agents, then the resolution
// cache, then a DHT provider search followed by a lookup exchange
// with the providing node. An address nobody provides comes back as
// StatusErrorUnknownAgentAddress.
//
// record travels with the envelope so the destination node can check
// the sender's proof of representation before delivering.
func (p *Peer) routeEnvelope(ctx context.Context, envelope []byte, record *acn.AgentRecord) error {
	env, err := acn.UnmarshalEnvelope(envelope)
	if err != nil {
		p.envelopesFailed.Inc()
		return acn.NewError(acn.StatusErrorDecode, err)
	}
	if conn, ok := p.registry.lookupLocal(env.To); ok {
		err := p.deliverLocal(ctx, conn, envelope, record)
		p.countDelivery(err)
		return err
	}
	entry, err := p.resolveRemote(ctx, env.To)
	if err != nil {
		p.envelopesFailed.Inc()
		return err
	}
	err = p.outbox.enqueue(ctx, entry.peerID, envelope, record)
	if err != nil {
		// The cached route may be stale; forget it so the next
		// attempt resolves afresh.
		p.registry.cacheDrop(env.To)
	}
	p.countDelivery(err)
	return err
}

func (p *Peer) countDelivery(err error) {
	if err != nil {
		p.envelopesFailed.Inc()
	} else {
		p.envelopesDelivered.Inc()
	}
}

// deliverLocal hands an envelope to an attached agent. Relay clients
// are attached in name only; their envelopes travel over a libp2p
// stream through the outbox like any remote delivery.
func (p *Peer) deliverLocal(ctx context.Context, conn *agentConn, envelope []byte, record *acn.AgentRecord) error {
	if conn.kind == connRelay {
		return p.outbox.enqueue(ctx, conn.peerID, envelope, record)
	}
	return conn.deliver(p.clock, envelope, record, p.config.AckTimeout)
}

// resolveRemote finds the node representing address, consulting the
// cache first and the DHT second. A fresh resolution is cached and,
// when the node has a record store, persisted.
func (p *Peer) resolveRemote(ctx context.Context, address string) (cacheEntry, error) {
	if entry, ok := p.registry.cacheGet(address); ok {
		return entry, nil
	}
	c, err := addressCID(address)
	if err != nil {
		return cacheEntry{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, p.config.LookupTimeout)
	defer cancel()

	for info := range p.dht.FindProvidersAsync(ctx, c, 0) {
		if info.ID == "" || info.ID == p.host.ID() {
			continue
		}
		record, err := p.lookupAt(ctx, info.ID, address)
		if err != nil {
			p.logger.Debug("provider lookup failed",
				"agent", address, "provider", info.ID.String(), "error", err)
			continue
		}
		entry, err := p.admitResolvedRecord(record, address)
		if err != nil {
			p.logger.Warn("rejecting resolved record",
				"agent", address, "provider", info.ID.String(), "error", err)
			continue
		}
		p.dhtResolutions.Inc()
		return entry, nil
	}
	return cacheEntry{}, acn.Errorf(acn.StatusErrorUnknownAgentAddress,
		"no node provides agent %s", address)
}

// admitResolvedRecord verifies a record obtained from the network and
// installs it in the cache. The expected peer key is the record's
// own: what matters is that the agent really authorized the peer the
// record names, and that the address, key and signature agree.
func (p *Peer) admitResolvedRecord(record *acn.AgentRecord, address string) (cacheEntry, error) {
	if code, err := identity.CheckRecord(record, address, record.PeerPublicKey, p.clock.Now()); err != nil {
		return cacheEntry{}, acn.NewError(code, err)
	}
	id, err := identity.PeerIDFromPublicKeyHex(record.PeerPublicKey)
	if err != nil {
		return cacheEntry{}, fmt.Errorf("peer: record peer key for %s: %w", address, err)
	}
	p.registry.cachePut(record, id)
	if p.store != nil {
		if err := p.store.Save(record); err != nil {
			p.logger.Warn("persisting record failed", "agent", address, "error", err)
		}
	}
	return cacheEntry{record: record, peerID: id}, nil
}

// lookupAt asks one node to resolve address over a lookup stream.
func (p *Peer) lookupAt(ctx context.Context, id libp2ppeer.ID, address string) (*acn.AgentRecord, error) {
	stream, err := p.host.NewStream(ctx, id, ProtocolLookup)
	if err != nil {
		return nil, fmt.Errorf("peer: opening lookup stream to %s: %w", id, err)
	}
	pipe := acn.NewPipe(stream)
	defer pipe.Close()
	return acn.Lookup(pipe, address)
}
