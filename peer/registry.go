// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import (
	"sync"
	"time"

	libp2ppeer "github.com/libp2p/go-libp2p/core/peer"

	"github.com/acn-foundation/acn/acn"
	"github.com/acn-foundation/acn/identity"
	"github.com/acn-foundation/acn/lib/clock"
	"github.com/acn-foundation/acn/monitoring"
)

// registry is the node's routing table. Locally attached agents are
// authoritative for as long as their connection lives; remotely
// resolved records are cached with a TTL and looked up again once it
// lapses. Expired records are treated as absent on read rather than
// reaped by a sweeper.
type registry struct {
	clock clock.Clock
	ttl   time.Duration

	agentsLocal    monitoring.Gauge
	agentsDelegate monitoring.Gauge
	agentsRelay    monitoring.Gauge

	mu    sync.Mutex
	local map[string]*agentConn
	cache map[string]cacheEntry
}

type cacheEntry struct {
	record  *acn.AgentRecord
	peerID  libp2ppeer.ID
	expires time.Time
}

func newRegistry(clk clock.Clock, ttl time.Duration, sink monitoring.Sink) *registry {
	return &registry{
		clock:          clk,
		ttl:            ttl,
		agentsLocal:    sink.NewGauge("acn_agents_local", "Agents attached over the local socket."),
		agentsDelegate: sink.NewGauge("acn_agents_delegate", "Agents attached over the delegate service."),
		agentsRelay:    sink.NewGauge("acn_agents_relay", "Client nodes registered for relaying."),
		local:          make(map[string]*agentConn),
		cache:          make(map[string]cacheEntry),
	}
}

func (r *registry) kindGauge(kind connKind) monitoring.Gauge {
	switch kind {
	case connLocal:
		return r.agentsLocal
	case connDelegate:
		return r.agentsDelegate
	default:
		return r.agentsRelay
	}
}

// addLocal registers conn as the authoritative attachment for its
// agent address. A previous attachment for the same address is closed
// and replaced; re-registration after a dropped connection must win.
func (r *registry) addLocal(conn *agentConn) {
	r.mu.Lock()
	previous := r.local[conn.address()]
	r.local[conn.address()] = conn
	delete(r.cache, conn.address())
	r.mu.Unlock()

	if previous != nil {
		r.kindGauge(previous.kind).Dec()
		previous.close()
	}
	r.kindGauge(conn.kind).Inc()
}

// removeLocal retracts conn. It is a no-op if a newer attachment has
// already replaced it.
func (r *registry) removeLocal(conn *agentConn) {
	r.mu.Lock()
	current, ok := r.local[conn.address()]
	if ok && current == conn {
		delete(r.local, conn.address())
	} else {
		ok = false
	}
	r.mu.Unlock()

	if ok {
		r.kindGauge(conn.kind).Dec()
	}
	conn.close()
}

// lookupLocal returns the live attachment for address, if any. A
// record outside its validity window no longer routes.
func (r *registry) lookupLocal(address string) (*agentConn, bool) {
	r.mu.Lock()
	conn, ok := r.local[address]
	r.mu.Unlock()
	if !ok || !identity.RecordValidAt(conn.record, r.clock.Now()) {
		return nil, false
	}
	return conn, true
}

// localAddresses lists the addresses this node is authoritative for,
// for DHT announcement.
func (r *registry) localAddresses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	addresses := make([]string, 0, len(r.local))
	for address := range r.local {
		addresses = append(addresses, address)
	}
	return addresses
}

// cachePut remembers a remotely resolved record for the TTL.
func (r *registry) cachePut(record *acn.AgentRecord, peerID libp2ppeer.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[record.Address] = cacheEntry{
		record:  record,
		peerID:  peerID,
		expires: r.clock.Now().Add(r.ttl),
	}
}

// cacheGet returns the cached resolution for address if it is still
// within both the TTL and the record's own validity window.
func (r *registry) cacheGet(address string) (cacheEntry, bool) {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.cache[address]
	if !ok {
		return cacheEntry{}, false
	}
	if now.After(entry.expires) || !identity.RecordValidAt(entry.record, now) {
		delete(r.cache, address)
		return cacheEntry{}, false
	}
	return entry, true
}

// cacheDrop forgets a cached resolution, typically after delivery
// through it failed.
func (r *registry) cacheDrop(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, address)
}
