// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p"
	kaddht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	libp2ppeer "github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/multiformats/go-multiaddr"
	"github.com/multiformats/go-multihash"

	"github.com/acn-foundation/acn/acn"
	"github.com/acn-foundation/acn/identity"
	"github.com/acn-foundation/acn/lib/clock"
	"github.com/acn-foundation/acn/monitoring"
)

// Protocol IDs spoken between nodes. Envelope carries agent traffic,
// Lookup resolves addresses, Register attaches client nodes for
// relaying.
const (
	ProtocolEnvelope protocol.ID = "/acn/envelope/1.0.0"
	ProtocolLookup   protocol.ID = "/acn/lookup/1.0.0"
	ProtocolRegister protocol.ID = "/acn/register/1.0.0"
)

// dhtProtocolPrefix namespaces the kademlia RPCs so ACN nodes never
// mingle with the public IPFS DHT.
const dhtProtocolPrefix protocol.ID = "/acn"

// Peer is a full ACN node: a DHT server that routes envelopes between
// agents, serves address lookups, and optionally relays for client
// nodes and fronts plain-TCP delegate connections.
type Peer struct {
	config       Config
	logger       *slog.Logger
	clock        clock.Clock
	publicKeyHex string

	host host.Host
	dht  *kaddht.IpfsDHT

	registry *registry
	outbox   *outbox
	store    *recordStore

	envelopesDelivered monitoring.Counter
	envelopesFailed    monitoring.Counter
	lookupsServed      monitoring.Counter
	dhtResolutions     monitoring.Counter

	delegateListener net.Listener
	localListener    net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	state State
}

// New validates config and builds a stopped Peer. The network side
// comes up in Start.
func New(config Config) (*Peer, error) {
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	publicKeyHex, err := identity.PublicKeyHexFromPrivateHex(config.PrivateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("peer: deriving node public key: %w", err)
	}
	p := &Peer{
		config:       config,
		logger:       config.Logger,
		clock:        config.Clock,
		publicKeyHex: publicKeyHex,
		registry:     newRegistry(config.Clock, config.CacheTTL, config.Monitoring),
		envelopesDelivered: config.Monitoring.NewCounter(
			"acn_envelopes_delivered", "Envelopes acknowledged by their destination."),
		envelopesFailed: config.Monitoring.NewCounter(
			"acn_envelopes_failed", "Envelopes that could not be delivered."),
		lookupsServed: config.Monitoring.NewCounter(
			"acn_lookups_served", "Lookup requests answered for other nodes."),
		dhtResolutions: config.Monitoring.NewCounter(
			"acn_dht_resolutions", "Addresses resolved through the DHT."),
		state: StateStopped,
	}
	return p, nil
}

// Start brings the node online: libp2p host, DHT, stream handlers,
// optional delegate and local listeners, stored record cache, and the
// announcement loop. ctx bounds startup only; the node's lifetime
// ends with Close.
func (p *Peer) Start(ctx context.Context) error {
	if err := p.transition(StateStopped, StateStarting); err != nil {
		return err
	}
	if err := p.start(ctx); err != nil {
		p.teardown()
		p.mu.Lock()
		p.state = StateStopped
		p.mu.Unlock()
		return err
	}
	if err := p.transition(StateListening, StateRunning); err != nil {
		return err
	}
	p.logger.Info("node running",
		"peer_id", p.host.ID().String(),
		"addresses", p.Multiaddrs())
	return nil
}

func (p *Peer) start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(context.Background())

	privateKey, _, err := identity.KeyPairFromHex(p.config.PrivateKeyHex)
	if err != nil {
		return fmt.Errorf("peer: loading node key: %w", err)
	}
	p.host, err = libp2p.New(
		libp2p.Identity(privateKey),
		libp2p.ListenAddrStrings(p.config.ListenAddress),
	)
	if err != nil {
		return fmt.Errorf("peer: creating host: %w", err)
	}
	p.dht, err = kaddht.New(p.ctx, p.host,
		kaddht.Mode(kaddht.ModeServer),
		kaddht.ProtocolPrefix(dhtProtocolPrefix),
	)
	if err != nil {
		return fmt.Errorf("peer: creating dht: %w", err)
	}
	p.outbox = newOutbox(p.ctx, p.dialEnvelopePipe, p.logger)
	p.host.SetStreamHandler(ProtocolEnvelope, p.handleEnvelopeStream)
	p.host.SetStreamHandler(ProtocolLookup, p.handleLookupStream)
	p.host.SetStreamHandler(ProtocolRegister, p.handleRegisterStream)

	if p.config.StoragePath != "" {
		p.store, err = newRecordStore(p.config.StoragePath)
		if err != nil {
			return err
		}
		p.seedCacheFromStore()
	}
	if p.config.DelegateAddress != "" {
		p.delegateListener, err = net.Listen("tcp", p.config.DelegateAddress)
		if err != nil {
			return fmt.Errorf("peer: delegate listener on %s: %w", p.config.DelegateAddress, err)
		}
		p.wg.Add(1)
		go p.acceptLoop(p.delegateListener, connDelegate)
	}
	if p.config.LocalAddress != "" {
		p.localListener, err = net.Listen("tcp", p.config.LocalAddress)
		if err != nil {
			return fmt.Errorf("peer: local listener on %s: %w", p.config.LocalAddress, err)
		}
		p.wg.Add(1)
		go p.acceptLoop(p.localListener, connLocal)
	}

	// All listeners are bound; what remains is joining the overlay.
	if err := p.transition(StateStarting, StateListening); err != nil {
		return err
	}
	if err := p.connectBootstrapPeers(ctx); err != nil {
		return err
	}
	if err := p.dht.Bootstrap(p.ctx); err != nil {
		return fmt.Errorf("peer: bootstrapping dht: %w", err)
	}

	p.wg.Add(1)
	go p.announceLoop()
	return nil
}

func (p *Peer) connectBootstrapPeers(ctx context.Context) error {
	for _, address := range p.config.BootstrapPeers {
		addr, err := multiaddr.NewMultiaddr(address)
		if err != nil {
			return fmt.Errorf("peer: parsing bootstrap address %q: %w", address, err)
		}
		info, err := libp2ppeer.AddrInfoFromP2pAddr(addr)
		if err != nil {
			return fmt.Errorf("peer: bootstrap address %q has no peer id: %w", address, err)
		}
		if err := p.host.Connect(ctx, *info); err != nil {
			return fmt.Errorf("peer: connecting to bootstrap peer %s: %w", info.ID, err)
		}
		p.logger.Info("connected to bootstrap peer", "peer_id", info.ID.String())
	}
	return nil
}

// seedCacheFromStore loads persisted records as cache entries. The
// proof is re-checked on load so a tampered store cannot plant
// routes.
func (p *Peer) seedCacheFromStore() {
	records, failures := p.store.LoadAll()
	for _, err := range failures {
		p.logger.Warn("skipping stored record", "error", err)
	}
	now := p.clock.Now()
	seeded := 0
	for _, record := range records {
		if code, err := identity.CheckRecord(record, record.Address, record.PeerPublicKey, now); err != nil {
			p.logger.Warn("dropping stored record",
				"agent", record.Address, "status", code.String(), "error", err)
			_ = p.store.Remove(record.Address)
			continue
		}
		id, err := identity.PeerIDFromPublicKeyHex(record.PeerPublicKey)
		if err != nil {
			p.logger.Warn("dropping stored record", "agent", record.Address, "error", err)
			continue
		}
		if id == p.host.ID() {
			// The record names this node as the representative, so it
			// belongs to an agent that was attached here before the
			// restart. Until the agent reattaches there is no route;
			// seeding it would make the node dial itself.
			continue
		}
		p.registry.cachePut(record, id)
		seeded++
	}
	if seeded > 0 {
		p.logger.Info("seeded resolution cache from store", "records", seeded)
	}
}

// Close shuts the node down: listeners stop accepting, agent
// connections close, the outbox drains, and the host and DHT are torn
// down. Errors are aggregated, not short-circuited.
func (p *Peer) Close() error {
	if err := p.transition(StateRunning, StateClosing); err != nil {
		return err
	}
	err := p.teardown()
	p.mu.Lock()
	p.state = StateStopped
	p.mu.Unlock()
	return err
}

func (p *Peer) teardown() error {
	var errs []error
	if p.cancel != nil {
		p.cancel()
	}
	if p.delegateListener != nil {
		errs = append(errs, p.delegateListener.Close())
	}
	if p.localListener != nil {
		errs = append(errs, p.localListener.Close())
	}
	if p.dht != nil {
		errs = append(errs, p.dht.Close())
	}
	if p.host != nil {
		errs = append(errs, p.host.Close())
	}
	if p.store != nil {
		errs = append(errs, p.store.Close())
	}
	if p.outbox != nil {
		p.outbox.wait()
	}
	p.wg.Wait()
	return errors.Join(errs...)
}

// ID is the node's libp2p peer ID.
func (p *Peer) ID() libp2ppeer.ID { return p.host.ID() }

// PublicKeyHex is the node's transport public key, the value agents
// put in their records to authorize this node.
func (p *Peer) PublicKeyHex() string { return p.publicKeyHex }

// Multiaddrs lists the node's dialable addresses including the /p2p/
// component, suitable as bootstrap or entry addresses for other
// nodes. A configured public address takes precedence.
func (p *Peer) Multiaddrs() []string {
	suffix := "/p2p/" + p.host.ID().String()
	if p.config.PublicAddress != "" {
		return []string{p.config.PublicAddress + suffix}
	}
	addrs := p.host.Addrs()
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, addr.String()+suffix)
	}
	return out
}

// DelegateAddress is the delegate listener's bound address, useful
// when the configured port was 0.
func (p *Peer) DelegateAddress() string {
	if p.delegateListener == nil {
		return ""
	}
	return p.delegateListener.Addr().String()
}

// LocalAddress is the local agent listener's bound address.
func (p *Peer) LocalAddress() string {
	if p.localListener == nil {
		return ""
	}
	return p.localListener.Addr().String()
}

// addressCID maps an agent address onto the DHT keyspace.
func addressCID(address string) (cid.Cid, error) {
	prefix := cid.Prefix{
		Version:  1,
		Codec:    cid.Raw,
		MhType:   multihash.SHA2_256,
		MhLength: -1,
	}
	c, err := prefix.Sum([]byte(address))
	if err != nil {
		return cid.Cid{}, fmt.Errorf("peer: hashing address %q: %w", address, err)
	}
	return c, nil
}

// announce publishes this node as the provider for address. Announce
// failures are logged, not fatal: a lone node with an empty routing
// table has nobody to tell yet, and the announce loop retries.
func (p *Peer) announce(address string) {
	c, err := addressCID(address)
	if err != nil {
		p.logger.Warn("cannot announce agent", "agent", address, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(p.ctx, p.config.LookupTimeout)
	defer cancel()
	if err := p.dht.Provide(ctx, c, true); err != nil {
		p.logger.Debug("announce failed", "agent", address, "error", err)
	}
}

// announceLoop re-announces every locally attached agent on an
// interval, keeping provider records alive across DHT churn.
func (p *Peer) announceLoop() {
	defer p.wg.Done()
	ticker := p.clock.NewTicker(p.config.AnnounceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, address := range p.registry.localAddresses() {
				p.announce(address)
			}
		case <-p.ctx.Done():
			return
		}
	}
}

// dialEnvelopePipe opens a fresh framed envelope stream to a remote
// node; the outbox owns the returned pipe.
func (p *Peer) dialEnvelopePipe(ctx context.Context, id libp2ppeer.ID) (acn.Pipe, error) {
	stream, err := p.host.NewStream(ctx, id, ProtocolEnvelope)
	if err != nil {
		return nil, err
	}
	return acn.NewPipe(stream), nil
}
