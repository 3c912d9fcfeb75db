// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import (
	"errors"
	"log/slog"
	"time"

	"github.com/acn-foundation/acn/lib/clock"
	"github.com/acn-foundation/acn/monitoring"
)

// Defaults for the timing knobs in Config. They match the behavior of
// the network's deployed nodes; tests shrink them.
const (
	DefaultAckTimeout       = 10 * time.Second
	DefaultLookupTimeout    = 20 * time.Second
	DefaultAnnounceInterval = 30 * time.Minute
	DefaultCacheTTL         = time.Hour
)

// Config configures a Peer. PrivateKeyHex and ListenAddress are
// required; everything else has a working default.
type Config struct {
	// PrivateKeyHex is the node's secp256k1 identity key, hex encoded.
	// It determines the node's peer ID and is the key agents authorize
	// in their records.
	PrivateKeyHex string

	// ListenAddress is the multiaddr the libp2p host listens on, e.g.
	// /ip4/0.0.0.0/tcp/9000.
	ListenAddress string

	// PublicAddress, when set, is the multiaddr advertised to other
	// nodes instead of the listen address (NAT'd deployments).
	PublicAddress string

	// BootstrapPeers are multiaddrs (with /p2p/ suffix) of existing
	// nodes to join the overlay through. Empty means this node starts
	// a new overlay.
	BootstrapPeers []string

	// DelegateAddress, when set, is a TCP host:port on which the node
	// accepts framed connections from processes that are not libp2p
	// nodes at all.
	DelegateAddress string

	// LocalAddress, when set, is a TCP host:port reserved for the
	// co-located agent process. It speaks the same handshake and
	// framing as the delegate service.
	LocalAddress string

	// StoragePath, when set, is a directory where accepted agent
	// records are persisted across restarts.
	StoragePath string

	// Monitoring receives the node's gauges and counters. Defaults to
	// a no-op sink.
	Monitoring monitoring.Sink

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Clock defaults to the real clock. Tests inject a fake to drive
	// cache expiry deterministically.
	Clock clock.Clock

	// AckTimeout bounds the wait for an envelope acknowledgement.
	AckTimeout time.Duration

	// LookupTimeout bounds a full DHT resolution.
	LookupTimeout time.Duration

	// AnnounceInterval is how often locally registered addresses are
	// re-announced on the DHT.
	AnnounceInterval time.Duration

	// CacheTTL bounds how long a remotely resolved record is reused
	// before being looked up again.
	CacheTTL time.Duration
}

func (c *Config) applyDefaults() error {
	if c.PrivateKeyHex == "" {
		return errors.New("peer: config requires a private key")
	}
	if c.ListenAddress == "" {
		return errors.New("peer: config requires a listen address")
	}
	if c.Monitoring == nil {
		c.Monitoring = monitoring.NewNopSink()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = DefaultAckTimeout
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = DefaultLookupTimeout
	}
	if c.AnnounceInterval <= 0 {
		c.AnnounceInterval = DefaultAnnounceInterval
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	return nil
}
