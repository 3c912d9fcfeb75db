// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	libp2ppeer "github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/acn-foundation/acn/acn"
	"github.com/acn-foundation/acn/identity"
	"github.com/acn-foundation/acn/lib/clock"
	"github.com/acn-foundation/acn/peer"
)

// State is the client's connection state. The lifecycle is
// Disconnected → Connecting → Registered, then Closing → Closed; a
// relay failure at any point drops the client back to Disconnected,
// from which only a fresh Start (on a fresh client) recovers.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateRegistered
	StateClosing
	StateClosed
)

var stateNames = map[State]string{
	StateDisconnected: "disconnected",
	StateConnecting:   "connecting",
	StateRegistered:   "registered",
	StateClosing:      "closing",
	StateClosed:       "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

const defaultAckTimeout = 10 * time.Second

// Config configures a Client.
type Config struct {
	// PrivateKeyHex is the client node's secp256k1 transport key. The
	// agent's record must authorize this key.
	PrivateKeyHex string

	// Record is the agent's signed record naming this client's public
	// key as its representative.
	Record *acn.AgentRecord

	// RelayPeer is the multiaddr (with /p2p/ suffix) of the full node
	// to join through.
	RelayPeer string

	// InboundBuffer is the capacity of the inbound envelope channel.
	// Zero means a small default.
	InboundBuffer int

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Clock defaults to the real clock.
	Clock clock.Clock

	// AckTimeout bounds the wait for delivery acknowledgements.
	AckTimeout time.Duration
}

// Client is a relay-attached ACN node representing a single agent.
type Client struct {
	config Config
	logger *slog.Logger
	clock  clock.Clock

	host    host.Host
	relayID libp2ppeer.ID
	inbound chan *acn.Envelope

	// registration stream, held open as the liveness signal.
	registerPipe acn.Pipe

	// sendMu orders outbound envelopes: one send completes (ack and
	// all) before the next begins, which is what keeps two envelopes
	// to the same destination from overtaking each other.
	sendMu       sync.Mutex
	envelopePipe acn.Pipe

	// done closes when Close begins, releasing any handler blocked on
	// the inbound channel.
	done     chan struct{}
	doneOnce sync.Once

	mu    sync.Mutex
	state State
}

// New validates config and builds a disconnected client.
func New(config Config) (*Client, error) {
	if config.PrivateKeyHex == "" {
		return nil, errors.New("client: config requires a private key")
	}
	if config.Record == nil {
		return nil, errors.New("client: config requires an agent record")
	}
	if config.RelayPeer == "" {
		return nil, errors.New("client: config requires a relay peer address")
	}
	publicKeyHex, err := identity.PublicKeyHexFromPrivateHex(config.PrivateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("client: deriving public key: %w", err)
	}
	if config.Record.PeerPublicKey != publicKeyHex {
		return nil, fmt.Errorf("client: record authorizes peer key %s, not this client's %s",
			config.Record.PeerPublicKey, publicKeyHex)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.AckTimeout <= 0 {
		config.AckTimeout = defaultAckTimeout
	}
	if config.InboundBuffer <= 0 {
		config.InboundBuffer = 16
	}
	return &Client{
		config:  config,
		logger:  config.Logger,
		clock:   config.Clock,
		inbound: make(chan *acn.Envelope, config.InboundBuffer),
		done:    make(chan struct{}),
		state:   StateDisconnected,
	}, nil
}

// State reports the client's connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) transition(expected, next State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != expected {
		return fmt.Errorf("client: cannot move to %s from %s (need %s)", next, c.state, expected)
	}
	c.state = next
	return nil
}

// Inbound is the stream of envelopes delivered to this client's
// agent. After Close it stops delivering but stays open.
func (c *Client) Inbound() <-chan *acn.Envelope { return c.inbound }

// Record is the agent record this client represents.
func (c *Client) Record() *acn.AgentRecord { return c.config.Record }

// Start connects to the relay peer and registers the agent. A
// registration refusal comes back as an *acn.Error carrying the
// relay's status code, and the client returns to Disconnected.
func (c *Client) Start(ctx context.Context) error {
	if err := c.transition(StateDisconnected, StateConnecting); err != nil {
		return err
	}
	if err := c.start(ctx); err != nil {
		c.disconnect()
		return err
	}
	if err := c.transition(StateConnecting, StateRegistered); err != nil {
		return err
	}
	c.logger.Info("registered with relay",
		"agent", c.config.Record.Address, "relay", c.relayID.String())
	return nil
}

func (c *Client) start(ctx context.Context) error {
	privateKey, _, err := identity.KeyPairFromHex(c.config.PrivateKeyHex)
	if err != nil {
		return fmt.Errorf("client: loading key: %w", err)
	}
	// No listen addresses: inbound streams arrive over the outbound
	// connection to the relay.
	c.host, err = libp2p.New(libp2p.Identity(privateKey), libp2p.NoListenAddrs)
	if err != nil {
		return fmt.Errorf("client: creating host: %w", err)
	}
	c.host.SetStreamHandler(peer.ProtocolEnvelope, c.handleEnvelopeStream)

	addr, err := multiaddr.NewMultiaddr(c.config.RelayPeer)
	if err != nil {
		return fmt.Errorf("client: parsing relay address %q: %w", c.config.RelayPeer, err)
	}
	info, err := libp2ppeer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return fmt.Errorf("client: relay address %q has no peer id: %w", c.config.RelayPeer, err)
	}
	c.relayID = info.ID
	if err := c.host.Connect(ctx, *info); err != nil {
		return fmt.Errorf("client: connecting to relay %s: %w", info.ID, err)
	}

	stream, err := c.host.NewStream(ctx, c.relayID, peer.ProtocolRegister)
	if err != nil {
		return fmt.Errorf("client: opening registration stream: %w", err)
	}
	pipe := acn.NewPipe(stream)
	if err := acn.SendRegister(pipe, c.config.Record); err != nil {
		_ = pipe.Close()
		return err
	}
	c.registerPipe = pipe

	// The registration stream goes quiet after the handshake; a read
	// error on it means the relay is gone.
	go func() {
		for {
			if _, err := pipe.Read(); err != nil {
				c.disconnect()
				return
			}
		}
	}()
	return nil
}

// disconnect drops to Disconnected unless a close is in progress.
func (c *Client) disconnect() {
	c.mu.Lock()
	if c.state == StateClosing || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	wasRegistered := c.state == StateRegistered
	c.state = StateDisconnected
	c.mu.Unlock()
	if wasRegistered {
		c.logger.Warn("relay connection lost", "relay", c.relayID.String())
	}
}

// Send delivers one envelope through the relay and waits for the
// network's acknowledgement. A disconnected client fails immediately
// with a StatusErrorAgentNotReady-coded error rather than queueing:
// the caller owns the reconnect decision.
func (c *Client) Send(ctx context.Context, env *acn.Envelope) error {
	if c.State() != StateRegistered {
		return acn.Errorf(acn.StatusErrorAgentNotReady,
			"agent %s is not connected to the network", c.config.Record.Address)
	}
	envelope, err := env.Marshal()
	if err != nil {
		return acn.NewError(acn.StatusErrorDecode, err)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	retried := false
	for {
		if c.envelopePipe == nil {
			stream, err := c.host.NewStream(ctx, c.relayID, peer.ProtocolEnvelope)
			if err != nil {
				c.disconnect()
				return fmt.Errorf("client: opening envelope stream: %w", err)
			}
			c.envelopePipe = acn.NewPipe(stream)
		}
		err := c.exchange(envelope)
		if err == nil {
			return nil
		}
		var coded *acn.Error
		if errors.As(err, &coded) {
			return err
		}
		_ = c.envelopePipe.Close()
		c.envelopePipe = nil
		if retried {
			c.disconnect()
			return err
		}
		retried = true
	}
}

func (c *Client) exchange(envelope []byte) error {
	if err := acn.SendEnvelope(c.envelopePipe, envelope, c.config.Record); err != nil {
		return err
	}
	status, err := acn.ReadStatus(c.envelopePipe)
	if err != nil {
		return err
	}
	if status.Code != acn.StatusSuccess {
		return acn.Errorf(status.Code, "envelope refused: %s", strings.Join(status.Messages, "; "))
	}
	return nil
}

// handleEnvelopeStream receives envelopes addressed to this client's
// agent, acknowledging each one. Envelopes for anyone else, and
// envelopes with a broken sender proof, are refused.
func (c *Client) handleEnvelopeStream(stream network.Stream) {
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
		if m.Envelope == nil {
			_ = acn.SendError(pipe, acn.StatusErrorUnexpectedPayload,
				"envelope stream accepts only envelopes")
			continue
		}
		env, err := acn.UnmarshalEnvelope(m.Envelope.Envelope)
		if err != nil {
			_ = acn.SendError(pipe, acn.StatusErrorDecode, err.Error())
			continue
		}
		if env.To != c.config.Record.Address {
			_ = acn.SendError(pipe, acn.StatusErrorUnknownAgentAddress,
				"agent "+env.To+" is not this client")
			continue
		}
		if m.Envelope.Record != nil {
			if code, err := identity.CheckRecord(
				m.Envelope.Record, env.Sender, m.Envelope.Record.PeerPublicKey, c.clock.Now()); err != nil {
				_ = acn.SendError(pipe, code, err.Error())
				continue
			}
		}
		select {
		case c.inbound <- env:
		case <-c.done:
			return
		}
		if err := acn.SendSuccess(pipe); err != nil {
			return
		}
	}
}

// Close disconnects from the relay and releases the host. Inbound
// stops delivering; the channel itself stays open so concurrent
// receivers simply block on an empty channel.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosing
	c.mu.Unlock()
	c.doneOnce.Do(func() { close(c.done) })

	var errs []error
	if c.registerPipe != nil {
		errs = append(errs, c.registerPipe.Close())
	}
	c.sendMu.Lock()
	if c.envelopePipe != nil {
		errs = append(errs, c.envelopePipe.Close())
		c.envelopePipe = nil
	}
	c.sendMu.Unlock()
	if c.host != nil {
		errs = append(errs, c.host.Close())
	}

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	return errors.Join(errs...)
}
