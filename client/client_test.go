// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package client_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/acn-foundation/acn/acn"
	"github.com/acn-foundation/acn/client"
	"github.com/acn-foundation/acn/identity"
	"github.com/acn-foundation/acn/lib/testutil"
	"github.com/acn-foundation/acn/peer"
)

var (
	agentKeys = []string{
		"3e7a1f43b2d8a4b9f63a2ffeb1d597f971a8db7ffd95453173268b453106cadc",
		"92c36941ae78c1b93e5f4bebcf2b40be0af37573aa263ebb70b769ea235b88b6",
	}
	nodeKeys = []string{
		"91a90b5be4817c46e06f0e792dd9d9ef3ceb2dbb5ff5c45125153d289d515ce1",
		"5ee086c5c3df6f641e36e083769d6a03f918b33e4505b1102d2be7a75bb2ae0f",
	}
	clientKey = "d31485403d0cce93b0c48a2fad2acae61a68396e93a602acfcd08dadd7ba12ae"
)

const testTimeout = 20 * time.Second

func startRelay(t *testing.T, nodeKey string) *peer.Peer {
	t.Helper()
	p, err := peer.New(peer.Config{
		PrivateKeyHex: nodeKey,
		ListenAddress: "/ip4/127.0.0.1/tcp/0",
		LocalAddress:  "127.0.0.1:0",
		AckTimeout:    5 * time.Second,
		LookupTimeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("peer.New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("peer.Start: %v", err)
	}
	t.Cleanup(func() {
		if p.State() == peer.StateRunning {
			_ = p.Close()
		}
	})
	return p
}

func newTestClient(t *testing.T, relay *peer.Peer, agentKey string) *client.Client {
	t.Helper()
	clientPublicKey, err := identity.PublicKeyHexFromPrivateHex(clientKey)
	if err != nil {
		t.Fatalf("PublicKeyHexFromPrivateHex: %v", err)
	}
	record, err := identity.SignRecord("fetchai", agentKey, clientPublicKey, "acn")
	if err != nil {
		t.Fatalf("identity.SignRecord: %v", err)
	}
	c, err := client.New(client.Config{
		PrivateKeyHex: clientKey,
		Record:        record,
		RelayPeer:     relay.Multiaddrs()[0],
		AckTimeout:    5 * time.Second,
	})
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// relayAgent attaches a plain framed-TCP agent to the relay's local
// listener so the client has a correspondent.
type relayAgent struct {
	record  *acn.AgentRecord
	pipe    acn.Pipe
	inbound chan *acn.Envelope
	acks    chan *acn.Status
}

func attachRelayAgent(t *testing.T, node *peer.Peer, agentKey string) *relayAgent {
	t.Helper()
	record, err := identity.SignRecord("fetchai", agentKey, node.PublicKeyHex(), "acn")
	if err != nil {
		t.Fatalf("identity.SignRecord: %v", err)
	}
	tcpConn, err := net.Dial("tcp", node.LocalAddress())
	if err != nil {
		t.Fatalf("dialing node: %v", err)
	}
	pipe := acn.NewPipe(tcpConn)
	if err := acn.SendRegister(pipe, record); err != nil {
		t.Fatalf("registering agent: %v", err)
	}
	agent := &relayAgent{
		record:  record,
		pipe:    pipe,
		inbound: make(chan *acn.Envelope, 8),
		acks:    make(chan *acn.Status, 1),
	}
	go func() {
		for {
			m, err := acn.ReadMessage(pipe)
			if err != nil {
				return
			}
			switch {
			case m.Status != nil:
				agent.acks <- m.Status
			case m.Envelope != nil:
				env, err := acn.UnmarshalEnvelope(m.Envelope.Envelope)
				if err != nil {
					continue
				}
				agent.inbound <- env
				_ = acn.SendSuccess(pipe)
			}
		}
	}()
	t.Cleanup(func() { _ = pipe.Close() })
	return agent
}

func TestClientRegisterAndExchange(t *testing.T) {
	relay := startRelay(t, nodeKeys[0])
	alice := attachRelayAgent(t, relay, agentKeys[0])
	c := newTestClient(t, relay, agentKeys[1])

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("client.Start: %v", err)
	}
	if c.State() != client.StateRegistered {
		t.Fatalf("state = %s, want registered", c.State())
	}

	// Client to local agent through the relay.
	err := c.Send(ctx, &acn.Envelope{
		To:      alice.record.Address,
		Sender:  c.Record().Address,
		Message: []byte("hi from the client"),
	})
	if err != nil {
		t.Fatalf("client.Send: %v", err)
	}
	env := testutil.RequireReceive(t, (<-chan *acn.Envelope)(alice.inbound), testTimeout)
	if string(env.Message) != "hi from the client" {
		t.Fatalf("payload = %q", env.Message)
	}

	// And the reply comes back over the client's inbound stream.
	reply := &acn.Envelope{
		To:      c.Record().Address,
		Sender:  alice.record.Address,
		Message: []byte("hi back"),
	}
	replyBytes, err := reply.Marshal()
	if err != nil {
		t.Fatalf("marshaling reply: %v", err)
	}
	if err := acn.SendEnvelope(alice.pipe, replyBytes, alice.record); err != nil {
		t.Fatalf("sending reply: %v", err)
	}
	status := testutil.RequireReceive(t, (<-chan *acn.Status)(alice.acks), testTimeout)
	if status.Code != acn.StatusSuccess {
		t.Fatalf("reply status = %s, want success", status.Code)
	}
	received := testutil.RequireReceive(t, c.Inbound(), testTimeout)
	if string(received.Message) != "hi back" {
		t.Fatalf("client received %q", received.Message)
	}
}

func TestClientFailsFastWhenDisconnected(t *testing.T) {
	relay := startRelay(t, nodeKeys[0])
	c := newTestClient(t, relay, agentKeys[1])

	// Never started: sends fail immediately with the not-ready code.
	err := c.Send(context.Background(), &acn.Envelope{
		To:     "fetch1nobody",
		Sender: c.Record().Address,
	})
	if acn.StatusCodeOf(err) != acn.StatusErrorAgentNotReady {
		t.Fatalf("Send error = %v, want agent-not-ready", err)
	}
}

func TestClientDetectsRelayLoss(t *testing.T) {
	relay := startRelay(t, nodeKeys[1])
	c := newTestClient(t, relay, agentKeys[0])

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("client.Start: %v", err)
	}
	if err := relay.Close(); err != nil {
		t.Fatalf("relay.Close: %v", err)
	}

	deadline := time.Now().Add(testTimeout)
	for c.State() != client.StateDisconnected {
		if time.Now().After(deadline) {
			t.Fatalf("client state = %s, never saw the relay go away", c.State())
		}
		time.Sleep(10 * time.Millisecond)
	}
	err := c.Send(ctx, &acn.Envelope{
		To:     "fetch1nobody",
		Sender: c.Record().Address,
	})
	if acn.StatusCodeOf(err) != acn.StatusErrorAgentNotReady {
		t.Fatalf("Send error = %v, want agent-not-ready", err)
	}
}

func TestFreshClientReusesRecord(t *testing.T) {
	relay := startRelay(t, nodeKeys[0])

	first := newTestClient(t, relay, agentKeys[0])
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first client Start: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("first client Close: %v", err)
	}

	// The same agent record is still valid; a replacement client
	// registers without friction.
	second := newTestClient(t, relay, agentKeys[0])
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second client Start: %v", err)
	}
	if second.State() != client.StateRegistered {
		t.Fatalf("second client state = %s, want registered", second.State())
	}
}

func TestClientRejectsMismatchedRecord(t *testing.T) {
	relay := startRelay(t, nodeKeys[0])
	// Record authorizing the relay's key instead of the client's.
	record, err := identity.SignRecord("fetchai", agentKeys[0], relay.PublicKeyHex(), "acn")
	if err != nil {
		t.Fatalf("identity.SignRecord: %v", err)
	}
	_, err = client.New(client.Config{
		PrivateKeyHex: clientKey,
		Record:        record,
		RelayPeer:     relay.Multiaddrs()[0],
	})
	if err == nil {
		t.Fatal("client.New accepted a record authorizing another peer")
	}
}
