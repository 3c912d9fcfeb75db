// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package acn

import (
	"errors"
	"fmt"

	"github.com/acn-foundation/acn/lib/codec"
)

// Version is the ACN protocol version this node speaks. Carried on
// every wire message; a mismatch is rejected with
// StatusErrorUnsupportedVersion.
const Version = "1.0.0"

// AgentRecord is the signed statement "agent Address is reachable via
// the peer holding PeerPublicKey". It is the sole authentication
// primitive in the network: there is no certificate authority, only
// the agent's ledger signature over the representing peer's public
// key. See package identity for verification.
type AgentRecord struct {
	// ServiceID names the service the record was issued for.
	ServiceID string `cbor:"service_id"`

	// LedgerID selects the identity scheme (signature algorithm and
	// address derivation) the agent's key belongs to.
	LedgerID string `cbor:"ledger_id"`

	// Address is the agent's wallet address, derived from PublicKey
	// under LedgerID's rules.
	Address string `cbor:"address"`

	// PublicKey is the agent's ledger public key, hex encoded.
	PublicKey string `cbor:"public_key"`

	// PeerPublicKey is the transport identity key of the node
	// authorized to represent this agent, hex encoded.
	PeerPublicKey string `cbor:"peer_public_key"`

	// Signature is the agent's signature over the bytes of
	// PeerPublicKey, using the agent's ledger key.
	Signature string `cbor:"signature"`

	// NotBefore and NotAfter bound the record's validity window in
	// unix seconds. Zero means unbounded on that side.
	NotBefore int64 `cbor:"not_before,omitempty"`
	NotAfter  int64 `cbor:"not_after,omitempty"`
}

// Register asks a node to accept an agent under the attached record.
// It is the handshake frame on every agent-facing transport.
type Register struct {
	Record *AgentRecord `cbor:"record"`
}

// LookupRequest asks a peer to resolve an agent address to the record
// of the agent and its representing peer.
type LookupRequest struct {
	AgentAddress string `cbor:"agent_address"`
}

// LookupResponse carries the resolved record for a LookupRequest.
type LookupResponse struct {
	Record *AgentRecord `cbor:"record"`
}

// EnvelopeMessage carries one serialized envelope between nodes. The
// envelope bytes are opaque to the node; Record, when present, is the
// sender's agent record so the receiving peer can check the proof of
// representation before delivering.
type EnvelopeMessage struct {
	Envelope []byte       `cbor:"envelope"`
	Record   *AgentRecord `cbor:"record,omitempty"`
}

// Message is the ACN wire message: exactly one of the payload fields
// is set. The closed variant set is enforced by Encode and Decode;
// constructing a Message by hand with zero or several variants is a
// programming error that Encode rejects.
type Message struct {
	Register       *Register
	LookupRequest  *LookupRequest
	LookupResponse *LookupResponse
	Envelope       *EnvelopeMessage
	Status         *Status
}

// wireMessage is the CBOR shape of Message: a version tag plus one
// optional field per variant.
type wireMessage struct {
	Version        string           `cbor:"version"`
	Register       *Register        `cbor:"register,omitempty"`
	LookupRequest  *LookupRequest   `cbor:"lookup_request,omitempty"`
	LookupResponse *LookupResponse  `cbor:"lookup_response,omitempty"`
	Envelope       *EnvelopeMessage `cbor:"aea_envelope,omitempty"`
	Status         *Status          `cbor:"status,omitempty"`
}

// variantCount returns how many payload variants are set.
func (m Message) variantCount() int {
	count := 0
	if m.Register != nil {
		count++
	}
	if m.LookupRequest != nil {
		count++
	}
	if m.LookupResponse != nil {
		count++
	}
	if m.Envelope != nil {
		count++
	}
	if m.Status != nil {
		count++
	}
	return count
}

// Encode serializes m. Returns an error if m does not hold exactly one
// payload variant.
func Encode(m Message) ([]byte, error) {
	if n := m.variantCount(); n != 1 {
		return nil, fmt.Errorf("acn: message must hold exactly one variant, has %d", n)
	}
	wire := wireMessage{
		Version:        Version,
		Register:       m.Register,
		LookupRequest:  m.LookupRequest,
		LookupResponse: m.LookupResponse,
		Envelope:       m.Envelope,
		Status:         m.Status,
	}
	data, err := codec.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("acn: encoding message: %w", err)
	}
	return data, nil
}

// Decode parses an ACN wire message. Failures return an *Error whose
// code tells the caller what Status to send back: StatusErrorDecode
// for malformed bytes, StatusErrorUnsupportedVersion for a version
// mismatch, StatusErrorUnexpectedPayload for a union with zero or
// multiple variants.
func Decode(data []byte) (Message, error) {
	var wire wireMessage
	if err := codec.Unmarshal(data, &wire); err != nil {
		return Message{}, NewError(StatusErrorDecode, fmt.Errorf("decoding message: %w", err))
	}
	if wire.Version != Version {
		return Message{}, Errorf(StatusErrorUnsupportedVersion,
			"unsupported protocol version %q, this node speaks %q", wire.Version, Version)
	}
	m := Message{
		Register:       wire.Register,
		LookupRequest:  wire.LookupRequest,
		LookupResponse: wire.LookupResponse,
		Envelope:       wire.Envelope,
		Status:         wire.Status,
	}
	if n := m.variantCount(); n != 1 {
		return Message{}, Errorf(StatusErrorUnexpectedPayload,
			"message must hold exactly one variant, has %d", n)
	}
	return m, nil
}

// ErrNoRecord is returned when a message that requires an agent record
// arrives without one.
var ErrNoRecord = errors.New("acn: message carries no agent record")
