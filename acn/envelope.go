// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package acn

import (
	"fmt"

	"github.com/acn-foundation/acn/lib/codec"
)

// Envelope is the opaque message unit exchanged between agents. Nodes
// inspect only To and Sender for routing; Message is never interpreted.
// An Envelope is immutable once created.
type Envelope struct {
	// To is the destination agent's wallet address.
	To string `cbor:"to"`

	// Sender is the originating agent's wallet address.
	Sender string `cbor:"sender"`

	// ProtocolID names the agent-level protocol of the payload.
	ProtocolID string `cbor:"protocol_id"`

	// Message is the payload. May be empty.
	Message []byte `cbor:"message"`
}

// Marshal serializes the envelope for carriage inside an
// EnvelopeMessage.
func (e *Envelope) Marshal() ([]byte, error) {
	data, err := codec.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("acn: encoding envelope: %w", err)
	}
	return data, nil
}

// UnmarshalEnvelope parses envelope bytes carried in an
// EnvelopeMessage.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	var envelope Envelope
	if err := codec.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("acn: decoding envelope: %w", err)
	}
	return &envelope, nil
}

func (e *Envelope) String() string {
	return fmt.Sprintf("Envelope{to: %s, sender: %s, protocol: %s, %d bytes}",
		e.To, e.Sender, e.ProtocolID, len(e.Message))
}
