// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package acn

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize is the largest accepted frame payload. Envelopes are
// agent messages, not bulk transfer; anything larger than a few
// megabytes indicates a broken or hostile counterparty.
const MaxFrameSize = 3 * 1024 * 1024

// frameHeaderLength is the fixed size of the length prefix.
const frameHeaderLength = 4

// WriteFrame writes a length-prefixed frame to w: a 4-byte big-endian
// payload length followed by the payload.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("acn: frame payload %d bytes exceeds maximum %d", len(payload), MaxFrameSize)
	}
	var header [frameHeaderLength]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("acn: writing frame header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("acn: writing frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r. Returns an error
// if the stream is malformed or the payload exceeds MaxFrameSize.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("acn: reading frame header: %w", err)
	}
	payloadLength := binary.BigEndian.Uint32(header[:])
	if payloadLength > MaxFrameSize {
		return nil, fmt.Errorf("acn: frame payload %d bytes exceeds maximum %d", payloadLength, MaxFrameSize)
	}
	payload := make([]byte, payloadLength)
	if payloadLength > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("acn: reading frame payload: %w", err)
		}
	}
	return payload, nil
}
