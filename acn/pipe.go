// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package acn

import (
	"io"
	"sync"
)

// Pipe is a framed byte channel to a counterparty: a local agent
// process over TCP, a delegate client, or a remote peer over an
// overlay stream. Reads and writes each carry one whole frame.
//
// A Pipe serializes concurrent writers, so acknowledgements and
// envelopes from different goroutines interleave at frame granularity
// rather than corrupting the stream. Reads are expected from a single
// goroutine (the connection's reader task).
type Pipe interface {
	// Read returns the next frame's payload.
	Read() ([]byte, error)

	// Write sends one frame carrying data.
	Write(data []byte) error

	// Close tears down the underlying transport. A blocked Read or
	// Write returns with an error after Close.
	Close() error
}

// NewPipe wraps a stream transport in frame semantics. The transport
// can be a net.Conn or a libp2p network stream; anything that moves
// bytes in order will do.
func NewPipe(transport io.ReadWriteCloser) Pipe {
	return &framedPipe{transport: transport}
}

type framedPipe struct {
	transport io.ReadWriteCloser

	readMu  sync.Mutex
	writeMu sync.Mutex
}

func (p *framedPipe) Read() ([]byte, error) {
	p.readMu.Lock()
	defer p.readMu.Unlock()
	return ReadFrame(p.transport)
}

func (p *framedPipe) Write(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return WriteFrame(p.transport, data)
}

func (p *framedPipe) Close() error {
	return p.transport.Close()
}
