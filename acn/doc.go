// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

// Package acn defines the Agent Communication Network wire protocol:
// the control message union exchanged between nodes and agents, the
// closed status code taxonomy, the envelope unit, and the
// length-prefixed framing that carries all of it.
//
// The package is organized around the protocol layers:
//
//   - message.go: the AcnMessage tagged union and its codec
//   - status.go: status codes and their failure classes
//   - envelope.go: the opaque agent-to-agent message unit
//   - frame.go: 4-byte big-endian length framing
//   - pipe.go: framed byte channel over any stream transport
//   - protocol.go: request/response exchanges over a Pipe
//
// Every transport in the system — the local agent pipe, the delegate
// TCP service, and overlay streams between peers — carries the same
// frames; only the byte channel underneath differs.
package acn
