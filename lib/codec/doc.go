// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding used for every ACN wire
// structure: control messages, agent records, and envelopes.
//
// Encoding is RFC 8949 Core Deterministic Encoding, so the same logical
// message always produces identical bytes. Decoding accepts standard
// CBOR and ignores unknown fields, so newer nodes can extend wire
// structures without breaking older ones.
package codec
