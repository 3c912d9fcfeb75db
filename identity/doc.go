// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity implements the cryptographic identity layer of the
// ACN: ledger-specific address derivation and signature verification,
// and the proof-of-representation check that gates every agent
// registration.
//
// An agent is identified by a wallet address derived from its ledger
// public key. The proof of representation is the agent's signature,
// made with that ledger key, over the public key of the peer node
// authorized to carry its traffic. CheckRecord validates the whole
// binding; it is the only authentication primitive in the system.
//
// Supported ledgers: fetchai and cosmos (secp256k1, bech32 addresses),
// and ethereum (secp256k1, EIP-55 addresses, recovery-based
// verification).
package identity
