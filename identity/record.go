// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"fmt"
	"time"

	"github.com/acn-foundation/acn/acn"
)

// CheckRecord validates an agent record's proof of representation
// against the context it arrived in: the agent address the
// counterparty claims, and the public key of the peer the registration
// reached the node through.
//
// The checks run in a fixed order and stop at the first violation, so
// the returned status code names the first broken invariant rather
// than a generic failure:
//
//  1. record address matches the expected agent address
//  2. the ledger is supported
//  3. the record names the expected representing peer
//  4. the address derives from the record's public key
//  5. the signature over the peer public key verifies
//
// A record with a validity window is additionally rejected outside
// that window. On success the returned code is acn.StatusSuccess and
// the error is nil.
func CheckRecord(record *acn.AgentRecord, expectedAddress, expectedPeerPublicKey string, now time.Time) (acn.StatusCode, error) {
	if record.Address != expectedAddress {
		return acn.StatusErrorWrongAgentAddress,
			fmt.Errorf("identity: record is for agent %q, expected %q", record.Address, expectedAddress)
	}
	if !SupportedLedger(record.LedgerID) {
		return acn.StatusErrorUnsupportedLedger,
			fmt.Errorf("identity: unsupported ledger %q", record.LedgerID)
	}
	if record.PeerPublicKey != expectedPeerPublicKey {
		return acn.StatusErrorWrongPublicKey,
			fmt.Errorf("identity: record names peer key %q, expected %q", record.PeerPublicKey, expectedPeerPublicKey)
	}
	derivedAddress, err := DeriveAddress(record.LedgerID, record.PublicKey)
	if err != nil {
		return acn.StatusErrorWrongAgentAddress,
			fmt.Errorf("identity: deriving address from record public key: %w", err)
	}
	if derivedAddress != record.Address {
		return acn.StatusErrorWrongAgentAddress,
			fmt.Errorf("identity: record address %q does not derive from its public key (derived %q)",
				record.Address, derivedAddress)
	}
	ok, err := VerifySignature(record.LedgerID, []byte(record.PeerPublicKey), record.Signature, record.PublicKey)
	if err != nil {
		return acn.StatusErrorInvalidProof,
			fmt.Errorf("identity: verifying proof of representation: %w", err)
	}
	if !ok {
		return acn.StatusErrorInvalidProof,
			fmt.Errorf("identity: proof of representation signature does not verify")
	}
	if !RecordValidAt(record, now) {
		return acn.StatusErrorInvalidProof,
			fmt.Errorf("identity: record outside its validity window")
	}
	return acn.StatusSuccess, nil
}

// RecordValidAt reports whether the record's validity window (if any)
// contains t.
func RecordValidAt(record *acn.AgentRecord, t time.Time) bool {
	unix := t.Unix()
	if record.NotBefore != 0 && unix < record.NotBefore {
		return false
	}
	if record.NotAfter != 0 && unix > record.NotAfter {
		return false
	}
	return true
}

// SignRecord creates a signed agent record: the agent's authorization
// for the peer holding peerPublicKey to represent it. The private key
// must belong to a cosmos-style ledger (fetchai or cosmos); ethereum
// agents sign records with their own wallet tooling.
func SignRecord(ledgerID, agentPrivateKeyHex, peerPublicKey, serviceID string) (*acn.AgentRecord, error) {
	ledger, ok := LedgerByID(ledgerID)
	if !ok {
		return nil, fmt.Errorf("identity: unsupported ledger %q", ledgerID)
	}
	signer, ok := ledger.(cosmosLedger)
	if !ok {
		return nil, fmt.Errorf("identity: ledger %q cannot sign records locally", ledgerID)
	}
	publicKey, err := PublicKeyHexFromPrivateHex(agentPrivateKeyHex)
	if err != nil {
		return nil, err
	}
	address, err := ledger.AddressFromPublicKey(publicKey)
	if err != nil {
		return nil, err
	}
	signature, err := signer.Sign([]byte(peerPublicKey), agentPrivateKeyHex)
	if err != nil {
		return nil, err
	}
	return &acn.AgentRecord{
		ServiceID:     serviceID,
		LedgerID:      ledgerID,
		Address:       address,
		PublicKey:     publicKey,
		PeerPublicKey: peerPublicKey,
		Signature:     signature,
	}, nil
}
