// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"testing"
	"time"

	"github.com/acn-foundation/acn/acn"
)

// peerPublicKeyForTest is the representing peer's compressed hex key.
const peerPublicKeyForTest = "02a0eb20ae23f2f78650b42dfafa6bf4e4752657905da8598b2c0806478e0bfa0d"

func signedTestRecord(t *testing.T) *acn.AgentRecord {
	t.Helper()
	record, err := SignRecord("fetchai", testPrivateKeys[0], peerPublicKeyForTest, "acn")
	if err != nil {
		t.Fatalf("SignRecord() error: %v", err)
	}
	return record
}

func TestCheckRecordSuccess(t *testing.T) {
	record := signedTestRecord(t)
	code, err := CheckRecord(record, record.Address, peerPublicKeyForTest, time.Now())
	if err != nil {
		t.Fatalf("CheckRecord() error: %v", err)
	}
	if code != acn.StatusSuccess {
		t.Errorf("CheckRecord() = %v, want %v", code, acn.StatusSuccess)
	}
}

// TestCheckRecordFirstViolation exercises each invariant in the check
// order: every case breaks exactly one invariant while all earlier
// ones hold, and must get that invariant's status code back.
func TestCheckRecordFirstViolation(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(record *acn.AgentRecord) (expectedAddress, expectedPeerKey string)
		wantCode acn.StatusCode
	}{
		{
			name: "claimed address mismatch",
			mutate: func(record *acn.AgentRecord) (string, string) {
				return walletAddresses[1], peerPublicKeyForTest
			},
			wantCode: acn.StatusErrorWrongAgentAddress,
		},
		{
			name: "unsupported ledger",
			mutate: func(record *acn.AgentRecord) (string, string) {
				record.LedgerID = "solana"
				return record.Address, peerPublicKeyForTest
			},
			wantCode: acn.StatusErrorUnsupportedLedger,
		},
		{
			name: "wrong representing peer",
			mutate: func(record *acn.AgentRecord) (string, string) {
				return record.Address, testPublicKeys[2]
			},
			wantCode: acn.StatusErrorWrongPublicKey,
		},
		{
			name: "address does not derive from public key",
			mutate: func(record *acn.AgentRecord) (string, string) {
				record.Address = walletAddresses[1]
				return record.Address, peerPublicKeyForTest
			},
			wantCode: acn.StatusErrorWrongAgentAddress,
		},
		{
			name: "forged signature",
			mutate: func(record *acn.AgentRecord) (string, string) {
				// Signature made by a different key over the same
				// peer public key: checks 1-4 hold, 5 fails.
				ledger, _ := LedgerByID("fetchai")
				signature, err := ledger.(cosmosLedger).Sign([]byte(record.PeerPublicKey), testPrivateKeys[1])
				if err != nil {
					t.Fatalf("Sign() error: %v", err)
				}
				record.Signature = signature
				return record.Address, peerPublicKeyForTest
			},
			wantCode: acn.StatusErrorInvalidProof,
		},
		{
			name: "expired validity window",
			mutate: func(record *acn.AgentRecord) (string, string) {
				record.NotAfter = time.Now().Add(-time.Hour).Unix()
				return record.Address, peerPublicKeyForTest
			},
			wantCode: acn.StatusErrorInvalidProof,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			record := signedTestRecord(t)
			expectedAddress, expectedPeerKey := tc.mutate(record)
			code, err := CheckRecord(record, expectedAddress, expectedPeerKey, time.Now())
			if err == nil {
				t.Fatal("CheckRecord() accepted an invalid record")
			}
			if code != tc.wantCode {
				t.Errorf("CheckRecord() = %v, want %v (error: %v)", code, tc.wantCode, err)
			}
		})
	}
}

func TestRecordValidAt(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name      string
		notBefore int64
		notAfter  int64
		want      bool
	}{
		{"unbounded", 0, 0, true},
		{"inside window", now.Add(-time.Hour).Unix(), now.Add(time.Hour).Unix(), true},
		{"before window", now.Add(time.Hour).Unix(), 0, false},
		{"after window", 0, now.Add(-time.Hour).Unix(), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			record := &acn.AgentRecord{NotBefore: tc.notBefore, NotAfter: tc.notAfter}
			if got := RecordValidAt(record, now); got != tc.want {
				t.Errorf("RecordValidAt() = %v, want %v", got, tc.want)
			}
		})
	}
}
