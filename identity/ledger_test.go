// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Test identities: hex secp256k1 private keys with their compressed
// public keys.
var (
	testPrivateKeys = []string{
		"3e7a1f43b2d8a4b9f63a2ffeb1d597f971a8db7ffd95453173268b453106cadc",
		"92c36941ae78c1b93e5f4bebcf2b40be0af37573aa263ebb70b769ea235b88b6",
		"b6a8ff857c49b81895f18dd6dbd309e270906b75e2c290a721da48c5de4cba70",
	}
	testPublicKeys = []string{
		"03b7e977f498dce004e2614764ff576e17cc6691135497e7bcb5d3441e816ba9e1",
		"02344c3f0e79f56aef8e167a6fea912745f1f770b66b4c5096040c0e8c9e3c68b3",
		"023d6021c001c7b562af8b6e54ace4f98b1b14170d7db4749ecab2b1f0e4252794",
	}
)

// Wallet keys with the fetchai addresses they derive to.
var (
	walletPrivateKeys = []string{
		"730c22474709a6d17cf11599a80413a84ddb691a3c7b11a6d8d47a2c024b7b56",
		"a085c5eeb39636a21c85a9bc667bae18bf3e327a220ecb3998e317b62ab20ec6",
		"0b7af750e7e96ceb9fe5582bdf9bdafae726427d34447f7245a084b6cf0aa5e5",
	}
	walletAddresses = []string{
		"fetch1y39e4tec9fll66x2k7wed5qn7zhaneayjm55kk",
		"fetch1ufjmhth6dnhrckxrvk05lmt8s2vture23xvwjl",
		"fetch1dja5uazc9n7jpjm94rhmkkmcyv5nj3kt8aexgf",
	}
)

func TestPublicKeyFromPrivateKey(t *testing.T) {
	for i, privateKey := range testPrivateKeys {
		publicKey, err := PublicKeyHexFromPrivateHex(privateKey)
		if err != nil {
			t.Fatalf("PublicKeyHexFromPrivateHex(%d) error: %v", i, err)
		}
		if publicKey != testPublicKeys[i] {
			t.Errorf("public key %d = %s, want %s", i, publicKey, testPublicKeys[i])
		}
	}
}

func TestFetchAIAddressDerivation(t *testing.T) {
	for i, privateKey := range walletPrivateKeys {
		publicKey, err := PublicKeyHexFromPrivateHex(privateKey)
		if err != nil {
			t.Fatalf("PublicKeyHexFromPrivateHex(%d) error: %v", i, err)
		}
		address, err := DeriveAddress("fetchai", publicKey)
		if err != nil {
			t.Fatalf("DeriveAddress(%d) error: %v", i, err)
		}
		if address != walletAddresses[i] {
			t.Errorf("address %d = %s, want %s", i, address, walletAddresses[i])
		}
	}
}

func TestCosmosAddressPrefix(t *testing.T) {
	address, err := DeriveAddress("cosmos", testPublicKeys[0])
	if err != nil {
		t.Fatalf("DeriveAddress() error: %v", err)
	}
	if !strings.HasPrefix(address, "cosmos1") {
		t.Errorf("cosmos address = %s, want cosmos1 prefix", address)
	}
}

func TestDeriveAddressUnsupportedLedger(t *testing.T) {
	if _, err := DeriveAddress("solana", testPublicKeys[0]); err == nil {
		t.Error("DeriveAddress() accepted unsupported ledger")
	}
}

func TestFetchAISignVerify(t *testing.T) {
	ledger, ok := LedgerByID("fetchai")
	if !ok {
		t.Fatal("fetchai ledger not registered")
	}
	signer := ledger.(cosmosLedger)

	message := []byte("peer public key bytes")
	signature, err := signer.Sign(message, testPrivateKeys[0])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	ok, err = VerifySignature("fetchai", message, signature, testPublicKeys[0])
	if err != nil {
		t.Fatalf("VerifySignature() error: %v", err)
	}
	if !ok {
		t.Error("VerifySignature() = false for a valid signature")
	}

	// Wrong message must not verify.
	ok, err = VerifySignature("fetchai", []byte("different bytes"), signature, testPublicKeys[0])
	if err != nil {
		t.Fatalf("VerifySignature() error: %v", err)
	}
	if ok {
		t.Error("VerifySignature() = true for the wrong message")
	}

	// Wrong key must not verify.
	ok, err = VerifySignature("fetchai", message, signature, testPublicKeys[1])
	if err != nil {
		t.Fatalf("VerifySignature() error: %v", err)
	}
	if ok {
		t.Error("VerifySignature() = true under the wrong public key")
	}
}

func TestEthereumVerify(t *testing.T) {
	key, err := ethcrypto.HexToECDSA("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	if err != nil {
		t.Fatalf("HexToECDSA() error: %v", err)
	}

	// Public key in the ledger's wire form: 0x-prefixed hex of the
	// 64-byte uncompressed point without the 04 marker.
	uncompressed := ethcrypto.FromECDSAPub(&key.PublicKey)
	publicKey := "0x" + hex.EncodeToString(uncompressed[1:])

	message := []byte("peer public key bytes")
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	digest := ethcrypto.Keccak256([]byte(prefixed))
	signatureBytes, err := ethcrypto.Sign(digest, key)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	signatureBytes[64] += 27
	signature := "0x" + hex.EncodeToString(signatureBytes)

	ok, err := VerifySignature("ethereum", message, signature, publicKey)
	if err != nil {
		t.Fatalf("VerifySignature() error: %v", err)
	}
	if !ok {
		t.Error("VerifySignature() = false for a valid ethereum signature")
	}

	ok, err = VerifySignature("ethereum", []byte("different bytes"), signature, publicKey)
	if err != nil {
		t.Fatalf("VerifySignature() error: %v", err)
	}
	if ok {
		t.Error("VerifySignature() = true for the wrong message")
	}

	address, err := DeriveAddress("ethereum", publicKey)
	if err != nil {
		t.Fatalf("DeriveAddress() error: %v", err)
	}
	if !strings.HasPrefix(address, "0x") || len(address) != 42 {
		t.Errorf("ethereum address = %s, want 0x-prefixed 20-byte hex", address)
	}
}

func TestPeerIDFromPublicKeyHex(t *testing.T) {
	first, err := PeerIDFromPublicKeyHex(testPublicKeys[0])
	if err != nil {
		t.Fatalf("PeerIDFromPublicKeyHex() error: %v", err)
	}
	if first == "" {
		t.Fatal("PeerIDFromPublicKeyHex() returned empty ID")
	}
	again, err := PeerIDFromPublicKeyHex(testPublicKeys[0])
	if err != nil {
		t.Fatalf("PeerIDFromPublicKeyHex() error: %v", err)
	}
	if first != again {
		t.Error("peer ID derivation is not deterministic")
	}
	other, err := PeerIDFromPublicKeyHex(testPublicKeys[1])
	if err != nil {
		t.Fatalf("PeerIDFromPublicKeyHex() error: %v", err)
	}
	if first == other {
		t.Error("distinct public keys produced the same peer ID")
	}
}
