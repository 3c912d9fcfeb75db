// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	stdecdsa "crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // cosmos address derivation is fixed on ripemd160
)

// Ledger is one supported identity scheme: it derives wallet addresses
// from public keys and verifies signatures made with the corresponding
// private keys.
type Ledger interface {
	// ID is the scheme's wire identifier (e.g. "fetchai").
	ID() string

	// AddressFromPublicKey derives the wallet address for an encoded
	// public key.
	AddressFromPublicKey(publicKey string) (string, error)

	// Verify reports whether signature is a valid signature of message
	// under publicKey.
	Verify(message []byte, signature, publicKey string) (bool, error)
}

// DefaultLedgerID is the scheme used when none is configured.
const DefaultLedgerID = "fetchai"

// ledgers is the closed registry of supported schemes.
var ledgers = map[string]Ledger{
	"fetchai":  cosmosLedger{id: "fetchai", prefix: "fetch"},
	"cosmos":   cosmosLedger{id: "cosmos", prefix: "cosmos"},
	"ethereum": ethereumLedger{},
}

// LedgerByID returns the ledger registered under id.
func LedgerByID(id string) (Ledger, bool) {
	ledger, ok := ledgers[id]
	return ledger, ok
}

// SupportedLedger reports whether id names a registered scheme.
func SupportedLedger(id string) bool {
	_, ok := ledgers[id]
	return ok
}

// DeriveAddress derives the wallet address for publicKey under the
// given scheme.
func DeriveAddress(ledgerID, publicKey string) (string, error) {
	ledger, ok := ledgers[ledgerID]
	if !ok {
		return "", fmt.Errorf("identity: unsupported ledger %q", ledgerID)
	}
	return ledger.AddressFromPublicKey(publicKey)
}

// VerifySignature verifies signature over message under publicKey for
// the given scheme.
func VerifySignature(ledgerID string, message []byte, signature, publicKey string) (bool, error) {
	ledger, ok := ledgers[ledgerID]
	if !ok {
		return false, fmt.Errorf("identity: unsupported ledger %q", ledgerID)
	}
	return ledger.Verify(message, signature, publicKey)
}

// cosmosLedger implements the cosmos-sdk identity scheme shared by the
// fetchai and cosmos ledgers: compressed secp256k1 public keys in hex,
// bech32 addresses over ripemd160(sha256(pubkey)), and base64 raw
// r||s signatures over sha256 digests.
type cosmosLedger struct {
	id     string
	prefix string
}

func (l cosmosLedger) ID() string { return l.id }

func (l cosmosLedger) AddressFromPublicKey(publicKey string) (string, error) {
	keyBytes, err := hex.DecodeString(publicKey)
	if err != nil {
		return "", fmt.Errorf("identity: decoding %s public key: %w", l.id, err)
	}
	sha := sha256.Sum256(keyBytes)
	ripe := ripemd160.New()
	if _, err := ripe.Write(sha[:]); err != nil {
		return "", err
	}
	fiveBitGroups, err := bech32.ConvertBits(ripe.Sum(nil), 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("identity: converting address bits: %w", err)
	}
	address, err := bech32.Encode(l.prefix, fiveBitGroups)
	if err != nil {
		return "", fmt.Errorf("identity: bech32 encoding address: %w", err)
	}
	return address, nil
}

func (l cosmosLedger) Verify(message []byte, signature, publicKey string) (bool, error) {
	verifyKey, err := parseCompressedPublicKey(publicKey)
	if err != nil {
		return false, err
	}
	rawSignature, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, fmt.Errorf("identity: decoding %s signature: %w", l.id, err)
	}
	digest := sha256.Sum256(message)
	return verifyRawSignature(digest[:], rawSignature, verifyKey), nil
}

// Sign signs message with a hex-encoded secp256k1 private key,
// producing the base64 raw r||s form the scheme expects.
func (l cosmosLedger) Sign(message []byte, privateKeyHex string) (string, error) {
	keyBytes, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return "", fmt.Errorf("identity: decoding %s private key: %w", l.id, err)
	}
	privateKey := secp256k1.PrivKeyFromBytes(keyBytes)
	digest := sha256.Sum256(message)
	signature := ecdsa.Sign(privateKey, digest[:])
	r, s := signature.R(), signature.S()
	rBytes, sBytes := r.Bytes(), s.Bytes()
	raw := make([]byte, 0, 64)
	raw = append(raw, rBytes[:]...)
	raw = append(raw, sBytes[:]...)
	return base64.StdEncoding.EncodeToString(raw), nil
}

// ethereumLedger implements the ethereum identity scheme: uncompressed
// public keys as 0x-prefixed hex without the 04 marker, EIP-55
// checksummed addresses, and personal-message signatures verified by
// public key recovery.
type ethereumLedger struct{}

func (ethereumLedger) ID() string { return "ethereum" }

func (ethereumLedger) AddressFromPublicKey(publicKey string) (string, error) {
	pub, err := parseEthereumPublicKey(publicKey)
	if err != nil {
		return "", err
	}
	return ethcrypto.PubkeyToAddress(*pub).Hex(), nil
}

func (e ethereumLedger) Verify(message []byte, signature, publicKey string) (bool, error) {
	expectedAddress, err := e.AddressFromPublicKey(publicKey)
	if err != nil {
		return false, err
	}
	recoveredAddress, err := recoverEthereumSigner(message, signature)
	if err != nil {
		return false, err
	}
	return recoveredAddress == expectedAddress, nil
}

// recoverEthereumSigner recovers the EIP-55 address that produced an
// ethereum personal-message signature (65 bytes r||s||v, hex encoded,
// V in yellow-paper 27/28 form).
func recoverEthereumSigner(message []byte, signature string) (string, error) {
	signatureBytes, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return "", fmt.Errorf("identity: decoding ethereum signature: %w", err)
	}
	if len(signatureBytes) != 65 {
		return "", fmt.Errorf("identity: ethereum signature is %d bytes, want 65", len(signatureBytes))
	}
	if signatureBytes[64] != 27 && signatureBytes[64] != 28 {
		return "", fmt.Errorf("identity: ethereum signature V is %d, want 27 or 28", signatureBytes[64])
	}
	signatureBytes[64] -= 27

	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	digest := ethcrypto.Keccak256([]byte(prefixed))

	recoveredKey, err := ethcrypto.SigToPub(digest, signatureBytes)
	if err != nil {
		return "", fmt.Errorf("identity: recovering ethereum signer: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*recoveredKey).Hex(), nil
}

// parseEthereumPublicKey parses a 0x-prefixed hex encoding of the
// 64-byte uncompressed curve point (without the 04 marker).
func parseEthereumPublicKey(publicKey string) (*stdecdsa.PublicKey, error) {
	pointBytes, err := hex.DecodeString(strings.TrimPrefix(publicKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("identity: decoding ethereum public key: %w", err)
	}
	if len(pointBytes) != 64 {
		return nil, fmt.Errorf("identity: ethereum public key is %d bytes, want 64", len(pointBytes))
	}
	uncompressed := make([]byte, 0, 65)
	uncompressed = append(uncompressed, 0x04)
	uncompressed = append(uncompressed, pointBytes...)
	pub, err := ethcrypto.UnmarshalPubkey(uncompressed)
	if err != nil {
		return nil, fmt.Errorf("identity: parsing ethereum public key: %w", err)
	}
	return pub, nil
}

// parseCompressedPublicKey parses a hex-encoded compressed secp256k1
// public key.
func parseCompressedPublicKey(publicKey string) (*secp256k1.PublicKey, error) {
	keyBytes, err := hex.DecodeString(publicKey)
	if err != nil {
		return nil, fmt.Errorf("identity: decoding public key: %w", err)
	}
	pub, err := secp256k1.ParsePubKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("identity: parsing public key: %w", err)
	}
	return pub, nil
}

// verifyRawSignature verifies a 64-byte r||s signature over digest.
func verifyRawSignature(digest, rawSignature []byte, publicKey *secp256k1.PublicKey) bool {
	if len(rawSignature) != 64 {
		return false
	}
	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(rawSignature[:32]); overflow {
		return false
	}
	if overflow := s.SetByteSlice(rawSignature[32:]); overflow {
		return false
	}
	return ecdsa.NewSignature(&r, &s).Verify(digest, publicKey)
}
