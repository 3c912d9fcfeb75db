// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// KeyPairFromHex parses a hex-encoded secp256k1 private key into the
// libp2p key pair a node uses as its transport identity.
func KeyPairFromHex(privateKeyHex string) (libp2pcrypto.PrivKey, libp2pcrypto.PubKey, error) {
	keyBytes, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, nil, fmt.Errorf("identity: decoding private key: %w", err)
	}
	privateKey, err := libp2pcrypto.UnmarshalSecp256k1PrivateKey(keyBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("identity: parsing private key: %w", err)
	}
	return privateKey, privateKey.GetPublic(), nil
}

// PublicKeyHexFromPrivateHex derives the compressed hex public key for
// a hex-encoded secp256k1 private key.
func PublicKeyHexFromPrivateHex(privateKeyHex string) (string, error) {
	keyBytes, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return "", fmt.Errorf("identity: decoding private key: %w", err)
	}
	privateKey := secp256k1.PrivKeyFromBytes(keyBytes)
	return hex.EncodeToString(privateKey.PubKey().SerializeCompressed()), nil
}

// PublicKeyHex returns the compressed hex encoding of a libp2p
// secp256k1 public key. This is the form carried in agent records as
// the representing peer's public key.
func PublicKeyHex(publicKey libp2pcrypto.PubKey) (string, error) {
	raw, err := publicKey.Raw()
	if err != nil {
		return "", fmt.Errorf("identity: serializing public key: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// PeerIDFromPublicKeyHex computes the libp2p peer ID for a compressed
// hex secp256k1 public key. This lets a node dial the peer named in an
// agent record without any further resolution.
func PeerIDFromPublicKeyHex(publicKeyHex string) (peer.ID, error) {
	keyBytes, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return "", fmt.Errorf("identity: decoding public key: %w", err)
	}
	publicKey, err := libp2pcrypto.UnmarshalSecp256k1PublicKey(keyBytes)
	if err != nil {
		return "", fmt.Errorf("identity: parsing public key: %w", err)
	}
	id, err := peer.IDFromPublicKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("identity: deriving peer ID: %w", err)
	}
	return id, nil
}
