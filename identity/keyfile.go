// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// GenerateNodeKey creates a fresh secp256k1 node key, hex encoded.
func GenerateNodeKey() (string, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return "", fmt.Errorf("identity: generating node key: %w", err)
	}
	return hex.EncodeToString(key.Serialize()), nil
}

// LoadNodeKey reads a node private key from path. When
// ageIdentityPath is non-empty the file is expected to be
// age-encrypted and is decrypted with the x25519 identities found
// there; otherwise the file holds the bare hex key. The key is
// validated before being returned.
func LoadNodeKey(path, ageIdentityPath string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("identity: reading key file: %w", err)
	}
	if ageIdentityPath != "" {
		data, err = decryptWithIdentities(data, ageIdentityPath)
		if err != nil {
			return "", err
		}
	}
	keyHex := strings.TrimSpace(string(data))
	if _, _, err := KeyPairFromHex(keyHex); err != nil {
		return "", fmt.Errorf("identity: key file %s: %w", path, err)
	}
	return keyHex, nil
}

func decryptWithIdentities(ciphertext []byte, ageIdentityPath string) ([]byte, error) {
	identityData, err := os.ReadFile(ageIdentityPath)
	if err != nil {
		return nil, fmt.Errorf("identity: reading age identity: %w", err)
	}
	identities, err := age.ParseIdentities(bytes.NewReader(identityData))
	if err != nil {
		return nil, fmt.Errorf("identity: parsing age identity: %w", err)
	}
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identities...)
	if err != nil {
		return nil, fmt.Errorf("identity: decrypting key file: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("identity: decrypting key file: %w", err)
	}
	return plaintext, nil
}

// SaveNodeKey writes a node private key to path. With an empty
// recipient the key is written as plain hex with owner-only
// permissions; with an age x25519 recipient (age1...) the file is
// encrypted to it.
func SaveNodeKey(path, recipient, privateKeyHex string) error {
	if _, _, err := KeyPairFromHex(privateKeyHex); err != nil {
		return fmt.Errorf("identity: refusing to save invalid key: %w", err)
	}
	data := []byte(privateKeyHex + "\n")
	if recipient != "" {
		parsed, err := age.ParseX25519Recipient(recipient)
		if err != nil {
			return fmt.Errorf("identity: parsing age recipient: %w", err)
		}
		var sealed bytes.Buffer
		writer, err := age.Encrypt(&sealed, parsed)
		if err != nil {
			return fmt.Errorf("identity: encrypting key file: %w", err)
		}
		if _, err := writer.Write(data); err != nil {
			return fmt.Errorf("identity: encrypting key file: %w", err)
		}
		if err := writer.Close(); err != nil {
			return fmt.Errorf("identity: encrypting key file: %w", err)
		}
		data = sealed.Bytes()
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("identity: writing key file: %w", err)
	}
	return nil
}
