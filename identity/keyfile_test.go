// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"os"
	"path/filepath"
	"testing"

	"filippo.io/age"
)

func TestNodeKeyFileRoundTrip(t *testing.T) {
	keyHex, err := GenerateNodeKey()
	if err != nil {
		t.Fatalf("GenerateNodeKey: %v", err)
	}
	path := filepath.Join(t.TempDir(), "node.key")
	if err := SaveNodeKey(path, "", keyHex); err != nil {
		t.Fatalf("SaveNodeKey: %v", err)
	}
	loaded, err := LoadNodeKey(path, "")
	if err != nil {
		t.Fatalf("LoadNodeKey: %v", err)
	}
	if loaded != keyHex {
		t.Fatalf("LoadNodeKey = %s, want %s", loaded, keyHex)
	}
}

func TestNodeKeyFileEncrypted(t *testing.T) {
	ageIdentity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("GenerateX25519Identity: %v", err)
	}
	dir := t.TempDir()
	identityPath := filepath.Join(dir, "identity.txt")
	if err := os.WriteFile(identityPath, []byte(ageIdentity.String()+"\n"), 0o600); err != nil {
		t.Fatalf("writing identity: %v", err)
	}

	keyHex, err := GenerateNodeKey()
	if err != nil {
		t.Fatalf("GenerateNodeKey: %v", err)
	}
	path := filepath.Join(dir, "node.key.age")
	if err := SaveNodeKey(path, ageIdentity.Recipient().String(), keyHex); err != nil {
		t.Fatalf("SaveNodeKey: %v", err)
	}

	// The ciphertext must not leak the key.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading key file: %v", err)
	}
	if string(raw) == keyHex+"\n" {
		t.Fatal("key file is not encrypted")
	}

	loaded, err := LoadNodeKey(path, identityPath)
	if err != nil {
		t.Fatalf("LoadNodeKey: %v", err)
	}
	if loaded != keyHex {
		t.Fatalf("LoadNodeKey = %s, want %s", loaded, keyHex)
	}
}

func TestLoadNodeKeyRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.key")
	if err := os.WriteFile(path, []byte("not a key\n"), 0o600); err != nil {
		t.Fatalf("writing key file: %v", err)
	}
	if _, err := LoadNodeKey(path, ""); err == nil {
		t.Fatal("LoadNodeKey accepted garbage")
	}
}
