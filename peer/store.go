// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/acn-foundation/acn/acn"
	"github.com/acn-foundation/acn/lib/codec"
)

const recordFileSuffix = ".rec.zst"

// recordStore persists accepted agent records so a restarted node can
// seed its resolution cache without hitting the DHT for every old
// correspondent. One compressed file per agent, named by the hash of
// the address so arbitrary ledger address strings never reach the
// filesystem.
type recordStore struct {
	dir     string
	decoder *zstd.Decoder
}

func newRecordStore(dir string) (*recordStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("peer: creating record store at %s: %w", dir, err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("peer: creating zstd decoder: %w", err)
	}
	return &recordStore{dir: dir, decoder: decoder}, nil
}

func (s *recordStore) pathFor(address string) string {
	sum := blake3.Sum256([]byte(address))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+recordFileSuffix)
}

// Save writes record atomically under the hash of its address: CBOR
// streamed through a zstd writer into a temp file, then renamed into
// place.
func (s *recordStore) Save(record *acn.AgentRecord) error {
	path := s.pathFor(record.Address)
	temp := path + ".tmp"
	file, err := os.OpenFile(temp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("peer: writing record for %s: %w", record.Address, err)
	}
	compressor, err := zstd.NewWriter(file)
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("peer: creating zstd writer: %w", err)
	}
	if err := codec.NewEncoder(compressor).Encode(record); err != nil {
		_ = compressor.Close()
		_ = file.Close()
		return fmt.Errorf("peer: encoding record for %s: %w", record.Address, err)
	}
	if err := compressor.Close(); err != nil {
		_ = file.Close()
		return fmt.Errorf("peer: compressing record for %s: %w", record.Address, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("peer: writing record for %s: %w", record.Address, err)
	}
	if err := os.Rename(temp, path); err != nil {
		return fmt.Errorf("peer: renaming record for %s into place: %w", record.Address, err)
	}
	return nil
}

// Remove deletes the stored record for address, if present.
func (s *recordStore) Remove(address string) error {
	err := os.Remove(s.pathFor(address))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("peer: removing record for %s: %w", address, err)
	}
	return nil
}

// LoadAll reads every stored record. Files that fail to decompress or
// decode are skipped and reported in the second return value; a
// half-written store must not keep the node from starting.
func (s *recordStore) LoadAll() ([]*acn.AgentRecord, []error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, []error{fmt.Errorf("peer: reading record store: %w", err)}
	}
	var records []*acn.AgentRecord
	var failures []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), recordFileSuffix) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		file, err := os.Open(path)
		if err != nil {
			failures = append(failures, fmt.Errorf("peer: reading %s: %w", path, err))
			continue
		}
		if err := s.decoder.Reset(file); err != nil {
			_ = file.Close()
			failures = append(failures, fmt.Errorf("peer: decompressing %s: %w", path, err))
			continue
		}
		var record acn.AgentRecord
		err = codec.NewDecoder(s.decoder).Decode(&record)
		_ = file.Close()
		if err != nil {
			failures = append(failures, fmt.Errorf("peer: decoding %s: %w", path, err))
			continue
		}
		records = append(records, &record)
	}
	return records, failures
}

// Close releases the decompressor state.
func (s *recordStore) Close() error {
	s.decoder.Close()
	return nil
}
