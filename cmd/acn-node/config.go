// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the node's YAML configuration file.
type Config struct {
	// ListenAddress is the libp2p multiaddr to listen on.
	// Defaults to /ip4/0.0.0.0/tcp/9000.
	ListenAddress string `yaml:"listen_address"`

	// PublicAddress is the multiaddr advertised to other nodes, for
	// deployments behind NAT. Empty means advertise the listen
	// address.
	PublicAddress string `yaml:"public_address"`

	// EntryPeers are multiaddrs (with /p2p/ suffix) of existing nodes
	// to join the network through. Empty starts a new network.
	EntryPeers []string `yaml:"entry_peers"`

	// DelegateAddress is an optional TCP host:port for the delegate
	// service.
	DelegateAddress string `yaml:"delegate_address"`

	// LocalAddress is an optional TCP host:port for the co-located
	// agent process.
	LocalAddress string `yaml:"local_address"`

	// KeyFile is the path to the node's private key. Created with a
	// fresh key on first start if it does not exist.
	KeyFile string `yaml:"key_file"`

	// AgeIdentityFile, when set, holds the age identity used to
	// decrypt an encrypted KeyFile.
	AgeIdentityFile string `yaml:"age_identity_file"`

	// StoragePath is an optional directory for persisting accepted
	// agent records across restarts.
	StoragePath string `yaml:"storage_path"`

	// Monitoring selects the metrics sink.
	Monitoring MonitoringConfig `yaml:"monitoring"`

	// AnnounceInterval is how often agent addresses are re-announced
	// on the DHT, in time.ParseDuration syntax ("30m"). Zero means
	// the built-in default.
	AnnounceInterval duration `yaml:"announce_interval"`
}

// duration parses YAML scalars like "30m" or "90s".
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = duration(parsed)
	return nil
}

// MonitoringConfig selects and configures the metrics sink.
type MonitoringConfig struct {
	// Sink is "none", "file" or "prometheus". Empty means none.
	Sink string `yaml:"sink"`

	// File is the snapshot path for the file sink.
	File string `yaml:"file"`

	// ListenAddress is the scrape endpoint for the prometheus sink,
	// e.g. 127.0.0.1:9090.
	ListenAddress string `yaml:"listen_address"`
}

// loadConfig reads path and applies defaults. A missing path yields
// the default configuration.
func loadConfig(path string) (*Config, error) {
	config := &Config{
		ListenAddress: "/ip4/0.0.0.0/tcp/9000",
		KeyFile:       "acn-node.key",
	}
	if path == "" {
		return config, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if config.ListenAddress == "" {
		return nil, fmt.Errorf("config %s: listen_address must not be empty", path)
	}
	if config.KeyFile == "" {
		return nil, fmt.Errorf("config %s: key_file must not be empty", path)
	}
	switch config.Monitoring.Sink {
	case "", "none", "file", "prometheus":
	default:
		return nil, fmt.Errorf("config %s: unknown monitoring sink %q", path, config.Monitoring.Sink)
	}
	if config.Monitoring.Sink == "file" && config.Monitoring.File == "" {
		return nil, fmt.Errorf("config %s: monitoring.file required for the file sink", path)
	}
	if config.Monitoring.Sink == "prometheus" && config.Monitoring.ListenAddress == "" {
		return nil, fmt.Errorf("config %s: monitoring.listen_address required for the prometheus sink", path)
	}
	return config, nil
}
