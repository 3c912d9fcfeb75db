// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

// Acn-node runs a full Agent Communication Network node: a DHT peer
// that routes envelopes between agents by wallet address, optionally
// exposing a delegate service for plain-TCP clients and a local
// socket for a co-located agent process.
//
// On startup:
//  1. Loads (or generates) the node's secp256k1 identity key.
//  2. Joins the overlay through the configured entry peers.
//  3. Serves the envelope, lookup and relay registration protocols.
//  4. Prints its dialable multiaddrs for use as an entry peer.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/acn-foundation/acn/acn"
	"github.com/acn-foundation/acn/identity"
	"github.com/acn-foundation/acn/monitoring"
	"github.com/acn-foundation/acn/peer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		debug       bool
		showVersion bool
	)
	pflag.StringVarP(&configPath, "config", "c", "", "path to the YAML configuration file")
	pflag.BoolVar(&debug, "debug", false, "enable debug logging")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("acn-node %s\n", acn.Version)
		return nil
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	config, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	keyHex, err := loadOrCreateKey(config, logger)
	if err != nil {
		return err
	}
	sink, err := buildSink(config.Monitoring, logger)
	if err != nil {
		return err
	}
	if err := sink.Start(); err != nil {
		return fmt.Errorf("starting monitoring: %w", err)
	}
	defer func() {
		if err := sink.Stop(); err != nil {
			logger.Warn("stopping monitoring", "error", err)
		}
	}()

	node, err := peer.New(peer.Config{
		PrivateKeyHex:    keyHex,
		ListenAddress:    config.ListenAddress,
		PublicAddress:    config.PublicAddress,
		BootstrapPeers:   config.EntryPeers,
		DelegateAddress:  config.DelegateAddress,
		LocalAddress:     config.LocalAddress,
		StoragePath:      config.StoragePath,
		AnnounceInterval: time.Duration(config.AnnounceInterval),
		Monitoring:       sink,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	err = node.Start(startCtx)
	cancel()
	if err != nil {
		return err
	}

	for _, address := range node.Multiaddrs() {
		fmt.Println(address)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	received := <-signals
	logger.Info("shutting down", "signal", received.String())
	return node.Close()
}

// loadOrCreateKey reads the configured key file, generating a fresh
// key on first start. Generated keys are only ever written in plain
// hex; encrypting them is an operator step.
func loadOrCreateKey(config *Config, logger *slog.Logger) (string, error) {
	if _, err := os.Stat(config.KeyFile); os.IsNotExist(err) {
		if config.AgeIdentityFile != "" {
			return "", fmt.Errorf("key file %s does not exist; cannot generate an encrypted key", config.KeyFile)
		}
		keyHex, err := identity.GenerateNodeKey()
		if err != nil {
			return "", err
		}
		if err := identity.SaveNodeKey(config.KeyFile, "", keyHex); err != nil {
			return "", err
		}
		logger.Info("generated node key", "path", config.KeyFile)
		return keyHex, nil
	}
	return identity.LoadNodeKey(config.KeyFile, config.AgeIdentityFile)
}

func buildSink(config MonitoringConfig, logger *slog.Logger) (monitoring.Sink, error) {
	switch config.Sink {
	case "", "none":
		return monitoring.NewNopSink(), nil
	case "file":
		return monitoring.NewFileSink(config.File, monitoring.FileSinkOptions{Logger: logger}), nil
	case "prometheus":
		return monitoring.NewPrometheusSink(config.ListenAddress), nil
	default:
		return nil, fmt.Errorf("unknown monitoring sink %q", config.Sink)
	}
}
