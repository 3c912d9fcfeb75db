// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

// Package peer implements the full ACN node: a libp2p host with a
// kademlia DHT, a routing registry mapping agent addresses to
// connections, relay and delegate services for nodes and processes
// that cannot join the DHT themselves, and a per-destination outbox
// that keeps envelope delivery ordered between any pair of agents.
package peer
