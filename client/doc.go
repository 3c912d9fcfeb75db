// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

// Package client implements the lightweight ACN node: a libp2p host
// that joins the network through a single relaying peer instead of
// participating in the DHT. It registers its agent with the relay,
// sends envelopes through it, and receives envelopes on its own
// envelope stream handler.
package client
