// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

// Package monitoring provides the node's metrics facade: named gauges
// and counters behind a pluggable sink. The file sink snapshots values
// to a local file on a timer; the Prometheus sink serves them on an
// HTTP scrape endpoint; the nop sink discards everything.
//
// Monitoring is off the delivery hot path by construction: sinks only
// observe values, and a sink failure (unwritable file, busy port) is
// logged by the owner and never propagates into envelope routing.
package monitoring
