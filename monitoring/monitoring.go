// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package monitoring

// Gauge is a value that can move in both directions.
type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
	Add(delta float64)
	Sub(delta float64)
}

// Counter is a monotonically increasing value.
type Counter interface {
	Inc()
	Add(delta float64)
}

// Sink creates metrics and manages their export. Creating the same
// name twice returns the same underlying metric.
type Sink interface {
	// NewGauge registers a gauge under name with a help string.
	NewGauge(name, help string) Gauge

	// NewCounter registers a counter under name with a help string.
	NewCounter(name, help string) Counter

	// Start begins exporting (snapshot timer, scrape endpoint).
	Start() error

	// Stop halts exporting and releases resources.
	Stop() error
}

// NewNopSink returns a Sink that registers working in-memory metrics
// and exports nothing. Used when monitoring is disabled.
func NewNopSink() Sink { return &nopSink{} }

type nopSink struct{}

func (*nopSink) NewGauge(name, help string) Gauge     { return &memoryGauge{} }
func (*nopSink) NewCounter(name, help string) Counter { return &memoryCounter{} }
func (*nopSink) Start() error                         { return nil }
func (*nopSink) Stop() error                          { return nil }
