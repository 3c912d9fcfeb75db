// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package monitoring

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/acn-foundation/acn/lib/clock"
)

// DefaultSnapshotInterval is how often the file sink writes, unless
// configured otherwise.
const DefaultSnapshotInterval = 10 * time.Second

// memoryGauge is a lock-free float64 gauge shared by the nop and file
// sinks.
type memoryGauge struct {
	bits atomic.Uint64
}

func (g *memoryGauge) Set(value float64) { g.bits.Store(math.Float64bits(value)) }
func (g *memoryGauge) Inc()              { g.Add(1) }
func (g *memoryGauge) Dec()              { g.Add(-1) }
func (g *memoryGauge) Sub(delta float64) { g.Add(-delta) }

func (g *memoryGauge) Add(delta float64) {
	for {
		old := g.bits.Load()
		updated := math.Float64bits(math.Float64frombits(old) + delta)
		if g.bits.CompareAndSwap(old, updated) {
			return
		}
	}
}

func (g *memoryGauge) value() float64 { return math.Float64frombits(g.bits.Load()) }

// memoryCounter is a memoryGauge restricted to increments.
type memoryCounter struct {
	gauge memoryGauge
}

func (c *memoryCounter) Inc()              { c.gauge.Add(1) }
func (c *memoryCounter) Add(delta float64) { c.gauge.Add(delta) }
func (c *memoryCounter) value() float64    { return c.gauge.value() }

// FileSink keeps metrics in memory and writes a plain-text snapshot to
// a file on a timer. The write is atomic (write to a temp file, then
// rename) so a reader never observes a torn snapshot.
type FileSink struct {
	path     string
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	mu       sync.Mutex
	gauges   map[string]*memoryGauge
	counters map[string]*memoryCounter
	help     map[string]string

	stop chan struct{}
	done chan struct{}
}

// FileSinkOptions configures a FileSink. Zero values select defaults.
type FileSinkOptions struct {
	// Interval between snapshots. Defaults to DefaultSnapshotInterval.
	Interval time.Duration

	// Clock for the snapshot timer. Defaults to clock.Real().
	Clock clock.Clock

	// Logger for snapshot write failures. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewFileSink creates a sink that snapshots to path.
func NewFileSink(path string, options FileSinkOptions) *FileSink {
	if options.Interval <= 0 {
		options.Interval = DefaultSnapshotInterval
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &FileSink{
		path:     path,
		interval: options.Interval,
		clock:    options.Clock,
		logger:   options.Logger,
		gauges:   make(map[string]*memoryGauge),
		counters: make(map[string]*memoryCounter),
		help:     make(map[string]string),
	}
}

// NewGauge registers (or returns the existing) gauge under name.
func (s *FileSink) NewGauge(name, help string) Gauge {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gauge, ok := s.gauges[name]; ok {
		return gauge
	}
	gauge := &memoryGauge{}
	s.gauges[name] = gauge
	s.help[name] = help
	return gauge
}

// NewCounter registers (or returns the existing) counter under name.
func (s *FileSink) NewCounter(name, help string) Counter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if counter, ok := s.counters[name]; ok {
		return counter
	}
	counter := &memoryCounter{}
	s.counters[name] = counter
	s.help[name] = help
	return counter
}

// Start launches the snapshot timer goroutine.
func (s *FileSink) Start() error {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		ticker := s.clock.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.Snapshot(); err != nil {
					s.logger.Warn("metrics snapshot failed", "path", s.path, "error", err)
				}
			case <-s.stop:
				return
			}
		}
	}()
	return nil
}

// Stop halts the snapshot timer and writes one final snapshot.
func (s *FileSink) Stop() error {
	if s.stop != nil {
		close(s.stop)
		<-s.done
		s.stop = nil
	}
	return s.Snapshot()
}

// Snapshot writes the current values to the sink's file.
func (s *FileSink) Snapshot() error {
	s.mu.Lock()
	lines := make([]string, 0, len(s.gauges)+len(s.counters))
	for name, gauge := range s.gauges {
		lines = append(lines, fmt.Sprintf("# %s\n%s %g\n", s.help[name], name, gauge.value()))
	}
	for name, counter := range s.counters {
		lines = append(lines, fmt.Sprintf("# %s\n%s %g\n", s.help[name], name, counter.value()))
	}
	s.mu.Unlock()

	sort.Strings(lines)
	content := strings.Join(lines, "")

	temp := s.path + ".tmp"
	if err := os.WriteFile(temp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("monitoring: writing snapshot: %w", err)
	}
	if err := os.Rename(temp, s.path); err != nil {
		return fmt.Errorf("monitoring: renaming snapshot into place: %w", err)
	}
	return nil
}

// Path returns the snapshot file location.
func (s *FileSink) Path() string { return filepath.Clean(s.path) }
