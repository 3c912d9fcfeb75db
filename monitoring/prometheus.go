// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package monitoring

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusSink exposes metrics on an HTTP scrape endpoint at
// /metrics. It owns its own registry, so two sinks in one process (as
// in tests running several nodes) do not collide.
type PrometheusSink struct {
	address  string
	registry *prometheus.Registry
	server   *http.Server

	mu       sync.Mutex
	gauges   map[string]prometheus.Gauge
	counters map[string]prometheus.Counter
}

// NewPrometheusSink creates a sink serving on address (host:port).
func NewPrometheusSink(address string) *PrometheusSink {
	return &PrometheusSink{
		address:  address,
		registry: prometheus.NewRegistry(),
		gauges:   make(map[string]prometheus.Gauge),
		counters: make(map[string]prometheus.Counter),
	}
}

// NewGauge registers (or returns the existing) gauge under name.
func (s *PrometheusSink) NewGauge(name, help string) Gauge {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gauge, ok := s.gauges[name]; ok {
		return gauge
	}
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	s.registry.MustRegister(gauge)
	s.gauges[name] = gauge
	return gauge
}

// NewCounter registers (or returns the existing) counter under name.
func (s *PrometheusSink) NewCounter(name, help string) Counter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if counter, ok := s.counters[name]; ok {
		return counter
	}
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	s.registry.MustRegister(counter)
	s.counters[name] = counter
	return counter
}

// Start begins serving the scrape endpoint. Returns an error only if
// the listener cannot be created synchronously; later serve errors are
// swallowed because monitoring must never take the node down.
func (s *PrometheusSink) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	s.server = &http.Server{
		Addr:              s.address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Scrape endpoint failures are observable by the absence
			// of metrics; they must not affect envelope delivery.
			_ = err
		}
	}()
	return nil
}

// Stop shuts down the scrape endpoint.
func (s *PrometheusSink) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
