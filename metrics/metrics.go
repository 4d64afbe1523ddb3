// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package metrics exports bridge activity as prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/btcsuite/nostrbridge/chain"
	"github.com/btcsuite/nostrbridge/gate"
	"github.com/btcsuite/nostrbridge/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nostrbridge"

// A compile-time check that Metrics records both layers.
var (
	_ chain.Recorder  = (*Metrics)(nil)
	_ router.Recorder = (*Metrics)(nil)
)

// Metrics holds the bridge collectors.
type Metrics struct {
	registry *prometheus.Registry

	gateCalls    *prometheus.CounterVec
	gateDuration *prometheus.HistogramVec
	degraded     *prometheus.CounterVec
	requests     *prometheus.CounterVec
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		gateCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gate_calls_total",
				Help:      "Gated backend calls by operation and outcome.",
			},
			[]string{"op", "outcome"},
		),
		gateDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gate_call_duration_seconds",
				Help:      "Time spent in gated backend calls, queueing included.",
				Buckets:   []float64{0.1, 0.3, 1, 3, 10, 30, 60},
			},
			[]string{"op"},
		),
		degraded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "degraded_responses_total",
				Help:      "Responses answered with default values.",
			},
			[]string{"op"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Dispatched requests by type and result.",
			},
			[]string{"type", "result"},
		),
	}

	m.registry.MustRegister(
		m.gateCalls, m.gateDuration, m.degraded, m.requests,
		collectors.NewGoCollector(),
	)

	return m
}

// GateCall records a gated backend call.
func (m *Metrics) GateCall(op string, outcome gate.Outcome,
	elapsed time.Duration) {

	m.gateCalls.WithLabelValues(op, string(outcome)).Inc()
	m.gateDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Degraded records a response built from defaults.
func (m *Metrics) Degraded(op string) {
	m.degraded.WithLabelValues(op).Inc()
}

// Request records a dispatched request.
func (m *Metrics) Request(reqType, result string) {
	m.requests.WithLabelValues(reqType, result).Inc()
}

// RegisterGauge exports the value returned by f, such as the number of
// connected relays.
func (m *Metrics) RegisterGauge(name, help string, f func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, f,
	))
}

// Handler returns the scrape handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}
