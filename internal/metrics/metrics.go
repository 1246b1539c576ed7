// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exposes Prometheus gauges and counters: lines by
// stage, orders in flight, and how long lines spend waiting at the
// zip barrier, served behind a promhttp mux.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerc-arf/scops/pkg/log"
)

var (
	StageTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scops_stage_transitions_total",
			Help: "Total number of lines entering each pipeline stage",
		},
		[]string{"stage"},
	)

	OrdersInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scops_orders_in_flight",
		Help: "Number of orders currently submitted but not yet complete",
	})

	ZipBarrierWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scops_zip_barrier_wait_seconds",
		Help:    "Time a line spent waiting at the cross-line zip barrier",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	StageFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scops_stage_failures_total",
			Help: "Total number of lines that ended a stage in an ERROR state",
		},
		[]string{"stage"},
	)

	ClusterSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scops_cluster_submissions_total",
			Help: "Total number of lines dispatched to a cluster batch scheduler",
		},
		[]string{"backend"},
	)
)

// Server serves /metrics for scrape and nothing else.
type Server struct {
	http *http.Server
}

// NewServer builds a metrics server bound to addr, not yet listening.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		http: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start runs the server in the background.
func (s *Server) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics: server error: %v", err)
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// ObserveZipBarrierWait records how long a line waited at the zip
// barrier, measured by the caller from the moment it entered the
// waiting-to-zip stage.
func ObserveZipBarrierWait(waited time.Duration) {
	ZipBarrierWaitSeconds.Observe(waited.Seconds())
}
