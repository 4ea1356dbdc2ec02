// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package metrics registers the Prometheus collectors of the sync engine.
// They are served on /metrics by the HTTP server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChangesProcessed counts staged changes reaching a terminal apply
	// outcome. outcome: completed, failed, retried.
	ChangesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_changes_processed_total",
		Help: "Staged changes processed by the worker pool",
	}, []string{"outcome", "entity_type"})

	// RemoteCalls counts remote operations by kind (single/bulk) and result.
	RemoteCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_remote_calls_total",
		Help: "Calls made against the remote platform",
	}, []string{"kind", "result"})

	// QueueDepth is the number of queued items sampled by the autoscaler.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_sync_queue_depth",
		Help: "Items waiting in the priority queue",
	})

	// Workers is the current size of the worker pool.
	Workers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_sync_workers",
		Help: "Running workers in the pool",
	})

	// RateLimitWait measures how long callers waited for the leaky bucket.
	RateLimitWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_sync_rate_limit_wait_seconds",
		Help:    "Time spent waiting for rate-limit capacity",
		Buckets: []float64{0, 0.05, 0.25, 1, 2, 5, 10, 30},
	})

	// BatchDuration measures sync batches from start to a terminal status.
	BatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_sync_batch_duration_seconds",
		Help:    "Duration of sync batches",
		Buckets: []float64{1, 5, 30, 60, 300, 900, 3600},
	}, []string{"direction", "status"})

	// EventsPublished counts broker publications by routing key and result.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_events_published_total",
		Help: "Sync events published to the broker",
	}, []string{"routing_key", "result"})
)
