// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package grpc serves the standard gRPC health service. Each registered
// probe is exposed as its own service name; the empty name reports SERVING
// only while every probe passes.
package grpc

import (
	"context"
	"sort"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/MKhiriev/go-catalog-sync/internal/logger"
)

const defaultProbeInterval = 5 * time.Second

// Probe reports whether a component is alive.
type Probe func() bool

// Handler keeps the health server in step with the registered probes.
type Handler struct {
	health   *health.Server
	probes   map[string]Probe
	interval time.Duration

	logger *logger.Logger
}

// NewHandler builds a handler for probes keyed by service name, e.g.
// "scheduler" for the worker pool.
func NewHandler(probes map[string]Probe, logger *logger.Logger) *Handler {
	logger.Debug().Int("probes", len(probes)).Msg("gRPC handler created")
	h := &Handler{
		health:   health.NewServer(),
		probes:   probes,
		interval: defaultProbeInterval,
		logger:   logger,
	}
	h.refresh()
	return h
}

// Register attaches the health service to s.
func (h *Handler) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.health)
}

// Watch re-evaluates the probes until ctx is done, then marks every
// service NOT_SERVING so clients drain before the server stops.
func (h *Handler) Watch(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return
		case <-ticker.C:
			h.refresh()
		}
	}
}

func (h *Handler) refresh() {
	names := make([]string, 0, len(h.probes))
	for name := range h.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	overall := healthpb.HealthCheckResponse_SERVING
	for _, name := range names {
		status := healthpb.HealthCheckResponse_SERVING
		if !h.probes[name]() {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			overall = status
			h.logger.Warn().Str("func", "Handler.refresh").Str("service", name).Msg("health probe failed")
		}
		h.health.SetServingStatus(name, status)
	}
	h.health.SetServingStatus("", overall)
}
