// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package server

import (
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"

	"github.com/MKhiriev/go-catalog-sync/internal/config"
	myGRPC "github.com/MKhiriev/go-catalog-sync/internal/handler/grpc"
	"github.com/MKhiriev/go-catalog-sync/internal/logger"
)

type grpcServer struct {
	handler *myGRPC.Handler
	server  *grpc.Server
	address string

	shutdownTimeout time.Duration
	logger          *logger.Logger
}

func newGRPCServer(handler *myGRPC.Handler, cfg config.Server, logger *logger.Logger) *grpcServer {
	s := grpc.NewServer()
	handler.Register(s)

	return &grpcServer{
		handler:         handler,
		server:          s,
		address:         cfg.GRPCAddress,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          logger,
	}
}

func (g *grpcServer) serve(lis net.Listener) error {
	g.logger.Info().Str("address", lis.Addr().String()).Msg("launching gRPC server")
	if err := g.server.Serve(lis); err != nil {
		return fmt.Errorf("gRPC server: %w", err)
	}
	return nil
}

// shutdown stops gracefully, forcing the stop once the timeout passes.
func (g *grpcServer) shutdown() {
	done := make(chan struct{})
	go func() {
		g.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		g.logger.Info().Msg("gRPC server stopped")
	case <-time.After(g.shutdownTimeout):
		g.logger.Warn().Str("func", "grpcServer.shutdown").Msg("graceful stop timed out, forcing")
		g.server.Stop()
	}
}
