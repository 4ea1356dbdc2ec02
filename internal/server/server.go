// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package server

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/MKhiriev/go-catalog-sync/internal/config"
	"github.com/MKhiriev/go-catalog-sync/internal/handler"
	"github.com/MKhiriev/go-catalog-sync/internal/logger"
)

type server struct {
	httpServer *httpServer
	gRPCServer *grpcServer
	logger     *logger.Logger

	// listen is swapped in tests.
	listen func(network, address string) (net.Listener, error)
}

func NewServer(handlers *handler.Handlers, cfg config.Server, logger *logger.Logger) (Server, error) {
	logger.Info().Msg("creating new server...")
	servers := &server{logger: logger, listen: net.Listen}

	if handlers.HTTP != nil && cfg.HTTPAddress != "" {
		servers.httpServer = newHTTPServer(handlers.HTTP.Init(), cfg, logger)
	}
	if handlers.GRPC != nil && cfg.GRPCAddress != "" {
		servers.gRPCServer = newGRPCServer(handlers.GRPC, cfg, logger)
	}

	if servers.httpServer == nil && servers.gRPCServer == nil {
		return nil, errNoServersAreCreated
	}

	return servers, nil
}

// RunServer binds every listener first, so a bad address fails fast, then
// serves until ctx is done or one server fails.
func (s *server) RunServer(ctx context.Context) error {
	var httpLis, grpcLis net.Listener
	var err error

	if s.httpServer != nil {
		if httpLis, err = s.listen("tcp", s.httpServer.server.Addr); err != nil {
			return fmt.Errorf("listen HTTP on %s: %w", s.httpServer.server.Addr, err)
		}
	}
	if s.gRPCServer != nil {
		if grpcLis, err = s.listen("tcp", s.gRPCServer.address); err != nil {
			if httpLis != nil {
				httpLis.Close()
			}
			return fmt.Errorf("listen gRPC on %s: %w", s.gRPCServer.address, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if httpLis != nil {
		g.Go(func() error { return s.httpServer.serve(httpLis) })
		g.Go(func() error {
			<-ctx.Done()
			s.httpServer.shutdown()
			return nil
		})
	}
	if grpcLis != nil {
		g.Go(func() error { return s.gRPCServer.serve(grpcLis) })
		g.Go(func() error {
			s.gRPCServer.handler.Watch(ctx)
			s.gRPCServer.shutdown()
			return nil
		})
	}

	err = g.Wait()
	s.logger.Info().Msg("server shutdown gracefully")
	return err
}
