// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-catalog-sync/internal/config"
	"github.com/MKhiriev/go-catalog-sync/internal/handler"
	myGRPC "github.com/MKhiriev/go-catalog-sync/internal/handler/grpc"
	myHTTP "github.com/MKhiriev/go-catalog-sync/internal/handler/http"
	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/internal/service"
	"github.com/MKhiriev/go-catalog-sync/internal/store"
	"github.com/MKhiriev/go-catalog-sync/models"
)

func testHandlers(t *testing.T) *handler.Handlers {
	t.Helper()

	svcs, err := service.NewServices(*store.NewMemoryStorages(), config.StructuredConfig{App: config.App{Version: "1.0.0"}}, service.Dependencies{}, models.AppBuildInfo{}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(svcs.Close)

	return &handler.Handlers{
		HTTP: myHTTP.NewHandler(svcs, logger.Nop()),
		GRPC: myGRPC.NewHandler(map[string]myGRPC.Probe{"scheduler": func() bool { return true }}, logger.Nop()),
	}
}

func TestNewServer_NoAddresses(t *testing.T) {
	_, err := NewServer(&handler.Handlers{}, config.Server{}, logger.Nop())
	assert.ErrorIs(t, err, errNoServersAreCreated)
}

func TestRunServer_ServesUntilCancelled(t *testing.T) {
	cfg := config.Server{
		HTTPAddress:     "127.0.0.1:0",
		GRPCAddress:     "127.0.0.1:0",
		ShutdownTimeout: time.Second,
	}
	srv, err := NewServer(testHandlers(t), cfg, logger.Nop())
	require.NoError(t, err)

	s := srv.(*server)
	bound := make(chan string, 2)
	s.listen = func(network, address string) (net.Listener, error) {
		lis, err := net.Listen(network, address)
		if err == nil {
			bound <- lis.Addr().String()
		}
		return lis, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.RunServer(ctx) }()

	httpAddr := <-bound
	<-bound

	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/api/version", httpAddr))
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunServer_ListenFailure(t *testing.T) {
	srv, err := NewServer(testHandlers(t), config.Server{HTTPAddress: "x", GRPCAddress: "y", ShutdownTimeout: time.Second}, logger.Nop())
	require.NoError(t, err)

	s := srv.(*server)
	var closed bool
	s.listen = func(_, address string) (net.Listener, error) {
		if address == "y" {
			return nil, errors.New("address in use")
		}
		lis, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		return &trackedListener{Listener: lis, closed: &closed}, nil
	}

	err = srv.RunServer(context.Background())
	assert.ErrorContains(t, err, "listen gRPC on y")
	assert.True(t, closed)
}

type trackedListener struct {
	net.Listener
	closed *bool
}

func (l *trackedListener) Close() error {
	*l.closed = true
	return l.Listener.Close()
}
