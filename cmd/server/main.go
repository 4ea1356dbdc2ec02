// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Command server runs the catalog sync engine: the REST review API, the
// gRPC health service, the autoscaling worker pool and the periodic pull.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MKhiriev/go-catalog-sync/internal/adapter"
	"github.com/MKhiriev/go-catalog-sync/internal/batching"
	"github.com/MKhiriev/go-catalog-sync/internal/broker"
	"github.com/MKhiriev/go-catalog-sync/internal/config"
	"github.com/MKhiriev/go-catalog-sync/internal/handler"
	"github.com/MKhiriev/go-catalog-sync/internal/handler/grpc"
	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/internal/ratelimit"
	"github.com/MKhiriev/go-catalog-sync/internal/server"
	"github.com/MKhiriev/go-catalog-sync/internal/service"
	"github.com/MKhiriev/go-catalog-sync/internal/store"
	"github.com/MKhiriev/go-catalog-sync/internal/workers"
	"github.com/MKhiriev/go-catalog-sync/models"
	"github.com/MKhiriev/go-catalog-sync/pkg/metrics"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	printBuildInfo()

	cfg, err := config.GetStructuredConfig()
	if err != nil {
		logger.NewLogger("catalog-sync", "info").Fatal().Err(err).Msg("error getting configs")
	}

	log := logger.NewLogger(cfg.App.Name, cfg.App.LogLevel)
	log.Debug().Any("config", cfg).Msg("received configs")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	if err = run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("catalog sync stopped with error")
	}
	log.Info().Msg("catalog sync stopped")
}

func run(ctx context.Context, cfg *config.StructuredConfig, log *logger.Logger) error {
	storages, err := store.NewStorages(ctx, cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("creating storages: %w", err)
	}
	defer storages.Close()

	remote, err := adapter.NewHTTPRemoteClient(cfg.Adapter, log)
	if err != nil {
		return fmt.Errorf("creating remote client: %w", err)
	}
	producers, err := buildProducers(cfg, log)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(cfg.RateLimit, ratelimit.WithWaitObserver(func(d time.Duration) {
		metrics.RateLimitWait.Observe(d.Seconds())
	}))

	probes := map[string]grpc.Probe{}
	var publisher interface {
		service.Publisher
		Close() error
	} = broker.LogPublisher{}
	if cfg.Broker.URL != "" {
		rabbit, err := broker.NewRabbitMQPublisher(cfg.Broker, log)
		if err != nil {
			return fmt.Errorf("connecting to broker: %w", err)
		}
		publisher = rabbit
		probes["broker"] = rabbit.Healthy
	}
	defer publisher.Close()

	services, err := service.NewServices(*storages, *cfg, service.Dependencies{
		Remote:    remote,
		Producers: producers,
		Limiter:   limiter,
		Publisher: publisher,
	}, models.NewAppBuildInfo(buildVersion, buildDate, buildCommit), log)
	if err != nil {
		return fmt.Errorf("creating services: %w", err)
	}
	defer services.Close()

	pool := workers.NewPool(cfg.Workers, workers.PoolDeps{
		Applier:   services.Applier,
		Client:    remote,
		Limiter:   limiter,
		Optimizer: batching.NewOptimizer(cfg.Batching),
	}, log)
	services.BindScheduler(pool)
	probes["scheduler"] = pool.Running

	if err = services.Recover(ctx); err != nil {
		return fmt.Errorf("recovering batches: %w", err)
	}

	background := []workers.Worker{pool}
	if cfg.Workers.PullInterval > 0 {
		background = append(background, workers.NewPullJob(services.Starter, cfg.Workers.PullInterval, log))
	}

	handlers, err := handler.NewHandlers(services, probes, cfg.Server, log)
	if err != nil {
		return fmt.Errorf("creating handlers: %w", err)
	}
	srv, err := server.NewServer(handlers, cfg.Server, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return workers.NewWorkers(background...).Run(gctx)
	})
	g.Go(func() error {
		return srv.RunServer(gctx)
	})
	return g.Wait()
}

// buildProducers returns the snapshot producers beyond the local catalog,
// which the service layer adds itself.
func buildProducers(cfg *config.StructuredConfig, log *logger.Logger) (map[models.SourceSystem]adapter.SnapshotProducer, error) {
	remote, err := adapter.NewHTTPSnapshotProducer(cfg.Adapter, log)
	if err != nil {
		return nil, fmt.Errorf("creating remote snapshot producer: %w", err)
	}

	producers := map[models.SourceSystem]adapter.SnapshotProducer{
		models.SourceRemote: remote,
	}
	if cfg.Feed.SupplierPath != "" {
		producers[models.SourceSupplier] = adapter.NewFeedProducer(cfg.Feed.SupplierPath, cfg.Feed.Charset, models.SourceSupplier, log)
	}
	if cfg.Feed.InventoryPath != "" {
		producers[models.SourceInventory] = adapter.NewFeedProducer(cfg.Feed.InventoryPath, cfg.Feed.Charset, models.SourceInventory, log)
	}
	return producers, nil
}

// printBuildInfo prints the linker-provided build metadata. The globals are
// left untouched so an unset version falls back to the configured one.
func printBuildInfo() {
	fmt.Printf("Build version: %s\n", orNA(buildVersion))
	fmt.Printf("Build date: %s\n", orNA(buildDate))
	fmt.Printf("Build commit: %s\n", orNA(buildCommit))
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
