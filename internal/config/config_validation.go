// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package config

import (
	"fmt"
	"strings"
	"time"
)

// defaultConfig returns the values used for every field no other source set.
func defaultConfig() *StructuredConfig {
	return &StructuredConfig{
		App: App{
			Name:     "catalog-sync",
			LogLevel: "info",
		},
		Storage: Storage{
			Catalog: Catalog{DSN: "catalog.db"},
		},
		Server: Server{
			HTTPAddress:     "localhost:8080",
			GRPCAddress:     "localhost:9090",
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Adapter: Adapter{
			RequestTimeout: 30 * time.Second,
			PageSize:       250,
		},
		Workers: Workers{
			Min:              2,
			Max:              10,
			HighWater:        100,
			LowWater:         10,
			SampleInterval:   time.Second,
			ShrinkAfter:      30 * time.Second,
			CallTimeout:      30 * time.Second,
			RetryMaxAttempts: 5,
			RetryBaseDelay:   time.Second,
			RetryMaxDelay:    time.Minute,
		},
		RateLimit: RateLimit{
			Capacity:       40,
			LeakRate:       2,
			AcquireTimeout: time.Minute,
		},
		Batching: Batching{
			BulkThreshold: 10,
			MaxBatchSize:  50,
			SingleCost:    1,
			BulkCost:      2,
		},
		Conflict: Conflict{
			PriceThreshold:     0.20,
			InventoryThreshold: 0.20,
			PriceFields:        []string{"price", "compare_at_price", "cost"},
			InventoryFields:    []string{"inventory_quantity", "stock"},
			TextFields:         []string{"description", "body_html", "title", "tags"},
			SourcePriority:     []string{"remote", "supplier", "inventory", "local"},
		},
		Broker: Broker{
			Exchange: "catalog.sync",
		},
		Feed: Feed{
			Charset: "utf-8",
		},
	}
}

// validate checks the merged configuration before it is used at startup.
func (cfg *StructuredConfig) validate() error {
	if cfg.Server.HTTPAddress == "" || cfg.Server.RequestTimeout <= 0 {
		return ErrInvalidServerConfigs
	}

	if cfg.Storage.Catalog.DSN == "" {
		return ErrInvalidStorageConfigs
	}

	if cfg.Adapter.RequestTimeout <= 0 || cfg.Adapter.PageSize <= 0 {
		return ErrInvalidAdapterConfigs
	}

	w := cfg.Workers
	if w.Min < 1 || w.Max < w.Min || w.LowWater > w.HighWater ||
		w.SampleInterval <= 0 || w.CallTimeout <= 0 ||
		w.RetryMaxAttempts < 1 || w.RetryBaseDelay <= 0 || w.RetryMaxDelay < w.RetryBaseDelay {
		return fmt.Errorf("%w: min=%d max=%d", ErrInvalidWorkerConfigs, w.Min, w.Max)
	}

	if cfg.RateLimit.Capacity < 1 || cfg.RateLimit.LeakRate <= 0 {
		return ErrInvalidRateLimitConfigs
	}

	b := cfg.Batching
	if b.BulkThreshold < 2 || b.MaxBatchSize < b.BulkThreshold || b.SingleCost < 1 || b.BulkCost < 1 {
		return ErrInvalidBatchingConfigs
	}
	if b.BulkCost > cfg.RateLimit.Capacity || b.SingleCost > cfg.RateLimit.Capacity {
		return fmt.Errorf("%w: operation cost exceeds rate limit capacity", ErrInvalidBatchingConfigs)
	}

	c := cfg.Conflict
	if c.PriceThreshold <= 0 || c.PriceThreshold > 1 || c.InventoryThreshold <= 0 || c.InventoryThreshold > 1 {
		return ErrInvalidConflictConfigs
	}

	switch strings.ToLower(cfg.Feed.Charset) {
	case "utf-8", "utf8", "windows-1252", "cp1252":
	default:
		return fmt.Errorf("%w: charset %q", ErrInvalidFeedConfigs, cfg.Feed.Charset)
	}

	return nil
}
