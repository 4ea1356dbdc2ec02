// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// StructuredJSONConfig mirrors [StructuredConfig] for JSON files, with
// durations given as strings ("30s") or nanoseconds.
type StructuredJSONConfig struct {
	App struct {
		Name     string `json:"name"`
		Version  string `json:"version"`
		LogLevel string `json:"log_level"`
	} `json:"app,omitempty"`

	Storage struct {
		DB struct {
			DSN string `json:"dsn"`
		} `json:"db,omitempty"`
		Catalog struct {
			DSN string `json:"dsn"`
		} `json:"catalog,omitempty"`
	} `json:"storage,omitempty"`

	Server struct {
		HTTPAddress     string   `json:"http_address"`
		GRPCAddress     string   `json:"grpc_address"`
		RequestTimeout  Duration `json:"request_timeout"`
		ShutdownTimeout Duration `json:"shutdown_timeout"`
	} `json:"server,omitempty"`

	Adapter struct {
		BaseURL        string   `json:"base_url"`
		AccessToken    string   `json:"access_token"`
		RequestTimeout Duration `json:"request_timeout"`
		PageSize       int      `json:"page_size"`
	} `json:"adapter,omitempty"`

	Workers struct {
		Min              int      `json:"min"`
		Max              int      `json:"max"`
		HighWater        int      `json:"high_water"`
		LowWater         int      `json:"low_water"`
		SampleInterval   Duration `json:"sample_interval"`
		ShrinkAfter      Duration `json:"shrink_after"`
		CallTimeout      Duration `json:"call_timeout"`
		RetryMaxAttempts int      `json:"retry_max_attempts"`
		RetryBaseDelay   Duration `json:"retry_base_delay"`
		RetryMaxDelay    Duration `json:"retry_max_delay"`
		PullInterval     Duration `json:"pull_interval"`
	} `json:"workers,omitempty"`

	RateLimit struct {
		Capacity       int      `json:"capacity"`
		LeakRate       float64  `json:"leak_rate"`
		AcquireTimeout Duration `json:"acquire_timeout"`
	} `json:"rate_limit,omitempty"`

	Batching Batching `json:"batching,omitempty"`

	Conflict struct {
		PriceThreshold     float64  `json:"price_threshold"`
		InventoryThreshold float64  `json:"inventory_threshold"`
		PriceFields        []string `json:"price_fields"`
		InventoryFields    []string `json:"inventory_fields"`
		TextFields         []string `json:"text_fields"`
		SourcePriority     []string `json:"source_priority"`
	} `json:"conflict,omitempty"`

	Broker struct {
		URL      string `json:"url"`
		Exchange string `json:"exchange"`
	} `json:"broker,omitempty"`

	Feed struct {
		SupplierPath  string `json:"supplier_path"`
		InventoryPath string `json:"inventory_path"`
		Charset       string `json:"charset"`
	} `json:"feed,omitempty"`
}

func parseJSON(jsonFilePath string) (*StructuredConfig, error) {
	jsonFile, err := os.Open(jsonFilePath)
	if err != nil {
		return nil, fmt.Errorf("error reading a json file: %w", err)
	}
	defer jsonFile.Close()

	var j StructuredJSONConfig
	if err := json.NewDecoder(jsonFile).Decode(&j); err != nil {
		return nil, fmt.Errorf("error decoding json configs: %w", err)
	}

	cfg := &StructuredConfig{
		App: App{
			Name:     j.App.Name,
			Version:  j.App.Version,
			LogLevel: j.App.LogLevel,
		},
		Storage: Storage{
			DB:      DB{DSN: j.Storage.DB.DSN},
			Catalog: Catalog{DSN: j.Storage.Catalog.DSN},
		},
		Server: Server{
			HTTPAddress:     j.Server.HTTPAddress,
			GRPCAddress:     j.Server.GRPCAddress,
			RequestTimeout:  time.Duration(j.Server.RequestTimeout),
			ShutdownTimeout: time.Duration(j.Server.ShutdownTimeout),
		},
		Adapter: Adapter{
			BaseURL:        j.Adapter.BaseURL,
			AccessToken:    j.Adapter.AccessToken,
			RequestTimeout: time.Duration(j.Adapter.RequestTimeout),
			PageSize:       j.Adapter.PageSize,
		},
		Workers: Workers{
			Min:              j.Workers.Min,
			Max:              j.Workers.Max,
			HighWater:        j.Workers.HighWater,
			LowWater:         j.Workers.LowWater,
			SampleInterval:   time.Duration(j.Workers.SampleInterval),
			ShrinkAfter:      time.Duration(j.Workers.ShrinkAfter),
			CallTimeout:      time.Duration(j.Workers.CallTimeout),
			RetryMaxAttempts: j.Workers.RetryMaxAttempts,
			RetryBaseDelay:   time.Duration(j.Workers.RetryBaseDelay),
			RetryMaxDelay:    time.Duration(j.Workers.RetryMaxDelay),
			PullInterval:     time.Duration(j.Workers.PullInterval),
		},
		RateLimit: RateLimit{
			Capacity:       j.RateLimit.Capacity,
			LeakRate:       j.RateLimit.LeakRate,
			AcquireTimeout: time.Duration(j.RateLimit.AcquireTimeout),
		},
		Batching: j.Batching,
		Conflict: Conflict{
			PriceThreshold:     j.Conflict.PriceThreshold,
			InventoryThreshold: j.Conflict.InventoryThreshold,
			PriceFields:        j.Conflict.PriceFields,
			InventoryFields:    j.Conflict.InventoryFields,
			TextFields:         j.Conflict.TextFields,
			SourcePriority:     j.Conflict.SourcePriority,
		},
		Broker: Broker{
			URL:      j.Broker.URL,
			Exchange: j.Broker.Exchange,
		},
		Feed: Feed{
			SupplierPath:  j.Feed.SupplierPath,
			InventoryPath: j.Feed.InventoryPath,
			Charset:       j.Feed.Charset,
		},
	}

	return cfg, nil
}

// Duration wraps time.Duration to unmarshal JSON strings like "1h" or "30s".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(tmp)
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
