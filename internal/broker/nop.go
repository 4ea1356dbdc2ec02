// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package broker

import (
	"context"

	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/models"
)

// LogPublisher stands in for the broker when none is configured: events
// are only logged at debug level.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, event models.SyncEvent) error {
	logger.FromContext(ctx).Debug().
		Str("func", "LogPublisher.Publish").
		Str("routing_key", event.RoutingKey()).
		Str("change_id", event.ChangeID).
		Str("batch_id", event.BatchID).
		Msg("sync event")
	observe(event.RoutingKey(), nil)
	return nil
}

func (LogPublisher) Close() error { return nil }
