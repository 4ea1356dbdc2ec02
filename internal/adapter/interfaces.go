// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package adapter connects the sync engine to the systems around it: the
// remote e-commerce platform and the supplier/inventory extracts.
//
// [RemoteClient] performs single and bulk writes against the platform and
// reads the current remote state of one entity. [SnapshotProducer] yields
// entity snapshots page by page with a resume cursor.
//
// Remote failures are classified so the worker pool can decide on retries:
// [*RateLimitedError] for 429, [ErrTransientRemote] for network errors,
// timeouts and 5xx, [ErrPermanentRemote] for any other 4xx.
package adapter

import (
	"context"

	"github.com/MKhiriev/go-catalog-sync/models"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/remote_client_mock.go -package=mock

// RemoteClient writes to and reads from the remote platform.
type RemoteClient interface {
	// Create creates one entity and returns its remote id.
	Create(ctx context.Context, entityType models.EntityType, item models.RemoteOperationItem) (string, error)
	Update(ctx context.Context, entityType models.EntityType, item models.RemoteOperationItem) error
	Delete(ctx context.Context, entityType models.EntityType, item models.RemoteOperationItem) error

	// Bulk calls return one result per item. A non-nil error means the call
	// as a whole failed and no item was applied.
	BulkCreate(ctx context.Context, entityType models.EntityType, items []models.RemoteOperationItem) ([]models.RemoteResult, error)
	BulkUpdate(ctx context.Context, entityType models.EntityType, items []models.RemoteOperationItem) ([]models.RemoteResult, error)
	BulkDelete(ctx context.Context, entityType models.EntityType, items []models.RemoteOperationItem) ([]models.RemoteResult, error)

	// Fetch returns the current remote state of ref, or nil when the
	// platform does not know the entity.
	Fetch(ctx context.Context, ref models.EntityRef) (*models.EntitySnapshot, error)
}

// Page is one chunk of a snapshot stream.
type Page struct {
	Snapshots []models.EntitySnapshot
	// NextCursor resumes the stream after this page.
	NextCursor string
	Done       bool
}

// SnapshotProducer yields a finite, restartable stream of snapshots. An
// empty cursor starts from the beginning.
type SnapshotProducer interface {
	Next(ctx context.Context, filter models.SnapshotFilter, cursor string) (Page, error)
}
