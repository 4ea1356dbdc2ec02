// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package store

import (
	"context"

	"github.com/MKhiriev/go-catalog-sync/models"
)

// VersionStore is the append-only snapshot history of every entity.
//
// Appends for one entity are serialized; appends for different entities may
// run concurrently. Versions are never updated and only removed by Prune.
type VersionStore interface {
	// Latest returns the newest version of ref, or nil when ref has no history.
	Latest(ctx context.Context, ref models.EntityRef) (*models.VersionRecord, error)

	// Get returns version n of ref or ErrVersionNotFound.
	Get(ctx context.Context, ref models.EntityRef, n int64) (models.VersionRecord, error)

	// Append records snapshot as version latest+1 (1 for a new entity).
	Append(ctx context.Context, rec models.VersionRecord) (models.VersionRecord, error)

	// AppendIfLatest appends only when the current latest version equals
	// expected (0 meaning no history) and returns ErrVersionConflict otherwise.
	AppendIfLatest(ctx context.Context, expected int64, rec models.VersionRecord) (models.VersionRecord, error)

	// History returns up to limit versions of ref, newest first. A
	// non-positive limit returns the whole history.
	History(ctx context.Context, ref models.EntityRef, limit int) ([]models.VersionRecord, error)

	// Prune deletes all but the newest keep versions of ref and returns the
	// number of removed records.
	Prune(ctx context.Context, ref models.EntityRef, keep int) (int, error)
}

// StagedChangeRepository persists staged changes. Records are never deleted.
type StagedChangeRepository interface {
	Create(ctx context.Context, change models.StagedChange) error
	Get(ctx context.Context, id string) (models.StagedChange, error)
	GetMany(ctx context.Context, ids []string) ([]models.StagedChange, error)

	// UpdateIfStatus overwrites the stored change when its current status
	// equals expected, otherwise it returns ErrStatusMismatch.
	UpdateIfStatus(ctx context.Context, change models.StagedChange, expected models.ChangeStatus) error

	// Query returns one page of changes matching q and the total match count.
	Query(ctx context.Context, q models.ChangeQuery) ([]models.StagedChange, int, error)

	// ListPending returns the pending, not superseded changes of an entity.
	ListPending(ctx context.Context, ref models.EntityRef) ([]models.StagedChange, error)
}

// BatchRepository persists sync batches.
type BatchRepository interface {
	Create(ctx context.Context, batch models.SyncBatch) error
	Get(ctx context.Context, id string) (models.SyncBatch, error)
	Update(ctx context.Context, batch models.SyncBatch) error
	// ListByStatus returns batches in the given status, oldest first.
	ListByStatus(ctx context.Context, status models.BatchStatus) ([]models.SyncBatch, error)
}

// RollbackRepository persists rollback records.
type RollbackRepository interface {
	Create(ctx context.Context, rec models.RollbackRecord) error
	ListByOriginal(ctx context.Context, originalChangeID string) ([]models.RollbackRecord, error)
}

// ApprovalRuleRepository persists approval rules.
type ApprovalRuleRepository interface {
	// ListEnabled returns enabled rules in ascending priority order.
	ListEnabled(ctx context.Context) ([]models.ApprovalRule, error)
	Create(ctx context.Context, rule models.ApprovalRule) (models.ApprovalRule, error)
}

// LocalCatalog is the local catalog database the service keeps in sync with
// the remote platform. Rows edited locally are flagged dirty until pushed.
type LocalCatalog interface {
	// Get returns the local row of ref, or nil when there is none.
	Get(ctx context.Context, ref models.EntityRef) (*models.EntitySnapshot, error)

	// ListDirty returns up to limit dirty rows with a key greater than
	// afterKey, ordered by type and key.
	ListDirty(ctx context.Context, filter models.SnapshotFilter, afterKey string, limit int) ([]models.EntitySnapshot, error)

	// Upsert writes a row; dirty marks it as a local edit awaiting push.
	Upsert(ctx context.Context, snapshot models.EntitySnapshot, dirty bool) error

	// MarkClean clears the dirty flag and records the remote id.
	MarkClean(ctx context.Context, ref models.EntityRef, remoteID *string) error

	// Delete removes the local row of ref.
	Delete(ctx context.Context, ref models.EntityRef) error
}

// ErrorClassificator decides whether a failed database operation may be
// retried.
type ErrorClassificator interface {
	Classify(err error) ErrorClassification
}
