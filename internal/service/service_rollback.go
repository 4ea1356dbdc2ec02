// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/internal/store"
	"github.com/MKhiriev/go-catalog-sync/internal/validators"
	"github.com/MKhiriev/go-catalog-sync/models"
)

type rollbackService struct {
	versions  store.VersionStore
	changes   store.StagedChangeRepository
	rollbacks store.RollbackRepository
	staging   StagingService
	validator validators.Validator
	tracker   batchTracker
	now       func() time.Time

	logger *logger.Logger
}

// Rollback stages a compensating push that restores the entity to the
// version current before changeID was applied. The compensating change is
// approved by the requester unless it conflicts with the remote state, in
// which case it waits for review like any other change.
func (r *rollbackService) Rollback(ctx context.Context, changeID string, req models.RollbackRequest) (models.RollbackRecord, error) {
	log := logger.FromContext(ctx)

	if err := r.validator.Validate(ctx, req); err != nil {
		return models.RollbackRecord{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	original, err := r.changes.Get(ctx, changeID)
	if errors.Is(err, store.ErrStagedChangeNotFound) {
		return models.RollbackRecord{}, fmt.Errorf("%w: %s", ErrChangeNotFound, changeID)
	}
	if err != nil {
		return models.RollbackRecord{}, fmt.Errorf("load change %s: %w", changeID, err)
	}
	if original.Status != models.StatusApplied || original.AppliedVersion == nil {
		return models.RollbackRecord{}, fmt.Errorf("%w: change %s is %s", ErrInvalidState, changeID, original.Status)
	}

	restored := *original.AppliedVersion - 1
	target, err := r.restoreTarget(ctx, original.EntityRef, restored)
	if err != nil {
		return models.RollbackRecord{}, err
	}

	compensating, err := r.staging.Stage(ctx, StageRequest{
		Proposed:   target,
		Direction:  models.DirectionPush,
		Priority:   models.PriorityCritical,
		RollbackOf: &original.ID,
		Approver:   req.Requester,
	})
	if err != nil {
		return models.RollbackRecord{}, fmt.Errorf("stage compensating change: %w", err)
	}
	if compensating.Status == models.StatusApproved {
		r.tracker.Approved(ctx, compensating)
	}

	rec := models.RollbackRecord{
		ID:                   uuid.Must(uuid.NewV7()).String(),
		OriginalChangeID:     original.ID,
		CompensatingChangeID: compensating.ID,
		RestoredVersion:      restored,
		Reason:               req.Reason,
		CreatedBy:            req.Requester,
		CreatedAt:            r.now().UTC(),
	}
	if err = r.rollbacks.Create(ctx, rec); err != nil {
		return models.RollbackRecord{}, fmt.Errorf("save rollback record: %w", err)
	}

	log.Info().
		Str("func", "rollbackService.Rollback").
		Str("change_id", original.ID).
		Str("compensating_change_id", compensating.ID).
		Int64("restored_version", restored).
		Str("status", string(compensating.Status)).
		Msg("rollback staged")

	return rec, nil
}

// restoreTarget returns the snapshot to propose. Rolling back the change
// that created the entity deletes it.
func (r *rollbackService) restoreTarget(ctx context.Context, ref models.EntityRef, version int64) (models.EntitySnapshot, error) {
	if version <= 0 {
		return models.EntitySnapshot{
			Type:    ref.Type,
			Key:     ref.Key,
			Source:  models.SourceRollback,
			Deleted: true,
		}, nil
	}

	prev, err := r.versions.Get(ctx, ref, version)
	if err != nil {
		return models.EntitySnapshot{}, fmt.Errorf("load version %d of %s: %w", version, ref, err)
	}

	snap := prev.Snapshot.Clone()
	snap.Source = models.SourceRollback
	snap.ObservedAt = time.Time{}
	return snap, nil
}

func (r *rollbackService) ListRollbacks(ctx context.Context, changeID string) ([]models.RollbackRecord, error) {
	if _, err := r.changes.Get(ctx, changeID); err != nil {
		if errors.Is(err, store.ErrStagedChangeNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrChangeNotFound, changeID)
		}
		return nil, err
	}
	return r.rollbacks.ListByOriginal(ctx, changeID)
}
