// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/internal/store"
	"github.com/MKhiriev/go-catalog-sync/models"
)

const applierActor = "applier"

// applier settles staged changes for the worker pool. It is the only
// writer of applied versions; the compare-and-append on the version store
// enforces the stale-base rule.
type applier struct {
	versions store.VersionStore
	changes  store.StagedChangeRepository
	catalog  store.LocalCatalog

	publisher Publisher
	tracker   batchTracker
	now       func() time.Time

	logger *logger.Logger
}

// Prepare returns the approved, up to date changes among ids. Changes
// whose base is no longer the latest version are failed as stale here,
// before any remote call is made. Of several changes to one entity only
// the first is returned; the others would overwrite it on the remote and
// are failed as stale too.
func (a *applier) Prepare(ctx context.Context, ids []string) ([]models.StagedChange, error) {
	log := logger.FromContext(ctx)

	changes, err := a.changes.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load staged changes: %w", err)
	}

	ready := make([]models.StagedChange, 0, len(changes))
	claimed := make(map[models.EntityRef]struct{}, len(changes))
	for _, c := range changes {
		if c.Status != models.StatusApproved {
			log.Debug().Str("func", "applier.Prepare").Str("change_id", c.ID).Str("status", string(c.Status)).Msg("skipping change that is not approved")
			continue
		}

		latest, err := a.latestVersion(ctx, c.EntityRef)
		if err != nil {
			return nil, err
		}
		if _, dup := claimed[c.EntityRef]; dup {
			// an earlier change of this group takes the next version
			latest++
		}
		if latest != c.BaseVersion {
			stale := &StaleBaseError{Ref: c.EntityRef, Expected: c.BaseVersion, Actual: latest}
			if err = a.Fail(ctx, c.ID, c.Attempts, models.FailureStale, stale.Error()); err != nil {
				log.Err(err).Str("func", "applier.Prepare").Str("change_id", c.ID).Msg("failed to mark stale change")
			}
			continue
		}

		claimed[c.EntityRef] = struct{}{}
		ready = append(ready, c)
	}

	return ready, nil
}

// Complete appends the applied snapshot as the next version, marks the
// change applied and mirrors the result into the local catalog. Losing
// the append race fails the change as stale.
func (a *applier) Complete(ctx context.Context, change models.StagedChange, remoteID *string) error {
	log := logger.FromContext(ctx).WithBatch(change.BatchID)

	snap := change.Proposed.Clone()
	if remoteID != nil {
		id := *remoteID
		snap.RemoteID = &id
	}
	if change.ChangeType == models.ChangeDelete {
		snap.Fields = nil
		snap.Deleted = true
	}

	changeID := change.ID
	rec, err := a.versions.AppendIfLatest(ctx, change.BaseVersion, models.VersionRecord{
		EntityRef: change.EntityRef,
		Snapshot:  snap,
		Source:    snap.Source,
		CreatedBy: actorOf(change),
		ChangeID:  &changeID,
	})
	if errors.Is(err, store.ErrVersionConflict) {
		latest, _ := a.latestVersion(ctx, change.EntityRef)
		stale := &StaleBaseError{Ref: change.EntityRef, Expected: change.BaseVersion, Actual: latest}
		log.Warn().Str("func", "applier.Complete").Str("change_id", change.ID).Err(stale).Msg("lost version race")
		return a.Fail(ctx, change.ID, change.Attempts, models.FailureStale, stale.Error())
	}
	if err != nil {
		return fmt.Errorf("append version of %s: %w", change.EntityRef, err)
	}

	now := a.now().UTC()
	applied := change.Clone()
	applied.Status = models.StatusApplied
	applied.Proposed = snap
	applied.AppliedVersion = &rec.Version
	applied.FailureKind = nil
	applied.FailureReason = nil
	applied.UpdatedAt = now
	if err = a.changes.UpdateIfStatus(ctx, applied, models.StatusApproved); err != nil {
		return fmt.Errorf("mark change %s applied: %w", change.ID, err)
	}

	if err = a.mirror(ctx, applied); err != nil {
		log.Err(err).Str("func", "applier.Complete").Str("change_id", change.ID).Msg("failed to update local catalog")
	}

	log.Info().
		Str("func", "applier.Complete").
		Str("change_id", change.ID).
		Str("entity", change.EntityRef.String()).
		Int64("version", rec.Version).
		Msg("change applied")

	eventType := models.EventChangeApplied
	if applied.RollbackOf != nil {
		eventType = models.EventChangeRolledBack
	}
	a.publish(ctx, models.SyncEvent{
		Type:       eventType,
		ChangeID:   applied.ID,
		BatchID:    applied.BatchID,
		Entity:     &applied.EntityRef,
		Version:    &rec.Version,
		OccurredAt: now,
	})
	a.tracker.Settled(ctx, applied)
	return nil
}

// Fail marks an approved change failed.
func (a *applier) Fail(ctx context.Context, changeID string, attempts int, kind models.FailureKind, reason string) error {
	change, err := a.changes.Get(ctx, changeID)
	if err != nil {
		return fmt.Errorf("load change %s: %w", changeID, err)
	}
	if !change.Status.CanTransition(models.StatusFailed) {
		return fmt.Errorf("%w: change %s is %s", ErrInvalidState, changeID, change.Status)
	}

	now := a.now().UTC()
	change.Status = models.StatusFailed
	change.FailureKind = &kind
	change.FailureReason = &reason
	change.Attempts = max(change.Attempts, attempts)
	change.UpdatedAt = now
	if err = a.changes.UpdateIfStatus(ctx, change, models.StatusApproved); err != nil {
		return fmt.Errorf("mark change %s failed: %w", changeID, err)
	}

	logger.FromContext(ctx).Warn().
		Str("func", "applier.Fail").
		Str("change_id", changeID).
		Str("batch_id", change.BatchID).
		Str("kind", string(kind)).
		Str("reason", reason).
		Msg("change failed")

	a.publish(ctx, models.SyncEvent{
		Type:        models.EventChangeFailed,
		ChangeID:    change.ID,
		BatchID:     change.BatchID,
		Entity:      &change.EntityRef,
		FailureKind: &kind,
		Reason:      reason,
		OccurredAt:  now,
	})
	a.tracker.Settled(ctx, change)
	return nil
}

// Skip counts an approved change that left the queue unapplied against its
// batch. The change keeps its status and is released again by Recover or a
// later batch.
func (a *applier) Skip(ctx context.Context, changeID string) error {
	change, err := a.changes.Get(ctx, changeID)
	if err != nil {
		return fmt.Errorf("load change %s: %w", changeID, err)
	}
	if change.Status != models.StatusApproved {
		return nil
	}

	logger.FromContext(ctx).Info().
		Str("func", "applier.Skip").
		Str("change_id", changeID).
		Str("batch_id", change.BatchID).
		Msg("change skipped")

	a.tracker.Settled(ctx, change)
	return nil
}

// mirror brings the local catalog row in line with an applied change.
func (a *applier) mirror(ctx context.Context, change models.StagedChange) error {
	ref := change.EntityRef

	if change.ChangeType == models.ChangeDelete {
		return a.catalog.Delete(ctx, ref)
	}

	if change.Direction == models.DirectionPush && change.Proposed.Source == models.SourceLocal {
		return a.catalog.MarkClean(ctx, ref, change.Proposed.RemoteID)
	}

	row := change.Proposed.Clone()
	dirty := false
	if change.Direction == models.DirectionPull {
		// keep local edits the remote did not touch; they still need a push
		local, err := a.catalog.Get(ctx, ref)
		if err != nil {
			return err
		}
		base := snapshotFields(change.Current)
		if local != nil && !local.Deleted {
			for f, v := range local.Fields {
				if !fieldEqual(local.Fields, base, f) && fieldEqual(change.Proposed.Fields, base, f) {
					row.Fields[f] = v
					dirty = true
				}
			}
		}
	}
	return a.catalog.Upsert(ctx, row, dirty)
}

func (a *applier) latestVersion(ctx context.Context, ref models.EntityRef) (int64, error) {
	latest, err := a.versions.Latest(ctx, ref)
	if err != nil {
		return 0, fmt.Errorf("load latest version of %s: %w", ref, err)
	}
	if latest == nil {
		return 0, nil
	}
	return latest.Version, nil
}

func (a *applier) publish(ctx context.Context, event models.SyncEvent) {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.Publish(ctx, event); err != nil {
		logger.FromContext(ctx).Warn().Err(err).
			Str("func", "applier.publish").
			Str("event", string(event.Type)).
			Str("change_id", event.ChangeID).
			Msg("failed to publish sync event")
	}
}

func actorOf(change models.StagedChange) string {
	if change.ReviewedBy != nil {
		return *change.ReviewedBy
	}
	return applierActor
}
