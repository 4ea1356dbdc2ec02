// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/MKhiriev/go-catalog-sync/internal/adapter"
	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/internal/store"
	"github.com/MKhiriev/go-catalog-sync/internal/validators"
	"github.com/MKhiriev/go-catalog-sync/internal/workers"
	"github.com/MKhiriev/go-catalog-sync/models"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 500

	systemActor = "system"
)

// StageRequest is one proposed snapshot to diff and record.
type StageRequest struct {
	Proposed  models.EntitySnapshot
	Direction models.Direction
	BatchID   string
	Priority  models.Priority

	// Partial proposals carry only some fields, as the supplier and
	// inventory feeds do; the rest is taken from the latest version.
	Partial bool

	RollbackOf *string
	// Approver, when set, approves a conflict-free change directly instead
	// of evaluating approval rules.
	Approver string
}

type stagingService struct {
	versions store.VersionStore
	changes  store.StagedChangeRepository
	catalog  store.LocalCatalog

	remote  adapter.RemoteClient
	limiter workers.Limiter

	detector  ConflictDetector
	approval  ApprovalEngine
	resolver  *conflictResolver
	validator validators.Validator

	tracker batchTracker
	now     func() time.Time

	logger *logger.Logger
}

// ── staging ─────────────────────────────────────────────────────────────────

// Stage diffs req.Proposed against the latest version of the entity,
// classifies conflicts against the other side and records the change.
// Conflict-free changes are approved when a rule allows it; conflicting
// ones always stay pending.
func (s *stagingService) Stage(ctx context.Context, req StageRequest) (models.StagedChange, error) {
	log := logger.FromContext(ctx)

	if err := s.validator.Validate(ctx, req.Proposed); err != nil {
		return models.StagedChange{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if !req.Direction.Valid() {
		return models.StagedChange{}, fmt.Errorf("%w: direction %q", ErrValidation, req.Direction)
	}

	ref := req.Proposed.Ref()
	latest, err := s.versions.Latest(ctx, ref)
	if err != nil {
		return models.StagedChange{}, fmt.Errorf("load latest version of %s: %w", ref, err)
	}

	var (
		base        *models.EntitySnapshot
		baseVersion int64
	)
	if latest != nil {
		snap := latest.Snapshot.Clone()
		base = &snap
		baseVersion = latest.Version
	}
	baseFields := snapshotFields(base)

	proposed := s.normalizeProposed(req, base)

	var changeType models.ChangeType
	switch {
	case proposed.Deleted && baseFields == nil:
		return models.StagedChange{}, fmt.Errorf("%w: %s is already absent", ErrNoChanges, ref)
	case proposed.Deleted:
		changeType = models.ChangeDelete
	case baseFields == nil:
		changeType = models.ChangeCreate
	default:
		changeType = models.ChangeUpdate
	}

	localFields, remoteFields, err := s.sides(ctx, req.Direction, proposed, baseFields)
	if err != nil {
		return models.StagedChange{}, err
	}

	result := s.detector.Classify(baseFields, localFields, remoteFields)
	if req.Direction == models.DirectionPush && changeType != models.ChangeDelete {
		for _, f := range result.AdoptRemote {
			if v, ok := remoteFields[f]; ok {
				proposed.Fields[f] = v
			} else {
				delete(proposed.Fields, f)
			}
		}
	}

	diff := diffFields(baseFields, snapshotFields(&proposed))
	if len(diff) == 0 {
		return models.StagedChange{}, fmt.Errorf("%w: %s", ErrNoChanges, ref)
	}

	now := s.now().UTC()
	change := models.StagedChange{
		ID:           uuid.Must(uuid.NewV7()).String(),
		EntityRef:    ref,
		ChangeType:   changeType,
		Direction:    req.Direction,
		BaseVersion:  baseVersion,
		Current:      base,
		Proposed:     proposed,
		Diff:         diff,
		HasConflicts: result.HasConflicts,
		Conflicts:    result.Details(localFields, remoteFields),
		Status:       models.StatusPending,
		BatchID:      req.BatchID,
		Priority:     req.Priority,
		RollbackOf:   req.RollbackOf,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err = s.decide(ctx, &change, req.Approver); err != nil {
		return models.StagedChange{}, err
	}

	if err = s.changes.Create(ctx, change); err != nil {
		return models.StagedChange{}, fmt.Errorf("save staged change: %w", err)
	}

	s.supersede(ctx, change)

	log.Debug().
		Str("func", "stagingService.Stage").
		Str("change_id", change.ID).
		Str("entity", ref.String()).
		Str("change_type", string(changeType)).
		Str("status", string(change.Status)).
		Bool("has_conflicts", change.HasConflicts).
		Int64("base_version", baseVersion).
		Msg("change staged")

	return change, nil
}

func (s *stagingService) normalizeProposed(req StageRequest, base *models.EntitySnapshot) models.EntitySnapshot {
	proposed := req.Proposed.Clone()
	if proposed.Source == "" {
		proposed.Source = models.SourceLocal
		if req.Direction == models.DirectionPull {
			proposed.Source = models.SourceRemote
		}
	}
	if proposed.ObservedAt.IsZero() {
		proposed.ObservedAt = s.now().UTC()
	}
	if proposed.RemoteID == nil && base != nil && base.RemoteID != nil {
		id := *base.RemoteID
		proposed.RemoteID = &id
	}
	switch {
	case proposed.Deleted:
		proposed.Fields = nil
	case req.Partial && base != nil && !base.Deleted:
		merged := maps.Clone(base.Fields)
		if merged == nil {
			merged = map[string]any{}
		}
		maps.Copy(merged, proposed.Fields)
		proposed.Fields = merged
	case proposed.Fields == nil:
		proposed.Fields = map[string]any{}
	}
	return proposed
}

// sides returns the local and remote field maps for conflict detection.
// On a pull the proposal is the remote side and the local row the other;
// on a push it is the other way round. An unobservable other side falls
// back to base.
func (s *stagingService) sides(ctx context.Context, dir models.Direction, proposed models.EntitySnapshot, baseFields map[string]any) (local, remote map[string]any, err error) {
	proposedFields := snapshotFields(&proposed)

	if dir == models.DirectionPull {
		row, err := s.catalog.Get(ctx, proposed.Ref())
		if err != nil {
			return nil, nil, fmt.Errorf("load local row of %s: %w", proposed.Ref(), err)
		}
		if row == nil {
			return baseFields, proposedFields, nil
		}
		return snapshotFields(row), proposedFields, nil
	}

	observed := s.observeRemote(ctx, proposed.Ref())
	if observed == nil {
		return proposedFields, baseFields, nil
	}
	return proposedFields, snapshotFields(observed), nil
}

// observeRemote fetches the current remote state through the rate
// limiter. Any failure is logged and yields nil.
func (s *stagingService) observeRemote(ctx context.Context, ref models.EntityRef) *models.EntitySnapshot {
	if s.remote == nil {
		return nil
	}
	log := logger.FromContext(ctx)

	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx, 1); err != nil {
			log.Warn().Err(err).Str("func", "stagingService.observeRemote").Str("entity", ref.String()).Msg("rate limiter refused remote fetch")
			return nil
		}
	}

	snap, err := s.remote.Fetch(ctx, ref)
	if err != nil {
		if rl, ok := adapter.AsRateLimited(err); ok && s.limiter != nil {
			s.limiter.Penalize(rl.RetryAfter)
		}
		log.Warn().Err(err).Str("func", "stagingService.observeRemote").Str("entity", ref.String()).Msg("failed to fetch remote state, comparing against base")
		return nil
	}
	return snap
}

// decide sets the initial status. Conflicts always keep the change pending.
func (s *stagingService) decide(ctx context.Context, change *models.StagedChange, approver string) error {
	if change.HasConflicts {
		return nil
	}

	if approver != "" {
		s.markApproved(change, approver, nil, false)
		return nil
	}

	eval, err := s.approval.Evaluate(ctx, *change)
	if err != nil {
		return err
	}
	if eval.Decision == models.DecisionAutoApprove {
		s.markApproved(change, "rule:"+eval.RuleName, nil, true)
	}
	return nil
}

func (s *stagingService) markApproved(change *models.StagedChange, actor string, notes *string, auto bool) {
	now := s.now().UTC()
	change.Status = models.StatusApproved
	change.AutoApproved = auto && !change.HasConflicts
	change.ReviewedBy = &actor
	change.ReviewNotes = notes
	change.ReviewedAt = &now
	change.UpdatedAt = now
}

// supersede rejects older pending changes of the same entity and
// direction; newer is the change that replaces them.
func (s *stagingService) supersede(ctx context.Context, newer models.StagedChange) {
	log := logger.FromContext(ctx)

	pending, err := s.changes.ListPending(ctx, newer.EntityRef)
	if err != nil {
		log.Err(err).Str("func", "stagingService.supersede").Str("entity", newer.EntityRef.String()).Msg("failed to list pending changes")
		return
	}

	for _, old := range pending {
		if old.ID == newer.ID || old.Direction != newer.Direction || old.BaseVersion > newer.BaseVersion {
			continue
		}

		now := s.now().UTC()
		actor := systemActor
		notes := "superseded by " + newer.ID
		old.Status = models.StatusRejected
		old.SupersededBy = &newer.ID
		old.ReviewedBy = &actor
		old.ReviewNotes = &notes
		old.ReviewedAt = &now
		old.UpdatedAt = now

		if err = s.changes.UpdateIfStatus(ctx, old, models.StatusPending); err != nil {
			log.Warn().Err(err).Str("func", "stagingService.supersede").Str("change_id", old.ID).Msg("failed to supersede change")
			continue
		}
		s.tracker.Settled(ctx, old)
	}
}

// ── review ──────────────────────────────────────────────────────────────────

func (s *stagingService) Get(ctx context.Context, id string) (models.StagedChange, error) {
	change, err := s.changes.Get(ctx, id)
	if errors.Is(err, store.ErrStagedChangeNotFound) {
		return models.StagedChange{}, fmt.Errorf("%w: %s", ErrChangeNotFound, id)
	}
	return change, err
}

func (s *stagingService) Query(ctx context.Context, q models.ChangeQuery) ([]models.StagedChange, int, error) {
	if q.Limit <= 0 {
		q.Limit = defaultQueryLimit
	}
	q.Limit = min(q.Limit, maxQueryLimit)
	q.Offset = max(q.Offset, 0)
	return s.changes.Query(ctx, q)
}

// Approve moves a pending change to approved and hands it to the
// scheduler. Conflicts do not block a human approval: approving is the
// decision that the proposal wins.
func (s *stagingService) Approve(ctx context.Context, id string, req models.ReviewRequest) (models.StagedChange, error) {
	if err := s.validator.Validate(ctx, req); err != nil {
		return models.StagedChange{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	change, err := s.reviewable(ctx, id, models.StatusApproved)
	if err != nil {
		return models.StagedChange{}, err
	}

	s.markApproved(&change, req.Reviewer, optional(req.Notes), false)
	if err = s.save(ctx, change, models.StatusPending); err != nil {
		return models.StagedChange{}, err
	}

	logger.FromContext(ctx).Info().
		Str("func", "stagingService.Approve").
		Str("change_id", id).
		Str("reviewer", req.Reviewer).
		Msg("change approved")

	s.tracker.Approved(ctx, change)
	return change, nil
}

func (s *stagingService) Reject(ctx context.Context, id string, req models.ReviewRequest) (models.StagedChange, error) {
	if err := s.validator.Validate(ctx, req); err != nil {
		return models.StagedChange{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	change, err := s.reviewable(ctx, id, models.StatusRejected)
	if err != nil {
		return models.StagedChange{}, err
	}

	now := s.now().UTC()
	change.Status = models.StatusRejected
	change.ReviewedBy = &req.Reviewer
	change.ReviewNotes = optional(req.Notes)
	change.ReviewedAt = &now
	change.UpdatedAt = now
	if err = s.save(ctx, change, models.StatusPending); err != nil {
		return models.StagedChange{}, err
	}

	logger.FromContext(ctx).Info().
		Str("func", "stagingService.Reject").
		Str("change_id", id).
		Str("reviewer", req.Reviewer).
		Msg("change rejected")

	s.tracker.Settled(ctx, change)
	return change, nil
}

// BulkApprove approves each change on its own; one failure does not stop
// the others.
func (s *stagingService) BulkApprove(ctx context.Context, req models.BulkApproveRequest) (models.BulkApproveResult, error) {
	if err := s.validator.Validate(ctx, req); err != nil {
		return models.BulkApproveResult{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	res := models.BulkApproveResult{Approved: []string{}, Failed: map[string]string{}}
	review := models.ReviewRequest{Reviewer: req.Reviewer, Notes: req.Notes}
	for _, id := range req.ChangeIDs {
		if _, err := s.Approve(ctx, id, review); err != nil {
			res.Failed[id] = err.Error()
			continue
		}
		res.Approved = append(res.Approved, id)
	}
	return res, nil
}

// ResolveConflicts settles the open conflicts of a pending change. The
// change stays pending and still needs an approval.
func (s *stagingService) ResolveConflicts(ctx context.Context, id string, req models.ResolveRequest) (models.StagedChange, error) {
	if err := s.validator.Validate(ctx, req); err != nil {
		return models.StagedChange{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	change, err := s.reviewable(ctx, id, models.StatusApproved)
	if err != nil {
		return models.StagedChange{}, err
	}
	if len(change.UnresolvedConflicts()) == 0 {
		return models.StagedChange{}, fmt.Errorf("%w: change %s has no open conflicts", ErrInvalidState, id)
	}

	var other *models.EntitySnapshot
	if req.Strategy == models.ResolveTimestamp {
		if other, err = s.otherSide(ctx, change); err != nil {
			return models.StagedChange{}, err
		}
	}

	resolved, err := s.resolver.resolve(change, req, other)
	if err != nil {
		return models.StagedChange{}, err
	}
	if err = s.save(ctx, resolved, models.StatusPending); err != nil {
		return models.StagedChange{}, err
	}

	logger.FromContext(ctx).Info().
		Str("func", "stagingService.ResolveConflicts").
		Str("change_id", id).
		Str("strategy", string(req.Strategy)).
		Int("conflicts", len(change.Conflicts)).
		Msg("conflicts resolved")

	return resolved, nil
}

func (s *stagingService) otherSide(ctx context.Context, change models.StagedChange) (*models.EntitySnapshot, error) {
	if change.Direction == models.DirectionPull {
		row, err := s.catalog.Get(ctx, change.EntityRef)
		if err != nil {
			return nil, fmt.Errorf("load local row of %s: %w", change.EntityRef, err)
		}
		return row, nil
	}
	return s.observeRemote(ctx, change.EntityRef), nil
}

// reviewable loads a change that may move from pending to next.
func (s *stagingService) reviewable(ctx context.Context, id string, next models.ChangeStatus) (models.StagedChange, error) {
	change, err := s.Get(ctx, id)
	if err != nil {
		return models.StagedChange{}, err
	}
	if !change.Status.CanTransition(next) || change.SupersededBy != nil {
		return models.StagedChange{}, fmt.Errorf("%w: change %s is %s", ErrInvalidState, id, change.Status)
	}
	return change, nil
}

func (s *stagingService) save(ctx context.Context, change models.StagedChange, expected models.ChangeStatus) error {
	err := s.changes.UpdateIfStatus(ctx, change, expected)
	if errors.Is(err, store.ErrStatusMismatch) {
		return fmt.Errorf("%w: change %s is no longer %s", ErrInvalidState, change.ID, expected)
	}
	return err
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
