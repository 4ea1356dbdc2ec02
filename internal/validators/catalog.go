// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package validators

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/MKhiriev/go-catalog-sync/models"
)

// Field name constants used to scope validation to a subset of fields.
const (
	FieldEntityType = "entity_type"
	FieldEntityKey  = "entity_key"
	FieldSource     = "source"
	FieldFields     = "fields"

	FieldDirection = "direction"
	FieldReviewer  = "reviewer"
	FieldChangeIDs = "change_ids"
	FieldStrategy  = "strategy"
	FieldReason    = "reason"

	FieldDecision     = "decision"
	FieldFieldPattern = "field_pattern"
	FieldDeltas       = "deltas"
)

var knownSources = []models.SourceSystem{
	models.SourceLocal,
	models.SourceRemote,
	models.SourceSupplier,
	models.SourceInventory,
	models.SourceRollback,
}

// CatalogValidator validates snapshots and operator requests.
type CatalogValidator struct{}

func NewCatalogValidator() Validator {
	return &CatalogValidator{}
}

// Validate dispatches on the dynamic type of obj. Values and pointers are
// both accepted.
func (v *CatalogValidator) Validate(ctx context.Context, obj any, fields ...string) error {
	switch value := obj.(type) {
	case models.EntitySnapshot:
		return v.validateSnapshot(ctx, value, fields...)
	case *models.EntitySnapshot:
		return v.validateSnapshot(ctx, *value, fields...)

	case models.StartSyncRequest:
		return v.validateStartSync(ctx, value, fields...)
	case *models.StartSyncRequest:
		return v.validateStartSync(ctx, *value, fields...)

	case models.ReviewRequest:
		return v.validateReview(ctx, value, fields...)
	case *models.ReviewRequest:
		return v.validateReview(ctx, *value, fields...)

	case models.BulkApproveRequest:
		return v.validateBulkApprove(ctx, value, fields...)
	case *models.BulkApproveRequest:
		return v.validateBulkApprove(ctx, *value, fields...)

	case models.ResolveRequest:
		return v.validateResolve(ctx, value, fields...)
	case *models.ResolveRequest:
		return v.validateResolve(ctx, *value, fields...)

	case models.RollbackRequest:
		return v.validateRollback(ctx, value, fields...)
	case *models.RollbackRequest:
		return v.validateRollback(ctx, *value, fields...)

	case models.ApprovalRule:
		return v.validateRule(ctx, value, fields...)
	case *models.ApprovalRule:
		return v.validateRule(ctx, *value, fields...)

	default:
		return ErrUnsupportedType
	}
}

func isKnownSource(s models.SourceSystem) bool {
	for _, known := range knownSources {
		if s == known {
			return true
		}
	}
	return false
}

// validateSnapshot checks an entity snapshot before it is staged.
//
// Default validated fields: entity type, key, source and fields. A snapshot
// marked deleted may carry no fields.
func (v *CatalogValidator) validateSnapshot(ctx context.Context, s models.EntitySnapshot, fields ...string) error {
	if len(fields) == 0 {
		fields = []string{FieldEntityType, FieldEntityKey, FieldSource, FieldFields}
	}

	for _, f := range fields {
		switch f {
		case FieldEntityType:
			if !s.Type.Valid() {
				return fmt.Errorf("%w: %q", ErrInvalidEntityType, s.Type)
			}
		case FieldEntityKey:
			if strings.TrimSpace(s.Key) == "" {
				return ErrEmptyEntityKey
			}
		case FieldSource:
			if s.Source != "" && !isKnownSource(s.Source) {
				return fmt.Errorf("%w: %q", ErrInvalidSource, s.Source)
			}
		case FieldFields:
			if !s.Deleted && len(s.Fields) == 0 {
				return ErrEmptyFields
			}
		default:
			return ErrUnknownField
		}
	}

	return nil
}

// validateStartSync checks a batch start request. Only the remote is
// pulled from; local edits and the supplier and inventory feeds are pushed.
func (v *CatalogValidator) validateStartSync(ctx context.Context, r models.StartSyncRequest, fields ...string) error {
	if len(fields) == 0 {
		fields = []string{FieldDirection, FieldSource, FieldEntityType}
	}

	for _, f := range fields {
		switch f {
		case FieldDirection:
			if !r.Direction.Valid() {
				return fmt.Errorf("%w: %q", ErrInvalidDirection, r.Direction)
			}
		case FieldSource:
			if r.Source == "" {
				continue
			}
			if !isKnownSource(r.Source) || r.Source == models.SourceRollback {
				return fmt.Errorf("%w: %q", ErrInvalidSource, r.Source)
			}
			if r.Direction == models.DirectionPush && r.Source == models.SourceRemote {
				return fmt.Errorf("%w: push from %q", ErrDirectionSource, r.Source)
			}
			if r.Direction == models.DirectionPull && r.Source != models.SourceRemote {
				return fmt.Errorf("%w: pull from %q", ErrDirectionSource, r.Source)
			}
		case FieldEntityType:
			if r.EntityType != nil && !r.EntityType.Valid() {
				return fmt.Errorf("%w: %q", ErrInvalidEntityType, *r.EntityType)
			}
		default:
			return ErrUnknownField
		}
	}

	return nil
}

func (v *CatalogValidator) validateReview(ctx context.Context, r models.ReviewRequest, fields ...string) error {
	if len(fields) == 0 {
		fields = []string{FieldReviewer}
	}

	for _, f := range fields {
		switch f {
		case FieldReviewer:
			if strings.TrimSpace(r.Reviewer) == "" {
				return ErrEmptyReviewer
			}
		default:
			return ErrUnknownField
		}
	}

	return nil
}

func (v *CatalogValidator) validateBulkApprove(ctx context.Context, r models.BulkApproveRequest, fields ...string) error {
	if len(fields) == 0 {
		fields = []string{FieldReviewer, FieldChangeIDs}
	}

	for _, f := range fields {
		switch f {
		case FieldReviewer:
			if strings.TrimSpace(r.Reviewer) == "" {
				return ErrEmptyReviewer
			}
		case FieldChangeIDs:
			if len(r.ChangeIDs) == 0 {
				return ErrEmptyIDs
			}
			for i, id := range r.ChangeIDs {
				if id == "" {
					return fmt.Errorf("%w: empty id at index %d", ErrEmptyIDs, i)
				}
			}
		default:
			return ErrUnknownField
		}
	}

	return nil
}

func (v *CatalogValidator) validateResolve(ctx context.Context, r models.ResolveRequest, fields ...string) error {
	if len(fields) == 0 {
		fields = []string{FieldStrategy, FieldReviewer}
	}

	for _, f := range fields {
		switch f {
		case FieldStrategy:
			switch r.Strategy {
			case models.ResolvePriority, models.ResolveMergeFields, models.ResolveTimestamp, models.ResolveManual:
			default:
				return fmt.Errorf("%w: %q", ErrInvalidStrategy, r.Strategy)
			}
		case FieldReviewer:
			if strings.TrimSpace(r.Resolver) == "" {
				return ErrEmptyReviewer
			}
		default:
			return ErrUnknownField
		}
	}

	return nil
}

func (v *CatalogValidator) validateRollback(ctx context.Context, r models.RollbackRequest, fields ...string) error {
	if len(fields) == 0 {
		fields = []string{FieldReason, FieldReviewer}
	}

	for _, f := range fields {
		switch f {
		case FieldReason:
			if strings.TrimSpace(r.Reason) == "" {
				return ErrEmptyReason
			}
		case FieldReviewer:
			if strings.TrimSpace(r.Requester) == "" {
				return ErrEmptyReviewer
			}
		default:
			return ErrUnknownField
		}
	}

	return nil
}

// validateRule checks an approval rule. The field pattern must compile as
// a path.Match glob.
func (v *CatalogValidator) validateRule(ctx context.Context, r models.ApprovalRule, fields ...string) error {
	if len(fields) == 0 {
		fields = []string{FieldDecision, FieldFieldPattern, FieldDeltas, FieldEntityType}
	}

	for _, f := range fields {
		switch f {
		case FieldDecision:
			if r.Decision != models.DecisionAutoApprove && r.Decision != models.DecisionRequireApproval {
				return fmt.Errorf("%w: %q", ErrInvalidDecision, r.Decision)
			}
		case FieldFieldPattern:
			if r.FieldPattern == "" {
				continue
			}
			if _, err := path.Match(r.FieldPattern, ""); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidPattern, err)
			}
		case FieldDeltas:
			if r.MaxRelativeDelta != nil && *r.MaxRelativeDelta < 0 {
				return ErrNegativeDelta
			}
			if r.MaxAbsoluteDelta != nil && *r.MaxAbsoluteDelta < 0 {
				return ErrNegativeDelta
			}
		case FieldEntityType:
			if r.EntityType != nil && !r.EntityType.Valid() {
				return fmt.Errorf("%w: %q", ErrInvalidEntityType, *r.EntityType)
			}
		default:
			return ErrUnknownField
		}
	}

	return nil
}
