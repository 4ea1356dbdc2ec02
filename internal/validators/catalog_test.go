// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package validators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-catalog-sync/models"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func validSnapshot() models.EntitySnapshot {
	return models.EntitySnapshot{
		Type:   models.EntityProduct,
		Key:    "sku-1",
		Fields: map[string]any{"price": "10.00"},
		Source: models.SourceSupplier,
	}
}

func ptr[T any](v T) *T { return &v }

// ---------------------------------------------------------------------------
// TestValidate_Dispatch
// ---------------------------------------------------------------------------

func TestValidate_Dispatch(t *testing.T) {
	v := NewCatalogValidator()
	ctx := context.Background()

	t.Run("unsupported type", func(t *testing.T) {
		require.ErrorIs(t, v.Validate(ctx, "a string"), ErrUnsupportedType)
	})

	t.Run("snapshot value and pointer", func(t *testing.T) {
		s := validSnapshot()
		require.NoError(t, v.Validate(ctx, s))
		require.NoError(t, v.Validate(ctx, &s))
	})

	t.Run("review pointer", func(t *testing.T) {
		require.NoError(t, v.Validate(ctx, &models.ReviewRequest{Reviewer: "ann"}))
	})

	t.Run("unknown field", func(t *testing.T) {
		require.ErrorIs(t, v.Validate(ctx, validSnapshot(), "nope"), ErrUnknownField)
	})
}

// ---------------------------------------------------------------------------
// TestValidateSnapshot
// ---------------------------------------------------------------------------

func TestValidateSnapshot(t *testing.T) {
	v := NewCatalogValidator()
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*models.EntitySnapshot)
		want   error
	}{
		{"valid", func(*models.EntitySnapshot) {}, nil},
		{"bad type", func(s *models.EntitySnapshot) { s.Type = "variant" }, ErrInvalidEntityType},
		{"blank key", func(s *models.EntitySnapshot) { s.Key = "  " }, ErrEmptyEntityKey},
		{"bad source", func(s *models.EntitySnapshot) { s.Source = "erp" }, ErrInvalidSource},
		{"no fields", func(s *models.EntitySnapshot) { s.Fields = nil }, ErrEmptyFields},
		{"deleted without fields", func(s *models.EntitySnapshot) { s.Fields = nil; s.Deleted = true }, nil},
		{"empty source allowed", func(s *models.EntitySnapshot) { s.Source = "" }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSnapshot()
			tt.mutate(&s)
			err := v.Validate(ctx, s)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// ---------------------------------------------------------------------------
// TestValidateStartSync
// ---------------------------------------------------------------------------

func TestValidateStartSync(t *testing.T) {
	v := NewCatalogValidator()
	ctx := context.Background()

	tests := []struct {
		name string
		req  models.StartSyncRequest
		want error
	}{
		{"pull remote", models.StartSyncRequest{Direction: models.DirectionPull, Source: models.SourceRemote}, nil},
		{"push supplier", models.StartSyncRequest{Direction: models.DirectionPush, Source: models.SourceSupplier}, nil},
		{"push default source", models.StartSyncRequest{Direction: models.DirectionPush}, nil},
		{"bad direction", models.StartSyncRequest{Direction: "sideways"}, ErrInvalidDirection},
		{"push from remote", models.StartSyncRequest{Direction: models.DirectionPush, Source: models.SourceRemote}, ErrDirectionSource},
		{"pull from inventory", models.StartSyncRequest{Direction: models.DirectionPull, Source: models.SourceInventory}, ErrDirectionSource},
		{"pull from local", models.StartSyncRequest{Direction: models.DirectionPull, Source: models.SourceLocal}, ErrDirectionSource},
		{"rollback source", models.StartSyncRequest{Direction: models.DirectionPush, Source: models.SourceRollback}, ErrInvalidSource},
		{"bad entity type", models.StartSyncRequest{Direction: models.DirectionPull, EntityType: ptr(models.EntityType("x"))}, ErrInvalidEntityType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(ctx, tt.req)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// ---------------------------------------------------------------------------
// Operator requests
// ---------------------------------------------------------------------------

func TestValidateOperatorRequests(t *testing.T) {
	v := NewCatalogValidator()
	ctx := context.Background()

	assert.ErrorIs(t, v.Validate(ctx, models.ReviewRequest{}), ErrEmptyReviewer)

	assert.ErrorIs(t, v.Validate(ctx, models.BulkApproveRequest{Reviewer: "ann"}), ErrEmptyIDs)
	assert.ErrorIs(t, v.Validate(ctx, models.BulkApproveRequest{Reviewer: "ann", ChangeIDs: []string{"a", ""}}), ErrEmptyIDs)
	assert.NoError(t, v.Validate(ctx, models.BulkApproveRequest{Reviewer: "ann", ChangeIDs: []string{"a"}}))

	assert.ErrorIs(t, v.Validate(ctx, models.ResolveRequest{Strategy: "coin_flip", Resolver: "ann"}), ErrInvalidStrategy)
	assert.ErrorIs(t, v.Validate(ctx, models.ResolveRequest{Strategy: models.ResolvePriority}), ErrEmptyReviewer)
	assert.NoError(t, v.Validate(ctx, models.ResolveRequest{Strategy: models.ResolveMergeFields, Resolver: "ann"}))

	assert.ErrorIs(t, v.Validate(ctx, models.RollbackRequest{Requester: "ann"}), ErrEmptyReason)
	assert.NoError(t, v.Validate(ctx, models.RollbackRequest{Requester: "ann", Reason: "bad price"}))
}

func TestValidateRule(t *testing.T) {
	v := NewCatalogValidator()
	ctx := context.Background()

	rule := models.ApprovalRule{Name: "small price moves", FieldPattern: "price*", Decision: models.DecisionAutoApprove, MaxRelativeDelta: ptr(0.05)}
	require.NoError(t, v.Validate(ctx, rule))

	bad := rule
	bad.FieldPattern = "[price"
	assert.ErrorIs(t, v.Validate(ctx, bad), ErrInvalidPattern)

	bad = rule
	bad.Decision = "maybe"
	assert.ErrorIs(t, v.Validate(ctx, bad), ErrInvalidDecision)

	bad = rule
	bad.MaxAbsoluteDelta = ptr(-1.0)
	assert.ErrorIs(t, v.Validate(ctx, bad), ErrNegativeDelta)
}
