// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/internal/store"
	"github.com/MKhiriev/go-catalog-sync/internal/validators"
	"github.com/MKhiriev/go-catalog-sync/models"
)

func updateChange(diff ...models.FieldDiff) models.StagedChange {
	return models.StagedChange{
		ID:         "c1",
		EntityRef:  models.EntityRef{Type: models.EntityProduct, Key: "p1"},
		ChangeType: models.ChangeUpdate,
		Diff:       diff,
	}
}

func TestRuleMatches(t *testing.T) {
	collection := models.EntityCollection
	create := models.ChangeCreate
	rel := 0.1
	abs := 5.0

	tests := []struct {
		name   string
		rule   models.ApprovalRule
		change models.StagedChange
		want   bool
	}{
		{"unconditional", models.ApprovalRule{}, updateChange(models.FieldDiff{Field: "title", Old: "a", New: "b"}), true},
		{"empty diff", models.ApprovalRule{}, updateChange(), false},
		{"entity type mismatch", models.ApprovalRule{EntityType: &collection}, updateChange(models.FieldDiff{Field: "title"}), false},
		{"change type mismatch", models.ApprovalRule{ChangeType: &create}, updateChange(models.FieldDiff{Field: "title"}), false},
		{"pattern matches all", models.ApprovalRule{FieldPattern: "stock*"}, updateChange(
			models.FieldDiff{Field: "stock", Old: 1, New: 2},
			models.FieldDiff{Field: "stock_eu", Old: 1, New: 2},
		), true},
		{"pattern misses one", models.ApprovalRule{FieldPattern: "stock*"}, updateChange(
			models.FieldDiff{Field: "stock", Old: 1, New: 2},
			models.FieldDiff{Field: "price", Old: 1, New: 2},
		), false},
		{"within relative", models.ApprovalRule{MaxRelativeDelta: &rel}, updateChange(models.FieldDiff{Field: "price", Old: 100, New: "109.99"}), true},
		{"beyond relative", models.ApprovalRule{MaxRelativeDelta: &rel}, updateChange(models.FieldDiff{Field: "price", Old: 100, New: 111}), false},
		{"relative from zero", models.ApprovalRule{MaxRelativeDelta: &rel}, updateChange(models.FieldDiff{Field: "stock", Old: 0, New: 3}), false},
		{"relative on text", models.ApprovalRule{MaxRelativeDelta: &rel}, updateChange(models.FieldDiff{Field: "title", Old: "a", New: "b"}), false},
		{"within absolute", models.ApprovalRule{MaxAbsoluteDelta: &abs}, updateChange(models.FieldDiff{Field: "stock", Old: 10, New: 5}), true},
		{"beyond absolute", models.ApprovalRule{MaxAbsoluteDelta: &abs}, updateChange(models.FieldDiff{Field: "stock", Old: 10, New: 4}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ruleMatches(tt.rule, tt.change))
		})
	}
}

func TestEvaluate_FirstMatchByPriority(t *testing.T) {
	rel := 0.05
	rules := store.NewMemoryApprovalRuleRepository(
		models.ApprovalRule{Name: "catch all", Priority: 10, Decision: models.DecisionRequireApproval, Enabled: true},
		models.ApprovalRule{Name: "tiny price", Priority: 1, FieldPattern: "price", MaxRelativeDelta: &rel, Decision: models.DecisionAutoApprove, Enabled: true},
		models.ApprovalRule{Name: "disabled", Priority: 0, Decision: models.DecisionAutoApprove},
	)
	engine := NewApprovalEngine(rules, validators.NewCatalogValidator(), logger.Nop())
	ctx := context.Background()

	eval, err := engine.Evaluate(ctx, updateChange(models.FieldDiff{Field: "price", Old: 100, New: 102}))
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAutoApprove, eval.Decision)
	assert.Equal(t, "tiny price", eval.RuleName)
	require.NotNil(t, eval.RuleID)

	eval, err = engine.Evaluate(ctx, updateChange(models.FieldDiff{Field: "price", Old: 100, New: 120}))
	require.NoError(t, err)
	assert.Equal(t, models.DecisionRequireApproval, eval.Decision)
	assert.Equal(t, "catch all", eval.RuleName)
}

func TestEvaluate_NoRules(t *testing.T) {
	engine := NewApprovalEngine(store.NewMemoryApprovalRuleRepository(), validators.NewCatalogValidator(), logger.Nop())

	eval, err := engine.Evaluate(context.Background(), updateChange(models.FieldDiff{Field: "price", Old: 1, New: 2}))
	require.NoError(t, err)
	assert.Equal(t, models.DecisionRequireApproval, eval.Decision)
	assert.Nil(t, eval.RuleID)
}

func TestCreateRule(t *testing.T) {
	engine := NewApprovalEngine(store.NewMemoryApprovalRuleRepository(), validators.NewCatalogValidator(), logger.Nop())
	ctx := context.Background()

	_, err := engine.CreateRule(ctx, models.ApprovalRule{Name: "bad", Decision: "maybe", Enabled: true})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = engine.CreateRule(ctx, models.ApprovalRule{Name: "bad pattern", FieldPattern: "[", Decision: models.DecisionAutoApprove, Enabled: true})
	assert.ErrorIs(t, err, ErrValidation)

	created, err := engine.CreateRule(ctx, models.ApprovalRule{Name: "stock", FieldPattern: "stock", Decision: models.DecisionAutoApprove, Enabled: true})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	rules, err := engine.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}
