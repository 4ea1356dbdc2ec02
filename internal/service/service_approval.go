// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"context"
	"fmt"
	"math"
	"path"

	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/internal/store"
	"github.com/MKhiriev/go-catalog-sync/internal/validators"
	"github.com/MKhiriev/go-catalog-sync/models"
)

type approvalEngine struct {
	rules     store.ApprovalRuleRepository
	validator validators.Validator

	logger *logger.Logger
}

func NewApprovalEngine(rules store.ApprovalRuleRepository, validator validators.Validator, log *logger.Logger) ApprovalEngine {
	return &approvalEngine{rules: rules, validator: validator, logger: log}
}

// Evaluate returns the decision of the first enabled rule, in priority
// order, that matches change. Without a match the change requires approval.
func (a *approvalEngine) Evaluate(ctx context.Context, change models.StagedChange) (models.RuleEvaluation, error) {
	rules, err := a.rules.ListEnabled(ctx)
	if err != nil {
		return models.RuleEvaluation{}, fmt.Errorf("list approval rules: %w", err)
	}

	for _, rule := range rules {
		if !ruleMatches(rule, change) {
			continue
		}
		id := rule.ID
		logger.FromContext(ctx).Debug().
			Str("func", "approvalEngine.Evaluate").
			Str("change_id", change.ID).
			Str("rule", rule.Name).
			Str("decision", string(rule.Decision)).
			Msg("approval rule matched")
		return models.RuleEvaluation{Decision: rule.Decision, RuleID: &id, RuleName: rule.Name}, nil
	}

	return models.RuleEvaluation{Decision: models.DecisionRequireApproval}, nil
}

func (a *approvalEngine) CreateRule(ctx context.Context, rule models.ApprovalRule) (models.ApprovalRule, error) {
	if err := a.validator.Validate(ctx, rule); err != nil {
		return models.ApprovalRule{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return a.rules.Create(ctx, rule)
}

func (a *approvalEngine) ListRules(ctx context.Context) ([]models.ApprovalRule, error) {
	return a.rules.ListEnabled(ctx)
}

// ruleMatches checks the scope of rule and its condition. Every changed
// field has to fit the field pattern and the delta bounds; a bound on a
// non-numeric field never holds.
func ruleMatches(rule models.ApprovalRule, change models.StagedChange) bool {
	if rule.EntityType != nil && *rule.EntityType != change.Type {
		return false
	}
	if rule.ChangeType != nil && *rule.ChangeType != change.ChangeType {
		return false
	}
	if len(change.Diff) == 0 {
		return false
	}

	for _, d := range change.Diff {
		if rule.FieldPattern != "" {
			if ok, err := path.Match(rule.FieldPattern, d.Field); err != nil || !ok {
				return false
			}
		}
		if rule.MaxRelativeDelta != nil && !withinRelative(d, *rule.MaxRelativeDelta) {
			return false
		}
		if rule.MaxAbsoluteDelta != nil {
			delta, ok := absoluteDelta(d.Old, d.New)
			if !ok || delta > *rule.MaxAbsoluteDelta {
				return false
			}
		}
	}

	return true
}

func withinRelative(d models.FieldDiff, bound float64) bool {
	if delta, ok := relativeDelta(d.Old, d.New); ok {
		return delta <= bound
	}
	// zero base: only a move to zero is within any bound
	if abs, ok := absoluteDelta(d.Old, d.New); ok {
		return abs == 0 || math.IsInf(bound, 1)
	}
	return false
}
