// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import "time"

// RuleDecision is the outcome an approval rule prescribes.
type RuleDecision string

const (
	DecisionRequireApproval RuleDecision = "require_approval"
	DecisionAutoApprove     RuleDecision = "auto_approve"
)

// ApprovalRule is a declarative auto-approval rule. Rules are evaluated in
// ascending Priority order and the first matching rule wins; when none
// matches the change requires approval.
//
// A rule matches a staged change when every set selector matches:
// EntityType and ChangeType compare for equality, FieldPattern is a
// path.Match glob that every changed field must satisfy, and the delta
// thresholds bound the numeric movement of every changed field.
type ApprovalRule struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`

	EntityType   *EntityType `json:"entity_type,omitempty"`
	ChangeType   *ChangeType `json:"change_type,omitempty"`
	FieldPattern string      `json:"field_pattern,omitempty"`

	// MaxRelativeDelta bounds |new-old|/|old| for numeric fields.
	MaxRelativeDelta *float64 `json:"max_relative_delta,omitempty"`
	// MaxAbsoluteDelta bounds |new-old| for numeric fields.
	MaxAbsoluteDelta *float64 `json:"max_absolute_delta,omitempty"`

	Decision RuleDecision `json:"decision"`
	Enabled  bool         `json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
}

// RuleEvaluation records which rule decided a staged change.
type RuleEvaluation struct {
	Decision RuleDecision
	RuleID   *int64
	RuleName string
}
