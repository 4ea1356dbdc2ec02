// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import "time"

// ChangeType is the kind of mutation a staged change proposes.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Order returns the position of the change type in apply order: creates run
// before updates, updates before deletes.
func (c ChangeType) Order() int {
	switch c {
	case ChangeCreate:
		return 0
	case ChangeUpdate:
		return 1
	case ChangeDelete:
		return 2
	default:
		return 3
	}
}

// Direction tells which side a sync run writes to.
type Direction string

const (
	// DirectionPull reads from the remote and records the result locally.
	DirectionPull Direction = "pull"
	// DirectionPush sends local state to the remote platform.
	DirectionPush Direction = "push"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionPull || d == DirectionPush
}

// ChangeStatus is the review/apply state of a staged change.
type ChangeStatus string

const (
	StatusPending  ChangeStatus = "pending"
	StatusApproved ChangeStatus = "approved"
	StatusRejected ChangeStatus = "rejected"
	StatusApplied  ChangeStatus = "applied"
	StatusFailed   ChangeStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s ChangeStatus) Terminal() bool {
	return s == StatusRejected || s == StatusApplied || s == StatusFailed
}

// CanTransition reports whether a staged change may move from s to next.
//
//	pending  -> approved | rejected
//	approved -> applied  | failed
func (s ChangeStatus) CanTransition(next ChangeStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusApproved || next == StatusRejected
	case StatusApproved:
		return next == StatusApplied || next == StatusFailed
	default:
		return false
	}
}

// FailureKind classifies why a staged change ended in StatusFailed.
type FailureKind string

const (
	// FailureStale means the entity moved past the change's base version.
	FailureStale FailureKind = "stale"
	// FailurePermanent means the remote rejected the mutation outright.
	FailurePermanent FailureKind = "permanent"
	// FailureRetryable means the retry budget ran out on transient errors;
	// re-staging the change may succeed.
	FailureRetryable FailureKind = "retryable"
	// FailureUnrecorded means the remote accepted the mutation but the
	// result could not be recorded locally. The change is not sent again;
	// the entity needs a pull to catch up.
	FailureUnrecorded FailureKind = "unrecorded"
)

// FieldDiff is one changed field between the base and the proposed snapshot.
// Old is nil when the field is new, New is nil when it was removed.
type FieldDiff struct {
	Field string `json:"field"`
	Old   any    `json:"old,omitempty"`
	New   any    `json:"new,omitempty"`
}

// ConflictSeverity grades how risky a conflicting field is.
type ConflictSeverity string

const (
	SeverityLow    ConflictSeverity = "low"
	SeverityMedium ConflictSeverity = "medium"
	SeverityHigh   ConflictSeverity = "high"
)

// Rank orders severities so that the highest can be picked.
func (s ConflictSeverity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	default:
		return 0
	}
}

// ResolutionStrategy enumerates the supported ways of settling a conflict.
type ResolutionStrategy string

const (
	// ResolvePriority lets the higher-priority source win every conflicting field.
	ResolvePriority ResolutionStrategy = "priority"
	// ResolveMergeFields keeps non-conflicting edits from both sides and
	// settles conflicting fields by source priority.
	ResolveMergeFields ResolutionStrategy = "merge_fields"
	// ResolveTimestamp lets the most recently observed side win.
	ResolveTimestamp ResolutionStrategy = "timestamp"
	// ResolveManual requires an operator to pick values.
	ResolveManual ResolutionStrategy = "manual"
)

// ConflictDetail describes one conflicting field of a staged change.
type ConflictDetail struct {
	Field         string              `json:"field"`
	LocalValue    any                 `json:"local_value"`
	RemoteValue   any                 `json:"remote_value"`
	Severity      ConflictSeverity    `json:"severity"`
	Resolution    *ResolutionStrategy `json:"resolution,omitempty"`
	ResolvedValue any                 `json:"resolved_value,omitempty"`
	ResolvedBy    *string             `json:"resolved_by,omitempty"`
}

// Resolved reports whether a resolution has been recorded.
func (c ConflictDetail) Resolved() bool {
	return c.Resolution != nil
}

// StagedChange is one proposed mutation of an entity awaiting review and
// apply. Staged changes are never deleted; a re-diff supersedes the old record.
type StagedChange struct {
	ID string `json:"id"`

	EntityRef

	ChangeType ChangeType `json:"change_type"`
	Direction  Direction  `json:"direction"`

	// BaseVersion is the version the diff was computed against; 0 when the
	// entity had no history.
	BaseVersion int64 `json:"base_version"`

	// Current is the base snapshot (nil for creates).
	Current  *EntitySnapshot `json:"current,omitempty"`
	Proposed EntitySnapshot  `json:"proposed"`
	Diff     []FieldDiff     `json:"diff"`

	HasConflicts bool             `json:"has_conflicts"`
	Conflicts    []ConflictDetail `json:"conflicts,omitempty"`

	Status       ChangeStatus `json:"status"`
	AutoApproved bool         `json:"auto_approved"`
	BatchID      string       `json:"batch_id,omitempty"`
	Priority     Priority     `json:"priority"`

	ReviewedBy  *string    `json:"reviewed_by,omitempty"`
	ReviewNotes *string    `json:"review_notes,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`

	FailureKind   *FailureKind `json:"failure_kind,omitempty"`
	FailureReason *string      `json:"failure_reason,omitempty"`
	Attempts      int          `json:"attempts"`

	// RollbackOf is set on compensating changes and points at the change
	// being rolled back.
	RollbackOf *string `json:"rollback_of,omitempty"`

	// SupersededBy is set when a newer diff for the same entity replaced
	// this pending change.
	SupersededBy *string `json:"superseded_by,omitempty"`

	// AppliedVersion is the version appended by a successful apply.
	AppliedVersion *int64 `json:"applied_version,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UnresolvedConflicts returns the conflicts without a recorded resolution.
func (c StagedChange) UnresolvedConflicts() []ConflictDetail {
	var out []ConflictDetail
	for _, cd := range c.Conflicts {
		if !cd.Resolved() {
			out = append(out, cd)
		}
	}
	return out
}

// ConflictFields returns the names of all conflicting fields.
func (c StagedChange) ConflictFields() []string {
	out := make([]string, 0, len(c.Conflicts))
	for _, cd := range c.Conflicts {
		out = append(out, cd.Field)
	}
	return out
}

// Clone returns a deep copy of the change so stores and callers never share
// snapshot maps or slices.
func (c StagedChange) Clone() StagedChange {
	out := c
	if c.Current != nil {
		cur := c.Current.Clone()
		out.Current = &cur
	}
	out.Proposed = c.Proposed.Clone()
	if c.Diff != nil {
		out.Diff = append([]FieldDiff(nil), c.Diff...)
	}
	if c.Conflicts != nil {
		out.Conflicts = append([]ConflictDetail(nil), c.Conflicts...)
	}
	return out
}
