// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import "time"

// ChangeQuery filters staged changes for review listings.
// Zero-valued fields do not constrain the result.
type ChangeQuery struct {
	Status       *ChangeStatus `json:"status,omitempty"`
	EntityType   *EntityType   `json:"entity_type,omitempty"`
	BatchID      string        `json:"batch_id,omitempty"`
	HasConflicts *bool         `json:"has_conflicts,omitempty"`
	Limit        int           `json:"limit,omitempty"`
	Offset       int           `json:"offset,omitempty"`
}

// ReviewRequest carries the reviewer identity and optional notes for
// approve and reject operations.
type ReviewRequest struct {
	Reviewer string `json:"reviewer"`
	Notes    string `json:"notes,omitempty"`
}

// BulkApproveRequest approves many staged changes in one call.
type BulkApproveRequest struct {
	ChangeIDs []string `json:"change_ids"`
	Reviewer  string   `json:"reviewer"`
	Notes     string   `json:"notes,omitempty"`
}

// BulkApproveResult reports the per-id outcome of a bulk approval.
// Failed maps the change id to the error message.
type BulkApproveResult struct {
	Approved []string          `json:"approved"`
	Failed   map[string]string `json:"failed,omitempty"`
}

// ResolveRequest settles the conflicts of a staged change with a strategy.
// Values is consulted for the manual strategy only and maps a conflicting
// field to the operator-chosen value.
type ResolveRequest struct {
	Strategy ResolutionStrategy `json:"strategy"`
	Values   map[string]any     `json:"values,omitempty"`
	Resolver string             `json:"resolver"`
}

// RollbackRequest asks to undo an applied staged change.
type RollbackRequest struct {
	Reason    string `json:"reason"`
	Requester string `json:"requester"`
}

// StartSyncRequest starts an orchestrated sync run.
type StartSyncRequest struct {
	Direction    Direction    `json:"direction"`
	Source       SourceSystem `json:"source"`
	EntityType   *EntityType  `json:"entity_type,omitempty"`
	UpdatedSince *time.Time   `json:"updated_since,omitempty"`
	Keys         []string     `json:"keys,omitempty"`
}

// Filter builds the snapshot filter of the request.
func (r StartSyncRequest) Filter() SnapshotFilter {
	return SnapshotFilter{
		EntityType:   r.EntityType,
		UpdatedSince: r.UpdatedSince,
		Keys:         r.Keys,
	}
}

// ErrorResponse is the JSON body returned for failed API calls.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}
