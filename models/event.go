// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import "time"

type EventType string

const (
	EventChangeApplied    EventType = "change.applied"
	EventChangeFailed     EventType = "change.failed"
	EventChangeRolledBack EventType = "change.rolled_back"
	EventBatchClosed      EventType = "batch.closed"
)

// SyncEvent is a notification about a settled change or a closed batch.
type SyncEvent struct {
	Type     EventType  `json:"type"`
	ChangeID string     `json:"change_id,omitempty"`
	BatchID  string     `json:"batch_id,omitempty"`
	Entity   *EntityRef `json:"entity,omitempty"`

	Version     *int64       `json:"version,omitempty"`
	FailureKind *FailureKind `json:"failure_kind,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	BatchStatus *BatchStatus `json:"batch_status,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// RoutingKey is the topic the event is published under, e.g.
// "change.applied.product".
func (e SyncEvent) RoutingKey() string {
	if e.Entity == nil {
		return string(e.Type)
	}
	return string(e.Type) + "." + string(e.Entity.Type)
}
