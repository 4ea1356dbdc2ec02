// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import "time"

// BatchStatus is the lifecycle state of a sync batch.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
	BatchCancelled BatchStatus = "cancelled"
)

// Terminal reports whether the batch can no longer change state.
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed || s == BatchCancelled
}

// SnapshotFilter narrows what a snapshot producer yields.
type SnapshotFilter struct {
	EntityType   *EntityType `json:"entity_type,omitempty"`
	UpdatedSince *time.Time  `json:"updated_since,omitempty"`
	Keys         []string    `json:"keys,omitempty"`
	PageSize     int         `json:"page_size,omitempty"`
}

// SyncBatch groups the staged changes of one orchestrated sync run and
// tracks its aggregate progress.
//
// For a completed batch ProcessedItems == SuccessfulItems + FailedItems +
// SkippedItems == TotalItems.
type SyncBatch struct {
	ID        string         `json:"id"`
	Direction Direction      `json:"direction"`
	Source    SourceSystem   `json:"source"`
	Filter    SnapshotFilter `json:"filter"`
	Status    BatchStatus    `json:"status"`

	TotalItems      int `json:"total_items"`
	ProcessedItems  int `json:"processed_items"`
	SuccessfulItems int `json:"successful_items"`
	FailedItems     int `json:"failed_items"`
	SkippedItems    int `json:"skipped_items"`

	FailedChangeIDs []string       `json:"failed_change_ids,omitempty"`
	ErrorSummary    map[string]int `json:"error_summary,omitempty"`

	// ProcessingRate is the rolling number of processed items per second.
	ProcessingRate float64 `json:"processing_rate"`

	// ResumeCursor is the last producer cursor consumed, kept so an
	// interrupted pull can continue from the same page.
	ResumeCursor string `json:"resume_cursor,omitempty"`

	// StagingDone is set once the producer is exhausted.
	StagingDone bool `json:"staging_done"`

	FailureReason *string `json:"failure_reason,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Progress returns the processed fraction in [0, 1].
func (b SyncBatch) Progress() float64 {
	if b.TotalItems == 0 {
		if b.Status == BatchCompleted {
			return 1
		}
		return 0
	}
	return float64(b.ProcessedItems) / float64(b.TotalItems)
}

// ETA estimates the remaining time from the processing rate. It returns zero
// when the rate is unknown or the batch is done.
func (b SyncBatch) ETA() time.Duration {
	remaining := b.TotalItems - b.ProcessedItems
	if remaining <= 0 || b.ProcessingRate <= 0 {
		return 0
	}
	return time.Duration(float64(remaining) / b.ProcessingRate * float64(time.Second))
}

// Closed reports whether the batch counters add up.
func (b SyncBatch) Closed() bool {
	return b.ProcessedItems == b.SuccessfulItems+b.FailedItems+b.SkippedItems &&
		b.ProcessedItems == b.TotalItems
}

// BatchStatusResponse is the progress view of a batch returned to callers.
type BatchStatusResponse struct {
	SyncBatch
	Progress   float64 `json:"progress"`
	ETASeconds float64 `json:"eta_seconds"`
}

// Clone returns a deep copy of the batch.
func (b SyncBatch) Clone() SyncBatch {
	out := b
	if b.FailedChangeIDs != nil {
		out.FailedChangeIDs = append([]string(nil), b.FailedChangeIDs...)
	}
	if b.ErrorSummary != nil {
		out.ErrorSummary = make(map[string]int, len(b.ErrorSummary))
		for k, v := range b.ErrorSummary {
			out.ErrorSummary[k] = v
		}
	}
	if b.Filter.Keys != nil {
		out.Filter.Keys = append([]string(nil), b.Filter.Keys...)
	}
	return out
}
