// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package service holds the reconciliation engine: conflict classification,
// approval rules, staging, applying, batch orchestration and rollback.
package service

import (
	"context"

	"github.com/MKhiriev/go-catalog-sync/models"
)

// ConflictDetector classifies a three-way comparison of field maps.
type ConflictDetector interface {
	Classify(base, local, remote map[string]any) ConflictResult
}

// ApprovalEngine decides whether a staged change may skip manual review.
type ApprovalEngine interface {
	Evaluate(ctx context.Context, change models.StagedChange) (models.RuleEvaluation, error)
	CreateRule(ctx context.Context, rule models.ApprovalRule) (models.ApprovalRule, error)
	ListRules(ctx context.Context) ([]models.ApprovalRule, error)
}

// StagingService creates staged changes and drives their review.
type StagingService interface {
	Stage(ctx context.Context, req StageRequest) (models.StagedChange, error)
	Get(ctx context.Context, id string) (models.StagedChange, error)
	Query(ctx context.Context, q models.ChangeQuery) ([]models.StagedChange, int, error)

	Approve(ctx context.Context, id string, req models.ReviewRequest) (models.StagedChange, error)
	Reject(ctx context.Context, id string, req models.ReviewRequest) (models.StagedChange, error)
	BulkApprove(ctx context.Context, req models.BulkApproveRequest) (models.BulkApproveResult, error)
	ResolveConflicts(ctx context.Context, id string, req models.ResolveRequest) (models.StagedChange, error)
}

// BatchService runs sync batches end to end.
type BatchService interface {
	Start(ctx context.Context, req models.StartSyncRequest) (string, error)
	Status(ctx context.Context, id string) (models.BatchStatusResponse, error)
	// Release enqueues the approved changes of a running batch again and
	// returns how many were accepted by the scheduler.
	Release(ctx context.Context, id string) (int, error)
	// Finalize counts pending changes as skipped so the batch can complete.
	Finalize(ctx context.Context, id string) (models.SyncBatch, error)
	Cancel(ctx context.Context, id string) (models.SyncBatch, error)
}

// RollbackService reverts applied changes.
type RollbackService interface {
	Rollback(ctx context.Context, changeID string, req models.RollbackRequest) (models.RollbackRecord, error)
	ListRollbacks(ctx context.Context, changeID string) ([]models.RollbackRecord, error)
}

// HistoryService exposes the version history of entities.
type HistoryService interface {
	History(ctx context.Context, ref models.EntityRef, limit int) ([]models.VersionRecord, error)
	Prune(ctx context.Context, ref models.EntityRef, keep int) (int, error)
}

type AppInfoService interface {
	GetAppVersion(ctx context.Context) models.VersionResponse
}

// Scheduler accepts approved changes for execution. It is implemented by
// the worker pool.
type Scheduler interface {
	Enqueue(items ...models.QueueItem) int
	CancelBatch(batchID string) []string
}

// Publisher delivers sync events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event models.SyncEvent) error
}

// batchTracker is told about every change that settles or becomes
// approved, so batch statistics stay current.
type batchTracker interface {
	Approved(ctx context.Context, change models.StagedChange)
	Settled(ctx context.Context, change models.StagedChange)
}
