// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package workers runs the background side of the sync engine: the
// priority queue of approved changes, the autoscaling worker pool that
// applies them through the rate limiter, and periodic jobs.
//
// The package does not depend on the service layer. The service implements
// [Applier] and drives the pool through [Pool.Enqueue] and
// [Pool.CancelBatch].
package workers

import (
	"context"
	"time"

	"github.com/MKhiriev/go-catalog-sync/models"
)

// Worker is a long-running background component. Run blocks until ctx is
// cancelled or the worker fails.
type Worker interface {
	Run(ctx context.Context) error
}

// Applier loads and settles staged changes on behalf of the pool.
type Applier interface {
	// Prepare loads the changes for ids and returns those still approved and
	// based on the latest version. Stale changes are failed by Prepare itself
	// and are not returned.
	Prepare(ctx context.Context, ids []string) ([]models.StagedChange, error)

	// Complete records a successful remote apply (or a pull) of change.
	Complete(ctx context.Context, change models.StagedChange, remoteID *string) error

	// Fail marks a change failed with the given kind.
	Fail(ctx context.Context, changeID string, attempts int, kind models.FailureKind, reason string) error

	// Skip reports a change that left the queue unapplied, for example
	// because its batch was cancelled while it waited for a retry. The
	// change stays approved.
	Skip(ctx context.Context, changeID string) error
}

// Limiter is the shared rate limiter in front of the remote API.
type Limiter interface {
	Acquire(ctx context.Context, cost int) error
	Penalize(retryAfter time.Duration)
}

// Optimizer folds staged changes into remote operations.
type Optimizer interface {
	Optimize(changes []models.StagedChange) []models.RemoteOperation
	// MaxBatchSize is the largest number of items one operation carries.
	MaxBatchSize() int
}
