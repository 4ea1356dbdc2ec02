// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/MKhiriev/go-catalog-sync/internal/adapter"
	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/models"
	"github.com/MKhiriev/go-catalog-sync/pkg/metrics"
)

// executor applies one group of dequeued items.
type executor struct {
	applier     Applier
	client      adapter.RemoteClient
	limiter     Limiter
	optimizer   Optimizer
	queue       *PriorityQueue
	policy      RetryPolicy
	callTimeout time.Duration
	now         func() time.Time
}

// process settles every item: each one ends up completed, failed or
// requeued for a retry.
func (e *executor) process(ctx context.Context, items []models.QueueItem) {
	log := logger.FromContext(ctx)

	byID := make(map[string]models.QueueItem, len(items))
	ids := make([]string, 0, len(items))
	for _, it := range items {
		byID[it.ChangeID] = it
		ids = append(ids, it.ChangeID)
	}

	changes, err := e.applier.Prepare(ctx, ids)
	if err != nil {
		log.Err(err).Str("func", "executor.process").Int("items", len(items)).Msg("failed to load staged changes")
		for _, it := range items {
			e.retry(ctx, it, err, 0)
		}
		return
	}

	ready := make(map[string]struct{}, len(changes))
	var push []models.StagedChange
	for _, c := range changes {
		ready[c.ID] = struct{}{}
		if c.Direction == models.DirectionPull {
			e.complete(ctx, byID[c.ID], c, c.Proposed.RemoteID)
			continue
		}
		push = append(push, c)
	}

	// items Prepare did not return were settled there
	for _, it := range items {
		if _, ok := ready[it.ChangeID]; !ok {
			e.queue.Done(it.ChangeID)
		}
	}

	if len(push) == 0 {
		return
	}

	changeByID := make(map[string]models.StagedChange, len(push))
	for _, c := range push {
		changeByID[c.ID] = c
	}
	for _, op := range e.optimizer.Optimize(push) {
		if ctx.Err() != nil {
			for _, id := range op.ChangeIDs() {
				e.queue.Done(id)
			}
			continue
		}
		e.execute(ctx, op, byID, changeByID)
	}
}

func (e *executor) execute(ctx context.Context, op models.RemoteOperation, items map[string]models.QueueItem, changes map[string]models.StagedChange) {
	if err := e.limiter.Acquire(ctx, op.Cost); err != nil {
		for _, id := range op.ChangeIDs() {
			e.handleError(ctx, items[id], err)
		}
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	results, err := e.call(callCtx, op)
	cancel()

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.RemoteCalls.WithLabelValues(string(op.Kind), result).Inc()

	if err != nil {
		logger.FromContext(ctx).Warn().Err(err).
			Str("func", "executor.execute").
			Str("kind", string(op.Kind)).
			Str("change_type", string(op.ChangeType)).
			Int("items", len(op.Items)).
			Msg("remote call failed")

		for _, id := range op.ChangeIDs() {
			e.handleError(ctx, items[id], err)
		}
		return
	}

	settled := make(map[string]struct{}, len(results))
	for _, res := range results {
		it, ok := items[res.ChangeID]
		if !ok {
			continue
		}
		settled[res.ChangeID] = struct{}{}
		if res.Err != nil {
			e.handleError(ctx, it, res.Err)
			continue
		}
		e.complete(ctx, it, changes[res.ChangeID], res.RemoteID)
	}
	for _, id := range op.ChangeIDs() {
		if _, ok := settled[id]; !ok {
			e.handleError(ctx, items[id], fmt.Errorf("%w: no result for change %s", adapter.ErrTransientRemote, id))
		}
	}
}

func (e *executor) call(ctx context.Context, op models.RemoteOperation) ([]models.RemoteResult, error) {
	if op.Kind == models.OperationBulk {
		switch op.ChangeType {
		case models.ChangeCreate:
			return e.client.BulkCreate(ctx, op.EntityType, op.Items)
		case models.ChangeDelete:
			return e.client.BulkDelete(ctx, op.EntityType, op.Items)
		default:
			return e.client.BulkUpdate(ctx, op.EntityType, op.Items)
		}
	}

	item := op.Items[0]
	res := models.RemoteResult{ChangeID: item.ChangeID, RemoteID: item.RemoteID}
	var err error
	switch op.ChangeType {
	case models.ChangeCreate:
		var id string
		if id, err = e.client.Create(ctx, op.EntityType, item); err == nil && id != "" {
			res.RemoteID = &id
		}
	case models.ChangeDelete:
		err = e.client.Delete(ctx, op.EntityType, item)
	default:
		err = e.client.Update(ctx, op.EntityType, item)
	}
	if err != nil {
		return nil, err
	}
	return []models.RemoteResult{res}, nil
}

func (e *executor) handleError(ctx context.Context, it models.QueueItem, err error) {
	if ctx.Err() != nil {
		// shutting down; the change stays approved and is released again on restart
		e.queue.Done(it.ChangeID)
		return
	}

	if rl, ok := adapter.AsRateLimited(err); ok {
		e.limiter.Penalize(rl.RetryAfter)
		e.retry(ctx, it, err, rl.RetryAfter)
		return
	}
	if Retryable(err) {
		e.retry(ctx, it, err, 0)
		return
	}
	e.fail(ctx, it, models.FailurePermanent, err)
}

// retry requeues it with backoff, or fails it once the attempts run out.
// The delay is never shorter than minDelay.
func (e *executor) retry(ctx context.Context, it models.QueueItem, cause error, minDelay time.Duration) {
	it.Attempt++
	if e.policy.Exhausted(it.Attempt) {
		e.fail(ctx, it, models.FailureRetryable, cause)
		return
	}

	delay := max(e.policy.Delay(it.Attempt), minDelay)
	it.NotBefore = e.now().Add(delay)
	it.State = models.QueueRetryScheduled

	logger.FromContext(ctx).Debug().
		Str("func", "executor.retry").
		Str("change_id", it.ChangeID).
		Int("attempt", it.Attempt).
		Dur("delay", delay).
		Err(cause).
		Msg("retry scheduled")

	if e.queue.Requeue(it) {
		metrics.ChangesProcessed.WithLabelValues("retried", string(it.EntityRef.Type)).Inc()
		return
	}
	if it.BatchID != "" && e.queue.Cancelled(it.BatchID) {
		// the batch was cancelled while the item was in flight
		e.skip(ctx, it)
	}
}

// skip settles it without applying it; the change stays approved.
func (e *executor) skip(ctx context.Context, it models.QueueItem) {
	if err := e.applier.Skip(ctx, it.ChangeID); err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "executor.skip").
			Str("change_id", it.ChangeID).
			Str("batch_id", it.BatchID).
			Msg("failed to record skipped change")
	}
	metrics.ChangesProcessed.WithLabelValues("skipped", string(it.EntityRef.Type)).Inc()
}

func (e *executor) fail(ctx context.Context, it models.QueueItem, kind models.FailureKind, cause error) {
	defer e.queue.Done(it.ChangeID)

	if err := e.applier.Fail(ctx, it.ChangeID, it.Attempt, kind, cause.Error()); err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "executor.fail").
			Str("change_id", it.ChangeID).
			Msg("failed to record change failure")
	}
	metrics.ChangesProcessed.WithLabelValues("failed", string(it.EntityRef.Type)).Inc()
}

func (e *executor) complete(ctx context.Context, it models.QueueItem, change models.StagedChange, remoteID *string) {
	defer e.queue.Done(change.ID)

	change.Attempts = it.Attempt + 1
	if err := e.applier.Complete(ctx, change, remoteID); err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "executor.complete").
			Str("change_id", change.ID).
			Msg("failed to record applied change")

		// the remote holds the change already; a failed status keeps it from
		// being released and sent again
		reason := fmt.Sprintf("applied remotely, local record failed: %v", err)
		if remoteID != nil {
			reason = fmt.Sprintf("applied remotely as %s, local record failed: %v", *remoteID, err)
		}
		if ferr := e.applier.Fail(context.WithoutCancel(ctx), change.ID, change.Attempts, models.FailureUnrecorded, reason); ferr != nil {
			logger.FromContext(ctx).Err(ferr).
				Str("func", "executor.complete").
				Str("change_id", change.ID).
				Msg("failed to mark unrecorded change")
		}
		metrics.ChangesProcessed.WithLabelValues("failed", string(change.Type)).Inc()
		return
	}
	metrics.ChangesProcessed.WithLabelValues("completed", string(change.Type)).Inc()
}
