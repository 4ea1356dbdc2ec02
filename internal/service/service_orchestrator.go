// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MKhiriev/go-catalog-sync/internal/adapter"
	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/internal/store"
	"github.com/MKhiriev/go-catalog-sync/internal/validators"
	"github.com/MKhiriev/go-catalog-sync/internal/workers"
	"github.com/MKhiriev/go-catalog-sync/models"
	"github.com/MKhiriev/go-catalog-sync/pkg/metrics"
)

const (
	defaultPageSize = 100
	scanPageSize    = 500

	summaryValidation = "validation"
)

// orchestrator runs sync batches: it stages the snapshots of a producer,
// releases approved changes to the scheduler and keeps the batch
// statistics as changes settle.
//
// Every change is counted at most once per batch. A batch completes when
// staging is done and every staged item has been processed.
type orchestrator struct {
	batches   store.BatchRepository
	changes   store.StagedChangeRepository
	staging   StagingService
	producers map[models.SourceSystem]adapter.SnapshotProducer
	scheduler Scheduler
	limiter   workers.Limiter
	policy    workers.RetryPolicy
	validator validators.Validator
	publisher Publisher
	pageSize  int
	now       func() time.Time

	mu   sync.Mutex
	runs map[string]*batchRun
	wg   sync.WaitGroup

	logger *logger.Logger
}

// batchRun is the live state of an open batch.
type batchRun struct {
	mu      sync.Mutex
	batch   models.SyncBatch
	counted map[string]struct{}
	cancel  context.CancelFunc
}

// ── lifecycle ───────────────────────────────────────────────────────────────

// Start opens a batch and stages its snapshots in the background.
func (o *orchestrator) Start(ctx context.Context, req models.StartSyncRequest) (string, error) {
	if err := o.validator.Validate(ctx, req); err != nil {
		return "", fmt.Errorf("%w: %w", ErrValidation, err)
	}

	source := req.Source
	if source == "" {
		source = models.SourceLocal
		if req.Direction == models.DirectionPull {
			source = models.SourceRemote
		}
	}
	producer, ok := o.producers[source]
	if !ok {
		return "", fmt.Errorf("%w: %w: %s", ErrValidation, ErrUnknownSource, source)
	}

	now := o.now().UTC()
	filter := req.Filter()
	filter.PageSize = o.pageSize
	batch := models.SyncBatch{
		ID:           uuid.Must(uuid.NewV7()).String(),
		Direction:    req.Direction,
		Source:       source,
		Filter:       filter,
		Status:       models.BatchPending,
		ErrorSummary: map[string]int{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := o.batches.Create(ctx, batch); err != nil {
		return "", fmt.Errorf("create batch: %w", err)
	}

	batch.Status = models.BatchRunning
	batch.StartedAt = &now
	if err := o.batches.Update(ctx, batch); err != nil {
		return "", fmt.Errorf("start batch: %w", err)
	}

	run := &batchRun{batch: batch, counted: map[string]struct{}{}}
	o.launch(ctx, run, producer)

	o.logger.Info().
		Str("func", "orchestrator.Start").
		Str("batch_id", batch.ID).
		Str("direction", string(batch.Direction)).
		Str("source", string(source)).
		Msg("sync batch started")

	return batch.ID, nil
}

// launch registers run and stages its snapshots on a goroutine that
// outlives the caller's context.
func (o *orchestrator) launch(ctx context.Context, run *batchRun, producer adapter.SnapshotProducer) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx = o.logger.WithBatch(run.batch.ID).WithContext(runCtx)
	run.cancel = cancel

	o.mu.Lock()
	o.runs[run.batch.ID] = run
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		o.stage(runCtx, run, producer)
	}()
}

// Close stops staging of every open batch and waits for it to return.
// Open batches stay running and are picked up by Recover.
func (o *orchestrator) Close() {
	o.mu.Lock()
	for _, run := range o.runs {
		if run.cancel != nil {
			run.cancel()
		}
	}
	o.mu.Unlock()
	o.wg.Wait()
}

// Recover reattaches batches left running by a previous process: staging
// resumes from the saved cursor and approved changes are released again.
// Batches that never started are failed.
func (o *orchestrator) Recover(ctx context.Context) error {
	log := logger.FromContext(ctx)

	stuck, err := o.batches.ListByStatus(ctx, models.BatchPending)
	if err != nil {
		return fmt.Errorf("list pending batches: %w", err)
	}
	for _, b := range stuck {
		reason := "interrupted before start"
		now := o.now().UTC()
		b.Status = models.BatchFailed
		b.FailureReason = &reason
		b.CompletedAt = &now
		b.UpdatedAt = now
		if err = o.batches.Update(ctx, b); err != nil {
			return fmt.Errorf("fail batch %s: %w", b.ID, err)
		}
	}

	running, err := o.batches.ListByStatus(ctx, models.BatchRunning)
	if err != nil {
		return fmt.Errorf("list running batches: %w", err)
	}
	for _, b := range running {
		run := &batchRun{batch: b, counted: map[string]struct{}{}}
		if run.batch.ErrorSummary == nil {
			run.batch.ErrorSummary = map[string]int{}
		}

		all, err := o.scan(ctx, models.ChangeQuery{BatchID: b.ID})
		if err != nil {
			return err
		}
		var approved []models.StagedChange
		for _, c := range all {
			switch {
			case c.Status.Terminal():
				run.counted[c.ID] = struct{}{}
			case c.Status == models.StatusApproved:
				approved = append(approved, c)
			}
		}

		if b.StagingDone {
			o.mu.Lock()
			o.runs[b.ID] = run
			o.mu.Unlock()
		} else {
			producer, ok := o.producers[b.Source]
			if !ok {
				o.mu.Lock()
				o.runs[b.ID] = run
				o.mu.Unlock()
				o.fail(ctx, run, fmt.Errorf("%w: %s", ErrUnknownSource, b.Source))
				continue
			}
			o.launch(ctx, run, producer)
		}

		n := o.enqueue(b.ID, approved...)
		log.Info().
			Str("func", "orchestrator.Recover").
			Str("batch_id", b.ID).
			Bool("staging_done", b.StagingDone).
			Int("released", n).
			Msg("batch recovered")

		run.mu.Lock()
		o.maybeComplete(ctx, run)
		run.mu.Unlock()
	}

	return nil
}

// ── staging ─────────────────────────────────────────────────────────────────

func (o *orchestrator) stage(ctx context.Context, run *batchRun, producer adapter.SnapshotProducer) {
	log := logger.FromContext(ctx)

	run.mu.Lock()
	id := run.batch.ID
	cursor := run.batch.ResumeCursor
	filter := run.batch.Filter
	direction := run.batch.Direction
	source := run.batch.Source
	run.mu.Unlock()

	priority := priorityFor(direction, source)
	partial := source == models.SourceSupplier || source == models.SourceInventory

	for {
		if ctx.Err() != nil {
			return
		}

		page, err := o.fetch(ctx, producer, filter, cursor, source)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.fail(ctx, run, fmt.Errorf("fetch snapshots after cursor %q: %w", cursor, err))
			return
		}

		var (
			release              []models.StagedChange
			unchanged, malformed int
		)
		for _, snap := range page.Snapshots {
			change, err := o.staging.Stage(ctx, StageRequest{
				Proposed:  snap,
				Direction: direction,
				BatchID:   id,
				Priority:  priority,
				Partial:   partial,
			})
			switch {
			case err == nil:
				if change.Status == models.StatusApproved {
					release = append(release, change)
				}
			case errors.Is(err, ErrNoChanges):
				unchanged++
			case errors.Is(err, ErrValidation):
				malformed++
				log.Warn().Err(err).Str("func", "orchestrator.stage").Str("entity", snap.Ref().String()).Msg("skipping invalid snapshot")
			default:
				if ctx.Err() != nil {
					return
				}
				o.fail(ctx, run, fmt.Errorf("stage %s: %w", snap.Ref(), err))
				return
			}
		}

		done := page.Done || page.NextCursor == ""
		o.pageStaged(ctx, run, len(page.Snapshots), unchanged, malformed, page.NextCursor, done)
		o.enqueue(id, release...)

		log.Debug().
			Str("func", "orchestrator.stage").
			Int("snapshots", len(page.Snapshots)).
			Int("released", len(release)).
			Int("unchanged", unchanged).
			Int("invalid", malformed).
			Bool("done", done).
			Msg("page staged")

		if done {
			return
		}
		cursor = page.NextCursor
	}
}

// fetch reads one page with the shared retry policy. Remote pages go
// through the rate limiter like any other remote call.
func (o *orchestrator) fetch(ctx context.Context, producer adapter.SnapshotProducer, filter models.SnapshotFilter, cursor string, source models.SourceSystem) (adapter.Page, error) {
	limited := source == models.SourceRemote && o.limiter != nil

	var page adapter.Page
	err := o.policy.Do(ctx, func(ctx context.Context) error {
		if limited {
			if err := o.limiter.Acquire(ctx, 1); err != nil {
				return err
			}
		}
		p, err := producer.Next(ctx, filter, cursor)
		if err != nil {
			if rl, ok := adapter.AsRateLimited(err); ok && limited {
				o.limiter.Penalize(rl.RetryAfter)
			}
			return err
		}
		page = p
		return nil
	})
	return page, err
}

func (o *orchestrator) pageStaged(ctx context.Context, run *batchRun, total, unchanged, malformed int, cursor string, done bool) {
	run.mu.Lock()
	defer run.mu.Unlock()

	b := &run.batch
	if b.Status != models.BatchRunning {
		return
	}
	b.TotalItems += total
	b.SkippedItems += unchanged + malformed
	b.ProcessedItems += unchanged + malformed
	if malformed > 0 {
		b.ErrorSummary[summaryValidation] += malformed
	}
	if cursor != "" {
		b.ResumeCursor = cursor
	}
	b.StagingDone = done

	o.touch(b)
	o.maybeComplete(ctx, run)
	o.persist(ctx, run)
}

func priorityFor(direction models.Direction, source models.SourceSystem) models.Priority {
	switch {
	case direction == models.DirectionPull:
		return models.PriorityBatch
	case source == models.SourceLocal:
		return models.PriorityNormal
	default:
		return models.PriorityLow
	}
}

// ── accounting ──────────────────────────────────────────────────────────────

// Approved releases a change approved outside of staging. Changes of a
// closed batch are scheduled without a batch.
func (o *orchestrator) Approved(ctx context.Context, change models.StagedChange) {
	batchID := change.BatchID
	if batchID != "" {
		run := o.lookup(batchID)
		if run == nil {
			batchID = ""
		} else {
			run.mu.Lock()
			if run.batch.Status != models.BatchRunning {
				batchID = ""
			}
			run.mu.Unlock()
		}
	}
	o.enqueue(batchID, change)
}

// Settled counts a change that reached a terminal status.
func (o *orchestrator) Settled(ctx context.Context, change models.StagedChange) {
	if change.BatchID == "" {
		return
	}
	run := o.lookup(change.BatchID)
	if run == nil {
		return
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	b := &run.batch
	if b.Status != models.BatchRunning && b.Status != models.BatchCancelled {
		return
	}
	if _, seen := run.counted[change.ID]; seen {
		return
	}
	run.counted[change.ID] = struct{}{}

	b.ProcessedItems++
	switch change.Status {
	case models.StatusApplied:
		b.SuccessfulItems++
	case models.StatusFailed:
		b.FailedItems++
		b.FailedChangeIDs = append(b.FailedChangeIDs, change.ID)
		kind := string(models.FailurePermanent)
		if change.FailureKind != nil {
			kind = string(*change.FailureKind)
		}
		b.ErrorSummary[kind]++
	default:
		b.SkippedItems++
	}

	o.touch(b)
	o.maybeComplete(ctx, run)
	o.persist(ctx, run)
}

// countSkipped counts changes that will not be processed within the batch.
// run.mu must be held.
func (o *orchestrator) countSkipped(run *batchRun, ids []string) int {
	n := 0
	for _, id := range ids {
		if _, seen := run.counted[id]; seen {
			continue
		}
		run.counted[id] = struct{}{}
		run.batch.SkippedItems++
		run.batch.ProcessedItems++
		n++
	}
	return n
}

// touch refreshes the timestamps and the processing rate. run.mu must be
// held.
func (o *orchestrator) touch(b *models.SyncBatch) {
	now := o.now().UTC()
	b.UpdatedAt = now
	if b.StartedAt == nil {
		return
	}
	if elapsed := now.Sub(*b.StartedAt).Seconds(); elapsed > 0 {
		b.ProcessingRate = float64(b.ProcessedItems) / elapsed
	}
}

// maybeComplete closes a running batch whose items are all processed.
// run.mu must be held.
func (o *orchestrator) maybeComplete(ctx context.Context, run *batchRun) {
	b := &run.batch
	if b.ProcessedItems < b.TotalItems {
		return
	}

	switch {
	case b.Status == models.BatchCancelled:
		o.forget(b.ID)
	case b.Status == models.BatchRunning && b.StagingDone:
		o.close(ctx, run, models.BatchCompleted)
	}
}

// close moves the batch to a terminal status. run.mu must be held.
func (o *orchestrator) close(ctx context.Context, run *batchRun, status models.BatchStatus) {
	b := &run.batch
	now := o.now().UTC()
	b.Status = status
	b.CompletedAt = &now
	o.touch(b)

	if b.StartedAt != nil {
		metrics.BatchDuration.WithLabelValues(string(b.Direction), string(status)).Observe(now.Sub(*b.StartedAt).Seconds())
	}

	logger.FromContext(ctx).Info().
		Str("func", "orchestrator.close").
		Str("batch_id", b.ID).
		Str("status", string(status)).
		Int("total", b.TotalItems).
		Int("successful", b.SuccessfulItems).
		Int("failed", b.FailedItems).
		Int("skipped", b.SkippedItems).
		Msg("sync batch closed")

	if o.publisher != nil {
		st := status
		event := models.SyncEvent{Type: models.EventBatchClosed, BatchID: b.ID, BatchStatus: &st, OccurredAt: now}
		if err := o.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
			logger.FromContext(ctx).Warn().Err(err).Str("func", "orchestrator.close").Msg("failed to publish batch event")
		}
	}

	if status != models.BatchCancelled || b.ProcessedItems >= b.TotalItems {
		o.forget(b.ID)
	}
}

// fail aborts a running batch after an orchestrator-level fault.
func (o *orchestrator) fail(ctx context.Context, run *batchRun, cause error) {
	run.mu.Lock()
	defer run.mu.Unlock()

	if run.batch.Status != models.BatchRunning {
		return
	}

	logger.FromContext(ctx).Err(cause).Str("func", "orchestrator.fail").Str("batch_id", run.batch.ID).Msg("sync batch failed")

	if run.cancel != nil {
		run.cancel()
	}
	o.scheduler.CancelBatch(run.batch.ID)

	reason := cause.Error()
	run.batch.FailureReason = &reason
	o.close(ctx, run, models.BatchFailed)
	o.persist(ctx, run)
}

// persist saves the batch. run.mu must be held.
func (o *orchestrator) persist(ctx context.Context, run *batchRun) {
	if err := o.batches.Update(context.WithoutCancel(ctx), run.batch.Clone()); err != nil {
		logger.FromContext(ctx).Err(err).Str("func", "orchestrator.persist").Str("batch_id", run.batch.ID).Msg("failed to save batch")
	}
}

func (o *orchestrator) lookup(id string) *batchRun {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runs[id]
}

func (o *orchestrator) forget(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.runs, id)
}

// enqueue hands changes to the scheduler under batchID.
func (o *orchestrator) enqueue(batchID string, changes ...models.StagedChange) int {
	if len(changes) == 0 {
		return 0
	}
	now := o.now()
	items := make([]models.QueueItem, 0, len(changes))
	for _, c := range changes {
		items = append(items, models.QueueItem{
			ChangeID:   c.ID,
			BatchID:    batchID,
			EntityRef:  c.EntityRef,
			ChangeType: c.ChangeType,
			Priority:   c.Priority,
			EnqueuedAt: now,
		})
	}
	return o.scheduler.Enqueue(items...)
}

// scan returns every change matching q, page by page.
func (o *orchestrator) scan(ctx context.Context, q models.ChangeQuery) ([]models.StagedChange, error) {
	var out []models.StagedChange
	q.Limit = scanPageSize
	for q.Offset = 0; ; q.Offset += scanPageSize {
		page, total, err := o.changes.Query(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("query changes of batch %s: %w", q.BatchID, err)
		}
		out = append(out, page...)
		if len(page) == 0 || q.Offset+len(page) >= total {
			return out, nil
		}
	}
}

// ── operator actions ────────────────────────────────────────────────────────

func (o *orchestrator) Status(ctx context.Context, id string) (models.BatchStatusResponse, error) {
	var batch models.SyncBatch
	if run := o.lookup(id); run != nil {
		run.mu.Lock()
		batch = run.batch.Clone()
		run.mu.Unlock()
	} else {
		b, err := o.get(ctx, id)
		if err != nil {
			return models.BatchStatusResponse{}, err
		}
		batch = b
	}

	return models.BatchStatusResponse{
		SyncBatch:  batch,
		Progress:   batch.Progress(),
		ETASeconds: batch.ETA().Seconds(),
	}, nil
}

func (o *orchestrator) Release(ctx context.Context, id string) (int, error) {
	run, err := o.open(ctx, id)
	if err != nil {
		return 0, err
	}

	approved, err := o.scan(ctx, models.ChangeQuery{BatchID: id, Status: ptrTo(models.StatusApproved)})
	if err != nil {
		return 0, err
	}

	run.mu.Lock()
	running := run.batch.Status == models.BatchRunning
	run.mu.Unlock()
	if !running {
		return 0, fmt.Errorf("%w: batch %s is closed", ErrInvalidState, id)
	}

	n := o.enqueue(id, approved...)
	logger.FromContext(ctx).Info().Str("func", "orchestrator.Release").Str("batch_id", id).Int("released", n).Msg("approved changes released")
	return n, nil
}

// Finalize counts the still pending changes of a fully staged batch as
// skipped. The batch completes once its in-flight changes settle.
func (o *orchestrator) Finalize(ctx context.Context, id string) (models.SyncBatch, error) {
	run, err := o.open(ctx, id)
	if err != nil {
		return models.SyncBatch{}, err
	}

	pending, err := o.scan(ctx, models.ChangeQuery{BatchID: id, Status: ptrTo(models.StatusPending)})
	if err != nil {
		return models.SyncBatch{}, err
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	if run.batch.Status != models.BatchRunning || !run.batch.StagingDone {
		return models.SyncBatch{}, fmt.Errorf("%w: batch %s is %s, staging done %t", ErrInvalidState, id, run.batch.Status, run.batch.StagingDone)
	}

	ids := make([]string, 0, len(pending))
	for _, c := range pending {
		ids = append(ids, c.ID)
	}
	n := o.countSkipped(run, ids)

	o.touch(&run.batch)
	o.maybeComplete(ctx, run)
	o.persist(ctx, run)

	logger.FromContext(ctx).Info().Str("func", "orchestrator.Finalize").Str("batch_id", id).Int("skipped", n).Msg("batch finalized")
	return run.batch.Clone(), nil
}

// Cancel stops staging, discards the queued changes of the batch and
// counts them, together with pending ones, as skipped. In-flight calls
// finish and are still counted.
func (o *orchestrator) Cancel(ctx context.Context, id string) (models.SyncBatch, error) {
	run, err := o.open(ctx, id)
	if err != nil {
		return models.SyncBatch{}, err
	}

	pending, err := o.scan(ctx, models.ChangeQuery{BatchID: id, Status: ptrTo(models.StatusPending)})
	if err != nil {
		return models.SyncBatch{}, err
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	if run.batch.Status != models.BatchRunning {
		return models.SyncBatch{}, fmt.Errorf("%w: batch %s is %s", ErrInvalidState, id, run.batch.Status)
	}

	if run.cancel != nil {
		run.cancel()
	}
	discarded := o.scheduler.CancelBatch(id)
	for _, c := range pending {
		discarded = append(discarded, c.ID)
	}
	n := o.countSkipped(run, discarded)

	o.close(ctx, run, models.BatchCancelled)
	o.persist(ctx, run)

	logger.FromContext(ctx).Info().Str("func", "orchestrator.Cancel").Str("batch_id", id).Int("skipped", n).Msg("batch cancelled")
	return run.batch.Clone(), nil
}

// open returns the live run of id or the error describing why there is
// none.
func (o *orchestrator) open(ctx context.Context, id string) (*batchRun, error) {
	if run := o.lookup(id); run != nil {
		return run, nil
	}
	b, err := o.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: batch %s is %s", ErrInvalidState, id, b.Status)
}

func (o *orchestrator) get(ctx context.Context, id string) (models.SyncBatch, error) {
	b, err := o.batches.Get(ctx, id)
	if errors.Is(err, store.ErrBatchNotFound) {
		return models.SyncBatch{}, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	return b, err
}

func ptrTo[T any](v T) *T { return &v }
