// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MKhiriev/go-catalog-sync/internal/adapter"
	"github.com/MKhiriev/go-catalog-sync/internal/batching"
	"github.com/MKhiriev/go-catalog-sync/internal/config"
	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/internal/mock"
	"github.com/MKhiriev/go-catalog-sync/internal/ratelimit"
	"github.com/MKhiriev/go-catalog-sync/models"
)

// fakeApplier keeps staged changes in memory and records outcomes.
type fakeApplier struct {
	mu        sync.Mutex
	changes   map[string]models.StagedChange
	completed map[string]*string
	failed    map[string]models.FailureKind
	attempts  map[string]int
	skipped   map[string]bool
	stale     map[string]bool
	prepErr   error
	doneErr   error
}

func newFakeApplier(changes ...models.StagedChange) *fakeApplier {
	a := &fakeApplier{
		changes:   map[string]models.StagedChange{},
		completed: map[string]*string{},
		failed:    map[string]models.FailureKind{},
		attempts:  map[string]int{},
		skipped:   map[string]bool{},
		stale:     map[string]bool{},
	}
	for _, c := range changes {
		a.changes[c.ID] = c
	}
	return a
}

func (a *fakeApplier) Prepare(_ context.Context, ids []string) ([]models.StagedChange, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.prepErr != nil {
		return nil, a.prepErr
	}
	var out []models.StagedChange
	for _, id := range ids {
		if a.stale[id] {
			a.failed[id] = models.FailureStale
			continue
		}
		if c, ok := a.changes[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (a *fakeApplier) Complete(_ context.Context, c models.StagedChange, remoteID *string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.doneErr != nil {
		return a.doneErr
	}
	a.completed[c.ID] = remoteID
	a.attempts[c.ID] = c.Attempts
	return nil
}

func (a *fakeApplier) Fail(_ context.Context, id string, attempts int, kind models.FailureKind, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failed[id] = kind
	a.attempts[id] = attempts
	return nil
}

func (a *fakeApplier) Skip(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.skipped[id] = true
	return nil
}

func (a *fakeApplier) settled() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.completed) + len(a.failed) + len(a.skipped)
}

func (a *fakeApplier) wasSkipped(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.skipped[id]
}

func (a *fakeApplier) failure(id string) (models.FailureKind, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	k, ok := a.failed[id]
	return k, ok
}

func (a *fakeApplier) completion(id string) (*string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.completed[id]
	return r, ok
}

// fakeLimiter never blocks and records penalties.
type fakeLimiter struct {
	mu        sync.Mutex
	acquired  int
	penalties []time.Duration
	err       error
}

func (l *fakeLimiter) Acquire(_ context.Context, cost int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.acquired += cost
	return nil
}

func (l *fakeLimiter) Penalize(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.penalties = append(l.penalties, d)
}

func pushChange(id string, ct models.ChangeType) models.StagedChange {
	return models.StagedChange{
		ID:         id,
		EntityRef:  models.EntityRef{Type: models.EntityProduct, Key: "sku-" + id},
		ChangeType: ct,
		Direction:  models.DirectionPush,
		Status:     models.StatusApproved,
		Priority:   models.PriorityNormal,
		Proposed: models.EntitySnapshot{
			Type: models.EntityProduct, Key: "sku-" + id,
			Fields: map[string]any{"price": "12.00"},
		},
	}
}

func itemFor(c models.StagedChange) models.QueueItem {
	return models.QueueItem{
		ChangeID:   c.ID,
		BatchID:    c.BatchID,
		EntityRef:  c.EntityRef,
		ChangeType: c.ChangeType,
		Priority:   c.Priority,
	}
}

func newTestExecutor(applier Applier, client adapter.RemoteClient, limiter Limiter) (*executor, *PriorityQueue) {
	q := NewPriorityQueue()
	return &executor{
		applier:     applier,
		client:      client,
		limiter:     limiter,
		optimizer:   batching.NewOptimizer(config.Batching{BulkThreshold: 3, MaxBatchSize: 10}),
		queue:       q,
		policy:      RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 5 * time.Second},
		callTimeout: time.Second,
		now:         time.Now,
	}, q
}

// popAll takes every item out of q as a worker would.
func popAll(t *testing.T, q *PriorityQueue, at time.Time) []models.QueueItem {
	t.Helper()
	var out []models.QueueItem
	for {
		it, _, ok := q.PopReady(at)
		if !ok {
			return out
		}
		out = append(out, it)
	}
}

func testCtx() context.Context {
	return logger.Nop().WithContext(context.Background())
}

// ── executor ────────────────────────────────────────────────────────────────

func TestExecutor_SingleUpdateApplied(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockRemoteClient(ctrl)
	c := pushChange("c1", models.ChangeUpdate)
	applier := newFakeApplier(c)
	limiter := &fakeLimiter{}
	e, q := newTestExecutor(applier, client, limiter)

	client.EXPECT().Update(gomock.Any(), models.EntityProduct, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ models.EntityType, item models.RemoteOperationItem) error {
			assert.Equal(t, "c1", item.ChangeID)
			assert.Equal(t, "12.00", item.Fields["price"])
			return nil
		})

	q.Push(itemFor(c))
	e.process(testCtx(), popAll(t, q, time.Now()))

	_, ok := applier.completion("c1")
	assert.True(t, ok)
	assert.Equal(t, 1, limiter.acquired)
	assert.Zero(t, q.InFlight())
}

func TestExecutor_CreateRecordsRemoteID(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockRemoteClient(ctrl)
	c := pushChange("c1", models.ChangeCreate)
	applier := newFakeApplier(c)
	e, q := newTestExecutor(applier, client, &fakeLimiter{})

	client.EXPECT().Create(gomock.Any(), models.EntityProduct, gomock.Any()).Return("gid-9", nil)

	q.Push(itemFor(c))
	e.process(testCtx(), popAll(t, q, time.Now()))

	remoteID, ok := applier.completion("c1")
	require.True(t, ok)
	require.NotNil(t, remoteID)
	assert.Equal(t, "gid-9", *remoteID)
}

func TestExecutor_BulkPerItemOutcomes(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockRemoteClient(ctrl)

	var changes []models.StagedChange
	for i := range 4 {
		changes = append(changes, pushChange(fmt.Sprintf("c%d", i), models.ChangeUpdate))
	}
	applier := newFakeApplier(changes...)
	limiter := &fakeLimiter{}
	e, q := newTestExecutor(applier, client, limiter)

	client.EXPECT().BulkUpdate(gomock.Any(), models.EntityProduct, gomock.Len(4)).Return([]models.RemoteResult{
		{ChangeID: "c0"},
		{ChangeID: "c1", Err: fmt.Errorf("%w: bad price", adapter.ErrPermanentRemote)},
		{ChangeID: "c2", Err: fmt.Errorf("%w: timeout", adapter.ErrTransientRemote)},
	}, nil)

	for _, c := range changes {
		q.Push(itemFor(c))
	}
	e.process(testCtx(), popAll(t, q, time.Now()))

	_, ok := applier.completion("c0")
	assert.True(t, ok)
	kind, ok := applier.failure("c1")
	require.True(t, ok)
	assert.Equal(t, models.FailurePermanent, kind)

	// c2 failed transiently, c3 had no result: both go back for a retry
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 2, limiter.acquired, "one bulk call")

	_, wait, ok := q.PopReady(time.Now())
	assert.False(t, ok)
	assert.Positive(t, wait)
}

func TestExecutor_RateLimitedPenalizesAndRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockRemoteClient(ctrl)
	c := pushChange("c1", models.ChangeUpdate)
	applier := newFakeApplier(c)
	limiter := &fakeLimiter{}
	e, q := newTestExecutor(applier, client, limiter)

	gomock.InOrder(
		client.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any()).Return(&adapter.RateLimitedError{RetryAfter: 2 * time.Second}),
		client.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil),
	)

	q.Push(itemFor(c))
	start := time.Now()
	e.process(testCtx(), popAll(t, q, start))

	assert.Equal(t, []time.Duration{2 * time.Second}, limiter.penalties)
	assert.Empty(t, popAll(t, q, start.Add(time.Second)), "retry waits for Retry-After")

	items := popAll(t, q, start.Add(3*time.Second))
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Attempt)

	e.process(testCtx(), items)
	_, ok := applier.completion("c1")
	assert.True(t, ok)
	assert.Equal(t, 2, applier.attempts["c1"])
}

func TestExecutor_TransientExhaustsRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockRemoteClient(ctrl)
	c := pushChange("c1", models.ChangeDelete)
	applier := newFakeApplier(c)
	e, q := newTestExecutor(applier, client, &fakeLimiter{})

	client.EXPECT().Delete(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(fmt.Errorf("%w: 503", adapter.ErrTransientRemote)).Times(3)

	q.Push(itemFor(c))
	at := time.Now()
	for range 3 {
		at = at.Add(time.Minute)
		e.process(testCtx(), popAll(t, q, at))
	}

	kind, ok := applier.failure("c1")
	require.True(t, ok)
	assert.Equal(t, models.FailureRetryable, kind)
	assert.Zero(t, q.Len())
	assert.Zero(t, q.InFlight())
}

func TestExecutor_LimiterErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockRemoteClient(ctrl)
	c := pushChange("c1", models.ChangeUpdate)
	applier := newFakeApplier(c)
	limiter := &fakeLimiter{err: ratelimit.ErrAcquireTimeout}
	e, q := newTestExecutor(applier, client, limiter)

	q.Push(itemFor(c))
	e.process(testCtx(), popAll(t, q, time.Now()))
	assert.Equal(t, 1, q.Len(), "acquire timeout is retried")

	limiter.err = ratelimit.ErrCostExceedsCapacity
	e.process(testCtx(), popAll(t, q, time.Now().Add(time.Minute)))

	kind, ok := applier.failure("c1")
	require.True(t, ok)
	assert.Equal(t, models.FailurePermanent, kind)
}

func TestExecutor_PullCompletesWithoutRemoteCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockRemoteClient(ctrl)
	c := pushChange("c1", models.ChangeUpdate)
	c.Direction = models.DirectionPull
	applier := newFakeApplier(c)
	limiter := &fakeLimiter{}
	e, q := newTestExecutor(applier, client, limiter)

	q.Push(itemFor(c))
	e.process(testCtx(), popAll(t, q, time.Now()))

	_, ok := applier.completion("c1")
	assert.True(t, ok)
	assert.Zero(t, limiter.acquired)
}

func TestExecutor_StaleAndPrepareErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockRemoteClient(ctrl)
	c := pushChange("c1", models.ChangeUpdate)
	applier := newFakeApplier(c)
	applier.stale["c1"] = true
	e, q := newTestExecutor(applier, client, &fakeLimiter{})

	q.Push(itemFor(c))
	e.process(testCtx(), popAll(t, q, time.Now()))
	kind, _ := applier.failure("c1")
	assert.Equal(t, models.FailureStale, kind)
	assert.Zero(t, q.InFlight())

	c2 := pushChange("c2", models.ChangeUpdate)
	applier.changes["c2"] = c2
	applier.prepErr = errors.New("db down")
	q.Push(itemFor(c2))
	e.process(testCtx(), popAll(t, q, time.Now()))
	assert.Equal(t, 1, q.Len(), "store errors are retried")
}

func TestExecutor_CancelledWhileRetryingIsSkipped(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockRemoteClient(ctrl)
	c := pushChange("c1", models.ChangeUpdate)
	c.BatchID = "b1"
	applier := newFakeApplier(c)
	e, q := newTestExecutor(applier, client, &fakeLimiter{})

	client.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(fmt.Errorf("%w: 503", adapter.ErrTransientRemote))

	q.Push(itemFor(c))
	items := popAll(t, q, time.Now())
	require.Len(t, items, 1)

	assert.Empty(t, q.CancelBatch("b1"), "in-flight items are not discarded")
	e.process(testCtx(), items)

	assert.True(t, applier.wasSkipped("c1"))
	_, failed := applier.failure("c1")
	assert.False(t, failed)
	assert.Zero(t, q.Len())
	assert.Zero(t, q.InFlight())
}

func TestExecutor_UnrecordedApplyIsNotReplayed(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockRemoteClient(ctrl)
	c := pushChange("c1", models.ChangeCreate)
	applier := newFakeApplier(c)
	applier.doneErr = errors.New("db down")
	e, q := newTestExecutor(applier, client, &fakeLimiter{})

	client.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Return("gid-9", nil).Times(1)

	q.Push(itemFor(c))
	e.process(testCtx(), popAll(t, q, time.Now()))

	kind, ok := applier.failure("c1")
	require.True(t, ok)
	assert.Equal(t, models.FailureUnrecorded, kind)
	assert.Zero(t, q.Len())
	assert.Zero(t, q.InFlight())
}

// ── Pool ────────────────────────────────────────────────────────────────────

func TestPool_DrainsQueue(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockRemoteClient(ctrl)

	var changes []models.StagedChange
	for i := range 30 {
		changes = append(changes, pushChange(fmt.Sprintf("c%02d", i), models.ChangeUpdate))
	}
	applier := newFakeApplier(changes...)

	client.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	client.EXPECT().BulkUpdate(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ models.EntityType, items []models.RemoteOperationItem) ([]models.RemoteResult, error) {
			out := make([]models.RemoteResult, 0, len(items))
			for _, it := range items {
				out = append(out, models.RemoteResult{ChangeID: it.ChangeID})
			}
			return out, nil
		}).AnyTimes()

	pool := NewPool(config.Workers{Min: 4, Max: 4, SampleInterval: 10 * time.Millisecond, CallTimeout: time.Second}, PoolDeps{
		Applier:   applier,
		Client:    client,
		Limiter:   &fakeLimiter{},
		Optimizer: batching.NewOptimizer(config.Batching{BulkThreshold: 5, MaxBatchSize: 10}),
	}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	for _, c := range changes {
		pool.Enqueue(itemFor(c))
	}

	require.Eventually(t, func() bool { return applier.settled() == 30 }, 5*time.Second, 10*time.Millisecond)
	assert.True(t, pool.Running())

	stats := pool.Stats()
	assert.Equal(t, 4, stats.Workers)
	assert.Zero(t, stats.Depth)

	cancel()
	require.NoError(t, <-done)
	assert.False(t, pool.Running())
}

func TestPool_OneChangePerEntityInFlight(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockRemoteClient(ctrl)

	var changes []models.StagedChange
	for i := range 12 {
		c := pushChange(fmt.Sprintf("c%02d", i), models.ChangeUpdate)
		c.EntityRef.Key = "sku-shared"
		changes = append(changes, c)
	}
	applier := newFakeApplier(changes...)

	var (
		mu            sync.Mutex
		active, peak  int
		calls, inBulk int
	)
	track := func(n int) {
		mu.Lock()
		active++
		peak = max(peak, active)
		calls++
		inBulk = max(inBulk, n)
		mu.Unlock()

		time.Sleep(2 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
	}
	client.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, models.EntityType, models.RemoteOperationItem) error {
			track(1)
			return nil
		}).AnyTimes()
	client.EXPECT().BulkUpdate(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ models.EntityType, items []models.RemoteOperationItem) ([]models.RemoteResult, error) {
			track(len(items))
			out := make([]models.RemoteResult, 0, len(items))
			for _, it := range items {
				out = append(out, models.RemoteResult{ChangeID: it.ChangeID})
			}
			return out, nil
		}).AnyTimes()

	pool := NewPool(config.Workers{Min: 4, Max: 4, SampleInterval: 10 * time.Millisecond, CallTimeout: time.Second}, PoolDeps{
		Applier:   applier,
		Client:    client,
		Limiter:   &fakeLimiter{},
		Optimizer: batching.NewOptimizer(config.Batching{BulkThreshold: 2, MaxBatchSize: 10}),
	}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	for _, c := range changes {
		pool.Enqueue(itemFor(c))
	}

	require.Eventually(t, func() bool { return applier.settled() == len(changes) }, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, peak, "remote calls for one entity never overlap")
	assert.Equal(t, 1, inBulk, "one entity never appears twice in a call")
	assert.Equal(t, len(changes), calls)
}

func TestPool_AutoscaleHysteresis(t *testing.T) {
	pool := NewPool(config.Workers{
		Min: 2, Max: 4, HighWater: 2, LowWater: 1,
		SampleInterval: time.Second, ShrinkAfter: 3 * time.Second,
	}, PoolDeps{Optimizer: batching.NewOptimizer(config.Batching{})}, logger.Nop())

	// a stopped context makes spawned workers exit immediately
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := range 20 {
		pool.queue.Push(itemFor(pushChange(fmt.Sprintf("c%d", i), models.ChangeUpdate)))
	}
	pool.mu.Lock()
	pool.spawnLocked(ctx)
	pool.spawnLocked(ctx)
	pool.mu.Unlock()

	pool.scale(ctx)
	assert.Equal(t, 3, pool.Stats().Workers)
	pool.scale(ctx)
	assert.Equal(t, 4, pool.Stats().Workers)
	pool.scale(ctx)
	assert.Equal(t, 4, pool.Stats().Workers, "capped at max")

	pool.queue.Close()

	pool.scale(ctx)
	pool.scale(ctx)
	assert.Equal(t, 4, pool.Stats().Workers, "shrinks only after ShrinkAfter")
	pool.scale(ctx)
	assert.Equal(t, 3, pool.Stats().Workers)
	for range 6 {
		pool.scale(ctx)
	}
	assert.Equal(t, 2, pool.Stats().Workers, "never below min")
	pool.wg.Wait()
}
