// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"context"
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
	"github.com/MKhiriev/go-catalog-sync/internal/store"
	"github.com/MKhiriev/go-catalog-sync/internal/workers"
	"github.com/MKhiriev/go-catalog-sync/models"
)

// ── harness ─────────────────────────────────────────────────────────────────

// fakeScheduler collects enqueued items instead of running them.
type fakeScheduler struct {
	mu    sync.Mutex
	items []models.QueueItem
}

func (s *fakeScheduler) Enqueue(items ...models.QueueItem) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, items...)
	return len(items)
}

func (s *fakeScheduler) CancelBatch(batchID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	kept := s.items[:0]
	for _, it := range s.items {
		if it.BatchID == batchID {
			ids = append(ids, it.ChangeID)
			continue
		}
		kept = append(kept, it)
	}
	s.items = kept
	return ids
}

func (s *fakeScheduler) drain() []models.QueueItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.items
	s.items = nil
	return out
}

func (s *fakeScheduler) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.SyncEvent
}

func (p *fakePublisher) Publish(_ context.Context, e models.SyncEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) types() []models.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	storages *store.Storages
	svcs     *Services
	staging  *stagingService
	orch     *orchestrator
	applier  *applier
	sched    *fakeScheduler
	pub      *fakePublisher
}

func testConfig() config.StructuredConfig {
	return config.StructuredConfig{
		App: config.App{Version: "test"},
		Conflict: config.Conflict{
			PriceFields:     []string{"price"},
			InventoryFields: []string{"stock"},
			TextFields:      []string{"title"},
		},
		Workers: config.Workers{
			RetryMaxAttempts: 2,
			RetryBaseDelay:   time.Millisecond,
			RetryMaxDelay:    time.Millisecond,
		},
		Adapter: config.Adapter{PageSize: 100},
	}
}

func newHarness(t *testing.T, deps Dependencies, rules ...models.ApprovalRule) *harness {
	t.Helper()

	storages := store.NewMemoryStorages()
	storages.Rules = store.NewMemoryApprovalRuleRepository(rules...)

	pub := &fakePublisher{}
	if deps.Publisher == nil {
		deps.Publisher = pub
	}

	svcs, err := NewServices(*storages, testConfig(), deps, models.AppBuildInfo{}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(svcs.Close)

	sched := &fakeScheduler{}
	svcs.BindScheduler(sched)

	return &harness{
		storages: storages,
		svcs:     svcs,
		staging:  svcs.StagingService.(*stagingService),
		orch:     svcs.orchestrator,
		applier:  svcs.Applier.(*applier),
		sched:    sched,
		pub:      pub,
	}
}

func product(key string, fields map[string]any) models.EntitySnapshot {
	return models.EntitySnapshot{Type: models.EntityProduct, Key: key, Fields: fields}
}

// seed records snap as the latest version and as a clean catalog row.
func (h *harness) seed(t *testing.T, snap models.EntitySnapshot) {
	t.Helper()
	ctx := context.Background()
	if snap.Source == "" {
		snap.Source = models.SourceRemote
	}
	_, err := h.storages.Versions.Append(ctx, models.VersionRecord{EntityRef: snap.Ref(), Snapshot: snap, Source: snap.Source, CreatedBy: "seed"})
	require.NoError(t, err)
	require.NoError(t, h.storages.Catalog.Upsert(ctx, snap, false))
}

// applyQueued plays the worker pool for every queued item: pushes get a
// remote id, pulls are completed as is.
func (h *harness) applyQueued(t *testing.T) int {
	t.Helper()
	ctx := context.Background()

	items := h.sched.drain()
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ChangeID)
	}
	if len(ids) == 0 {
		return 0
	}

	ready, err := h.applier.Prepare(ctx, ids)
	require.NoError(t, err)
	for _, c := range ready {
		remoteID := c.Proposed.RemoteID
		if c.Direction == models.DirectionPush && remoteID == nil {
			id := "rid-" + c.Key
			remoteID = &id
		}
		require.NoError(t, h.applier.Complete(ctx, c, remoteID))
	}
	return len(ready)
}

func (h *harness) latest(t *testing.T, key string) *models.VersionRecord {
	t.Helper()
	rec, err := h.storages.Versions.Latest(context.Background(), models.EntityRef{Type: models.EntityProduct, Key: key})
	require.NoError(t, err)
	return rec
}

func autoApproveAll() models.ApprovalRule {
	return models.ApprovalRule{Name: "everything", Priority: 100, Decision: models.DecisionAutoApprove, Enabled: true}
}

// ── NewServices ─────────────────────────────────────────────────────────────

func TestNewServices_RequiresVersion(t *testing.T) {
	cfg := testConfig()
	cfg.App.Version = ""

	_, err := NewServices(*store.NewMemoryStorages(), cfg, Dependencies{}, models.AppBuildInfo{}, logger.Nop())
	assert.ErrorIs(t, err, ErrVersionIsNotSpecified)
}

func TestNewServices_DefaultsLocalProducer(t *testing.T) {
	h := newHarness(t, Dependencies{})

	_, ok := h.orch.producers[models.SourceLocal]
	assert.True(t, ok)
	_, ok = h.orch.producers[models.SourceSupplier]
	assert.False(t, ok)
}

func TestSchedulerHandle_BuffersUntilBound(t *testing.T) {
	h := &schedulerHandle{logger: logger.Nop()}

	assert.Equal(t, 2, h.Enqueue(
		models.QueueItem{ChangeID: "a", BatchID: "b1"},
		models.QueueItem{ChangeID: "b", BatchID: "b2"},
	))
	assert.Equal(t, []string{"a"}, h.CancelBatch("b1"))

	target := &fakeScheduler{}
	h.bind(target)
	require.Len(t, target.items, 1)
	assert.Equal(t, "b", target.items[0].ChangeID)

	h.Enqueue(models.QueueItem{ChangeID: "c"})
	assert.Equal(t, 2, target.len())
}

// ── end to end ──────────────────────────────────────────────────────────────

// A pull of 237 products where 50 are small stock corrections: the rule
// approves those, a real pool applies them and the remaining changes wait
// for review until the batch is finalized.
func TestServices_PullBatchThroughWorkerPool(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := mock.NewMockRemoteClient(ctrl)
	producer := mock.NewMockSnapshotProducer(ctrl)

	stock := models.ApprovalRule{
		Name:             "small stock corrections",
		Priority:         1,
		FieldPattern:     "stock",
		MaxRelativeDelta: ptrTo(0.1),
		Decision:         models.DecisionAutoApprove,
		Enabled:          true,
	}
	h := newHarness(t, Dependencies{
		Remote:    remote,
		Producers: map[models.SourceSystem]adapter.SnapshotProducer{models.SourceRemote: producer},
	}, stock)

	const total = 237
	snaps := make([]models.EntitySnapshot, 0, total)
	for i := range total {
		key := fmt.Sprintf("sku-%03d", i)
		h.seed(t, product(key, map[string]any{"price": 10, "stock": 100, "title": "item " + key}))

		fields := map[string]any{"price": 10, "stock": 100, "title": "item " + key}
		if i < 50 {
			fields["stock"] = 95
		} else {
			fields["price"] = "11.50"
		}
		snaps = append(snaps, product(key, fields))
	}

	producer.EXPECT().Next(gomock.Any(), gomock.Any(), "").Return(adapter.Page{Snapshots: snaps[:100], NextCursor: "100"}, nil)
	producer.EXPECT().Next(gomock.Any(), gomock.Any(), "100").Return(adapter.Page{Snapshots: snaps[100:200], NextCursor: "200"}, nil)
	producer.EXPECT().Next(gomock.Any(), gomock.Any(), "200").Return(adapter.Page{Snapshots: snaps[200:], Done: true}, nil)

	pool := workers.NewPool(config.Workers{Min: 4, Max: 4, CallTimeout: time.Second}, workers.PoolDeps{
		Applier:   h.svcs.Applier,
		Client:    remote,
		Limiter:   ratelimit.New(config.RateLimit{Capacity: 40, LeakRate: 20}),
		Optimizer: batching.NewOptimizer(config.Batching{}),
	}, logger.Nop())
	h.svcs.BindScheduler(pool)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pool.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	id, err := h.svcs.BatchService.Start(context.Background(), models.StartSyncRequest{Direction: models.DirectionPull})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, err := h.svcs.BatchService.Status(context.Background(), id)
		return err == nil && st.StagingDone && st.SuccessfulItems == 50
	}, 5*time.Second, 10*time.Millisecond)

	st, err := h.svcs.BatchService.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.BatchRunning, st.Status)
	assert.Equal(t, total, st.TotalItems)
	assert.Equal(t, 50, st.ProcessedItems)
	assert.InDelta(t, 50.0/total, st.Progress, 1e-9)

	assert.EqualValues(t, 2, h.latest(t, "sku-000").Version)
	assert.Equal(t, 95, h.latest(t, "sku-000").Snapshot.Fields["stock"])
	assert.EqualValues(t, 1, h.latest(t, "sku-100").Version)

	batch, err := h.svcs.BatchService.Finalize(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.BatchCompleted, batch.Status)
	assert.Equal(t, 187, batch.SkippedItems)
	assert.True(t, batch.Closed())
	assert.Contains(t, h.pub.types(), models.EventBatchClosed)

	stored, err := h.storages.Batches.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.BatchCompleted, stored.Status)
}

// Two approved pushes of one entity from the same base: only the first
// reaches the remote, the second fails as stale before any call.
func TestServices_SameEntityPushesThroughWorkerPool(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := mock.NewMockRemoteClient(ctrl)
	h := newHarness(t, Dependencies{})
	h.seed(t, product("p1", map[string]any{"price": 10}))

	first := stageApproved(t, h, models.DirectionPush, product("p1", map[string]any{"price": 12}))
	second := stageApproved(t, h, models.DirectionPush, product("p1", map[string]any{"price": 15}))

	var (
		mu     sync.Mutex
		prices []any
	)
	remote.EXPECT().Update(gomock.Any(), models.EntityProduct, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ models.EntityType, item models.RemoteOperationItem) error {
			mu.Lock()
			defer mu.Unlock()
			prices = append(prices, item.Fields["price"])
			return nil
		}).AnyTimes()

	pool := workers.NewPool(config.Workers{Min: 4, Max: 4, CallTimeout: time.Second}, workers.PoolDeps{
		Applier:   h.svcs.Applier,
		Client:    remote,
		Limiter:   ratelimit.New(config.RateLimit{Capacity: 40, LeakRate: 20}),
		Optimizer: batching.NewOptimizer(config.Batching{}),
	}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pool.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	h.svcs.BindScheduler(pool)
	require.Equal(t, 2, h.orch.enqueue("", first, second))

	settled := func(id string) bool {
		c, err := h.staging.Get(context.Background(), id)
		return err == nil && c.Status.Terminal()
	}
	require.Eventually(t, func() bool { return settled(first.ID) && settled(second.ID) }, 5*time.Second, 10*time.Millisecond)

	a, err := h.staging.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApplied, a.Status)

	b, err := h.staging.Get(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, b.Status)
	assert.Equal(t, models.FailureStale, *b.FailureKind)

	mu.Lock()
	assert.Equal(t, []any{12}, prices, "the stale change never reaches the remote")
	mu.Unlock()

	latest := h.latest(t, "p1")
	assert.EqualValues(t, 2, latest.Version)
	assert.Equal(t, 12, latest.Snapshot.Fields["price"])
}

func TestServices_RollbackRestoresPreviousVersion(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := mock.NewMockRemoteClient(ctrl)
	remote.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	h := newHarness(t, Dependencies{Remote: remote})
	ctx := context.Background()
	h.seed(t, product("p1", map[string]any{"price": 10, "title": "Lamp"}))

	change, err := h.staging.Stage(ctx, StageRequest{
		Proposed:  product("p1", map[string]any{"price": 14, "title": "Lamp"}),
		Direction: models.DirectionPush,
		Approver:  "alice",
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, change.Status)

	h.orch.Approved(ctx, change)
	require.Equal(t, 1, h.applyQueued(t))
	require.EqualValues(t, 2, h.latest(t, "p1").Version)

	rec, err := h.svcs.RollbackService.Rollback(ctx, change.ID, models.RollbackRequest{Reason: "wrong price", Requester: "bob"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, rec.RestoredVersion)
	assert.Equal(t, change.ID, rec.OriginalChangeID)

	items := h.sched.drain()
	require.Len(t, items, 1)
	assert.Equal(t, models.PriorityCritical, items[0].Priority)
	h.sched.Enqueue(items...)
	require.Equal(t, 1, h.applyQueued(t))

	latest := h.latest(t, "p1")
	assert.EqualValues(t, 3, latest.Version)
	assert.Equal(t, 10, latest.Snapshot.Fields["price"])
	assert.Equal(t, models.SourceRollback, latest.Source)
	assert.Contains(t, h.pub.types(), models.EventChangeRolledBack)

	compensating, err := h.staging.Get(ctx, rec.CompensatingChangeID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApplied, compensating.Status)
	assert.Equal(t, change.ID, *compensating.RollbackOf)

	list, err := h.svcs.RollbackService.ListRollbacks(ctx, change.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)
}

func TestServices_RollbackOfCreateDeletes(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := mock.NewMockRemoteClient(ctrl)
	remote.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	h := newHarness(t, Dependencies{Remote: remote})
	ctx := context.Background()

	created, err := h.staging.Stage(ctx, StageRequest{
		Proposed:  product("new", map[string]any{"price": 5}),
		Direction: models.DirectionPush,
		Approver:  "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ChangeCreate, created.ChangeType)
	h.orch.Approved(ctx, created)
	h.applyQueued(t)

	rec, err := h.svcs.RollbackService.Rollback(ctx, created.ID, models.RollbackRequest{Reason: "created by mistake", Requester: "bob"})
	require.NoError(t, err)
	assert.Zero(t, rec.RestoredVersion)

	compensating, err := h.staging.Get(ctx, rec.CompensatingChangeID)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeDelete, compensating.ChangeType)

	h.applyQueued(t)
	latest := h.latest(t, "new")
	assert.True(t, latest.Snapshot.Deleted)

	row, err := h.storages.Catalog.Get(ctx, created.EntityRef)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestServices_RollbackRequiresAppliedChange(t *testing.T) {
	h := newHarness(t, Dependencies{})
	ctx := context.Background()
	h.seed(t, product("p1", map[string]any{"price": 10}))

	pending, err := h.staging.Stage(ctx, StageRequest{
		Proposed:  product("p1", map[string]any{"price": 11}),
		Direction: models.DirectionPull,
	})
	require.NoError(t, err)

	_, err = h.svcs.RollbackService.Rollback(ctx, pending.ID, models.RollbackRequest{Reason: "x", Requester: "bob"})
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = h.svcs.RollbackService.Rollback(ctx, "missing", models.RollbackRequest{Reason: "x", Requester: "bob"})
	assert.ErrorIs(t, err, ErrChangeNotFound)

	_, err = h.svcs.RollbackService.Rollback(ctx, pending.ID, models.RollbackRequest{Requester: "bob"})
	assert.ErrorIs(t, err, ErrValidation)
}

// ── history ─────────────────────────────────────────────────────────────────

func TestHistoryService(t *testing.T) {
	h := newHarness(t, Dependencies{})
	ctx := context.Background()
	ref := models.EntityRef{Type: models.EntityProduct, Key: "p1"}
	for i := range 4 {
		h.seed(t, product("p1", map[string]any{"price": 10 + i}))
	}

	recs, err := h.svcs.HistoryService.History(ctx, ref, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.EqualValues(t, 4, recs[0].Version)

	_, err = h.svcs.HistoryService.Prune(ctx, ref, 0)
	assert.ErrorIs(t, err, ErrValidation)

	n, err := h.svcs.HistoryService.Prune(ctx, ref, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = h.svcs.HistoryService.History(ctx, models.EntityRef{}, 0)
	assert.ErrorIs(t, err, ErrValidation)
}
