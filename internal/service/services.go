// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"context"
	"sync"
	"time"

	"github.com/MKhiriev/go-catalog-sync/internal/adapter"
	"github.com/MKhiriev/go-catalog-sync/internal/config"
	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/internal/store"
	"github.com/MKhiriev/go-catalog-sync/internal/validators"
	"github.com/MKhiriev/go-catalog-sync/internal/workers"
	"github.com/MKhiriev/go-catalog-sync/models"
)

// Dependencies are the collaborators built outside of the service layer.
type Dependencies struct {
	Remote adapter.RemoteClient
	// Producers by source. The local source defaults to the dirty rows of
	// the local catalog.
	Producers map[models.SourceSystem]adapter.SnapshotProducer
	Limiter   workers.Limiter
	// Publisher may be nil when no broker is configured.
	Publisher Publisher
}

type Services struct {
	ConflictDetector ConflictDetector
	ApprovalEngine   ApprovalEngine
	StagingService   StagingService
	BatchService     BatchService
	RollbackService  RollbackService
	HistoryService   HistoryService
	AppInfoService   AppInfoService

	// Applier settles changes for the worker pool.
	Applier workers.Applier
	// Starter opens batches for the periodic pull job.
	Starter workers.BatchStarter

	orchestrator *orchestrator
	scheduler    *schedulerHandle
}

func NewServices(storages store.Storages, cfg config.StructuredConfig, deps Dependencies, build models.AppBuildInfo, log *logger.Logger) (*Services, error) {
	appInfo, err := NewAppInfoService(cfg.App, build, log)
	if err != nil {
		return nil, err
	}

	validator := validators.NewCatalogValidator()
	detector := NewConflictDetector(cfg.Conflict)
	approval := NewApprovalEngine(storages.Rules, validator, log)
	scheduler := &schedulerHandle{logger: log}

	producers := make(map[models.SourceSystem]adapter.SnapshotProducer, len(deps.Producers)+1)
	for source, p := range deps.Producers {
		if p != nil {
			producers[source] = p
		}
	}
	if _, ok := producers[models.SourceLocal]; !ok {
		producers[models.SourceLocal] = NewCatalogProducer(storages.Catalog)
	}

	pageSize := cfg.Adapter.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	staging := &stagingService{
		versions:  storages.Versions,
		changes:   storages.Changes,
		catalog:   storages.Catalog,
		remote:    deps.Remote,
		limiter:   deps.Limiter,
		detector:  detector,
		approval:  approval,
		resolver:  newConflictResolver(cfg.Conflict),
		validator: validator,
		now:       time.Now,
		logger:    log,
	}

	orch := &orchestrator{
		batches:   storages.Batches,
		changes:   storages.Changes,
		staging:   staging,
		producers: producers,
		scheduler: scheduler,
		limiter:   deps.Limiter,
		policy:    workers.NewRetryPolicy(cfg.Workers),
		validator: validator,
		publisher: deps.Publisher,
		pageSize:  pageSize,
		now:       time.Now,
		runs:      map[string]*batchRun{},
		logger:    log,
	}
	staging.tracker = orch

	apply := &applier{
		versions:  storages.Versions,
		changes:   storages.Changes,
		catalog:   storages.Catalog,
		publisher: deps.Publisher,
		tracker:   orch,
		now:       time.Now,
		logger:    log,
	}

	rollbacks := &rollbackService{
		versions:  storages.Versions,
		changes:   storages.Changes,
		rollbacks: storages.Rollbacks,
		staging:   staging,
		validator: validator,
		tracker:   orch,
		now:       time.Now,
		logger:    log,
	}

	return &Services{
		ConflictDetector: detector,
		ApprovalEngine:   approval,
		StagingService:   staging,
		BatchService:     orch,
		RollbackService:  rollbacks,
		HistoryService:   NewHistoryService(storages.Versions, log),
		AppInfoService:   appInfo,
		Applier:          apply,
		Starter:          orch,
		orchestrator:     orch,
		scheduler:        scheduler,
	}, nil
}

// BindScheduler connects the worker pool. Changes approved before the
// pool is bound are handed over here.
func (s *Services) BindScheduler(target Scheduler) {
	s.scheduler.bind(target)
}

// Recover resumes the batches left open by a previous process. Call it
// after BindScheduler.
func (s *Services) Recover(ctx context.Context) error {
	return s.orchestrator.Recover(ctx)
}

// Close stops background staging.
func (s *Services) Close() {
	s.orchestrator.Close()
}

// schedulerHandle defers to the worker pool once it is bound and buffers
// items until then. The pool depends on the applier, which is built here,
// so the pool is always created after the services.
type schedulerHandle struct {
	mu      sync.RWMutex
	target  Scheduler
	pending []models.QueueItem

	logger *logger.Logger
}

func (h *schedulerHandle) bind(target Scheduler) {
	h.mu.Lock()
	h.target = target
	pending := h.pending
	h.pending = nil
	h.mu.Unlock()

	if len(pending) > 0 {
		n := target.Enqueue(pending...)
		h.logger.Info().Str("func", "schedulerHandle.bind").Int("enqueued", n).Msg("buffered changes handed to scheduler")
	}
}

func (h *schedulerHandle) Enqueue(items ...models.QueueItem) int {
	h.mu.RLock()
	target := h.target
	h.mu.RUnlock()
	if target != nil {
		return target.Enqueue(items...)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.target != nil {
		return h.target.Enqueue(items...)
	}
	h.pending = append(h.pending, items...)
	return len(items)
}

func (h *schedulerHandle) CancelBatch(batchID string) []string {
	h.mu.Lock()
	target := h.target
	var discarded []string
	if target == nil {
		kept := h.pending[:0]
		for _, it := range h.pending {
			if it.BatchID == batchID {
				discarded = append(discarded, it.ChangeID)
				continue
			}
			kept = append(kept, it)
		}
		h.pending = kept
	}
	h.mu.Unlock()

	if target != nil {
		return target.CancelBatch(batchID)
	}
	return discarded
}
