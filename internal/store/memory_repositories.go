// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/MKhiriev/go-catalog-sync/models"
)

// memoryStagedChangeRepository keeps staged changes in a map guarded by an
// RWMutex. Insertion order is kept for stable query results.
type memoryStagedChangeRepository struct {
	mu      sync.RWMutex
	changes map[string]models.StagedChange
	order   []string
}

// NewMemoryStagedChangeRepository returns an empty in-memory repository.
func NewMemoryStagedChangeRepository() StagedChangeRepository {
	return &memoryStagedChangeRepository{changes: make(map[string]models.StagedChange)}
}

func (r *memoryStagedChangeRepository) Create(ctx context.Context, change models.StagedChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.changes[change.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, change.ID)
	}
	r.changes[change.ID] = change.Clone()
	r.order = append(r.order, change.ID)
	return nil
}

func (r *memoryStagedChangeRepository) Get(ctx context.Context, id string) (models.StagedChange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.changes[id]
	if !ok {
		return models.StagedChange{}, fmt.Errorf("%w: %s", ErrStagedChangeNotFound, id)
	}
	return c.Clone(), nil
}

func (r *memoryStagedChangeRepository) GetMany(ctx context.Context, ids []string) ([]models.StagedChange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.StagedChange, 0, len(ids))
	for _, id := range ids {
		c, ok := r.changes[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrStagedChangeNotFound, id)
		}
		out = append(out, c.Clone())
	}
	return out, nil
}

func (r *memoryStagedChangeRepository) UpdateIfStatus(ctx context.Context, change models.StagedChange, expected models.ChangeStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.changes[change.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrStagedChangeNotFound, change.ID)
	}
	if stored.Status != expected {
		return fmt.Errorf("%w: %s is %s, expected %s", ErrStatusMismatch, change.ID, stored.Status, expected)
	}
	r.changes[change.ID] = change.Clone()
	return nil
}

func (r *memoryStagedChangeRepository) Query(ctx context.Context, q models.ChangeQuery) ([]models.StagedChange, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]models.StagedChange, 0)
	for _, id := range r.order {
		c := r.changes[id]
		if q.Status != nil && c.Status != *q.Status {
			continue
		}
		if q.EntityType != nil && c.Type != *q.EntityType {
			continue
		}
		if q.BatchID != "" && c.BatchID != q.BatchID {
			continue
		}
		if q.HasConflicts != nil && c.HasConflicts != *q.HasConflicts {
			continue
		}
		matched = append(matched, c)
	}

	total := len(matched)
	start := min(max(q.Offset, 0), total)
	end := total
	if q.Limit > 0 {
		end = min(start+q.Limit, total)
	}

	page := make([]models.StagedChange, 0, end-start)
	for _, c := range matched[start:end] {
		page = append(page, c.Clone())
	}
	return page, total, nil
}

func (r *memoryStagedChangeRepository) ListPending(ctx context.Context, ref models.EntityRef) ([]models.StagedChange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.StagedChange
	for _, id := range r.order {
		c := r.changes[id]
		if c.EntityRef == ref && c.Status == models.StatusPending && c.SupersededBy == nil {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

// memoryBatchRepository keeps sync batches in process memory.
type memoryBatchRepository struct {
	mu      sync.RWMutex
	batches map[string]models.SyncBatch
}

// NewMemoryBatchRepository returns an empty in-memory repository.
func NewMemoryBatchRepository() BatchRepository {
	return &memoryBatchRepository{batches: make(map[string]models.SyncBatch)}
}

func (r *memoryBatchRepository) Create(ctx context.Context, batch models.SyncBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.batches[batch.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, batch.ID)
	}
	r.batches[batch.ID] = batch.Clone()
	return nil
}

func (r *memoryBatchRepository) Get(ctx context.Context, id string) (models.SyncBatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.batches[id]
	if !ok {
		return models.SyncBatch{}, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	return b.Clone(), nil
}

func (r *memoryBatchRepository) Update(ctx context.Context, batch models.SyncBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.batches[batch.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrBatchNotFound, batch.ID)
	}
	r.batches[batch.ID] = batch.Clone()
	return nil
}

func (r *memoryBatchRepository) ListByStatus(ctx context.Context, status models.BatchStatus) ([]models.SyncBatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.SyncBatch
	for _, b := range r.batches {
		if b.Status == status {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// memoryRollbackRepository keeps rollback records in process memory.
type memoryRollbackRepository struct {
	mu      sync.RWMutex
	records []models.RollbackRecord
}

// NewMemoryRollbackRepository returns an empty in-memory repository.
func NewMemoryRollbackRepository() RollbackRepository {
	return &memoryRollbackRepository{}
}

func (r *memoryRollbackRepository) Create(ctx context.Context, rec models.RollbackRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.ContainsFunc(r.records, func(x models.RollbackRecord) bool { return x.ID == rec.ID }) {
		return fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *memoryRollbackRepository) ListByOriginal(ctx context.Context, originalChangeID string) ([]models.RollbackRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.RollbackRecord
	for _, rec := range r.records {
		if rec.OriginalChangeID == originalChangeID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// memoryApprovalRuleRepository keeps approval rules in process memory.
type memoryApprovalRuleRepository struct {
	mu     sync.RWMutex
	rules  []models.ApprovalRule
	nextID int64
}

// NewMemoryApprovalRuleRepository returns a repository seeded with rules.
func NewMemoryApprovalRuleRepository(rules ...models.ApprovalRule) ApprovalRuleRepository {
	r := &memoryApprovalRuleRepository{}
	for _, rule := range rules {
		_, _ = r.Create(context.Background(), rule)
	}
	return r
}

func (r *memoryApprovalRuleRepository) ListEnabled(ctx context.Context) ([]models.ApprovalRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ApprovalRule, 0, len(r.rules))
	for _, rule := range r.rules {
		if rule.Enabled {
			out = append(out, rule)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (r *memoryApprovalRuleRepository) Create(ctx context.Context, rule models.ApprovalRule) (models.ApprovalRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	rule.ID = r.nextID
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	r.rules = append(r.rules, rule)
	return rule, nil
}

// memoryLocalCatalog is a LocalCatalog kept in process memory, used when no
// catalog database is configured and in tests.
type memoryLocalCatalog struct {
	mu    sync.RWMutex
	rows  map[models.EntityRef]models.EntitySnapshot
	dirty map[models.EntityRef]bool
}

// NewMemoryLocalCatalog returns an empty in-memory [LocalCatalog].
func NewMemoryLocalCatalog() LocalCatalog {
	return &memoryLocalCatalog{
		rows:  make(map[models.EntityRef]models.EntitySnapshot),
		dirty: make(map[models.EntityRef]bool),
	}
}

func (c *memoryLocalCatalog) Get(ctx context.Context, ref models.EntityRef) (*models.EntitySnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.rows[ref]
	if !ok {
		return nil, nil
	}
	out := s.Clone()
	return &out, nil
}

func (c *memoryLocalCatalog) ListDirty(ctx context.Context, filter models.SnapshotFilter, afterKey string, limit int) ([]models.EntitySnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []models.EntitySnapshot
	for ref, isDirty := range c.dirty {
		if !isDirty || !matchesFilter(c.rows[ref], filter) || ref.String() <= afterKey {
			continue
		}
		out = append(out, c.rows[ref].Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref().String() < out[j].Ref().String() })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *memoryLocalCatalog) Upsert(ctx context.Context, snapshot models.EntitySnapshot, dirty bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ref := snapshot.Ref()
	c.rows[ref] = snapshot.Clone()
	c.dirty[ref] = dirty
	return nil
}

func (c *memoryLocalCatalog) MarkClean(ctx context.Context, ref models.EntityRef, remoteID *string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	row, ok := c.rows[ref]
	if !ok {
		return nil
	}
	if remoteID != nil {
		id := *remoteID
		row.RemoteID = &id
		c.rows[ref] = row
	}
	c.dirty[ref] = false
	return nil
}

func (c *memoryLocalCatalog) Delete(ctx context.Context, ref models.EntityRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.rows, ref)
	delete(c.dirty, ref)
	return nil
}

// matchesFilter applies the type, key and updated-since parts of filter.
func matchesFilter(s models.EntitySnapshot, filter models.SnapshotFilter) bool {
	if filter.EntityType != nil && s.Type != *filter.EntityType {
		return false
	}
	if len(filter.Keys) > 0 && !slices.Contains(filter.Keys, s.Key) {
		return false
	}
	if filter.UpdatedSince != nil && s.ObservedAt.Before(*filter.UpdatedSince) {
		return false
	}
	return true
}

