// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/models"
)

// memoryVersionStore keeps version histories in process memory.
//
// Each entity's history is an independent slice. Appends take the entity's
// lock from a keyedMutex so different entities append concurrently while
// one entity is single-writer; the map itself is guarded by an RWMutex.
type memoryVersionStore struct {
	mu      sync.RWMutex
	history map[models.EntityRef][]models.VersionRecord
	nextID  int64

	entityLocks *keyedMutex
	now         func() time.Time
}

// NewMemoryVersionStore returns an empty in-memory [VersionStore].
func NewMemoryVersionStore() VersionStore {
	return &memoryVersionStore{
		history:     make(map[models.EntityRef][]models.VersionRecord),
		entityLocks: newKeyedMutex(),
		now:         time.Now,
	}
}

func (s *memoryVersionStore) Latest(ctx context.Context, ref models.EntityRef) (*models.VersionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.history[ref]
	if len(h) == 0 {
		return nil, nil
	}
	rec := h[len(h)-1]
	return &rec, nil
}

func (s *memoryVersionStore) Get(ctx context.Context, ref models.EntityRef, n int64) (models.VersionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.history[ref] {
		if rec.Version == n {
			return rec, nil
		}
	}
	return models.VersionRecord{}, fmt.Errorf("%w: %s v%d", ErrVersionNotFound, ref, n)
}

func (s *memoryVersionStore) Append(ctx context.Context, rec models.VersionRecord) (models.VersionRecord, error) {
	unlock := s.entityLocks.Lock(rec.EntityRef.String())
	defer unlock()

	return s.appendLocked(ctx, rec), nil
}

func (s *memoryVersionStore) AppendIfLatest(ctx context.Context, expected int64, rec models.VersionRecord) (models.VersionRecord, error) {
	unlock := s.entityLocks.Lock(rec.EntityRef.String())
	defer unlock()

	var current int64
	if latest, _ := s.Latest(ctx, rec.EntityRef); latest != nil {
		current = latest.Version
	}
	if current != expected {
		logger.FromContext(ctx).Debug().
			Str("func", "memoryVersionStore.AppendIfLatest").
			Str("entity", rec.EntityRef.String()).
			Int64("expected", expected).
			Int64("current", current).
			Msg("latest version moved")
		return models.VersionRecord{}, fmt.Errorf("%w: %s expected v%d, latest v%d", ErrVersionConflict, rec.EntityRef, expected, current)
	}

	return s.appendLocked(ctx, rec), nil
}

// appendLocked must be called with the entity lock held.
func (s *memoryVersionStore) appendLocked(ctx context.Context, rec models.VersionRecord) models.VersionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.history[rec.EntityRef]
	rec.Version = 1
	if len(h) > 0 {
		rec.Version = h[len(h)-1].Version + 1
	}
	s.nextID++
	rec.ID = s.nextID
	rec.Snapshot = rec.Snapshot.Clone()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	s.history[rec.EntityRef] = append(h, rec)

	return rec
}

func (s *memoryVersionStore) History(ctx context.Context, ref models.EntityRef, limit int) ([]models.VersionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.history[ref]
	if limit <= 0 || limit > len(h) {
		limit = len(h)
	}
	out := make([]models.VersionRecord, 0, limit)
	for i := len(h) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h[i])
	}
	return out, nil
}

func (s *memoryVersionStore) Prune(ctx context.Context, ref models.EntityRef, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	unlock := s.entityLocks.Lock(ref.String())
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.history[ref]
	if len(h) <= keep {
		return 0, nil
	}
	removed := len(h) - keep
	s.history[ref] = append([]models.VersionRecord(nil), h[removed:]...)
	return removed, nil
}
