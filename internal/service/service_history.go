// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"context"
	"fmt"

	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/internal/store"
	"github.com/MKhiriev/go-catalog-sync/models"
)

const defaultHistoryLimit = 50

type historyService struct {
	versions store.VersionStore

	logger *logger.Logger
}

// NewHistoryService exposes the version history of entities.
func NewHistoryService(versions store.VersionStore, log *logger.Logger) HistoryService {
	return &historyService{versions: versions, logger: log}
}

func (h *historyService) History(ctx context.Context, ref models.EntityRef, limit int) ([]models.VersionRecord, error) {
	if ref.Type == "" || ref.Key == "" {
		return nil, fmt.Errorf("%w: entity type and key are required", ErrValidation)
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return h.versions.History(ctx, ref, limit)
}

// Prune keeps the newest keep versions of ref. At least one version is
// always kept so the entity keeps a base for diffing.
func (h *historyService) Prune(ctx context.Context, ref models.EntityRef, keep int) (int, error) {
	if ref.Type == "" || ref.Key == "" {
		return 0, fmt.Errorf("%w: entity type and key are required", ErrValidation)
	}
	if keep < 1 {
		return 0, fmt.Errorf("%w: keep must be at least 1, got %d", ErrValidation, keep)
	}

	n, err := h.versions.Prune(ctx, ref, keep)
	if err != nil {
		return 0, fmt.Errorf("prune history of %s: %w", ref, err)
	}

	logger.FromContext(ctx).Info().
		Str("func", "historyService.Prune").
		Str("entity", ref.String()).
		Int("keep", keep).
		Int("removed", n).
		Msg("version history pruned")
	return n, nil
}
