// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/MKhiriev/go-catalog-sync/internal/config"
	"github.com/MKhiriev/go-catalog-sync/internal/logger"
)

// Storages bundles every repository the services depend on.
type Storages struct {
	Versions  VersionStore
	Changes   StagedChangeRepository
	Batches   BatchRepository
	Rollbacks RollbackRepository
	Rules     ApprovalRuleRepository
	Catalog   LocalCatalog

	closers []func() error
}

// NewStorages opens the configured backends. With an empty PostgreSQL DSN
// the version history, staged changes, batches, rollbacks and rules live in
// memory; with an empty catalog DSN so does the local catalog.
func NewStorages(ctx context.Context, cfg config.Storage, log *logger.Logger) (*Storages, error) {
	s := &Storages{}

	if cfg.DB.DSN == "" {
		log.Warn().Str("func", "NewStorages").Msg("no database DSN configured, using in-memory stores")
		s.Versions = NewMemoryVersionStore()
		s.Changes = NewMemoryStagedChangeRepository()
		s.Batches = NewMemoryBatchRepository()
		s.Rollbacks = NewMemoryRollbackRepository()
		s.Rules = NewMemoryApprovalRuleRepository()
	} else {
		db, err := NewConnectPostgres(ctx, cfg.DB, log)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)

		if err = db.Migrate(); err != nil {
			log.Err(err).Str("func", "NewStorages").Msg("failed to apply migrations")
			_ = s.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}

		s.Versions = NewPostgresVersionStore(db)
		s.Changes = NewStagedChangeRepository(db)
		s.Batches = NewBatchRepository(db)
		s.Rollbacks = NewRollbackRepository(db)
		s.Rules = NewApprovalRuleRepository(db)
	}

	if cfg.Catalog.DSN == "" {
		s.Catalog = NewMemoryLocalCatalog()
		return s, nil
	}

	catalogDB, err := NewConnectSQLite(ctx, cfg.Catalog, log)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.closers = append(s.closers, catalogDB.Close)
	s.Catalog = NewSQLiteCatalog(catalogDB)

	return s, nil
}

// NewMemoryStorages returns a fully in-memory bundle.
func NewMemoryStorages() *Storages {
	return &Storages{
		Versions:  NewMemoryVersionStore(),
		Changes:   NewMemoryStagedChangeRepository(),
		Batches:   NewMemoryBatchRepository(),
		Rollbacks: NewMemoryRollbackRepository(),
		Rules:     NewMemoryApprovalRuleRepository(),
		Catalog:   NewMemoryLocalCatalog(),
	}
}

// Close releases every opened database.
func (s *Storages) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}
