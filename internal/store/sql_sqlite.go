// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/MKhiriev/go-catalog-sync/internal/config"
	"github.com/MKhiriev/go-catalog-sync/internal/logger"
)

const createCatalogTable = `CREATE TABLE IF NOT EXISTS catalog_entries (
	entity_type TEXT    NOT NULL,
	entity_key  TEXT    NOT NULL,
	remote_id   TEXT,
	fields      TEXT    NOT NULL,
	deleted     INTEGER NOT NULL DEFAULT 0,
	dirty       INTEGER NOT NULL DEFAULT 0,
	source      TEXT    NOT NULL,
	observed_at TIMESTAMP NOT NULL,
	PRIMARY KEY (entity_type, entity_key)
);`

// NewConnectSQLite opens the local catalog database file, creating it and its
// schema when missing.
func NewConnectSQLite(ctx context.Context, cfg config.Catalog, log *logger.Logger) (*DB, error) {
	if err := createLocalDBFileIfNotExists(cfg.DSN); err != nil {
		log.Err(err).Str("func", "NewConnectSQLite").Msg("error creating database file")
		return nil, fmt.Errorf("error creating database file: %w", err)
	}

	conn, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		log.Err(err).Str("func", "NewConnectSQLite").Msg("error connecting database")
		return nil, fmt.Errorf("error opening connection to DB: %w", err)
	}
	// sqlite allows one writer at a time
	conn.SetMaxOpenConns(1)

	if err = conn.PingContext(ctx); err != nil {
		log.Err(err).Str("func", "NewConnectSQLite").Msg("error connecting database (ping)")
		return nil, err
	}

	if _, err = conn.ExecContext(ctx, createCatalogTable); err != nil {
		log.Err(err).Str("func", "NewConnectSQLite").Msg("error creating catalog schema")
		return nil, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	log.Debug().Str("func", "NewConnectSQLite").Str("dsn", cfg.DSN).Msg("connected to catalog database successfully")

	return &DB{
		DB:     conn,
		logger: log,
	}, nil
}

func createLocalDBFileIfNotExists(dbFile string) error {
	if _, err := os.Stat(dbFile); os.IsNotExist(err) {
		if dir := filepath.Dir(dbFile); dir != "." {
			if err = os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("error creating DB directory: %w", err)
			}
		}
		f, err := os.Create(dbFile)
		if err != nil {
			return fmt.Errorf("error creating DB file: %w", err)
		}
		_ = f.Close()
	}

	return nil
}
