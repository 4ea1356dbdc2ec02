// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/models"
)

const (
	selectCatalogEntry = `SELECT entity_type, entity_key, remote_id, fields, deleted, source, observed_at
		FROM catalog_entries WHERE entity_type = ? AND entity_key = ?;`

	upsertCatalogEntry = `INSERT INTO catalog_entries
		(entity_type, entity_key, remote_id, fields, deleted, dirty, source, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_type, entity_key) DO UPDATE SET
			remote_id = COALESCE(excluded.remote_id, catalog_entries.remote_id),
			fields = excluded.fields,
			deleted = excluded.deleted,
			dirty = excluded.dirty,
			source = excluded.source,
			observed_at = excluded.observed_at;`

	markCatalogEntryClean = `UPDATE catalog_entries
		SET dirty = 0, remote_id = COALESCE(?, remote_id)
		WHERE entity_type = ? AND entity_key = ?;`

	deleteCatalogEntry = `DELETE FROM catalog_entries WHERE entity_type = ? AND entity_key = ?;`
)

// sqliteCatalog is the [LocalCatalog] kept in a SQLite file.
type sqliteCatalog struct {
	*DB
}

// NewSQLiteCatalog constructs a [LocalCatalog] on a database opened by
// [NewConnectSQLite].
func NewSQLiteCatalog(db *DB) LocalCatalog {
	return &sqliteCatalog{DB: db}
}

func (c *sqliteCatalog) Get(ctx context.Context, ref models.EntityRef) (*models.EntitySnapshot, error) {
	snap, err := scanCatalogEntry(c.DB.QueryRowContext(ctx, selectCatalogEntry, string(ref.Type), ref.Key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "sqliteCatalog.Get").
			Str("entity", ref.String()).
			Msg("failed to read catalog entry")
		return nil, err
	}
	return &snap, nil
}

func (c *sqliteCatalog) ListDirty(ctx context.Context, filter models.SnapshotFilter, afterKey string, limit int) ([]models.EntitySnapshot, error) {
	var (
		where = []string{"dirty = 1", "(entity_type || '/' || entity_key) > ?"}
		args  = []any{afterKey}
	)
	if filter.EntityType != nil {
		where = append(where, "entity_type = ?")
		args = append(args, string(*filter.EntityType))
	}
	if filter.UpdatedSince != nil {
		where = append(where, "observed_at >= ?")
		args = append(args, *filter.UpdatedSince)
	}
	if len(filter.Keys) > 0 {
		where = append(where, "entity_key IN (?"+strings.Repeat(", ?", len(filter.Keys)-1)+")")
		for _, k := range filter.Keys {
			args = append(args, k)
		}
	}

	query := `SELECT entity_type, entity_key, remote_id, fields, deleted, source, observed_at
		FROM catalog_entries WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY entity_type || '/' || entity_key`
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := c.DB.QueryContext(ctx, query, args...)
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "sqliteCatalog.ListDirty").
			Msg("failed to query dirty catalog entries")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	var out []models.EntitySnapshot
	for rows.Next() {
		snap, scanErr := scanCatalogEntry(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, snap)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, err)
	}
	return out, nil
}

func (c *sqliteCatalog) Upsert(ctx context.Context, snapshot models.EntitySnapshot, dirty bool) error {
	fields, err := json.Marshal(snapshot.Fields)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncodingColumn, err)
	}

	_, err = c.DB.ExecContext(ctx, upsertCatalogEntry,
		string(snapshot.Type), snapshot.Key, snapshot.RemoteID, string(fields),
		snapshot.Deleted, dirty, string(snapshot.Source), snapshot.ObservedAt.UTC(),
	)
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "sqliteCatalog.Upsert").
			Str("entity", snapshot.Ref().String()).
			Msg("failed to upsert catalog entry")
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	return nil
}

func (c *sqliteCatalog) MarkClean(ctx context.Context, ref models.EntityRef, remoteID *string) error {
	if _, err := c.DB.ExecContext(ctx, markCatalogEntryClean, remoteID, string(ref.Type), ref.Key); err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	return nil
}

func (c *sqliteCatalog) Delete(ctx context.Context, ref models.EntityRef) error {
	if _, err := c.DB.ExecContext(ctx, deleteCatalogEntry, string(ref.Type), ref.Key); err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	return nil
}

func scanCatalogEntry(row rowScanner) (models.EntitySnapshot, error) {
	var (
		snap     models.EntitySnapshot
		remoteID sql.NullString
		fields   string
	)
	err := row.Scan(&snap.Type, &snap.Key, &remoteID, &fields, &snap.Deleted, &snap.Source, &snap.ObservedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, err
	}
	if err != nil {
		return snap, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}
	if remoteID.Valid {
		id := remoteID.String
		snap.RemoteID = &id
	}
	if err = json.Unmarshal([]byte(fields), &snap.Fields); err != nil {
		return snap, fmt.Errorf("%w: %w", ErrEncodingColumn, err)
	}
	return snap, nil
}
