// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/models"
)

// maxAppendAttempts bounds how often Append recomputes the version number
// after losing a race on the unique constraint.
const maxAppendAttempts = 5

// postgresVersionStore is the PostgreSQL-backed [VersionStore] on the
// "entity_versions" table.
//
// Per-entity single-writer is enforced by the UNIQUE(entity_type,
// entity_key, version) constraint: a writer that loses the race gets a
// unique violation and retries with a fresh MAX(version).
type postgresVersionStore struct {
	*DB
}

// NewPostgresVersionStore constructs a [VersionStore] on db.
func NewPostgresVersionStore(db *DB) VersionStore {
	return &postgresVersionStore{DB: db}
}

func (s *postgresVersionStore) Latest(ctx context.Context, ref models.EntityRef) (*models.VersionRecord, error) {
	log := logger.FromContext(ctx)

	query, args, err := buildLatestVersionQuery(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	rec, err := scanVersion(s.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		log.Err(err).
			Str("func", "postgresVersionStore.Latest").
			Str("entity", ref.String()).
			Msg("failed to load latest version")
		return nil, err
	}

	return &rec, nil
}

func (s *postgresVersionStore) Get(ctx context.Context, ref models.EntityRef, n int64) (models.VersionRecord, error) {
	query, args, err := buildGetVersionQuery(ref, n)
	if err != nil {
		return models.VersionRecord{}, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	rec, err := scanVersion(s.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.VersionRecord{}, fmt.Errorf("%w: %s v%d", ErrVersionNotFound, ref, n)
	}
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "postgresVersionStore.Get").
			Str("entity", ref.String()).
			Int64("version", n).
			Msg("failed to load version")
		return models.VersionRecord{}, err
	}

	return rec, nil
}

func (s *postgresVersionStore) Append(ctx context.Context, rec models.VersionRecord) (models.VersionRecord, error) {
	log := logger.FromContext(ctx)

	snapshot, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return models.VersionRecord{}, fmt.Errorf("%w: %w", ErrEncodingColumn, err)
	}

	for attempt := 1; ; attempt++ {
		err = s.DB.QueryRowContext(ctx, appendVersion,
			rec.Type, rec.Key, snapshot, rec.Source, rec.CreatedBy, rec.ChangeID,
		).Scan(&rec.ID, &rec.Version, &rec.CreatedAt)
		if err == nil {
			return rec, nil
		}

		if (!isUniqueViolation(err) && !s.retryable(err)) || attempt >= maxAppendAttempts {
			log.Err(err).
				Str("func", "postgresVersionStore.Append").
				Str("entity", rec.EntityRef.String()).
				Int("attempt", attempt).
				Msg("failed to append version")
			if isUniqueViolation(err) {
				return models.VersionRecord{}, fmt.Errorf("%w: %w", ErrVersionConflict, err)
			}
			return models.VersionRecord{}, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
		}

		log.Debug().
			Str("func", "postgresVersionStore.Append").
			Str("entity", rec.EntityRef.String()).
			Int("attempt", attempt).
			Str("pg_code", postgresError(err)).
			Msg("version append raced, retrying")
	}
}

func (s *postgresVersionStore) AppendIfLatest(ctx context.Context, expected int64, rec models.VersionRecord) (models.VersionRecord, error) {
	snapshot, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return models.VersionRecord{}, fmt.Errorf("%w: %w", ErrEncodingColumn, err)
	}

	err = s.DB.QueryRowContext(ctx, appendVersionIfLatest,
		rec.Type, rec.Key, snapshot, rec.Source, rec.CreatedBy, rec.ChangeID, expected,
	).Scan(&rec.ID, &rec.Version, &rec.CreatedAt)

	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, sql.ErrNoRows), isUniqueViolation(err):
		logger.FromContext(ctx).Debug().
			Str("func", "postgresVersionStore.AppendIfLatest").
			Str("entity", rec.EntityRef.String()).
			Int64("expected", expected).
			Msg("latest version moved")
		return models.VersionRecord{}, fmt.Errorf("%w: %s expected v%d", ErrVersionConflict, rec.EntityRef, expected)
	default:
		logger.FromContext(ctx).Err(err).
			Str("func", "postgresVersionStore.AppendIfLatest").
			Str("entity", rec.EntityRef.String()).
			Msg("failed to append version")
		return models.VersionRecord{}, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
}

func (s *postgresVersionStore) History(ctx context.Context, ref models.EntityRef, limit int) ([]models.VersionRecord, error) {
	query, args, err := buildHistoryQuery(ref, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "postgresVersionStore.History").
			Str("entity", ref.String()).
			Msg("failed to query version history")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	out := make([]models.VersionRecord, 0, 16)
	for rows.Next() {
		rec, scanErr := scanVersion(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, err)
	}

	return out, nil
}

func (s *postgresVersionStore) Prune(ctx context.Context, ref models.EntityRef, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}

	res, err := s.DB.ExecContext(ctx, pruneVersions, ref.Type, ref.Key, keep)
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "postgresVersionStore.Prune").
			Str("entity", ref.String()).
			Msg("failed to prune versions")
		return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	return int(n), nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (models.VersionRecord, error) {
	var (
		rec      models.VersionRecord
		snapshot []byte
	)
	err := row.Scan(
		&rec.ID,
		&rec.Type,
		&rec.Key,
		&rec.Version,
		&snapshot,
		&rec.Source,
		&rec.CreatedBy,
		&rec.ChangeID,
		&rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}
	if err = json.Unmarshal(snapshot, &rec.Snapshot); err != nil {
		return rec, fmt.Errorf("%w: %w", ErrEncodingColumn, err)
	}

	return rec, nil
}
