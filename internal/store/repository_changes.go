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

// stagedChangeRepository is the PostgreSQL-backed [StagedChangeRepository]
// on the "staged_changes" table. Snapshots, diffs and conflicts are stored
// as JSONB columns.
type stagedChangeRepository struct {
	*DB
}

// NewStagedChangeRepository constructs a [StagedChangeRepository] on db.
func NewStagedChangeRepository(db *DB) StagedChangeRepository {
	return &stagedChangeRepository{DB: db}
}

func (r *stagedChangeRepository) Create(ctx context.Context, change models.StagedChange) error {
	log := logger.FromContext(ctx)

	row, err := newStagedChangeRow(change)
	if err != nil {
		return err
	}

	query, args, err := buildInsertStagedChangeQuery(row)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	if _, err = r.DB.ExecContext(ctx, query, args...); err != nil {
		log.Err(err).
			Str("func", "stagedChangeRepository.Create").
			Str("change_id", change.ID).
			Str("entity", change.EntityRef.String()).
			Msg("failed to insert staged change")
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateID, change.ID)
		}
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	return nil
}

func (r *stagedChangeRepository) Get(ctx context.Context, id string) (models.StagedChange, error) {
	changes, err := r.GetMany(ctx, []string{id})
	if err != nil {
		return models.StagedChange{}, err
	}
	return changes[0], nil
}

// GetMany returns the changes in the order of ids and fails with
// ErrStagedChangeNotFound when any id is unknown.
func (r *stagedChangeRepository) GetMany(ctx context.Context, ids []string) ([]models.StagedChange, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := buildSelectStagedChangesQuery(ids...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	found, err := r.queryChanges(ctx, "stagedChangeRepository.GetMany", query, args)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.StagedChange, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}
	out := make([]models.StagedChange, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrStagedChangeNotFound, id)
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *stagedChangeRepository) UpdateIfStatus(ctx context.Context, change models.StagedChange, expected models.ChangeStatus) error {
	log := logger.FromContext(ctx)

	row, err := newStagedChangeRow(change)
	if err != nil {
		return err
	}

	query, args, err := buildUpdateStagedChangeQuery(row, expected)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		log.Err(err).
			Str("func", "stagedChangeRepository.UpdateIfStatus").
			Str("change_id", change.ID).
			Msg("failed to update staged change")
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	if n > 0 {
		return nil
	}

	// nothing matched: tell a missing row from a status race
	current, err := r.Get(ctx, change.ID)
	if err != nil {
		return err
	}
	log.Debug().
		Str("func", "stagedChangeRepository.UpdateIfStatus").
		Str("change_id", change.ID).
		Str("expected", string(expected)).
		Str("actual", string(current.Status)).
		Msg("staged change status moved")
	return fmt.Errorf("%w: %s is %s, expected %s", ErrStatusMismatch, change.ID, current.Status, expected)
}

func (r *stagedChangeRepository) Query(ctx context.Context, q models.ChangeQuery) ([]models.StagedChange, int, error) {
	countQuery, countArgs, err := buildCountStagedChangesQuery(q)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	var total int
	if err = r.DB.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "stagedChangeRepository.Query").
			Msg("failed to count staged changes")
		return nil, 0, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	query, args, err := buildQueryStagedChangesQuery(q)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	page, err := r.queryChanges(ctx, "stagedChangeRepository.Query", query, args)
	if err != nil {
		return nil, 0, err
	}
	return page, total, nil
}

func (r *stagedChangeRepository) ListPending(ctx context.Context, ref models.EntityRef) ([]models.StagedChange, error) {
	query, args, err := buildPendingForEntityQuery(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}
	return r.queryChanges(ctx, "stagedChangeRepository.ListPending", query, args)
}

func (r *stagedChangeRepository) queryChanges(ctx context.Context, fn, query string, args []any) ([]models.StagedChange, error) {
	log := logger.FromContext(ctx)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		log.Err(err).Str("func", fn).Msg("failed to query staged changes")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	out := make([]models.StagedChange, 0, 16)
	for rows.Next() {
		c, scanErr := scanStagedChange(rows)
		if scanErr != nil {
			log.Err(scanErr).Str("func", fn).Msg("failed to scan staged change row")
			return nil, scanErr
		}
		out = append(out, c)
	}
	if err = rows.Err(); err != nil {
		log.Err(err).Str("func", fn).Msg("error occurred during rows iteration")
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, err)
	}

	return out, nil
}

// stagedChangeRow is a staged change with its JSON columns pre-encoded.
type stagedChangeRow struct {
	c         models.StagedChange
	current   any
	proposed  []byte
	diff      []byte
	conflicts []byte
}

func newStagedChangeRow(c models.StagedChange) (stagedChangeRow, error) {
	row := stagedChangeRow{c: c}

	var err error
	if c.Current != nil {
		var cur []byte
		if cur, err = json.Marshal(c.Current); err != nil {
			return row, fmt.Errorf("%w: %w", ErrEncodingColumn, err)
		}
		row.current = cur
	}
	if row.proposed, err = json.Marshal(c.Proposed); err != nil {
		return row, fmt.Errorf("%w: %w", ErrEncodingColumn, err)
	}
	if row.diff, err = json.Marshal(nonNil(c.Diff)); err != nil {
		return row, fmt.Errorf("%w: %w", ErrEncodingColumn, err)
	}
	if row.conflicts, err = json.Marshal(nonNil(c.Conflicts)); err != nil {
		return row, fmt.Errorf("%w: %w", ErrEncodingColumn, err)
	}

	return row, nil
}

func (row stagedChangeRow) failureKind() any {
	if row.c.FailureKind == nil {
		return nil
	}
	return string(*row.c.FailureKind)
}

// values follows the order of stagedChangeColumns.
func (row stagedChangeRow) values() []any {
	c := row.c
	return []any{
		c.ID, c.Type, c.Key, c.ChangeType, c.Direction, c.BaseVersion,
		row.current, row.proposed, row.diff, c.HasConflicts, row.conflicts,
		c.Status, c.AutoApproved, c.BatchID, int(c.Priority),
		c.ReviewedBy, c.ReviewNotes, c.ReviewedAt,
		row.failureKind(), c.FailureReason, c.Attempts,
		c.RollbackOf, c.SupersededBy, c.AppliedVersion,
		c.CreatedAt, c.UpdatedAt,
	}
}

func scanStagedChange(row rowScanner) (models.StagedChange, error) {
	var (
		c                         models.StagedChange
		current                   []byte
		proposed, diff, conflicts []byte
		failureKind               sql.NullString
		reviewedAt                sql.NullTime
	)

	err := row.Scan(
		&c.ID, &c.Type, &c.Key, &c.ChangeType, &c.Direction, &c.BaseVersion,
		&current, &proposed, &diff, &c.HasConflicts, &conflicts,
		&c.Status, &c.AutoApproved, &c.BatchID, &c.Priority,
		&c.ReviewedBy, &c.ReviewNotes, &reviewedAt,
		&failureKind, &c.FailureReason, &c.Attempts,
		&c.RollbackOf, &c.SupersededBy, &c.AppliedVersion,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return c, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	if len(current) > 0 {
		var snap models.EntitySnapshot
		if err = json.Unmarshal(current, &snap); err != nil {
			return c, fmt.Errorf("%w: %w", ErrEncodingColumn, err)
		}
		c.Current = &snap
	}
	if err = errors.Join(
		json.Unmarshal(proposed, &c.Proposed),
		json.Unmarshal(diff, &c.Diff),
		json.Unmarshal(conflicts, &c.Conflicts),
	); err != nil {
		return c, fmt.Errorf("%w: %w", ErrEncodingColumn, err)
	}
	if failureKind.Valid {
		kind := models.FailureKind(failureKind.String)
		c.FailureKind = &kind
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		c.ReviewedAt = &t
	}

	return c, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
