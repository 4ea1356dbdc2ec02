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

// batchRepository is the PostgreSQL-backed [BatchRepository] on the
// "sync_batches" table.
type batchRepository struct {
	*DB
}

// NewBatchRepository constructs a [BatchRepository] on db.
func NewBatchRepository(db *DB) BatchRepository {
	return &batchRepository{DB: db}
}

func (r *batchRepository) Create(ctx context.Context, batch models.SyncBatch) error {
	row, err := newBatchRow(batch)
	if err != nil {
		return err
	}

	query, args, err := buildInsertBatchQuery(row)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	if _, err = r.DB.ExecContext(ctx, query, args...); err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "batchRepository.Create").
			Str("batch_id", batch.ID).
			Msg("failed to insert sync batch")
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateID, batch.ID)
		}
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	return nil
}

func (r *batchRepository) Get(ctx context.Context, id string) (models.SyncBatch, error) {
	query, args, err := buildSelectBatchQuery(id)
	if err != nil {
		return models.SyncBatch{}, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	batch, err := scanBatch(r.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.SyncBatch{}, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "batchRepository.Get").
			Str("batch_id", id).
			Msg("failed to load sync batch")
		return models.SyncBatch{}, err
	}

	return batch, nil
}

func (r *batchRepository) Update(ctx context.Context, batch models.SyncBatch) error {
	row, err := newBatchRow(batch)
	if err != nil {
		return err
	}

	query, args, err := buildUpdateBatchQuery(row)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "batchRepository.Update").
			Str("batch_id", batch.ID).
			Msg("failed to update sync batch")
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrBatchNotFound, batch.ID)
	}

	return nil
}

func (r *batchRepository) ListByStatus(ctx context.Context, status models.BatchStatus) ([]models.SyncBatch, error) {
	query, args, err := buildBatchesByStatusQuery(status)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "batchRepository.ListByStatus").
			Str("status", string(status)).
			Msg("failed to query sync batches")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	var out []models.SyncBatch
	for rows.Next() {
		b, scanErr := scanBatch(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, err)
	}

	return out, nil
}

// batchRow is a sync batch with its JSON columns pre-encoded.
type batchRow struct {
	b               models.SyncBatch
	filter          []byte
	failedChangeIDs []byte
	errorSummary    []byte
}

func newBatchRow(b models.SyncBatch) (batchRow, error) {
	row := batchRow{b: b}

	summary := b.ErrorSummary
	if summary == nil {
		summary = map[string]int{}
	}

	var err error
	if row.filter, err = json.Marshal(b.Filter); err != nil {
		return row, fmt.Errorf("%w: %w", ErrEncodingColumn, err)
	}
	if row.failedChangeIDs, err = json.Marshal(nonNil(b.FailedChangeIDs)); err != nil {
		return row, fmt.Errorf("%w: %w", ErrEncodingColumn, err)
	}
	if row.errorSummary, err = json.Marshal(summary); err != nil {
		return row, fmt.Errorf("%w: %w", ErrEncodingColumn, err)
	}

	return row, nil
}

// values follows the order of batchColumns.
func (row batchRow) values() []any {
	b := row.b
	return []any{
		b.ID, b.Direction, b.Source, row.filter, b.Status,
		b.TotalItems, b.ProcessedItems, b.SuccessfulItems, b.FailedItems, b.SkippedItems,
		row.failedChangeIDs, row.errorSummary, b.ProcessingRate, b.ResumeCursor, b.StagingDone,
		b.FailureReason, b.StartedAt, b.CompletedAt, b.CreatedAt, b.UpdatedAt,
	}
}

func scanBatch(row rowScanner) (models.SyncBatch, error) {
	var (
		b                                     models.SyncBatch
		filter, failedChangeIDs, errorSummary []byte
		startedAt, completedAt                sql.NullTime
	)

	err := row.Scan(
		&b.ID, &b.Direction, &b.Source, &filter, &b.Status,
		&b.TotalItems, &b.ProcessedItems, &b.SuccessfulItems, &b.FailedItems, &b.SkippedItems,
		&failedChangeIDs, &errorSummary, &b.ProcessingRate, &b.ResumeCursor, &b.StagingDone,
		&b.FailureReason, &startedAt, &completedAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return b, err
	}
	if err != nil {
		return b, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	if err = errors.Join(
		json.Unmarshal(filter, &b.Filter),
		json.Unmarshal(failedChangeIDs, &b.FailedChangeIDs),
		json.Unmarshal(errorSummary, &b.ErrorSummary),
	); err != nil {
		return b, fmt.Errorf("%w: %w", ErrEncodingColumn, err)
	}
	if startedAt.Valid {
		t := startedAt.Time
		b.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		b.CompletedAt = &t
	}

	return b, nil
}

// rollbackRepository is the PostgreSQL-backed [RollbackRepository].
type rollbackRepository struct {
	*DB
}

// NewRollbackRepository constructs a [RollbackRepository] on db.
func NewRollbackRepository(db *DB) RollbackRepository {
	return &rollbackRepository{DB: db}
}

func (r *rollbackRepository) Create(ctx context.Context, rec models.RollbackRecord) error {
	_, err := r.DB.ExecContext(ctx, insertRollbackRecord,
		rec.ID, rec.OriginalChangeID, rec.CompensatingChangeID,
		rec.RestoredVersion, rec.Reason, rec.CreatedBy, rec.CreatedAt,
	)
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "rollbackRepository.Create").
			Str("original_change_id", rec.OriginalChangeID).
			Msg("failed to insert rollback record")
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	return nil
}

func (r *rollbackRepository) ListByOriginal(ctx context.Context, originalChangeID string) ([]models.RollbackRecord, error) {
	rows, err := r.DB.QueryContext(ctx, selectRollbacksByOriginal, originalChangeID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	var out []models.RollbackRecord
	for rows.Next() {
		var rec models.RollbackRecord
		if err = rows.Scan(
			&rec.ID, &rec.OriginalChangeID, &rec.CompensatingChangeID,
			&rec.RestoredVersion, &rec.Reason, &rec.CreatedBy, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, err)
		}
		out = append(out, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, err)
	}
	return out, nil
}

// approvalRuleRepository is the PostgreSQL-backed [ApprovalRuleRepository].
type approvalRuleRepository struct {
	*DB
}

// NewApprovalRuleRepository constructs an [ApprovalRuleRepository] on db.
func NewApprovalRuleRepository(db *DB) ApprovalRuleRepository {
	return &approvalRuleRepository{DB: db}
}

func (r *approvalRuleRepository) ListEnabled(ctx context.Context) ([]models.ApprovalRule, error) {
	rows, err := r.DB.QueryContext(ctx, selectEnabledRules)
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "approvalRuleRepository.ListEnabled").
			Msg("failed to query approval rules")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	var out []models.ApprovalRule
	for rows.Next() {
		var (
			rule                   models.ApprovalRule
			entityType, changeType sql.NullString
		)
		if err = rows.Scan(
			&rule.ID, &rule.Name, &rule.Priority, &entityType, &changeType, &rule.FieldPattern,
			&rule.MaxRelativeDelta, &rule.MaxAbsoluteDelta, &rule.Decision, &rule.Enabled, &rule.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, err)
		}
		if entityType.Valid {
			t := models.EntityType(entityType.String)
			rule.EntityType = &t
		}
		if changeType.Valid {
			t := models.ChangeType(changeType.String)
			rule.ChangeType = &t
		}
		out = append(out, rule)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, err)
	}
	return out, nil
}

func (r *approvalRuleRepository) Create(ctx context.Context, rule models.ApprovalRule) (models.ApprovalRule, error) {
	var entityType, changeType any
	if rule.EntityType != nil {
		entityType = string(*rule.EntityType)
	}
	if rule.ChangeType != nil {
		changeType = string(*rule.ChangeType)
	}

	err := r.DB.QueryRowContext(ctx, insertRule,
		rule.Name, rule.Priority, entityType, changeType, rule.FieldPattern,
		rule.MaxRelativeDelta, rule.MaxAbsoluteDelta, rule.Decision, rule.Enabled,
	).Scan(&rule.ID, &rule.CreatedAt)
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "approvalRuleRepository.Create").
			Str("rule", rule.Name).
			Msg("failed to insert approval rule")
		return models.ApprovalRule{}, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	return rule, nil
}
