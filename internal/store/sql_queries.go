// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package store

import (
	sq "github.com/Masterminds/squirrel"

	"github.com/MKhiriev/go-catalog-sync/models"
)

// psql builds PostgreSQL statements with $n placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var versionColumns = []string{
	"id", "entity_type", "entity_key", "version", "snapshot",
	"source", "created_by", "change_id", "created_at",
}

var stagedChangeColumns = []string{
	"id", "entity_type", "entity_key", "change_type", "direction", "base_version",
	"current_snapshot", "proposed_snapshot", "diff", "has_conflicts", "conflicts",
	"status", "auto_approved", "batch_id", "priority",
	"reviewed_by", "review_notes", "reviewed_at",
	"failure_kind", "failure_reason", "attempts",
	"rollback_of", "superseded_by", "applied_version",
	"created_at", "updated_at",
}

var batchColumns = []string{
	"id", "direction", "source", "filter", "status",
	"total_items", "processed_items", "successful_items", "failed_items", "skipped_items",
	"failed_change_ids", "error_summary", "processing_rate", "resume_cursor", "staging_done",
	"failure_reason", "started_at", "completed_at", "created_at", "updated_at",
}

const (
	// appendVersion computes the next version number inside the INSERT so
	// that two racing writers collide on the unique constraint instead of
	// both succeeding.
	appendVersion = `INSERT INTO entity_versions (entity_type, entity_key, version, snapshot, source, created_by, change_id)
		SELECT $1, $2, COALESCE(MAX(version), 0) + 1, $3, $4, $5, $6
		FROM entity_versions
		WHERE entity_type = $1 AND entity_key = $2
		RETURNING id, version, created_at;`

	// appendVersionIfLatest inserts version $7+1 only while $7 is still the
	// newest version of the entity.
	appendVersionIfLatest = `INSERT INTO entity_versions (entity_type, entity_key, version, snapshot, source, created_by, change_id)
		SELECT $1, $2, $7 + 1, $3, $4, $5, $6
		WHERE COALESCE((SELECT MAX(version) FROM entity_versions WHERE entity_type = $1 AND entity_key = $2), 0) = $7
		RETURNING id, version, created_at;`

	pruneVersions = `DELETE FROM entity_versions
		WHERE entity_type = $1 AND entity_key = $2
		  AND version <= COALESCE((SELECT MAX(version) FROM entity_versions WHERE entity_type = $1 AND entity_key = $2), 0) - $3;`

	insertRollbackRecord = `INSERT INTO rollback_records
		(id, original_change_id, compensating_change_id, restored_version, reason, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);`

	selectRollbacksByOriginal = `SELECT id, original_change_id, compensating_change_id, restored_version, reason, created_by, created_at
		FROM rollback_records
		WHERE original_change_id = $1
		ORDER BY created_at;`

	selectEnabledRules = `SELECT id, name, priority, entity_type, change_type, field_pattern,
			max_relative_delta, max_absolute_delta, decision, enabled, created_at
		FROM approval_rules
		WHERE enabled
		ORDER BY priority, id;`

	insertRule = `INSERT INTO approval_rules
		(name, priority, entity_type, change_type, field_pattern, max_relative_delta, max_absolute_delta, decision, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at;`
)

func buildLatestVersionQuery(ref models.EntityRef) (string, []any, error) {
	return psql.Select(versionColumns...).
		From("entity_versions").
		Where(sq.Eq{"entity_type": ref.Type, "entity_key": ref.Key}).
		OrderBy("version DESC").
		Limit(1).
		ToSql()
}

func buildGetVersionQuery(ref models.EntityRef, n int64) (string, []any, error) {
	return psql.Select(versionColumns...).
		From("entity_versions").
		Where(sq.Eq{"entity_type": ref.Type, "entity_key": ref.Key, "version": n}).
		ToSql()
}

func buildHistoryQuery(ref models.EntityRef, limit int) (string, []any, error) {
	b := psql.Select(versionColumns...).
		From("entity_versions").
		Where(sq.Eq{"entity_type": ref.Type, "entity_key": ref.Key}).
		OrderBy("version DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return b.ToSql()
}

func buildInsertStagedChangeQuery(row stagedChangeRow) (string, []any, error) {
	return psql.Insert("staged_changes").
		Columns(stagedChangeColumns...).
		Values(row.values()...).
		ToSql()
}

func buildSelectStagedChangesQuery(ids ...string) (string, []any, error) {
	return psql.Select(stagedChangeColumns...).
		From("staged_changes").
		Where(sq.Eq{"id": ids}).
		ToSql()
}

// buildUpdateStagedChangeQuery overwrites every mutable column of a change
// guarded by its expected status.
func buildUpdateStagedChangeQuery(row stagedChangeRow, expected models.ChangeStatus) (string, []any, error) {
	return psql.Update("staged_changes").
		SetMap(map[string]any{
			"current_snapshot":  row.current,
			"proposed_snapshot": row.proposed,
			"diff":              row.diff,
			"has_conflicts":     row.c.HasConflicts,
			"conflicts":         row.conflicts,
			"status":            row.c.Status,
			"auto_approved":     row.c.AutoApproved,
			"batch_id":          row.c.BatchID,
			"priority":          int(row.c.Priority),
			"reviewed_by":       row.c.ReviewedBy,
			"review_notes":      row.c.ReviewNotes,
			"reviewed_at":       row.c.ReviewedAt,
			"failure_kind":      row.failureKind(),
			"failure_reason":    row.c.FailureReason,
			"attempts":          row.c.Attempts,
			"superseded_by":     row.c.SupersededBy,
			"applied_version":   row.c.AppliedVersion,
			"updated_at":        row.c.UpdatedAt,
		}).
		Where(sq.Eq{"id": row.c.ID, "status": expected}).
		ToSql()
}

func changeQueryFilter(q models.ChangeQuery) sq.And {
	where := sq.And{}
	if q.Status != nil {
		where = append(where, sq.Eq{"status": *q.Status})
	}
	if q.EntityType != nil {
		where = append(where, sq.Eq{"entity_type": *q.EntityType})
	}
	if q.BatchID != "" {
		where = append(where, sq.Eq{"batch_id": q.BatchID})
	}
	if q.HasConflicts != nil {
		where = append(where, sq.Eq{"has_conflicts": *q.HasConflicts})
	}
	return where
}

func buildQueryStagedChangesQuery(q models.ChangeQuery) (string, []any, error) {
	b := psql.Select(stagedChangeColumns...).
		From("staged_changes").
		Where(changeQueryFilter(q)).
		OrderBy("created_at", "id")
	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}
	if q.Offset > 0 {
		b = b.Offset(uint64(q.Offset))
	}
	return b.ToSql()
}

func buildCountStagedChangesQuery(q models.ChangeQuery) (string, []any, error) {
	return psql.Select("COUNT(*)").
		From("staged_changes").
		Where(changeQueryFilter(q)).
		ToSql()
}

func buildPendingForEntityQuery(ref models.EntityRef) (string, []any, error) {
	return psql.Select(stagedChangeColumns...).
		From("staged_changes").
		Where(sq.Eq{
			"entity_type":   ref.Type,
			"entity_key":    ref.Key,
			"status":        models.StatusPending,
			"superseded_by": nil,
		}).
		OrderBy("created_at").
		ToSql()
}

func buildInsertBatchQuery(row batchRow) (string, []any, error) {
	return psql.Insert("sync_batches").
		Columns(batchColumns...).
		Values(row.values()...).
		ToSql()
}

func buildUpdateBatchQuery(row batchRow) (string, []any, error) {
	values := row.values()
	set := make(map[string]any, len(batchColumns)-2)
	for i, col := range batchColumns {
		if col == "id" || col == "created_at" {
			continue
		}
		set[col] = values[i]
	}
	return psql.Update("sync_batches").
		SetMap(set).
		Where(sq.Eq{"id": row.b.ID}).
		ToSql()
}

func buildSelectBatchQuery(id string) (string, []any, error) {
	return psql.Select(batchColumns...).
		From("sync_batches").
		Where(sq.Eq{"id": id}).
		ToSql()
}

func buildBatchesByStatusQuery(status models.BatchStatus) (string, []any, error) {
	return psql.Select(batchColumns...).
		From("sync_batches").
		Where(sq.Eq{"status": status}).
		OrderBy("created_at").
		ToSql()
}
