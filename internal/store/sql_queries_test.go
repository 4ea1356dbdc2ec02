// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-catalog-sync/models"
)

func TestBuildHistoryQuery(t *testing.T) {
	query, args, err := buildHistoryQuery(productRef("sku-1"), 5)
	require.NoError(t, err)
	assert.Contains(t, query, "FROM entity_versions WHERE entity_key = $1 AND entity_type = $2")
	assert.Contains(t, query, "ORDER BY version DESC LIMIT 5")
	assert.Equal(t, []any{"sku-1", models.EntityProduct}, args)

	query, _, err = buildHistoryQuery(productRef("sku-1"), 0)
	require.NoError(t, err)
	assert.NotContains(t, query, "LIMIT")
}

func TestBuildPendingForEntityQuery(t *testing.T) {
	query, args, err := buildPendingForEntityQuery(productRef("sku-1"))
	require.NoError(t, err)
	assert.Contains(t, query, "superseded_by IS NULL")
	assert.Contains(t, query, "ORDER BY created_at")
	assert.Len(t, args, 3)
}

func TestBuildUpdateStagedChangeQuery(t *testing.T) {
	c := stagedChange("c1", productRef("sku-1"), models.StatusApproved)
	row, err := newStagedChangeRow(c)
	require.NoError(t, err)

	query, args, err := buildUpdateStagedChangeQuery(row, models.StatusPending)
	require.NoError(t, err)
	assert.Contains(t, query, "UPDATE staged_changes SET")
	assert.Contains(t, query, "WHERE id = $19 AND status = $20")
	assert.Equal(t, "c1", args[len(args)-2])
	assert.Equal(t, models.StatusPending, args[len(args)-1])
}

func TestBuildQueryStagedChangesQuery(t *testing.T) {
	status := models.StatusPending
	conflicts := true
	et := models.EntityCollection

	query, args, err := buildQueryStagedChangesQuery(models.ChangeQuery{
		Status: &status, EntityType: &et, BatchID: "b1", HasConflicts: &conflicts,
		Limit: 10, Offset: 20,
	})
	require.NoError(t, err)
	assert.Contains(t, query, "WHERE (status = $1 AND entity_type = $2 AND batch_id = $3 AND has_conflicts = $4)")
	assert.Contains(t, query, "LIMIT 10 OFFSET 20")
	assert.Len(t, args, 4)

	query, args, err = buildQueryStagedChangesQuery(models.ChangeQuery{})
	require.NoError(t, err)
	assert.NotContains(t, query, "LIMIT")
	assert.Empty(t, args)
}

func TestBuildUpdateBatchQuery(t *testing.T) {
	row, err := newBatchRow(models.SyncBatch{ID: "b1", Status: models.BatchCompleted})
	require.NoError(t, err)

	query, args, err := buildUpdateBatchQuery(row)
	require.NoError(t, err)
	assert.Contains(t, query, "UPDATE sync_batches SET")
	assert.NotContains(t, query, "created_at =")
	assert.Contains(t, query, "WHERE id = $19")
	assert.Len(t, args, len(batchColumns)-1)
	assert.Equal(t, "b1", args[len(args)-1])

	assert.JSONEq(t, `[]`, string(row.failedChangeIDs))
	assert.JSONEq(t, `{}`, string(row.errorSummary))
}
