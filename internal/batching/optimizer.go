// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package batching turns approved staged changes into remote operations,
// folding large groups into bulk calls to save rate-limit budget.
package batching

import (
	"slices"

	"github.com/MKhiriev/go-catalog-sync/internal/config"
	"github.com/MKhiriev/go-catalog-sync/models"
)

const (
	defaultBulkThreshold = 5
	defaultMaxBatchSize  = 50
	defaultSingleCost    = 1
	defaultBulkCost      = 2
)

// Optimizer groups staged changes by (change type, entity type). A group of
// at least BulkThreshold changes is chunked into bulk operations of at most
// MaxBatchSize items; smaller groups become single operations.
type Optimizer struct {
	bulkThreshold int
	maxBatchSize  int
	singleCost    int
	bulkCost      int
}

// NewOptimizer applies defaults for zero-valued settings.
func NewOptimizer(cfg config.Batching) *Optimizer {
	o := &Optimizer{
		bulkThreshold: cfg.BulkThreshold,
		maxBatchSize:  cfg.MaxBatchSize,
		singleCost:    cfg.SingleCost,
		bulkCost:      cfg.BulkCost,
	}
	if o.bulkThreshold <= 0 {
		o.bulkThreshold = defaultBulkThreshold
	}
	if o.maxBatchSize <= 0 {
		o.maxBatchSize = defaultMaxBatchSize
	}
	if o.singleCost <= 0 {
		o.singleCost = defaultSingleCost
	}
	if o.bulkCost <= 0 {
		o.bulkCost = defaultBulkCost
	}
	return o
}

type groupKey struct {
	changeType models.ChangeType
	entityType models.EntityType
}

// Optimize returns operations ordered create, update, delete. Every input
// change appears in exactly one operation item, and input order is kept
// inside a group.
func (o *Optimizer) Optimize(changes []models.StagedChange) []models.RemoteOperation {
	groups := make(map[groupKey][]models.RemoteOperationItem)
	var keys []groupKey

	for _, c := range changes {
		k := groupKey{changeType: c.ChangeType, entityType: c.Type}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], operationItem(c))
	}

	// stable: entity types keep first-seen order within a change type
	slices.SortStableFunc(keys, func(a, b groupKey) int {
		return a.changeType.Order() - b.changeType.Order()
	})

	var ops []models.RemoteOperation
	for _, k := range keys {
		items := groups[k]
		if len(items) < o.bulkThreshold {
			for _, it := range items {
				ops = append(ops, models.RemoteOperation{
					Kind:       models.OperationSingle,
					ChangeType: k.changeType,
					EntityType: k.entityType,
					Items:      []models.RemoteOperationItem{it},
					Cost:       o.singleCost,
				})
			}
			continue
		}

		for chunk := range slices.Chunk(items, o.maxBatchSize) {
			ops = append(ops, models.RemoteOperation{
				Kind:       models.OperationBulk,
				ChangeType: k.changeType,
				EntityType: k.entityType,
				Items:      chunk,
				Cost:       o.bulkCost,
			})
		}
	}
	return ops
}

// MaxBatchSize returns the item limit of a bulk operation.
func (o *Optimizer) MaxBatchSize() int {
	return o.maxBatchSize
}

// Cost sums the rate-limit cost of ops.
func Cost(ops []models.RemoteOperation) int {
	total := 0
	for _, op := range ops {
		total += op.Cost
	}
	return total
}

func operationItem(c models.StagedChange) models.RemoteOperationItem {
	item := models.RemoteOperationItem{
		ChangeID: c.ID,
		Key:      c.Key,
		RemoteID: c.Proposed.RemoteID,
	}
	if item.RemoteID == nil && c.Current != nil {
		item.RemoteID = c.Current.RemoteID
	}
	if c.ChangeType != models.ChangeDelete {
		item.Fields = c.Proposed.Fields
	}
	return item
}
