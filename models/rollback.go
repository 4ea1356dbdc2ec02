// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import "time"

// RollbackRecord links an applied change with the compensating change that
// restores the entity to the version current before it.
type RollbackRecord struct {
	ID                   string    `json:"id"`
	OriginalChangeID     string    `json:"original_change_id"`
	CompensatingChangeID string    `json:"compensating_change_id"`
	RestoredVersion      int64     `json:"restored_version"`
	Reason               string    `json:"reason"`
	CreatedBy            string    `json:"created_by"`
	CreatedAt            time.Time `json:"created_at"`
}
