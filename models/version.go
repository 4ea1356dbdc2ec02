// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import "time"

// VersionRecord is one immutable entry of an entity's append-only history.
//
// (EntityRef, Version) is unique. Version numbers start at 1 and grow by one
// on every successful apply and every remote pull.
type VersionRecord struct {
	// ID is the storage identifier of the record.
	ID int64 `json:"id"`

	EntityRef

	// Version is the per-entity monotonic version number.
	Version int64 `json:"version"`

	// Snapshot is the full entity state captured by this version.
	Snapshot EntitySnapshot `json:"snapshot"`

	// Source is the writer that produced the snapshot.
	Source SourceSystem `json:"source"`

	// CreatedBy names the actor or component that appended the version.
	CreatedBy string `json:"created_by"`

	// ChangeID links the version to the staged change whose apply produced
	// it. Nil for versions recorded by a pull.
	ChangeID *string `json:"change_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
