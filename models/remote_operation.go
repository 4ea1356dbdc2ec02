// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

// OperationKind distinguishes single-entity calls from bulk calls.
type OperationKind string

const (
	OperationSingle OperationKind = "single"
	OperationBulk   OperationKind = "bulk"
)

// RemoteOperationItem is one entity carried by a remote operation.
type RemoteOperationItem struct {
	ChangeID string         `json:"change_id"`
	Key      string         `json:"key"`
	RemoteID *string        `json:"remote_id,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// RemoteOperation is one call against the remote platform, produced by the
// batch optimizer from a group of staged changes.
type RemoteOperation struct {
	Kind       OperationKind         `json:"kind"`
	ChangeType ChangeType            `json:"change_type"`
	EntityType EntityType            `json:"entity_type"`
	Items      []RemoteOperationItem `json:"items"`

	// Cost is the number of rate-limit tokens the call consumes.
	Cost int `json:"cost"`
}

// ChangeIDs lists the staged changes covered by the operation.
func (o RemoteOperation) ChangeIDs() []string {
	ids := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		ids = append(ids, it.ChangeID)
	}
	return ids
}

// RemoteResult is the per-item outcome of a remote operation.
type RemoteResult struct {
	ChangeID string
	RemoteID *string
	Err      error
}
