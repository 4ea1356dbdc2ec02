// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import (
	"maps"
	"time"
)

// EntityType names the kind of catalog entity being synchronized.
type EntityType string

const (
	EntityProduct    EntityType = "product"
	EntityCollection EntityType = "collection"
)

// Valid reports whether t is one of the supported entity types.
func (t EntityType) Valid() bool {
	return t == EntityProduct || t == EntityCollection
}

// SourceSystem tags the writer that produced a snapshot.
type SourceSystem string

const (
	SourceLocal     SourceSystem = "local"
	SourceRemote    SourceSystem = "remote"
	SourceSupplier  SourceSystem = "supplier"
	SourceInventory SourceSystem = "inventory"
	SourceRollback  SourceSystem = "rollback"
)

// EntityRef identifies an entity by its type and natural key (SKU for
// products, handle for collections). It is the unit of version history.
type EntityRef struct {
	Type EntityType `json:"entity_type"`
	Key  string     `json:"entity_key"`
}

// String renders the reference as "type/key"; it is also used as a lock key.
func (r EntityRef) String() string {
	return string(r.Type) + "/" + r.Key
}

// EntitySnapshot is an immutable view of an entity as observed in one system
// at one point in time. Fields holds the flattened attribute map; callers must
// not mutate a snapshot after handing it over, use Clone instead.
type EntitySnapshot struct {
	Type       EntityType     `json:"entity_type"`
	Key        string         `json:"entity_key"`
	RemoteID   *string        `json:"remote_id,omitempty"`
	Fields     map[string]any `json:"fields"`
	Deleted    bool           `json:"deleted,omitempty"`
	Source     SourceSystem   `json:"source"`
	ObservedAt time.Time      `json:"observed_at"`
}

// Ref returns the entity reference of the snapshot.
func (s EntitySnapshot) Ref() EntityRef {
	return EntityRef{Type: s.Type, Key: s.Key}
}

// Clone returns a copy whose field map and remote id can be modified without
// affecting s.
func (s EntitySnapshot) Clone() EntitySnapshot {
	out := s
	if s.Fields != nil {
		out.Fields = maps.Clone(s.Fields)
	}
	if s.RemoteID != nil {
		id := *s.RemoteID
		out.RemoteID = &id
	}
	return out
}

// Field returns the value of a single field and whether it is present.
func (s EntitySnapshot) Field(name string) (any, bool) {
	v, ok := s.Fields[name]
	return v, ok
}
