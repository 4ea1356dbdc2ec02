// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"context"
	"fmt"

	"github.com/MKhiriev/go-catalog-sync/internal/adapter"
	"github.com/MKhiriev/go-catalog-sync/internal/store"
	"github.com/MKhiriev/go-catalog-sync/models"
)

// catalogProducer streams the dirty rows of the local catalog, the input of
// a push from the local source. The cursor is the last entity ref returned.
type catalogProducer struct {
	catalog store.LocalCatalog
}

// NewCatalogProducer returns a producer over the dirty rows of catalog.
func NewCatalogProducer(catalog store.LocalCatalog) adapter.SnapshotProducer {
	return &catalogProducer{catalog: catalog}
}

func (p *catalogProducer) Next(ctx context.Context, filter models.SnapshotFilter, cursor string) (adapter.Page, error) {
	limit := filter.PageSize
	if limit <= 0 {
		limit = defaultPageSize
	}

	rows, err := p.catalog.ListDirty(ctx, filter, cursor, limit)
	if err != nil {
		return adapter.Page{}, fmt.Errorf("list dirty rows: %w", err)
	}

	page := adapter.Page{Snapshots: rows, Done: len(rows) < limit}
	if len(rows) > 0 {
		page.NextCursor = rows[len(rows)-1].Ref().String()
	}
	if page.Done {
		page.NextCursor = ""
	}
	return page, nil
}
