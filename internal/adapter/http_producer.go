// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package adapter

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/MKhiriev/go-catalog-sync/internal/config"
	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/internal/utils"
	"github.com/MKhiriev/go-catalog-sync/models"
)

type listResponse struct {
	Items      []remoteEntity `json:"items"`
	NextCursor string         `json:"next_cursor"`
	HasMore    bool           `json:"has_more"`
}

// httpSnapshotProducer pages through GET /api/{type}s using the platform's
// opaque cursor.
type httpSnapshotProducer struct {
	client   *utils.HTTPClient
	token    string
	pageSize int

	logger *logger.Logger
}

// NewHTTPSnapshotProducer constructs the pull-side [SnapshotProducer].
func NewHTTPSnapshotProducer(cfg config.Adapter, log *logger.Logger) (SnapshotProducer, error) {
	client, err := newPlatformHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	return &httpSnapshotProducer{
		client:   client,
		token:    strings.TrimSpace(cfg.AccessToken),
		pageSize: cfg.PageSize,
		logger:   log,
	}, nil
}

// Next fetches one page. Without an entity type in filter, products are
// listed.
func (p *httpSnapshotProducer) Next(ctx context.Context, filter models.SnapshotFilter, cursor string) (Page, error) {
	entityType := models.EntityProduct
	if filter.EntityType != nil {
		entityType = *filter.EntityType
	}

	limit := p.pageSize
	if filter.PageSize > 0 {
		limit = filter.PageSize
	}

	req := p.client.R().SetContext(ctx)
	if p.token != "" {
		req.SetAuthToken(p.token)
	}
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		req.SetQueryParam("cursor", cursor)
	}
	if filter.UpdatedSince != nil {
		req.SetQueryParam("updated_since", filter.UpdatedSince.UTC().Format(time.RFC3339))
	}
	if len(filter.Keys) > 0 {
		req.SetQueryParam("keys", strings.Join(filter.Keys, ","))
	}

	var list listResponse
	resp, err := req.SetResult(&list).Get(collectionPath(entityType))
	if err != nil {
		return Page{}, mapTransportError("list request", err)
	}
	if err = mapHTTPError(resp); err != nil {
		logger.FromContext(ctx).Warn().Err(err).
			Str("func", "httpSnapshotProducer.Next").
			Str("cursor", cursor).
			Msg("list page rejected")
		return Page{}, err
	}

	page := Page{
		Snapshots:  make([]models.EntitySnapshot, 0, len(list.Items)),
		NextCursor: list.NextCursor,
		Done:       !list.HasMore || list.NextCursor == "",
	}
	for _, item := range list.Items {
		page.Snapshots = append(page.Snapshots, item.snapshot(entityType))
	}

	p.logger.Debug().
		Str("func", "httpSnapshotProducer.Next").
		Str("entity_type", string(entityType)).
		Int("items", len(page.Snapshots)).
		Bool("done", page.Done).
		Msg("pulled page")

	return page, nil
}
