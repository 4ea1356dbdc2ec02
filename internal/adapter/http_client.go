// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/MKhiriev/go-catalog-sync/internal/config"
	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/internal/utils"
	"github.com/MKhiriev/go-catalog-sync/models"
)

// remoteEntity is the platform's wire representation of a catalog entity.
type remoteEntity struct {
	ID        string         `json:"id,omitempty"`
	Key       string         `json:"key"`
	Fields    map[string]any `json:"fields"`
	Deleted   bool           `json:"deleted,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (e remoteEntity) snapshot(entityType models.EntityType) models.EntitySnapshot {
	snap := models.EntitySnapshot{
		Type:       entityType,
		Key:        e.Key,
		Fields:     e.Fields,
		Deleted:    e.Deleted,
		Source:     models.SourceRemote,
		ObservedAt: e.UpdatedAt,
	}
	if e.ID != "" {
		id := e.ID
		snap.RemoteID = &id
	}
	if snap.Fields == nil {
		snap.Fields = map[string]any{}
	}
	if snap.ObservedAt.IsZero() {
		snap.ObservedAt = time.Now().UTC()
	}
	return snap
}

type bulkRequest struct {
	Operation models.ChangeType            `json:"operation"`
	Items     []models.RemoteOperationItem `json:"items"`
}

type bulkResponse struct {
	Results []struct {
		ChangeID string `json:"change_id"`
		ID       string `json:"id,omitempty"`
		Error    string `json:"error,omitempty"`
	} `json:"results"`
}

// httpRemoteClient talks to the platform REST API:
//
//	POST   /api/{type}s               create one entity
//	PUT    /api/{type}s/{id}          update by remote id (or key)
//	DELETE /api/{type}s/{id}          delete by remote id (or key)
//	POST   /api/{type}s/bulk          bulk create/update/delete
//	GET    /api/{type}s/{key}?by=key  current remote state
type httpRemoteClient struct {
	client *utils.HTTPClient
	token  string

	logger *logger.Logger
}

// NewHTTPRemoteClient constructs a resty-backed [RemoteClient] for
// cfg.BaseURL.
func NewHTTPRemoteClient(cfg config.Adapter, log *logger.Logger) (RemoteClient, error) {
	client, err := newPlatformHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	return &httpRemoteClient{client: client, token: strings.TrimSpace(cfg.AccessToken), logger: log}, nil
}

func newPlatformHTTPClient(cfg config.Adapter) (*utils.HTTPClient, error) {
	baseURL, err := normalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid remote base url: %w", err)
	}

	client := utils.NewHTTPClient("")
	client.
		SetBaseURL(baseURL).
		SetTimeout(cfg.RequestTimeout).
		SetHeader("Accept", "application/json")
	return client, nil
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty address")
	}

	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("address must include host and scheme")
	}

	return strings.TrimRight(u.String(), "/"), nil
}

func collectionPath(entityType models.EntityType) string {
	return "/api/" + string(entityType) + "s"
}

func itemPath(entityType models.EntityType, item models.RemoteOperationItem) string {
	id := item.Key
	if item.RemoteID != nil && *item.RemoteID != "" {
		id = *item.RemoteID
	}
	return collectionPath(entityType) + "/" + url.PathEscape(id)
}

func (c *httpRemoteClient) request(ctx context.Context) *resty.Request {
	req := c.client.R().SetContext(ctx)
	if c.token != "" {
		req.SetAuthToken(c.token)
	}
	return req
}

func (c *httpRemoteClient) Create(ctx context.Context, entityType models.EntityType, item models.RemoteOperationItem) (string, error) {
	var created remoteEntity

	resp, err := c.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(remoteEntity{Key: item.Key, Fields: item.Fields}).
		SetResult(&created).
		Post(collectionPath(entityType))
	if err != nil {
		return "", mapTransportError("create request", err)
	}
	if err = mapHTTPError(resp); err != nil {
		c.logger.Debug().
			Str("func", "httpRemoteClient.Create").
			Str("key", item.Key).
			Int("status", resp.StatusCode()).
			Msg("remote create rejected")
		return "", err
	}

	return created.ID, nil
}

func (c *httpRemoteClient) Update(ctx context.Context, entityType models.EntityType, item models.RemoteOperationItem) error {
	resp, err := c.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(remoteEntity{Key: item.Key, Fields: item.Fields}).
		Put(itemPath(entityType, item))
	if err != nil {
		return mapTransportError("update request", err)
	}
	return mapHTTPError(resp)
}

func (c *httpRemoteClient) Delete(ctx context.Context, entityType models.EntityType, item models.RemoteOperationItem) error {
	resp, err := c.request(ctx).Delete(itemPath(entityType, item))
	if err != nil {
		return mapTransportError("delete request", err)
	}
	return mapHTTPError(resp)
}

func (c *httpRemoteClient) BulkCreate(ctx context.Context, entityType models.EntityType, items []models.RemoteOperationItem) ([]models.RemoteResult, error) {
	return c.bulk(ctx, entityType, models.ChangeCreate, items)
}

func (c *httpRemoteClient) BulkUpdate(ctx context.Context, entityType models.EntityType, items []models.RemoteOperationItem) ([]models.RemoteResult, error) {
	return c.bulk(ctx, entityType, models.ChangeUpdate, items)
}

func (c *httpRemoteClient) BulkDelete(ctx context.Context, entityType models.EntityType, items []models.RemoteOperationItem) ([]models.RemoteResult, error) {
	return c.bulk(ctx, entityType, models.ChangeDelete, items)
}

// bulk sends one bulk call. Items missing from the response are reported as
// transient failures so they get retried.
func (c *httpRemoteClient) bulk(ctx context.Context, entityType models.EntityType, op models.ChangeType, items []models.RemoteOperationItem) ([]models.RemoteResult, error) {
	var out bulkResponse

	resp, err := c.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(bulkRequest{Operation: op, Items: items}).
		SetResult(&out).
		Post(collectionPath(entityType) + "/bulk")
	if err != nil {
		return nil, mapTransportError("bulk request", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, err
	}

	byChange := make(map[string]models.RemoteResult, len(out.Results))
	for _, r := range out.Results {
		res := models.RemoteResult{ChangeID: r.ChangeID}
		if r.ID != "" {
			id := r.ID
			res.RemoteID = &id
		}
		if r.Error != "" {
			res.Err = fmt.Errorf("%w: %s", ErrPermanentRemote, r.Error)
		}
		byChange[r.ChangeID] = res
	}

	results := make([]models.RemoteResult, 0, len(items))
	for _, it := range items {
		res, ok := byChange[it.ChangeID]
		if !ok {
			res = models.RemoteResult{ChangeID: it.ChangeID, Err: fmt.Errorf("%w: no result for item %s", ErrTransientRemote, it.Key)}
		}
		results = append(results, res)
	}

	c.logger.Debug().
		Str("func", "httpRemoteClient.bulk").
		Str("operation", string(op)).
		Str("entity_type", string(entityType)).
		Int("items", len(items)).
		Msg("bulk call finished")

	return results, nil
}

func (c *httpRemoteClient) Fetch(ctx context.Context, ref models.EntityRef) (*models.EntitySnapshot, error) {
	var entity remoteEntity

	resp, err := c.request(ctx).
		SetQueryParam("by", "key").
		SetResult(&entity).
		Get(collectionPath(ref.Type) + "/" + url.PathEscape(ref.Key))
	if err != nil {
		return nil, mapTransportError("fetch request", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, err
	}

	snap := entity.snapshot(ref.Type)
	if snap.Key == "" {
		snap.Key = ref.Key
	}
	return &snap, nil
}
