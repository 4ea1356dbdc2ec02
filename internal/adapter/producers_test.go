// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/MKhiriev/go-catalog-sync/internal/config"
	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/models"
)

// ── HTTP snapshot producer ──────────────────────────────────────────────────

func TestHTTPSnapshotProducer_Paging(t *testing.T) {
	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/collections", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "2026-02-01T00:00:00Z", r.URL.Query().Get("updated_since"))

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("cursor") {
		case "":
			_, _ = w.Write([]byte(`{"items":[{"id":"1","key":"a","fields":{}},{"id":"2","key":"b","fields":{}}],"next_cursor":"p2","has_more":true}`))
		case "p2":
			_, _ = w.Write([]byte(`{"items":[{"id":"3","key":"c","fields":{"title":"C"}}],"has_more":false}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	p, err := NewHTTPSnapshotProducer(config.Adapter{BaseURL: srv.URL, PageSize: 2}, logger.Nop())
	require.NoError(t, err)

	collections := models.EntityCollection
	filter := models.SnapshotFilter{EntityType: &collections, UpdatedSince: &since}

	page, err := p.Next(context.Background(), filter, "")
	require.NoError(t, err)
	assert.False(t, page.Done)
	assert.Equal(t, "p2", page.NextCursor)
	require.Len(t, page.Snapshots, 2)
	assert.Equal(t, models.EntityCollection, page.Snapshots[0].Type)

	page, err = p.Next(context.Background(), filter, page.NextCursor)
	require.NoError(t, err)
	assert.True(t, page.Done)
	require.Len(t, page.Snapshots, 1)
	assert.Equal(t, "C", page.Snapshots[0].Fields["title"])

	_, err = p.Next(context.Background(), filter, "bogus")
	assert.ErrorIs(t, err, ErrPermanentRemote)
}

// ── Feed producer ───────────────────────────────────────────────────────────

func writeFeed(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.csv")
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func TestFeedProducer_Pages(t *testing.T) {
	path := writeFeed(t, []byte("key,entity_type,price,inventory_quantity,deleted\n"+
		"sku-1,product,10.00,5,\n"+
		"sku-2,,12.00,,\n"+
		"summer,collection,,,\n"+
		"sku-3,product,,,true\n"))

	p := NewFeedProducer(path, "", models.SourceSupplier, logger.Nop())

	page, err := p.Next(context.Background(), models.SnapshotFilter{PageSize: 2}, "")
	require.NoError(t, err)
	assert.False(t, page.Done)
	assert.Equal(t, "2", page.NextCursor)
	require.Len(t, page.Snapshots, 2)
	assert.Equal(t, "sku-1", page.Snapshots[0].Key)
	assert.Equal(t, models.SourceSupplier, page.Snapshots[0].Source)
	assert.Equal(t, "10.00", page.Snapshots[0].Fields["price"])
	assert.Equal(t, "5", page.Snapshots[0].Fields["inventory_quantity"])
	assert.Equal(t, models.EntityProduct, page.Snapshots[1].Type)
	assert.NotContains(t, page.Snapshots[1].Fields, "inventory_quantity")

	page, err = p.Next(context.Background(), models.SnapshotFilter{PageSize: 2}, page.NextCursor)
	require.NoError(t, err)
	require.Len(t, page.Snapshots, 2)
	assert.Equal(t, models.EntityCollection, page.Snapshots[0].Type)
	assert.True(t, page.Snapshots[1].Deleted)

	page, err = p.Next(context.Background(), models.SnapshotFilter{PageSize: 2}, "4")
	require.NoError(t, err)
	assert.True(t, page.Done)
	assert.Empty(t, page.Snapshots)
}

func TestFeedProducer_Filter(t *testing.T) {
	path := writeFeed(t, []byte("key,entity_type\nsku-1,product\nsummer,collection\nsku-2,product\n"))
	p := NewFeedProducer(path, "utf-8", models.SourceInventory, logger.Nop())

	products := models.EntityProduct
	page, err := p.Next(context.Background(), models.SnapshotFilter{EntityType: &products, Keys: []string{"sku-2"}}, "")
	require.NoError(t, err)
	assert.True(t, page.Done)
	require.Len(t, page.Snapshots, 1)
	assert.Equal(t, "sku-2", page.Snapshots[0].Key)
}

func TestFeedProducer_Windows1252(t *testing.T) {
	encoded, err := charmap.Windows1252.NewEncoder().String("key,title\nsku-1,Crème brûlée set\n")
	require.NoError(t, err)
	path := writeFeed(t, []byte(encoded))

	p := NewFeedProducer(path, "Windows-1252", models.SourceSupplier, logger.Nop())
	page, err := p.Next(context.Background(), models.SnapshotFilter{}, "")
	require.NoError(t, err)
	require.Len(t, page.Snapshots, 1)
	assert.Equal(t, "Crème brûlée set", page.Snapshots[0].Fields["title"])
}

func TestFeedProducer_Malformed(t *testing.T) {
	p := NewFeedProducer(writeFeed(t, []byte("sku,title\na,b\n")), "", models.SourceSupplier, logger.Nop())
	_, err := p.Next(context.Background(), models.SnapshotFilter{}, "")
	assert.ErrorIs(t, err, ErrMalformedFeed)

	p = NewFeedProducer(writeFeed(t, []byte("key\na\n")), "", models.SourceSupplier, logger.Nop())
	_, err = p.Next(context.Background(), models.SnapshotFilter{}, "x")
	assert.ErrorIs(t, err, ErrMalformedFeed)

	p = NewFeedProducer(filepath.Join(t.TempDir(), "missing.csv"), "", models.SourceSupplier, logger.Nop())
	_, err = p.Next(context.Background(), models.SnapshotFilter{}, "")
	assert.Error(t, err)
}
