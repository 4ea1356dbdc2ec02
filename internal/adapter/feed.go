// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package adapter

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/models"
)

const defaultFeedPageSize = 100

// Reserved feed columns. Every other column becomes an entity field.
const (
	feedColumnType    = "entity_type"
	feedColumnKey     = "key"
	feedColumnDeleted = "deleted"
)

// feedProducer reads supplier and inventory CSV exports. The first row holds
// column names; the cursor is the number of data rows already consumed.
type feedProducer struct {
	path    string
	charset string
	source  models.SourceSystem

	logger *logger.Logger
}

// NewFeedProducer constructs a [SnapshotProducer] over the CSV file at path.
// charset "windows-1252" decodes legacy exports; anything else is read as
// UTF-8.
func NewFeedProducer(path, charset string, source models.SourceSystem, log *logger.Logger) SnapshotProducer {
	return &feedProducer{
		path:    path,
		charset: strings.ToLower(strings.TrimSpace(charset)),
		source:  source,
		logger:  log,
	}
}

func (f *feedProducer) reader(file io.Reader) io.Reader {
	switch f.charset {
	case "windows-1252", "cp1252", "win1252":
		return transform.NewReader(file, charmap.Windows1252.NewDecoder())
	default:
		return file
	}
}

// Next re-opens the file and skips cursor rows. Feeds are small exports, so
// the re-read keeps the producer stateless between pages.
func (f *feedProducer) Next(ctx context.Context, filter models.SnapshotFilter, cursor string) (Page, error) {
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return Page{}, fmt.Errorf("%w: bad cursor %q", ErrMalformedFeed, cursor)
		}
		offset = n
	}

	limit := filter.PageSize
	if limit <= 0 {
		limit = defaultFeedPageSize
	}

	file, err := os.Open(f.path)
	if err != nil {
		return Page{}, fmt.Errorf("open feed: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Page{}, fmt.Errorf("stat feed: %w", err)
	}
	observedAt := info.ModTime().UTC()

	r := csv.NewReader(f.reader(file))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return Page{Done: true}, nil
	}
	if err != nil {
		return Page{}, fmt.Errorf("%w: header: %w", ErrMalformedFeed, err)
	}
	columns, err := feedColumns(header)
	if err != nil {
		return Page{}, err
	}

	page := Page{}
	row := 0
	for {
		if err = ctx.Err(); err != nil {
			return Page{}, err
		}

		record, readErr := r.Read()
		if errors.Is(readErr, io.EOF) {
			page.Done = true
			break
		}
		if readErr != nil {
			return Page{}, fmt.Errorf("%w: row %d: %w", ErrMalformedFeed, row+1, readErr)
		}

		row++
		if row <= offset {
			continue
		}

		snap := f.snapshot(columns, record, observedAt)
		if matchesFilter(snap, filter) {
			page.Snapshots = append(page.Snapshots, snap)
		}

		if row-offset >= limit {
			break
		}
	}

	if !page.Done {
		page.NextCursor = strconv.Itoa(row)
	}

	f.logger.Debug().
		Str("func", "feedProducer.Next").
		Str("source", string(f.source)).
		Int("offset", offset).
		Int("items", len(page.Snapshots)).
		Bool("done", page.Done).
		Msg("read feed page")

	return page, nil
}

func feedColumns(header []string) ([]string, error) {
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	if !slices.Contains(columns, feedColumnKey) {
		return nil, fmt.Errorf("%w: missing %q column", ErrMalformedFeed, feedColumnKey)
	}
	return columns, nil
}

func (f *feedProducer) snapshot(columns, record []string, observedAt time.Time) models.EntitySnapshot {
	snap := models.EntitySnapshot{
		Type:       models.EntityProduct,
		Fields:     make(map[string]any, len(columns)),
		Source:     f.source,
		ObservedAt: observedAt,
	}

	for i, col := range columns {
		if i >= len(record) {
			break
		}
		value := strings.TrimSpace(record[i])
		switch col {
		case feedColumnType:
			if value != "" {
				snap.Type = models.EntityType(strings.ToLower(value))
			}
		case feedColumnKey:
			snap.Key = value
		case feedColumnDeleted:
			snap.Deleted, _ = strconv.ParseBool(value)
		case "":
		default:
			// empty cells mean "not supplied", not "cleared"
			if value != "" {
				snap.Fields[col] = value
			}
		}
	}
	return snap
}

func matchesFilter(snap models.EntitySnapshot, filter models.SnapshotFilter) bool {
	if filter.EntityType != nil && snap.Type != *filter.EntityType {
		return false
	}
	if len(filter.Keys) > 0 && !slices.Contains(filter.Keys, snap.Key) {
		return false
	}
	return true
}
