// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"encoding/json"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/MKhiriev/go-catalog-sync/models"
)

// asDecimal converts numbers and numeric strings. Feeds deliver prices as
// text ("10.00") while the remote returns numbers, so both must compare.
func asDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt32(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint:
		return decimal.NewFromUint64(uint64(n)), true
	case uint32:
		return decimal.NewFromUint64(uint64(n)), true
	case uint64:
		return decimal.NewFromUint64(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case float64:
		return decimal.NewFromFloat(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return decimal.Decimal{}, false
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil
	default:
		return decimal.Decimal{}, false
	}
}

// valuesEqual compares two optional field values. A missing key never
// equals a present one, even a present nil.
func valuesEqual(a any, aok bool, b any, bok bool) bool {
	if aok != bok {
		return false
	}
	if !aok {
		return true
	}
	if da, ok := asDecimal(a); ok {
		if db, ok := asDecimal(b); ok {
			return da.Equal(db)
		}
	}
	return reflect.DeepEqual(a, b)
}

func fieldEqual(a, b map[string]any, field string) bool {
	av, aok := a[field]
	bv, bok := b[field]
	return valuesEqual(av, aok, bv, bok)
}

// fieldUnion returns the sorted union of the keys of ms.
func fieldUnion(ms ...map[string]any) []string {
	set := make(map[string]struct{})
	for _, m := range ms {
		for k := range m {
			set[k] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(set))
}

// diffFields lists every field whose value differs between base and
// proposed, sorted by field name.
func diffFields(base, proposed map[string]any) []models.FieldDiff {
	var out []models.FieldDiff
	for _, f := range fieldUnion(base, proposed) {
		if fieldEqual(base, proposed, f) {
			continue
		}
		out = append(out, models.FieldDiff{Field: f, Old: base[f], New: proposed[f]})
	}
	return out
}

// relativeDelta returns |b-a|/|a|, or false when either side is not numeric
// or a is zero.
func relativeDelta(a, b any) (float64, bool) {
	da, ok := asDecimal(a)
	if !ok || da.IsZero() {
		return 0, false
	}
	db, ok := asDecimal(b)
	if !ok {
		return 0, false
	}
	return db.Sub(da).Abs().Div(da.Abs()).InexactFloat64(), true
}

func absoluteDelta(a, b any) (float64, bool) {
	da, ok := asDecimal(a)
	if !ok {
		return 0, false
	}
	db, ok := asDecimal(b)
	if !ok {
		return 0, false
	}
	return db.Sub(da).Abs().InexactFloat64(), true
}

func snapshotFields(s *models.EntitySnapshot) map[string]any {
	if s == nil || s.Deleted {
		return nil
	}
	return s.Fields
}
