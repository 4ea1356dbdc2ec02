// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"math"

	"github.com/MKhiriev/go-catalog-sync/internal/config"
	"github.com/MKhiriev/go-catalog-sync/models"
)

// ConflictResult is the outcome of a three-way field comparison.
type ConflictResult struct {
	// Fields maps every conflicting field to its severity.
	Fields       map[string]models.ConflictSeverity
	HasConflicts bool
	// AdoptRemote lists fields only the remote side moved.
	AdoptRemote []string
	// Convergent lists fields both sides moved to the same value.
	Convergent []string
}

// Details renders the conflicts sorted by field name.
func (r ConflictResult) Details(local, remote map[string]any) []models.ConflictDetail {
	if !r.HasConflicts {
		return nil
	}
	var out []models.ConflictDetail
	for _, f := range fieldUnion(local, remote) {
		sev, ok := r.Fields[f]
		if !ok {
			continue
		}
		out = append(out, models.ConflictDetail{
			Field:       f,
			LocalValue:  local[f],
			RemoteValue: remote[f],
			Severity:    sev,
		})
	}
	return out
}

type conflictDetector struct {
	priceThreshold     float64
	inventoryThreshold float64

	price     map[string]struct{}
	inventory map[string]struct{}
	text      map[string]struct{}
}

func NewConflictDetector(cfg config.Conflict) ConflictDetector {
	d := &conflictDetector{
		priceThreshold:     cfg.PriceThreshold,
		inventoryThreshold: cfg.InventoryThreshold,
		price:              toSet(cfg.PriceFields),
		inventory:          toSet(cfg.InventoryFields),
		text:               toSet(cfg.TextFields),
	}
	if d.priceThreshold <= 0 {
		d.priceThreshold = 0.20
	}
	if d.inventoryThreshold <= 0 {
		d.inventoryThreshold = 0.20
	}
	return d
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, it := range items {
		out[it] = struct{}{}
	}
	return out
}

// Classify compares every field present in local or remote against base.
// A field conflicts only when both sides moved away from base and
// disagree. The result does not depend on which side is called local.
func (d *conflictDetector) Classify(base, local, remote map[string]any) ConflictResult {
	res := ConflictResult{Fields: map[string]models.ConflictSeverity{}}

	for _, f := range fieldUnion(local, remote) {
		remoteMoved := !fieldEqual(remote, base, f)
		localMoved := !fieldEqual(local, base, f)

		switch {
		case !remoteMoved:
		case !localMoved:
			res.AdoptRemote = append(res.AdoptRemote, f)
		case fieldEqual(local, remote, f):
			res.Convergent = append(res.Convergent, f)
		default:
			res.Fields[f] = d.severity(f, base[f], local[f], remote[f])
			res.HasConflicts = true
		}
	}

	return res
}

func (d *conflictDetector) severity(field string, base, local, remote any) models.ConflictSeverity {
	if _, ok := d.text[field]; ok {
		return models.SeverityLow
	}

	threshold := 0.0
	if _, ok := d.price[field]; ok {
		threshold = d.priceThreshold
	} else if _, ok := d.inventory[field]; ok {
		threshold = d.inventoryThreshold
	} else {
		return models.SeverityMedium
	}

	delta, ok := conflictDelta(base, local, remote)
	if ok && delta >= threshold {
		return models.SeverityHigh
	}
	return models.SeverityMedium
}

// conflictDelta measures how far the two sides moved. Against a numeric
// non-zero base it is the larger relative move of either side, otherwise
// the relative gap between the sides.
func conflictDelta(base, local, remote any) (float64, bool) {
	if dl, ok := relativeDelta(base, local); ok {
		if dr, ok := relativeDelta(base, remote); ok {
			return math.Max(dl, dr), true
		}
	}

	l, lok := asDecimal(local)
	r, rok := asDecimal(remote)
	if !lok || !rok {
		return 0, false
	}
	denom := l.Abs()
	if r.Abs().GreaterThan(denom) {
		denom = r.Abs()
	}
	if denom.IsZero() {
		return 0, true
	}
	return l.Sub(r).Abs().Div(denom).InexactFloat64(), true
}
