// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/MKhiriev/go-catalog-sync/internal/config"
	"github.com/MKhiriev/go-catalog-sync/models"
)

type side int

const (
	sideLocal side = iota
	sideRemote
)

// conflictResolver settles the open conflicts of a staged change with one
// of the fixed resolution strategies.
type conflictResolver struct {
	rank map[models.SourceSystem]int
	now  func() time.Time
}

func newConflictResolver(cfg config.Conflict) *conflictResolver {
	order := cfg.SourcePriority
	if len(order) == 0 {
		order = []string{"remote", "supplier", "inventory", "local"}
	}
	rank := make(map[models.SourceSystem]int, len(order))
	for i, s := range order {
		rank[models.SourceSystem(s)] = i
	}
	return &conflictResolver{rank: rank, now: time.Now}
}

func (r *conflictResolver) sourceRank(s models.SourceSystem) int {
	if i, ok := r.rank[s]; ok {
		return i
	}
	return len(r.rank)
}

// sources returns the writers behind the local and the remote side of
// the change.
func sources(change models.StagedChange) (local, remote models.SourceSystem) {
	if change.Direction == models.DirectionPull {
		return models.SourceLocal, change.Proposed.Source
	}
	return change.Proposed.Source, models.SourceRemote
}

// resolve returns change with every unresolved conflict settled and the
// proposed snapshot and diff rewritten accordingly. other is the snapshot
// of the side that is not proposed; only the timestamp strategy needs it.
func (r *conflictResolver) resolve(change models.StagedChange, req models.ResolveRequest, other *models.EntitySnapshot) (models.StagedChange, error) {
	out := change.Clone()
	if out.Proposed.Fields == nil {
		out.Proposed.Fields = map[string]any{}
	}

	winner, err := r.winner(out, req.Strategy, other)
	if err != nil {
		return models.StagedChange{}, err
	}

	strategy := req.Strategy
	resolver := req.Resolver
	for i, cd := range out.Conflicts {
		if cd.Resolved() {
			continue
		}

		var value any
		switch strategy {
		case models.ResolveManual:
			v, ok := req.Values[cd.Field]
			if !ok {
				return models.StagedChange{}, fmt.Errorf("%w: no value for %q", ErrManualResolutionRequired, cd.Field)
			}
			value = v
		case models.ResolveMergeFields:
			value = mergeValues(cd, winner)
		default:
			value = pick(cd, winner)
		}

		if value == nil {
			delete(out.Proposed.Fields, cd.Field)
		} else {
			out.Proposed.Fields[cd.Field] = value
		}
		out.Conflicts[i].Resolution = &strategy
		out.Conflicts[i].ResolvedValue = value
		out.Conflicts[i].ResolvedBy = &resolver
	}

	if out.ChangeType != models.ChangeDelete {
		out.Diff = diffFields(snapshotFields(out.Current), out.Proposed.Fields)
	}
	out.AutoApproved = false
	out.UpdatedAt = r.now().UTC()
	return out, nil
}

func (r *conflictResolver) winner(change models.StagedChange, strategy models.ResolutionStrategy, other *models.EntitySnapshot) (side, error) {
	switch strategy {
	case models.ResolvePriority, models.ResolveMergeFields:
		local, remote := sources(change)
		if r.sourceRank(remote) <= r.sourceRank(local) {
			return sideRemote, nil
		}
		return sideLocal, nil

	case models.ResolveTimestamp:
		if other == nil {
			return 0, fmt.Errorf("%w: other side of %s is not observable", ErrManualResolutionRequired, change.EntityRef)
		}
		proposedSide, otherSide := sideLocal, sideRemote
		if change.Direction == models.DirectionPull {
			proposedSide, otherSide = sideRemote, sideLocal
		}
		if other.ObservedAt.After(change.Proposed.ObservedAt) {
			return otherSide, nil
		}
		return proposedSide, nil

	case models.ResolveManual:
		return sideLocal, nil

	default:
		return 0, fmt.Errorf("%w: unknown strategy %q", ErrValidation, strategy)
	}
}

func pick(cd models.ConflictDetail, s side) any {
	if s == sideRemote {
		return cd.RemoteValue
	}
	return cd.LocalValue
}

// mergeValues keeps data from both sides where it can: lists are united,
// a value missing on one side is taken from the other. Anything else goes
// to the winning side.
func mergeValues(cd models.ConflictDetail, winner side) any {
	if cd.LocalValue == nil {
		return cd.RemoteValue
	}
	if cd.RemoteValue == nil {
		return cd.LocalValue
	}

	first, second := pick(cd, winner), pick(cd, 1-winner)
	a, aok := first.([]any)
	b, bok := second.([]any)
	if !aok || !bok {
		return first
	}

	merged := slices.Clone(a)
	for _, v := range b {
		if !slices.ContainsFunc(merged, func(m any) bool { return reflect.DeepEqual(m, v) }) {
			merged = append(merged, v)
		}
	}
	return merged
}
