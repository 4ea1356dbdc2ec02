// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"errors"
	"fmt"

	"github.com/MKhiriev/go-catalog-sync/models"
)

var (
	// ErrValidation is returned for malformed snapshots and requests. It is
	// never retried.
	ErrValidation = errors.New("validation failed")

	// ErrStaleBase means the entity moved past the version a change was
	// diffed against; the change has to be staged again.
	ErrStaleBase = errors.New("stale base version")

	// ErrInvalidState is returned for an illegal status transition.
	ErrInvalidState = errors.New("invalid state")

	ErrChangeNotFound = errors.New("staged change not found")
	ErrBatchNotFound  = errors.New("sync batch not found")

	// ErrNoChanges is returned by Stage when the proposed snapshot equals
	// the latest version.
	ErrNoChanges = errors.New("no changes against latest version")

	// ErrManualResolutionRequired is returned when a conflict cannot be
	// settled by the requested strategy.
	ErrManualResolutionRequired = errors.New("manual resolution required")

	ErrUnknownSource         = errors.New("no producer configured for source")
	ErrVersionIsNotSpecified = errors.New("app version is not specified")
)

// StaleBaseError carries the versions involved in a stale-base rejection.
type StaleBaseError struct {
	Ref      models.EntityRef
	Expected int64
	Actual   int64
}

func (e *StaleBaseError) Error() string {
	return fmt.Sprintf("%s: %s is at version %d, change was based on %d", ErrStaleBase, e.Ref, e.Actual, e.Expected)
}

func (e *StaleBaseError) Unwrap() error {
	return ErrStaleBase
}
