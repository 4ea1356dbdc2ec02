// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package validators

import "errors"

var (
	ErrUnsupportedType = errors.New("unsupported type for validation")
	ErrUnknownField    = errors.New("unknown field for validation")

	ErrInvalidEntityType = errors.New("invalid entity type")
	ErrEmptyEntityKey    = errors.New("entity key is required")
	ErrInvalidSource     = errors.New("invalid source system")
	ErrEmptyFields       = errors.New("fields are required for a live entity")
	ErrInvalidDirection  = errors.New("invalid sync direction")
	ErrDirectionSource   = errors.New("source does not match direction")
	ErrEmptyReviewer     = errors.New("reviewer is required")
	ErrEmptyIDs          = errors.New("IDs list cannot be empty")
	ErrInvalidStrategy   = errors.New("invalid resolution strategy")
	ErrEmptyReason       = errors.New("reason is required")
	ErrInvalidDecision   = errors.New("invalid rule decision")
	ErrInvalidPattern    = errors.New("invalid field pattern")
	ErrNegativeDelta     = errors.New("delta bound cannot be negative")
)
