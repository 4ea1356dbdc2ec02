// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package validators checks snapshots and review requests before they reach
// staging. Failures are returned as the sentinels in errors.go and wrapped
// into service.ErrValidation by callers.
package validators

import "context"

// Validator checks a value, optionally only the named fields of it.
// Unsupported types and unknown field names are errors.
type Validator interface {
	Validate(ctx context.Context, value any, fields ...string) error
}
