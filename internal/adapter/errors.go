// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package adapter

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTransientRemote marks failures that may succeed when retried:
	// network errors, timeouts and 5xx responses.
	ErrTransientRemote = errors.New("transient remote error")

	// ErrPermanentRemote marks 4xx responses other than 429. Retrying will
	// not help.
	ErrPermanentRemote = errors.New("permanent remote error")

	// ErrNotFound is wrapped together with ErrPermanentRemote on 404.
	ErrNotFound = errors.New("remote entity not found")

	// ErrMalformedFeed is returned when a supplier extract cannot be parsed.
	ErrMalformedFeed = errors.New("malformed feed")
)

// RateLimitedError is returned when the platform answers 429. RetryAfter is
// how long the platform asked the caller to wait.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by remote, retry after %s", e.RetryAfter)
}

// AsRateLimited unwraps err into a *RateLimitedError.
func AsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
