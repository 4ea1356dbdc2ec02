// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package workers

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/MKhiriev/go-catalog-sync/internal/adapter"
	"github.com/MKhiriev/go-catalog-sync/internal/config"
	"github.com/MKhiriev/go-catalog-sync/internal/ratelimit"
)

const defaultJitterPercent = 10

// RetryPolicy is the single exponential backoff used for remote calls. Queue
// items are re-pushed with Delay(attempt); one-shot calls use Do.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	JitterPercent uint64
}

// NewRetryPolicy builds the policy from the workers configuration.
func NewRetryPolicy(cfg config.Workers) RetryPolicy {
	p := RetryPolicy{
		MaxAttempts:   cfg.RetryMaxAttempts,
		BaseDelay:     cfg.RetryBaseDelay,
		MaxDelay:      cfg.RetryMaxDelay,
		JitterPercent: defaultJitterPercent,
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 5
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

func (p RetryPolicy) backoff() retry.Backoff {
	b := retry.NewExponential(p.BaseDelay)
	if p.JitterPercent > 0 {
		b = retry.WithJitterPercent(p.JitterPercent, b)
	}
	return retry.WithCappedDuration(p.MaxDelay, b)
}

// Delay returns the backoff before retry number attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	b := p.backoff()
	var d time.Duration
	for range max(attempt, 1) {
		d, _ = b.Next()
	}
	return d
}

// Exhausted reports whether attempt used up the budget.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}

// Do runs fn until it succeeds, fails with a non-retryable error or the
// attempts run out.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(uint64(p.MaxAttempts-1), p.backoff())
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && Retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// Retryable reports whether err is worth another attempt: rate limiting,
// transient remote failures, call timeouts and rate limiter timeouts.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := adapter.AsRateLimited(err); ok {
		return true
	}
	if errors.Is(err, adapter.ErrPermanentRemote) {
		return false
	}
	return errors.Is(err, adapter.ErrTransientRemote) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ratelimit.ErrAcquireTimeout)
}
