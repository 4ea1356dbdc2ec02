// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package ratelimit guards the remote platform API with a leaky bucket
// shared by every worker.
//
// Each call adds its cost to the bucket level and the level drains at a
// constant rate. A call whose cost does not fit waits until enough has
// drained. When the platform answers 429 anyway, [LeakyBucket.Penalize]
// fills the bucket and blocks every caller until the server-provided
// Retry-After has elapsed.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MKhiriev/go-catalog-sync/internal/config"
)

var (
	// ErrAcquireTimeout is returned when the cost did not fit within the
	// configured acquire timeout.
	ErrAcquireTimeout = errors.New("rate limiter acquire timeout")

	// ErrCostExceedsCapacity is returned for a cost that can never fit.
	ErrCostExceedsCapacity = errors.New("cost exceeds bucket capacity")
)

// Clock abstracts time so tests can drive the bucket deterministically.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// LeakyBucket is a mutex-guarded leaky bucket. The zero value is not usable;
// construct it with [New].
type LeakyBucket struct {
	capacity       float64
	leakRate       float64
	acquireTimeout time.Duration

	clock   Clock
	observe func(time.Duration)

	mu           sync.Mutex
	level        float64
	lastLeak     time.Time
	blockedUntil time.Time
}

// Option customizes a [LeakyBucket].
type Option func(*LeakyBucket)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(b *LeakyBucket) { b.clock = c }
}

// WithWaitObserver registers a callback receiving the time every successful
// Acquire spent waiting.
func WithWaitObserver(fn func(time.Duration)) Option {
	return func(b *LeakyBucket) { b.observe = fn }
}

// New creates a bucket from cfg. Zero values fall back to a capacity of 40
// tokens drained at 2 tokens per second.
func New(cfg config.RateLimit, opts ...Option) *LeakyBucket {
	b := &LeakyBucket{
		capacity:       float64(cfg.Capacity),
		leakRate:       cfg.LeakRate,
		acquireTimeout: cfg.AcquireTimeout,
		clock:          systemClock{},
	}
	if b.capacity <= 0 {
		b.capacity = 40
	}
	if b.leakRate <= 0 {
		b.leakRate = 2
	}
	for _, opt := range opts {
		opt(b)
	}
	b.lastLeak = b.clock.Now()
	return b
}

// leak drains the bucket up to now. Must be called with mu held.
func (b *LeakyBucket) leak(now time.Time) {
	if now.Before(b.lastLeak) {
		return
	}
	elapsed := now.Sub(b.lastLeak).Seconds()
	b.level -= elapsed * b.leakRate
	if b.level < 0 {
		b.level = 0
	}
	b.lastLeak = now
}

// reserve either takes cost tokens and returns zero, or returns how long the
// caller should wait before trying again.
func (b *LeakyBucket) reserve(cost float64) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	if now.Before(b.blockedUntil) {
		return b.blockedUntil.Sub(now)
	}

	b.leak(now)
	if b.level+cost <= b.capacity {
		b.level += cost
		return 0
	}

	overflow := b.level + cost - b.capacity
	wait := time.Duration(overflow / b.leakRate * float64(time.Second))
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait
}

// Acquire blocks until cost tokens fit into the bucket. It fails with
// [ErrAcquireTimeout] when the wait would outlast the acquire timeout and
// with the context error when ctx is done first.
func (b *LeakyBucket) Acquire(ctx context.Context, cost int) error {
	if cost <= 0 {
		return nil
	}
	if float64(cost) > b.capacity {
		return fmt.Errorf("%w: cost %d, capacity %.0f", ErrCostExceedsCapacity, cost, b.capacity)
	}

	start := b.clock.Now()
	var deadline time.Time
	if b.acquireTimeout > 0 {
		deadline = start.Add(b.acquireTimeout)
	}

	for {
		wait := b.reserve(float64(cost))
		if wait == 0 {
			if b.observe != nil {
				b.observe(b.clock.Now().Sub(start))
			}
			return nil
		}

		if !deadline.IsZero() && b.clock.Now().Add(wait).After(deadline) {
			return fmt.Errorf("%w: needed to wait %s", ErrAcquireTimeout, wait)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.clock.After(wait):
		}
	}
}

// Penalize fills the bucket and blocks all acquisitions for retryAfter.
// A shorter penalty never cuts an active one.
func (b *LeakyBucket) Penalize(retryAfter time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	until := b.clock.Now().Add(retryAfter)
	if until.After(b.blockedUntil) {
		b.blockedUntil = until
	}
	b.level = b.capacity
	b.lastLeak = b.blockedUntil
}

// Level returns the current bucket level after draining.
func (b *LeakyBucket) Level() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leak(b.clock.Now())
	return b.level
}

// BlockedUntil returns the end of the active penalty, zero when none.
func (b *LeakyBucket) BlockedUntil() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.clock.Now().Before(b.blockedUntil) {
		return b.blockedUntil
	}
	return time.Time{}
}
