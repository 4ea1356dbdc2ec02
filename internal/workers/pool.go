// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package workers

import (
	"context"
	"sync"
	"time"

	"github.com/MKhiriev/go-catalog-sync/internal/adapter"
	"github.com/MKhiriev/go-catalog-sync/internal/config"
	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/models"
	"github.com/MKhiriev/go-catalog-sync/pkg/metrics"
)

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers  int `json:"workers"`
	Depth    int `json:"depth"`
	InFlight int `json:"in_flight"`
}

// Pool is the autoscaling set of goroutines draining the priority queue.
//
// Every SampleInterval the pool compares queue depth per worker with the
// water marks: above HighWater it grows by one worker up to Max, below
// LowWater for ShrinkAfter in a row it retires one down to Min.
type Pool struct {
	cfg   config.Workers
	queue *PriorityQueue
	exec  *executor

	mu         sync.Mutex
	stops      []chan struct{}
	lowSamples int
	running    bool
	wg         sync.WaitGroup

	logger *logger.Logger
}

// PoolDeps are the collaborators of the pool.
type PoolDeps struct {
	Applier   Applier
	Client    adapter.RemoteClient
	Limiter   Limiter
	Optimizer Optimizer
}

// NewPool builds an idle pool; Run starts it.
func NewPool(cfg config.Workers, deps PoolDeps, log *logger.Logger) *Pool {
	if cfg.Min < 1 {
		cfg.Min = 2
	}
	if cfg.Max < cfg.Min {
		cfg.Max = max(cfg.Min, 10)
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.HighWater <= 0 {
		cfg.HighWater = 100
	}

	queue := NewPriorityQueue()
	return &Pool{
		cfg:   cfg,
		queue: queue,
		exec: &executor{
			applier:     deps.Applier,
			client:      deps.Client,
			limiter:     deps.Limiter,
			optimizer:   deps.Optimizer,
			queue:       queue,
			policy:      NewRetryPolicy(cfg),
			callTimeout: cfg.CallTimeout,
			now:         time.Now,
		},
		logger: log,
	}
}

// Enqueue schedules approved changes. Changes already queued or in flight
// are ignored.
func (p *Pool) Enqueue(items ...models.QueueItem) int {
	return p.queue.Push(items...)
}

// CancelBatch drops the queued items of batchID and returns their change ids.
func (p *Pool) CancelBatch(batchID string) []string {
	return p.queue.CancelBatch(batchID)
}

// Stats reports workers, queue depth and in-flight items.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	workers := len(p.stops)
	p.mu.Unlock()
	return Stats{Workers: workers, Depth: p.queue.Len(), InFlight: p.queue.InFlight()}
}

// Running reports whether Run is active.
func (p *Pool) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Run starts Min workers and the autoscaler and blocks until ctx is done.
// In-flight items finish before Run returns.
func (p *Pool) Run(ctx context.Context) error {
	ctx = p.logger.WithContext(ctx)

	p.mu.Lock()
	p.running = true
	for range p.cfg.Min {
		p.spawnLocked(ctx)
	}
	p.mu.Unlock()

	p.logger.Info().
		Str("func", "Pool.Run").
		Int("workers", p.cfg.Min).
		Msg("worker pool started")

	ticker := time.NewTicker(p.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.running = false
			p.mu.Unlock()
			p.queue.Close()
			p.wg.Wait()
			p.logger.Info().Str("func", "Pool.Run").Msg("worker pool stopped")
			return nil
		case <-ticker.C:
			p.scale(ctx)
		}
	}
}

// scale applies one autoscaler sample.
func (p *Pool) scale(ctx context.Context) {
	depth := p.queue.Len()

	p.mu.Lock()
	defer p.mu.Unlock()

	workers := len(p.stops)
	perWorker := float64(depth) / float64(max(workers, 1))

	switch {
	case perWorker > float64(p.cfg.HighWater) && workers < p.cfg.Max:
		p.lowSamples = 0
		p.spawnLocked(ctx)
		p.logger.Debug().Str("func", "Pool.scale").Int("depth", depth).Int("workers", workers+1).Msg("scaled up")
	case perWorker < float64(p.cfg.LowWater) && workers > p.cfg.Min:
		p.lowSamples++
		if p.lowSamples >= p.shrinkSamples() {
			p.lowSamples = 0
			p.retireLocked()
			p.logger.Debug().Str("func", "Pool.scale").Int("depth", depth).Int("workers", workers-1).Msg("scaled down")
		}
	default:
		p.lowSamples = 0
	}

	metrics.QueueDepth.Set(float64(depth))
	metrics.Workers.Set(float64(len(p.stops)))
}

func (p *Pool) shrinkSamples() int {
	n := int(p.cfg.ShrinkAfter / p.cfg.SampleInterval)
	return max(n, 1)
}

func (p *Pool) spawnLocked(ctx context.Context) {
	stop := make(chan struct{})
	p.stops = append(p.stops, stop)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.work(ctx, stop)
	}()
}

// retireLocked stops the newest worker after its current item.
func (p *Pool) retireLocked() {
	last := len(p.stops) - 1
	close(p.stops[last])
	p.stops = p.stops[:last]
}

func (p *Pool) work(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		default:
		}

		item, wait, ok := p.queue.PopReady(p.exec.now())
		if !ok {
			var timer <-chan time.Time
			if wait > 0 {
				timer = time.After(wait)
			}
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-p.queue.Wait():
			case <-timer:
			}
			continue
		}

		group := append([]models.QueueItem{item}, p.queue.DrainCompatible(item, p.drainLimit(), p.exec.now())...)
		p.exec.process(ctx, group)
	}
}

// drainLimit caps how many extra items join a dequeued one: one full bulk
// call worth.
func (p *Pool) drainLimit() int {
	return p.exec.optimizer.MaxBatchSize() - 1
}
