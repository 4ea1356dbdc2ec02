// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package workers

import (
	"context"
	"time"

	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/models"
)

// BatchStarter opens sync batches. It is implemented by the orchestrator.
type BatchStarter interface {
	Start(ctx context.Context, req models.StartSyncRequest) (string, error)
}

// PullJob starts an incremental pull batch on a ticker. Each run asks only
// for entities updated since the previous successful start.
type PullJob struct {
	starter  BatchStarter
	interval time.Duration
	now      func() time.Time

	lastStart *time.Time
	logger    *logger.Logger
}

// NewPullJob creates a job firing every interval. A non-positive interval
// defaults to 5 minutes.
func NewPullJob(starter BatchStarter, interval time.Duration, log *logger.Logger) *PullJob {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &PullJob{starter: starter, interval: interval, now: time.Now, logger: log}
}

// Run blocks until ctx is cancelled.
func (j *PullJob) Run(ctx context.Context) error {
	t := time.NewTicker(j.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			j.tick(ctx)
		}
	}
}

func (j *PullJob) tick(ctx context.Context) {
	startedAt := j.now().UTC()
	req := models.StartSyncRequest{
		Direction:    models.DirectionPull,
		Source:       models.SourceRemote,
		UpdatedSince: j.lastStart,
	}

	batchID, err := j.starter.Start(ctx, req)
	if err != nil {
		j.logger.Err(err).Str("func", "PullJob.tick").Msg("failed to start periodic pull")
		return
	}

	j.lastStart = &startedAt
	j.logger.Info().
		Str("func", "PullJob.tick").
		Str("batch_id", batchID).
		Msg("periodic pull started")
}
