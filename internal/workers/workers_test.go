// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/models"
)

// mockWorker counts runs and blocks until its context is cancelled.
type mockWorker struct {
	runCount atomic.Int32
	err      error
}

func (m *mockWorker) Run(ctx context.Context) error {
	m.runCount.Add(1)
	if m.err != nil {
		return m.err
	}
	<-ctx.Done()
	return nil
}

func TestWorkers_Run_AllWorkersAreCalled(t *testing.T) {
	w1, w2, w3 := &mockWorker{}, &mockWorker{}, &mockWorker{}
	ws := NewWorkers(w1, w2, w3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ws.Run(ctx) }()

	require.Eventually(t, func() bool {
		return w1.runCount.Load() == 1 && w2.runCount.Load() == 1 && w3.runCount.Load() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWorkers_Run_ErrorStopsOthers(t *testing.T) {
	boom := errors.New("boom")
	blocking := &mockWorker{}
	ws := NewWorkers(blocking, &mockWorker{err: boom})

	err := ws.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), blocking.runCount.Load())
}

func TestWorkers_Run_Empty(t *testing.T) {
	assert.NoError(t, NewWorkers().Run(context.Background()))
	assert.NoError(t, (&Workers{}).Run(context.Background()))
}

func TestWorkers_SkipsNil(t *testing.T) {
	ws := NewWorkers(nil, &mockWorker{err: errors.New("x")}, nil)
	assert.Len(t, ws.workers, 1)
}

// ── PullJob ─────────────────────────────────────────────────────────────────

type recordingStarter struct {
	calls chan time.Time
	fail  atomic.Bool
}

func (s *recordingStarter) Start(_ context.Context, req models.StartSyncRequest) (string, error) {
	if s.fail.Load() {
		return "", errors.New("store down")
	}
	var since time.Time
	if req.UpdatedSince != nil {
		since = *req.UpdatedSince
	}
	select {
	case s.calls <- since:
	default:
	}
	return "b1", nil
}

func TestPullJob_StartsIncrementalPulls(t *testing.T) {
	starter := &recordingStarter{calls: make(chan time.Time, 10)}
	job := NewPullJob(starter, 10*time.Millisecond, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = job.Run(ctx) }()

	first := <-starter.calls
	assert.True(t, first.IsZero(), "first pull has no lower bound")

	second := <-starter.calls
	assert.False(t, second.IsZero(), "later pulls are incremental")
}
