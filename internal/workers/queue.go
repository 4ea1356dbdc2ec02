// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package workers

import (
	"container/heap"
	"sort"
	"sync"
	"time"

	"github.com/MKhiriev/go-catalog-sync/models"
)

type itemHeap []models.QueueItem

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].Seq < h[j].Seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(models.QueueItem)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// PriorityQueue holds queue items ordered by (Priority, Seq). A change id is
// present at most once across queued and in-flight items, and at most one
// change per entity is in flight: later changes of a busy entity wait until
// it is released.
type PriorityQueue struct {
	mu        sync.Mutex
	items     itemHeap
	queued    map[string]struct{}
	inFlight  map[string]models.QueueItem
	busy      map[models.EntityRef]struct{}
	cancelled map[string]struct{}
	seq       uint64
	closed    bool

	signal chan struct{}
}

// NewPriorityQueue creates an empty queue.
func NewPriorityQueue() *PriorityQueue {
	return &PriorityQueue{
		queued:    make(map[string]struct{}),
		inFlight:  make(map[string]models.QueueItem),
		busy:      make(map[models.EntityRef]struct{}),
		cancelled: make(map[string]struct{}),
		signal:    make(chan struct{}, 1),
	}
}

func (q *PriorityQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Wait returns a channel that receives after items were pushed.
func (q *PriorityQueue) Wait() <-chan struct{} {
	return q.signal
}

// Push adds new items and returns how many were accepted. Duplicates of a
// queued or in-flight change and items of cancelled batches are dropped.
func (q *PriorityQueue) Push(items ...models.QueueItem) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0
	}

	added := 0
	now := time.Now()
	for _, it := range items {
		if q.dropLocked(it) {
			continue
		}
		q.seq++
		it.Seq = q.seq
		it.State = models.QueueQueued
		if it.EnqueuedAt.IsZero() {
			it.EnqueuedAt = now
		}
		heap.Push(&q.items, it)
		q.queued[it.ChangeID] = struct{}{}
		added++
	}
	if added > 0 {
		q.notify()
	}
	return added
}

func (q *PriorityQueue) dropLocked(it models.QueueItem) bool {
	if _, ok := q.queued[it.ChangeID]; ok {
		return true
	}
	if _, ok := q.inFlight[it.ChangeID]; ok {
		return true
	}
	if it.BatchID != "" {
		if _, ok := q.cancelled[it.BatchID]; ok {
			return true
		}
	}
	return false
}

func (q *PriorityQueue) busyLocked(it models.QueueItem) bool {
	_, ok := q.busy[it.EntityRef]
	return ok
}

func (q *PriorityQueue) claimLocked(it models.QueueItem) {
	delete(q.queued, it.ChangeID)
	it.State = models.QueueInFlight
	q.inFlight[it.ChangeID] = it
	q.busy[it.EntityRef] = struct{}{}
}

// releaseLocked drops changeID from the in-flight set and frees its entity.
// Waiting workers are woken when queued items remain.
func (q *PriorityQueue) releaseLocked(changeID string) {
	it, ok := q.inFlight[changeID]
	if !ok {
		return
	}
	delete(q.inFlight, changeID)
	delete(q.busy, it.EntityRef)
	if q.items.Len() > 0 {
		q.notify()
	}
}

// PopReady removes the highest-priority item whose NotBefore has passed and
// whose entity is not in flight, and marks it in flight. When nothing is
// ready it returns the time until the earliest delayed item becomes ready,
// zero when no item is delayed.
func (q *PriorityQueue) PopReady(now time.Time) (models.QueueItem, time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var (
		deferred []models.QueueItem
		found    models.QueueItem
		ok       bool
	)
	for q.items.Len() > 0 {
		it := heap.Pop(&q.items).(models.QueueItem)
		if it.Ready(now) && !q.busyLocked(it) {
			found, ok = it, true
			break
		}
		deferred = append(deferred, it)
	}

	var wait time.Duration
	for _, it := range deferred {
		heap.Push(&q.items, it)
		if d := it.NotBefore.Sub(now); !ok && d > 0 && (wait == 0 || d < wait) {
			wait = d
		}
	}

	if !ok {
		return models.QueueItem{}, wait, false
	}

	q.claimLocked(found)
	found.State = models.QueueInFlight
	if q.items.Len() > 0 {
		q.notify()
	}
	return found, 0, true
}

// DrainCompatible removes up to limit ready items that can share a remote
// operation with head: same batch, priority, change type and entity type.
// Only the earliest queued item of an entity is considered, and not while
// that entity is in flight.
func (q *PriorityQueue) DrainCompatible(head models.QueueItem, limit int, now time.Time) []models.QueueItem {
	if limit <= 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	var (
		out   []models.QueueItem
		keep  itemHeap
		seen  = make(map[models.EntityRef]struct{})
	)
	// scan in priority order; a sorted slice is still a valid heap
	sort.Sort(q.items)
	for _, it := range q.items {
		_, later := seen[it.EntityRef]
		seen[it.EntityRef] = struct{}{}
		if len(out) < limit && it.Ready(now) && !later && !q.busyLocked(it) &&
			it.BatchID == head.BatchID &&
			it.Priority == head.Priority &&
			it.ChangeType == head.ChangeType &&
			it.EntityRef.Type == head.EntityRef.Type {
			out = append(out, it)
			continue
		}
		keep = append(keep, it)
	}
	if len(out) == 0 {
		return nil
	}

	q.items = keep
	heap.Init(&q.items)
	for i := range out {
		q.claimLocked(out[i])
		out[i].State = models.QueueInFlight
	}
	return out
}

// Requeue puts an in-flight item back with its NotBefore delay, keeping its
// original Seq. Items of cancelled batches are dropped and false returned.
func (q *PriorityQueue) Requeue(it models.QueueItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.releaseLocked(it.ChangeID)
	if q.closed {
		return false
	}
	if _, ok := q.queued[it.ChangeID]; ok {
		return true
	}
	if it.BatchID != "" {
		if _, ok := q.cancelled[it.BatchID]; ok {
			return false
		}
	}

	it.State = models.QueueQueued
	heap.Push(&q.items, it)
	q.queued[it.ChangeID] = struct{}{}
	q.notify()
	return true
}

// Done releases an in-flight item.
func (q *PriorityQueue) Done(changeID string) {
	q.mu.Lock()
	q.releaseLocked(changeID)
	q.mu.Unlock()
}

// CancelBatch discards every queued item of batchID and rejects later pushes
// for it. It returns the discarded change ids. In-flight items finish.
func (q *PriorityQueue) CancelBatch(batchID string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.cancelled[batchID] = struct{}{}

	var (
		discarded []string
		keep      itemHeap
	)
	for _, it := range q.items {
		if it.BatchID == batchID {
			discarded = append(discarded, it.ChangeID)
			delete(q.queued, it.ChangeID)
			continue
		}
		keep = append(keep, it)
	}
	q.items = keep
	heap.Init(&q.items)
	return discarded
}

// Cancelled reports whether batchID was cancelled.
func (q *PriorityQueue) Cancelled(batchID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.cancelled[batchID]
	return ok
}

// Len returns the number of queued items, delayed ones included.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// InFlight returns the number of items being processed.
func (q *PriorityQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}

// Close rejects further pushes and drops queued items.
func (q *PriorityQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.items = nil
	clear(q.queued)
	q.notify()
}
