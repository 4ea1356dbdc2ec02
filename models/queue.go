// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import (
	"fmt"
	"time"
)

// Priority orders queue items; a lower value is served first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
	PriorityBatch
)

var priorityNames = map[Priority]string{
	PriorityCritical: "critical",
	PriorityHigh:     "high",
	PriorityNormal:   "normal",
	PriorityLow:      "low",
	PriorityBatch:    "batch",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Valid reports whether p is one of the defined tiers.
func (p Priority) Valid() bool {
	_, ok := priorityNames[p]
	return ok
}

// ParsePriority converts a tier name into a Priority.
func ParsePriority(s string) (Priority, error) {
	for p, name := range priorityNames {
		if name == s {
			return p, nil
		}
	}
	return PriorityNormal, fmt.Errorf("unknown priority %q", s)
}

// QueueItemState is the scheduler state of a queue item.
type QueueItemState string

const (
	QueueQueued         QueueItemState = "queued"
	QueueInFlight       QueueItemState = "in_flight"
	QueueSucceeded      QueueItemState = "succeeded"
	QueueFailed         QueueItemState = "failed"
	QueueRetryScheduled QueueItemState = "retry_scheduled"
)

// QueueItem is the ephemeral scheduler entry for one approved staged change.
// Items are ordered by (Priority, Seq); Seq is a monotonic enqueue counter.
type QueueItem struct {
	ChangeID   string
	BatchID    string
	EntityRef  EntityRef
	ChangeType ChangeType
	Priority   Priority
	Seq        uint64
	EnqueuedAt time.Time
	Attempt    int
	State      QueueItemState
	NotBefore  time.Time
}

// Ready reports whether the item may be dequeued at now.
func (q QueueItem) Ready(now time.Time) bool {
	return !now.Before(q.NotBefore)
}
