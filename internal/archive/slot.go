package archive

import (
	"context"

	"golang.org/x/sync/semaphore"

	"archivist/internal/metrics"
)

// Slot is a process-wide mutual-exclusion token. At most one run holds a
// given slot at a time; waiters queue until it is released or their context
// ends.
type Slot interface {
	Acquire(ctx context.Context) error
	Release()
	Name() string
}

type semaphoreSlot struct {
	name string
	sem  *semaphore.Weighted
}

// NewSlot returns a slot backed by a weighted semaphore of size one.
func NewSlot(name string) Slot {
	return &semaphoreSlot{name: name, sem: semaphore.NewWeighted(1)}
}

func (s *semaphoreSlot) Acquire(ctx context.Context) error {
	waiting := metrics.SlotWaiters.WithLabelValues(s.name)
	waiting.Inc()
	defer waiting.Dec()
	return s.sem.Acquire(ctx, 1)
}

func (s *semaphoreSlot) Release() { s.sem.Release(1) }

func (s *semaphoreSlot) Name() string { return s.name }

// Slots is the pair shared by every run in the process: the device serves one
// download at a time, and processing is CPU bound.
type Slots struct {
	Download   Slot
	Processing Slot
}

// NewSlots returns a fresh pair.
func NewSlots() *Slots {
	return &Slots{Download: NewSlot("download"), Processing: NewSlot("processing")}
}
