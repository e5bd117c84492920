// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package lane implements the ring pool + swapper (spec §4.2, component
// C2) and the Lane / ThreadLaneSet types (spec §4.3, component C3).
//
// A Lane owns a fixed pool of R rings. Exactly one ring is "active" at a
// time; the producer writes to the active ring until it reports full,
// then swaps in a fresh ring from the free queue and hands the stale one
// to the drain worker via the submit queue. Rings never migrate between
// lanes.
package lane

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/adatrace/adaerr"
	"code.hybscloud.com/adatrace/event"
	"code.hybscloud.com/adatrace/ring"
)

// Kind distinguishes a lane's event family, mirroring spec §3's
// "one per (thread, kind)" Lane definition.
type Kind int

const (
	KindIndex Kind = iota
	KindDetail
)

// Counters tracks per-lane lifetime statistics (spec §3 Lane entity).
type Counters struct {
	Written         atomix.Uint64
	Dropped         atomix.Uint64
	Swaps           atomix.Uint64
	PoolExhaustions atomix.Uint64
}

// Lane[T] is a pool of R fixed-record rings plus the swap protocol that
// routes full rings to a single consumer (the drain worker) and empty
// rings back to the producer.
//
// Exactly one producer goroutine (the owning thread) calls Write/
// MarkEvent; exactly one consumer goroutine (the drain worker) calls
// TakeRing/ReturnRing.
type Lane[T any] struct {
	rings []*ring.RingBuffer[T]

	// activeIdx holds a small ring-pool index (at most DetailRingCount or
	// IndexRingCount wide). atomix has no Uint32 type, so this reuses
	// Uint64 the way the teacher's own queues reuse it for FAA indices
	// far larger than they need.
	activeIdx atomix.Uint64

	submit *ring.IndexQueue // drain reads full ring indices here
	free   *ring.IndexQueue // producer reads empty ring indices here

	markedEventSeen atomix.Bool // detail lane only; see selective persistence

	Counters Counters
}

// New creates a lane with ringCount rings, each of the given per-ring
// record capacity. ringCount is 4 for an index lane, 2 for a detail
// lane (spec §3).
func New[T any](ringCount, ringCapacity int) *Lane[T] {
	if ringCount < 1 {
		panic("lane: ringCount must be >= 1")
	}
	l := &Lane[T]{
		rings:  make([]*ring.RingBuffer[T], ringCount),
		submit: ring.NewIndexQueue(ringCount),
		free:   ring.NewIndexQueue(ringCount),
	}
	for i := range l.rings {
		l.rings[i] = ring.New[T](ringCapacity)
	}
	// ring 0 starts active; the rest start on the free queue (spec §4.2
	// invariant: every ring index is in exactly one of
	// {active, submit_queue, consumer-held, free_queue}).
	for i := 1; i < ringCount; i++ {
		_ = l.free.Push(uint32(i))
	}
	return l
}

// activeRing returns the current active ring.
func (l *Lane[T]) activeRing() *ring.RingBuffer[T] {
	return l.rings[uint32(l.activeIdx.LoadAcquire())]
}

// GetActiveRingHeader exposes the active ring for read-only inspection
// (e.g. the selective-persistence controller's should_dump check).
func (l *Lane[T]) GetActiveRingHeader() *ring.RingBuffer[T] {
	return l.activeRing()
}

// Write appends a record to the active ring (producer only). If the
// active ring is full, the caller must invoke SwapActive before retrying
// or apply a backpressure drop policy (spec §4.5).
func (l *Lane[T]) Write(rec *T) error {
	if err := l.activeRing().Write(rec); err != nil {
		return err
	}
	l.Counters.Written.AddAcqRel(1)
	return nil
}

// SwapActive implements the swap protocol of spec §4.2:
//  1. pop an empty ring from the free queue (PoolExhausted if none);
//  2. publish it as the new active index;
//  3. push the stale (now full) index to the submit queue;
//  4. bump the swap counter.
func (l *Lane[T]) SwapActive() error {
	freeIdx, err := l.free.Pop()
	if err != nil {
		l.Counters.PoolExhaustions.AddAcqRel(1)
		return adaerr.ErrWouldBlock
	}

	staleIdx := uint32(l.activeIdx.LoadRelaxed())
	l.activeIdx.StoreRelease(uint64(freeIdx))

	if err := l.submit.Push(staleIdx); err != nil {
		// Submit queue sized to ring count; this cannot happen under the
		// ownership invariant (at most ringCount-1 rings can be in flight
		// to the drain at once). Surface it rather than silently drop.
		return adaerr.New(adaerr.State, "lane.swap_active", err)
	}

	l.Counters.Swaps.AddAcqRel(1)
	return nil
}

// TakeRing pops a full ring index from the submit queue (drain only).
// Returns adaerr.ErrWouldBlock if nothing has been submitted.
func (l *Lane[T]) TakeRing() (uint32, error) {
	return l.submit.Pop()
}

// Ring returns the ring at idx, for the drain worker to read out after
// TakeRing.
func (l *Lane[T]) Ring(idx uint32) *ring.RingBuffer[T] {
	return l.rings[idx]
}

// ReturnRing pushes a now-empty ring index back to the free queue
// (drain only), after the drain has fully read it out.
func (l *Lane[T]) ReturnRing(idx uint32) error {
	return l.free.Push(idx)
}

// RingCount returns the number of rings in the pool.
func (l *Lane[T]) RingCount() int { return len(l.rings) }

// FreeRings reports a snapshot of the free queue's depth: the
// backpressure.PoolStatus.FreeRings input for this lane (spec §4.5).
func (l *Lane[T]) FreeRings() int { return l.free.Len() }

// DropOldestFromActive discards the oldest buffered record in the active
// ring to make room without a swap, the drop-oldest policy's mechanism
// under pool exhaustion (spec §4.5). Reports whether a record was
// actually discarded.
func (l *Lane[T]) DropOldestFromActive() bool {
	if !l.activeRing().DropOldest() {
		return false
	}
	l.Counters.Written.Add(^uint64(0)) // -1: the discarded record was already counted as written
	l.Counters.Dropped.AddAcqRel(1)
	return true
}

// BufferedRecords sums the records currently sitting in every ring of the
// pool (active, submitted, and consumer-held), an approximation of
// "events in flight" consulted by the shutdown summary (spec §4.10).
func (l *Lane[T]) BufferedRecords() int {
	n := 0
	for _, r := range l.rings {
		n += r.Len()
	}
	return n
}

// MarkEvent sets the lane's marked_event_seen flag (detail lane only;
// consulted cheaply by the selective-persistence controller, spec §4.3).
func (l *Lane[T]) MarkEvent() { l.markedEventSeen.StoreRelease(true) }

// ClearMarkedEvent resets the marked_event_seen flag.
func (l *Lane[T]) ClearMarkedEvent() { l.markedEventSeen.StoreRelease(false) }

// HasMarkedEvent reports the marked_event_seen flag.
func (l *Lane[T]) HasMarkedEvent() bool { return l.markedEventSeen.LoadAcquire() }

// IndexLane is the concrete instantiation used for a thread's index
// events (4 rings per spec §3).
type IndexLane = Lane[event.IndexEvent]

// DetailLane is the concrete instantiation used for a thread's detail
// events (2 rings per spec §3).
type DetailLane = Lane[event.DetailRecord]

const (
	// IndexRingCount is R for the index lane (spec §3).
	IndexRingCount = 4
	// DetailRingCount is R for the detail lane (spec §3).
	DetailRingCount = 2
)

// NewIndexLane creates a 4-ring index lane with the given per-ring
// record capacity.
func NewIndexLane(ringCapacity int) *IndexLane {
	return New[event.IndexEvent](IndexRingCount, ringCapacity)
}

// NewDetailLane creates a 2-ring detail lane with the given per-ring
// record capacity.
func NewDetailLane(ringCapacity int) *DetailLane {
	return New[event.DetailRecord](DetailRingCount, ringCapacity)
}
