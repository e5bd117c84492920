// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ring implements the bounded, fixed-record single-producer
// single-consumer ring buffer described in spec §4.1 (component C1),
// adapted from the teacher library's Lamport ring buffer with cached
// index optimization (code.hybscloud.com/lfq's SPSC[T]).
package ring

import (
	"unsafe"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/adatrace/adaerr"
)

// ringMagic tags live ring headers; useful when a ring lives in shared
// memory and a reader needs to distinguish an initialized ring from a
// zeroed page.
const ringMagic uint32 = 0x52_49_4e_47 // "RING"

// RingBuffer is a bounded fixed-record SPSC queue. Exactly one producer
// goroutine may call Write and exactly one consumer goroutine may call
// Read/ReadAll/Len — that invariant is enforced by the owning Lane
// (package lane), not by this type.
//
// Spec §3 models write_pos/read_pos as atomic u32 counters. atomix does
// not expose a Uint32 type (only Bool/Int32/Int64/Uint64/Uintptr), so the
// atomic counters here use atomix.Uint64 — exactly as the teacher's own
// SPSC[T] head/tail fields do — while capacity/record_size stay u32 to
// match the wire-level header shape a reader expects.
type RingBuffer[T any] struct {
	magic    uint32
	capacity uint32 // power of two
	recordSz uint32

	_          pad
	writePos   atomix.Uint64 // producer writes here
	_          pad
	cachedRead uint64 // producer's cached view of readPos
	_          pad
	readPos     atomix.Uint64 // consumer reads from here
	_           pad
	cachedWrite uint64 // consumer's cached view of writePos
	_           pad

	buffer []T
	mask   uint64
}

// New creates a ring buffer of the given capacity (rounded up to the next
// power of two; minimum 2).
func New[T any](capacity int) *RingBuffer[T] {
	if capacity < 2 {
		panic("ring: capacity must be >= 2")
	}
	n := uint64(roundToPow2(capacity))
	var zero T
	return &RingBuffer[T]{
		magic:    ringMagic,
		capacity: uint32(n),
		recordSz: uint32(unsafe.Sizeof(zero)),
		buffer:   make([]T, n),
		mask:     n - 1,
	}
}

// Cap returns the ring's capacity in records.
func (r *RingBuffer[T]) Cap() int { return int(r.capacity) }

// RecordSize returns the fixed per-slot record width in bytes, as
// reported by unsafe.Sizeof at construction time.
func (r *RingBuffer[T]) RecordSize() int { return int(r.recordSz) }

// Len returns a snapshot of the number of records currently buffered.
// Since this may race with concurrent Write/Read, the value may already
// be stale when returned.
func (r *RingBuffer[T]) Len() int {
	w := r.writePos.LoadAcquire()
	rd := r.readPos.LoadAcquire()
	return int(w - rd)
}

// Free reports the snapshot number of free slots (see Len's caveat).
func (r *RingBuffer[T]) Free() int {
	return int(r.capacity) - r.Len()
}

// Write appends a record to the ring (producer only).
// Returns adaerr.ErrWouldBlock if the ring reports no space.
func (r *RingBuffer[T]) Write(rec *T) error {
	writePos := r.writePos.LoadRelaxed()
	if writePos-r.cachedRead >= uint64(r.capacity) {
		r.cachedRead = r.readPos.LoadAcquire()
		if writePos-r.cachedRead >= uint64(r.capacity) {
			return adaerr.ErrWouldBlock
		}
	}

	r.buffer[writePos&r.mask] = *rec
	r.writePos.StoreRelease(writePos + 1)
	return nil
}

// Read removes and returns a record (consumer only).
// Returns adaerr.ErrWouldBlock if the ring is empty.
func (r *RingBuffer[T]) Read() (T, error) {
	readPos := r.readPos.LoadRelaxed()
	if readPos >= r.cachedWrite {
		r.cachedWrite = r.writePos.LoadAcquire()
		if readPos >= r.cachedWrite {
			var zero T
			return zero, adaerr.ErrWouldBlock
		}
	}

	rec := r.buffer[readPos&r.mask]
	var zero T
	r.buffer[readPos&r.mask] = zero
	r.readPos.StoreRelease(readPos + 1)
	return rec, nil
}

// ReadAll drains every currently-visible record from the ring into dst,
// returning the records appended. Used by the drain worker (package
// drain) once a ring has been submitted and is known to have no further
// producer writes pending.
func (r *RingBuffer[T]) ReadAll(dst []T) []T {
	for {
		rec, err := r.Read()
		if err != nil {
			return dst
		}
		dst = append(dst, rec)
	}
}

// DropOldest advances the read position by one slot without copying the
// record out, crediting a dropped-event count at the call site. Used by
// the drop-oldest backpressure policy (package backpressure) to make
// room in the active ring without a swap.
func (r *RingBuffer[T]) DropOldest() bool {
	readPos := r.readPos.LoadRelaxed()
	writePos := r.writePos.LoadAcquire()
	if readPos >= writePos {
		return false
	}
	var zero T
	r.buffer[readPos&r.mask] = zero
	r.readPos.StoreRelease(readPos + 1)
	return true
}

// roundToPow2 rounds n up to the next power of 2.
func roundToPow2(n int) int {
	if n < 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// pad is cache line padding to prevent false sharing between the
// producer-owned and consumer-owned fields of a ring.
type pad [64]byte
