// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/adatrace/adaerr"
)

// IndexQueue is a SPSC queue of ring indices, used as the submit and free
// queues of a Lane (package lane). This is the exact "buffer pool with
// index-based access" pattern the teacher library documents: a free list
// carrying slot indices rather than copies of the pooled objects
// themselves.
type IndexQueue struct {
	_          pad
	head       atomix.Uint64
	_          pad
	cachedTail uint64
	_          pad
	tail       atomix.Uint64
	_          pad
	cachedHead uint64
	_          pad
	buffer     []uint32
	mask       uint64
}

// NewIndexQueue creates a queue of the given capacity (rounded up to the
// next power of two; minimum 2).
func NewIndexQueue(capacity int) *IndexQueue {
	if capacity < 2 {
		panic("ring: capacity must be >= 2")
	}
	n := uint64(roundToPow2(capacity))
	return &IndexQueue{
		buffer: make([]uint32, n),
		mask:   n - 1,
	}
}

// Cap returns the queue capacity.
func (q *IndexQueue) Cap() int { return int(q.mask + 1) }

// Push enqueues a ring index (single writer only).
// Returns adaerr.ErrWouldBlock if the queue is full.
func (q *IndexQueue) Push(idx uint32) error {
	tail := q.tail.LoadRelaxed()
	if tail-q.cachedHead > q.mask {
		q.cachedHead = q.head.LoadAcquire()
		if tail-q.cachedHead > q.mask {
			return adaerr.ErrWouldBlock
		}
	}

	q.buffer[tail&q.mask] = idx
	q.tail.StoreRelease(tail + 1)
	return nil
}

// Pop dequeues a ring index (single reader only).
// Returns adaerr.ErrWouldBlock if the queue is empty.
func (q *IndexQueue) Pop() (uint32, error) {
	head := q.head.LoadRelaxed()
	if head >= q.cachedTail {
		q.cachedTail = q.tail.LoadAcquire()
		if head >= q.cachedTail {
			return 0, adaerr.ErrWouldBlock
		}
	}

	idx := q.buffer[head&q.mask]
	q.head.StoreRelease(head + 1)
	return idx, nil
}

// Len reports a snapshot of the queue depth, consulted by the
// backpressure controller's pool-exhaustion check (spec §4.5).
func (q *IndexQueue) Len() int {
	tail := q.tail.LoadAcquire()
	head := q.head.LoadAcquire()
	return int(tail - head)
}
