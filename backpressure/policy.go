// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package backpressure

import "code.hybscloud.com/adatrace/event"

// DropPolicy decides, once a lane is in the Dropping state, whether a
// given event should be discarded rather than written (spec §4.5/§9).
type DropPolicy interface {
	ShouldDrop(hdr event.IndexEvent, state State) bool
}

// DropOldestPolicy is the drop-oldest policy: the caller evicts the oldest
// buffered record from the active ring (RingBuffer.DropOldest) to make
// room, rather than ever rejecting the newest event.
type DropOldestPolicy struct{}

// ShouldDrop always reports false: drop-oldest never rejects the new
// event itself, it makes room for it instead.
func (DropOldestPolicy) ShouldDrop(event.IndexEvent, State) bool { return false }

// DropNewestPolicy rejects the incoming event outright whenever the
// controller reports Dropping.
type DropNewestPolicy struct{}

// ShouldDrop reports true whenever state is Dropping.
func (DropNewestPolicy) ShouldDrop(_ event.IndexEvent, state State) bool {
	return state == Dropping
}

// PriorityDropPolicy is the drop-by-priority stub (spec §9, Open
// Question 9(b)): the source declares a priority-aware drop function but
// never specifies the priority metric. Until one is specified this
// always rejects, the deterministic default spec §9 calls for.
type PriorityDropPolicy struct{}

// ShouldDrop always returns true. Extension point: a real priority
// function would inspect hdr (e.g. EventKind, CallDepth) against some
// per-thread priority table before deciding.
func (PriorityDropPolicy) ShouldDrop(event.IndexEvent, State) bool { return true }
