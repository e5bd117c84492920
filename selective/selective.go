// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package selective implements the per-thread selective-persistence
// controller described in spec §4.7 (component C7): a rolling window
// over a detail lane, gated on the marking policy and a mark-seen flag,
// journaled to window_metadata.jsonl.
package selective

import (
	"encoding/json"
	"io"
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/adatrace/adaerr"
	"code.hybscloud.com/adatrace/lane"
	"code.hybscloud.com/adatrace/marking"
)

// windowIDCounter allocates window_id values, monotonic and unique across
// every controller in the process (spec §3: "window_id:u64"; §4.7:
// "allocate window_id (monotonic)").
var windowIDCounter atomix.Uint64

// Window is one rolling window's final snapshot, also the JSON-Lines
// record shape written to window_metadata.jsonl (spec §4.7).
type Window struct {
	WindowID      uint64 `json:"window_id"`
	ThreadID      uint32 `json:"thread_id"`
	StartNs       uint64 `json:"start_ns"`
	EndNs         uint64 `json:"end_ns"`
	TotalEvents   uint64 `json:"total_events"`
	MarkedEvents  uint64 `json:"marked_events"`
	FirstMarkNs   uint64 `json:"first_mark_ns"`
	MarkSeen      bool   `json:"mark_seen"`
}

// Probe is re-exported so callers need not import package marking
// directly for the common case.
type Probe = marking.Probe

// Controller is the per-thread detail-lane selective-persistence state
// machine. A single producer goroutine drives MarkEvent/StartNewWindow;
// the drain worker or a maintenance goroutine may call ShouldDump.
type Controller struct {
	mu sync.Mutex

	threadID uint32
	policy   *marking.Policy
	detail   *lane.DetailLane

	windowID     uint64
	startNs      uint64
	totalEvents  uint64
	markedEvents uint64
	firstMarkNs  atomix.Uint64
	markedSeen   atomix.Bool
	lastEventNs  uint64

	WindowsDiscarded        atomix.Uint64
	SelectiveDumpsPerformed atomix.Uint64
	MetadataWriteFailures   atomix.Uint64
	EventsProcessed         atomix.Uint64
}

// New creates a controller bound to one thread's detail lane and
// marking policy.
func New(threadID uint32, policy *marking.Policy, detail *lane.DetailLane) *Controller {
	return &Controller{threadID: threadID, policy: policy, detail: detail}
}

// StartNewWindow allocates a monotonic window_id, resets counters, and
// clears marked_event_seen in both the controller and the lane
// (spec §4.7).
func (c *Controller) StartNewWindow(ts uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windowID = windowIDCounter.AddAcqRel(1)
	c.startNs = ts
	c.totalEvents = 0
	c.markedEvents = 0
	c.firstMarkNs.StoreRelease(0)
	c.markedSeen.StoreRelease(false)
	c.lastEventNs = ts
	c.detail.ClearMarkedEvent()
}

// MarkEvent processes one candidate event against the marking policy
// (spec §4.7).
func (c *Controller) MarkEvent(probe Probe, ts uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalEvents++
	c.lastEventNs = ts
	c.EventsProcessed.AddAcqRel(1)

	if !c.policy.Match(probe) {
		return
	}
	c.markedEvents++
	c.markedSeen.StoreRelease(true)
	c.firstMarkNs.CompareAndSwapAcqRel(0, ts)
	c.detail.MarkEvent()
}

// ShouldDump implements spec §4.7's should_dump: true iff the active
// detail ring is full AND marked_event_seen is set AND the lane's mark
// flag is set. If the ring is full but unmarked, the window is
// discarded in place (counters reset, mark flags cleared) and false is
// returned.
func (c *Controller) ShouldDump() bool {
	ringFull := c.detail.GetActiveRingHeader().Free() == 0
	if !ringFull {
		return false
	}
	if c.markedSeen.LoadAcquire() && c.detail.HasMarkedEvent() {
		return true
	}

	c.mu.Lock()
	c.WindowsDiscarded.AddAcqRel(1)
	c.markedSeen.StoreRelease(false)
	c.markedEvents = 0
	c.firstMarkNs.StoreRelease(0)
	c.mu.Unlock()
	c.detail.ClearMarkedEvent()
	return false
}

// CloseWindowForDump finalizes end_ns and snapshots the window into out
// (spec §4.7).
func (c *Controller) CloseWindowForDump(ts uint64, out *Window) {
	c.mu.Lock()
	defer c.mu.Unlock()
	endNs := ts
	if c.lastEventNs > endNs {
		endNs = c.lastEventNs
	}
	*out = Window{
		WindowID:     c.windowID,
		ThreadID:     c.threadID,
		StartNs:      c.startNs,
		EndNs:        endNs,
		TotalEvents:  c.totalEvents,
		MarkedEvents: c.markedEvents,
		FirstMarkNs:  c.firstMarkNs.LoadAcquire(),
		MarkSeen:     c.markedSeen.LoadAcquire(),
	}
}

// PerformSelectiveSwap asks the lane's ring pool to swap the active ring
// so the drain receives it; fails with a State error if no mark was
// seen (spec §4.7).
func (c *Controller) PerformSelectiveSwap() error {
	if !c.markedSeen.LoadAcquire() {
		return adaerr.New(adaerr.State, "selective.perform_selective_swap", nil)
	}
	if err := c.detail.SwapActive(); err != nil {
		return err
	}
	return nil
}

// WriteWindowMetadata appends one JSON-Lines record for window to w
// (spec §4.7). An I/O failure increments MetadataWriteFailures and
// returns an IOFailure error but does not abort the session.
func (c *Controller) WriteWindowMetadata(window Window, w io.Writer) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(window); err != nil {
		c.MetadataWriteFailures.AddAcqRel(1)
		return adaerr.New(adaerr.IOFailure, "selective.write_window_metadata", err)
	}
	return nil
}

// MarkDumpComplete folds the completed window into running stats and
// starts a fresh window (spec §4.7).
func (c *Controller) MarkDumpComplete(nextStartNs uint64) {
	c.SelectiveDumpsPerformed.AddAcqRel(1)
	c.StartNewWindow(nextStartNs)
}
