// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package backpressure implements the per-thread exhaustion state machine
// and drop policies described in spec §4.5 (component C5).
package backpressure

import (
	"time"

	"code.hybscloud.com/atomix"
)

// State is the backpressure controller's current regime.
type State int32

const (
	Normal State = iota
	Pressure
	Dropping
	Recovery
)

func (s State) String() string {
	switch s {
	case Normal:
		return "normal"
	case Pressure:
		return "pressure"
	case Dropping:
		return "dropping"
	case Recovery:
		return "recovery"
	default:
		return "unknown"
	}
}

// Thresholds configures the transition points of the state machine
// (spec §4.5 defaults: pressure 25%, recovery 50%, stability 1s).
type Thresholds struct {
	PressurePct     int
	RecoveryPct     int
	StabilityPeriod time.Duration
}

// DefaultThresholds returns the spec-documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PressurePct:     25,
		RecoveryPct:     50,
		StabilityPeriod: time.Second,
	}
}

// PoolStatus is the snapshot the producer reads off its lane's ring pool
// before calling CheckExhaustion.
type PoolStatus struct {
	FreeRings  int
	TotalRings int
}

func (p PoolStatus) freePct() int {
	if p.TotalRings == 0 {
		return 0
	}
	return 100 * p.FreeRings / p.TotalRings
}

// Controller is the per-thread, per-lane backpressure state machine.
// Exactly one producer goroutine calls CheckExhaustion per lane; the
// drain worker may concurrently read Current for observability, hence the
// acquire/release ordering on state and timestamps (spec §4.5: "relaxed
// ordering for counters and acquire/release on state and timestamps").
type Controller struct {
	thresholds Thresholds

	state      atomix.Int32
	lastDropNs atomix.Int64

	EventsDropped atomix.Uint64
	BytesDropped  atomix.Uint64
}

// New creates a controller in the Normal state with the given thresholds.
func New(thresholds Thresholds) *Controller {
	return &Controller{thresholds: thresholds}
}

// Current returns the controller's state (acquire-ordered).
func (c *Controller) Current() State {
	return State(c.state.LoadAcquire())
}

// CheckExhaustion runs the transition table of spec §4.5 against the
// current pool snapshot and returns true iff the caller must apply a
// drop policy before writing.
func (c *Controller) CheckExhaustion(pool PoolStatus, nowNs int64) bool {
	freePct := pool.freePct()
	cur := State(c.state.LoadAcquire())

	var next State
	switch cur {
	case Normal:
		next = Normal
		if freePct < c.thresholds.PressurePct {
			next = Pressure
		}
	case Pressure:
		next = Pressure
		if pool.FreeRings == 0 {
			next = Dropping
		} else if freePct > c.thresholds.RecoveryPct {
			next = Normal
		}
	case Dropping:
		next = Dropping
		if pool.FreeRings > 0 {
			next = Recovery
		}
	case Recovery:
		next = Recovery
		if pool.FreeRings == 0 {
			next = Dropping
		} else if freePct > c.thresholds.RecoveryPct &&
			nowNs-c.lastDropNs.LoadAcquire() > int64(c.thresholds.StabilityPeriod) {
			next = Normal
		}
	default:
		next = Normal
	}

	if next != cur {
		// Strong CAS to prevent duplicate transitions under concurrent
		// observers (spec §4.5).
		c.state.CompareAndSwapAcqRel(int32(cur), int32(next))
	}

	return next == Dropping || next == Pressure && pool.FreeRings == 0
}

// RecordDrop credits the drop counters (acquire/release adds) and stamps
// last_drop_ns with a release store.
func (c *Controller) RecordDrop(eventBytes int, nowNs int64) {
	c.EventsDropped.AddAcqRel(1)
	c.BytesDropped.AddAcqRel(uint64(eventBytes))
	c.lastDropNs.StoreRelease(nowNs)
}
