// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package session implements the on-disk session directory layout
// (spec §6) and the shared control block (spec §6): process/flight
// state, roll windows, and the registry-mode progression deferred by
// Open Question 9(a).
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// Dir allocates and returns the session directory path
// ada_traces/session_<UTC timestamp>_<uuid8>/ (spec §6), grounded on
// the UUID-seeded naming scheme SPEC_FULL.md documents for collision-free
// session IDs under concurrent runs.
func Dir(root string, now time.Time) string {
	id := uuid.New().String()[:8]
	name := fmt.Sprintf("session_%s_%s", now.UTC().Format("20060102_150405"), id)
	return filepath.Join(root, "ada_traces", name)
}

// ThreadDir returns the per-thread subdirectory under a pid directory
// (spec §6: "pid_<PID>/thread_<i>/").
func ThreadDir(sessionDir string, pid, threadIdx int) string {
	return filepath.Join(sessionDir, fmt.Sprintf("pid_%d", pid), fmt.Sprintf("thread_%d", threadIdx))
}

// MkdirAll creates dir and all parents with the session directory's
// standard permissions.
func MkdirAll(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// ProcessState mirrors the control block's process_state field.
type ProcessState int32

const (
	ProcessStarting ProcessState = iota
	ProcessRunning
	ProcessShuttingDown
	ProcessStopped
)

// FlightState mirrors the control block's flight_state field: whether
// the session is still accepting new events.
type FlightState int32

const (
	FlightArmed FlightState = iota
	FlightRecording
	FlightLanded
)

// RegistryMode is the registry-mode progression of Open Question 9(a):
// global-only → dual-write → per-thread-only, with heartbeat-based
// fallback. The exact capture-rate thresholds that would auto-demote a
// mode are left uncalibrated by the source spec, so transitions here are
// manual (Promote/Demote), not automatic.
type RegistryMode int32

const (
	RegistryGlobalOnly RegistryMode = iota
	RegistryDualWrite
	RegistryPerThreadOnly
)

// ControlBlock is the shared-memory control segment described in
// spec §6: `{process_state, flight_state, pre_roll_ms, post_roll_ms,
// trigger_time, index_lane_enabled, detail_lane_enabled,
// capture_stack_snapshot, registry_ready, registry_epoch, registry_mode,
// heartbeat_ns, fallback_events}`.
//
// This module treats the shared-memory segment itself (naming,
// allocation, cross-process mapping) as the out-of-scope collaborator
// spec §1 names; ControlBlock models only the byte-exact record that
// would live inside it.
type ControlBlock struct {
	ProcessState atomix.Int32
	FlightState  atomix.Int32

	PreRollMs  uint32
	PostRollMs uint32
	TriggerTimeNs uint64

	IndexLaneEnabled     atomix.Bool
	DetailLaneEnabled    atomix.Bool
	CaptureStackSnapshot atomix.Bool

	RegistryReady atomix.Bool
	RegistryEpoch atomix.Uint64
	registryMode  atomix.Int32

	HeartbeatNs    atomix.Uint64
	FallbackEvents atomix.Uint64
}

// NewControlBlock creates a control block in the starting state with
// registry mode GlobalOnly, matching a fresh session before any thread
// has registered.
func NewControlBlock(preRollMs, postRollMs uint32) *ControlBlock {
	cb := &ControlBlock{PreRollMs: preRollMs, PostRollMs: postRollMs}
	cb.ProcessState.StoreRelease(int32(ProcessStarting))
	cb.FlightState.StoreRelease(int32(FlightArmed))
	cb.registryMode.StoreRelease(int32(RegistryGlobalOnly))
	return cb
}

// Mode returns the current registry mode.
func (cb *ControlBlock) Mode() RegistryMode {
	return RegistryMode(cb.registryMode.LoadAcquire())
}

// Promote advances the registry mode one step
// (GlobalOnly → DualWrite → PerThreadOnly); a call at PerThreadOnly is a
// no-op. Manual only, per Open Question 9(a)'s deferred auto-calibration.
func (cb *ControlBlock) Promote() {
	sw := spin.Wait{}
	for {
		cur := cb.registryMode.LoadAcquire()
		if cur >= int32(RegistryPerThreadOnly) {
			return
		}
		if cb.registryMode.CompareAndSwapAcqRel(cur, cur+1) {
			return
		}
		sw.Once()
	}
}

// Demote steps the registry mode back one step
// (PerThreadOnly → DualWrite → GlobalOnly); a call at GlobalOnly is a
// no-op.
func (cb *ControlBlock) Demote() {
	sw := spin.Wait{}
	for {
		cur := cb.registryMode.LoadAcquire()
		if cur <= int32(RegistryGlobalOnly) {
			return
		}
		if cb.registryMode.CompareAndSwapAcqRel(cur, cur-1) {
			return
		}
		sw.Once()
	}
}

// Heartbeat publishes a new heartbeat timestamp (drain worker only,
// spec §4.9 step 2).
func (cb *ControlBlock) Heartbeat(nowNs uint64) {
	cb.HeartbeatNs.StoreRelease(nowNs)
}
