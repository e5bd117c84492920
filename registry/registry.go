// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package registry implements the fixed-slot thread registry (spec §4.4,
// component C4): a bounded array of ThreadLaneSet slots claimed by CAS,
// enumerated by the single drain worker.
package registry

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/adatrace/atf"
	"code.hybscloud.com/adatrace/backpressure"
	"code.hybscloud.com/adatrace/lane"
	"code.hybscloud.com/adatrace/marking"
	"code.hybscloud.com/adatrace/selective"
)

// MaxThreads is the fixed slot count (spec §3/§4.4).
const MaxThreads = 64

// ThreadLaneSet bundles one index lane (4 rings) and one detail lane
// (2 rings) for a single registered thread (spec §4.3), plus the
// per-thread sequence counters, backpressure controllers, drop policy,
// and selective-persistence controller a producer call consults on
// every event (spec §3 ThreadLaneSet, §4.5, §4.7, §4.8).
type ThreadLaneSet struct {
	ThreadID  uint32
	SlotIndex uint32
	Index     *lane.IndexLane
	Detail    *lane.DetailLane

	EventsGenerated atomix.Uint64
	LastEventTs     atomix.Uint64

	Counters          atf.SequenceCounters
	IndexBackpressure *backpressure.Controller
	DetailBackpressure *backpressure.Controller
	DropPolicy        backpressure.DropPolicy
	Marking           *marking.Policy
	Selective         *selective.Controller

	active        atomix.Bool
	initialized   atomix.Bool
	indexRingCap  int
	detailRingCap int
}

// init lazily constructs the lane set the first time a slot is claimed.
// Re-registration in the same session (active false→true again) reuses
// the existing lanes rather than reallocating, matching spec §4.4's
// "idempotent if already initialized in this session".
func (s *ThreadLaneSet) init(thresholds backpressure.Thresholds, dropPolicy backpressure.DropPolicy, policy *marking.Policy) {
	if s.initialized.LoadAcquire() {
		return
	}
	s.Index = lane.NewIndexLane(s.indexRingCap)
	s.Detail = lane.NewDetailLane(s.detailRingCap)
	s.IndexBackpressure = backpressure.New(thresholds)
	s.DetailBackpressure = backpressure.New(thresholds)
	s.DropPolicy = dropPolicy
	s.Marking = policy
	if policy != nil {
		s.Selective = selective.New(s.ThreadID, policy, s.Detail)
	}
	s.initialized.StoreRelease(true)
}

// IsActive reports whether the slot currently belongs to a registered
// thread. The drain worker must tolerate this flipping to false mid
// enumeration and still drain any rings already submitted (spec §4.4).
func (s *ThreadLaneSet) IsActive() bool { return s.active.LoadAcquire() }

// Registry is the fixed MAX_THREADS slot array plus session-wide counters
// (spec §3's ThreadRegistry entity).
type Registry struct {
	slots [MaxThreads]ThreadLaneSet

	threadCount           atomix.Int64
	acceptingRegistrations atomix.Bool
	shutdownRequested     atomix.Bool

	indexRingCap  int
	detailRingCap int
	thresholds    backpressure.Thresholds
	dropPolicy    backpressure.DropPolicy
	markingPolicy *marking.Policy
}

// Option configures ring capacities at registry construction.
type Option func(*Registry)

// WithRingCapacities overrides the per-ring record capacity used for both
// the index and detail lanes of every slot. Defaults are chosen by New.
func WithRingCapacities(indexCap, detailCap int) Option {
	return func(r *Registry) {
		r.indexRingCap = indexCap
		r.detailRingCap = detailCap
	}
}

// WithBackpressureThresholds overrides the Normal/Pressure/Dropping/
// Recovery thresholds every slot's backpressure controllers are built
// with (spec §4.5 defaults otherwise).
func WithBackpressureThresholds(t backpressure.Thresholds) Option {
	return func(r *Registry) { r.thresholds = t }
}

// WithDropPolicy overrides the drop policy every slot applies once its
// backpressure controller reports Dropping (spec §4.5; default
// DropOldestPolicy).
func WithDropPolicy(p backpressure.DropPolicy) Option {
	return func(r *Registry) { r.dropPolicy = p }
}

// WithMarkingPolicy installs the marking policy every slot's
// selective-persistence controller matches probes against (spec §4.6/
// §4.7). A nil policy (the default) leaves selective persistence
// disabled for the session.
func WithMarkingPolicy(p *marking.Policy) Option {
	return func(r *Registry) { r.markingPolicy = p }
}

// New creates a registry with registrations open and no threads claimed.
func New(opts ...Option) *Registry {
	r := &Registry{
		indexRingCap:  1024,
		detailRingCap: 256,
		thresholds:    backpressure.DefaultThresholds(),
		dropPolicy:    backpressure.DropOldestPolicy{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.acceptingRegistrations.StoreRelease(true)
	for i := range r.slots {
		r.slots[i].indexRingCap = r.indexRingCap
		r.slots[i].detailRingCap = r.detailRingCap
	}
	return r
}

// Register performs the linear-scan CAS-claim documented in spec §4.4:
// find the lowest-indexed inactive slot, CAS its active flag false→true,
// lazily initialize its lanes, and return it. Returns nil if every slot
// is taken (spec's RegistryFull edge case: "producer becomes untracked;
// no crash").
func (r *Registry) Register(threadID uint32) *ThreadLaneSet {
	if !r.acceptingRegistrations.LoadAcquire() {
		return nil
	}
	for i := range r.slots {
		slot := &r.slots[i]
		if slot.active.CompareAndSwapAcqRel(false, true) {
			slot.ThreadID = threadID
			slot.SlotIndex = uint32(i)
			slot.init(r.thresholds, r.dropPolicy, r.markingPolicy)
			r.threadCount.Add(1)
			return slot
		}
	}
	return nil
}

// Unregister releases a slot (active→false with release ordering). Lane
// content is preserved so the drain worker can consume residual rings
// (spec §4.4).
func (r *Registry) Unregister(set *ThreadLaneSet) {
	if set == nil {
		return
	}
	set.active.StoreRelease(false)
	r.threadCount.Add(-1)
}

// ActiveCount returns the current thread_count snapshot.
func (r *Registry) ActiveCount() int64 { return r.threadCount.Load() }

// ThreadAt returns the slot at index i for drain-side enumeration, or nil
// if i is out of range. The caller must tolerate IsActive() becoming
// false concurrently (spec §4.4).
func (r *Registry) ThreadAt(i int) *ThreadLaneSet {
	if i < 0 || i >= MaxThreads {
		return nil
	}
	return &r.slots[i]
}

// CloseRegistrations stops accepting new Register calls (session
// boundary / shutdown StoppingThreads phase).
func (r *Registry) CloseRegistrations() {
	r.acceptingRegistrations.StoreRelease(false)
}

// ReopenRegistrations allows Register to succeed again after
// CloseRegistrations. A slot freed by Unregister is claimable by the next
// Register whenever registrations are open, closed in between or not.
func (r *Registry) ReopenRegistrations() {
	r.acceptingRegistrations.StoreRelease(true)
}

// RequestShutdown flags the registry as shutting down; drain and
// producer loops consult this to begin the shutdown phases (spec §4.10).
func (r *Registry) RequestShutdown() { r.shutdownRequested.StoreRelease(true) }

// ShutdownRequested reports whether RequestShutdown has been called.
func (r *Registry) ShutdownRequested() bool { return r.shutdownRequested.LoadAcquire() }
