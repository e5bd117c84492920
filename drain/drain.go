// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package drain implements the single background drain worker
// (spec §4.9, component C9): the only consumer for every per-thread
// ring, and the sole writer of detail/index files.
package drain

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/adatrace/adaerr"
	"code.hybscloud.com/adatrace/atf"
	"code.hybscloud.com/adatrace/clock"
	"code.hybscloud.com/adatrace/lane"
	"code.hybscloud.com/adatrace/registry"
	"code.hybscloud.com/adatrace/session"
)

// PollInterval is the drain's maximum sleep between wake-pipe signals
// (spec §4.9: "polling interval (≤10 ms)").
const PollInterval = 10 * time.Millisecond

// ThreadWriters bundles the two ATF writers a registry slot's lanes
// drain into.
type ThreadWriters struct {
	Index  *atf.IndexWriter
	Detail *atf.DetailWriter
}

// State is the drain worker's externally observable run state, mirroring
// spec §4.10's DRAIN_STATE_STOPPED handshake with the shutdown
// coordinator.
type State int32

const (
	StateRunning State = iota
	StateStopRequested
	StateStopped
)

// Worker is the single background goroutine that iterates the registry,
// moves full rings to writers, returns empties, and publishes a
// heartbeat (spec §4.9).
type Worker struct {
	reg     *registry.Registry
	writers map[uint32]*ThreadWriters
	cb      *session.ControlBlock
	clk     *clock.Cached
	log     *zap.Logger

	wake  chan struct{}
	state atomix.Int32

	recordsDrained atomix.Uint64
}

// New creates a drain worker over reg, using writers[threadID] to find
// the ATF writer pair for a given thread slot.
func New(reg *registry.Registry, writers map[uint32]*ThreadWriters, cb *session.ControlBlock, clk *clock.Cached, log *zap.Logger) *Worker {
	return &Worker{
		reg:     reg,
		writers: writers,
		cb:      cb,
		clk:     clk,
		log:     log,
		wake:    make(chan struct{}, 1),
	}
}

// Wake unblocks a sleeping Run loop (spec §4.9 step 3: "Sleep until
// woken by the wake pipe or a polling interval elapses").
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// RequestStop asks Run to terminate after emptying all submit queues
// (spec §4.10 Draining phase).
func (w *Worker) RequestStop() {
	w.state.StoreRelease(int32(StateStopRequested))
	w.Wake()
}

// State reports the worker's current run state.
func (w *Worker) State() State { return State(w.state.LoadAcquire()) }

// RecordsDrained returns the lifetime count of records moved from rings
// to writers, for observability (spec §4.9 step 2).
func (w *Worker) RecordsDrained() uint64 { return w.recordsDrained.LoadAcquire() }

// Run is the drain loop (spec §4.9). It returns once a stop has been
// requested and every submit queue has been observed empty in the same
// pass.
func (w *Worker) Run() {
	for {
		drainedAny := w.passOnce()

		w.cb.Heartbeat(w.clk.NowNs())

		stopRequested := w.State() == StateStopRequested
		if stopRequested && !drainedAny {
			w.state.StoreRelease(int32(StateStopped))
			return
		}

		if drainedAny {
			continue // immediately look for more work
		}

		select {
		case <-w.wake:
		case <-time.After(PollInterval):
		}
	}
}

// passOnce drains every submitted ring across every registered thread
// slot once, returning whether any record was moved.
func (w *Worker) passOnce() bool {
	drainedAny := false
	for i := 0; i < registry.MaxThreads; i++ {
		set := w.reg.ThreadAt(i)
		if set.Index == nil && set.Detail == nil {
			continue // never initialized; nothing to drain
		}
		writers := w.writers[set.ThreadID]
		if writers == nil {
			continue
		}
		if w.drainIndexLane(set.ThreadID, set.Index, writers.Index) {
			drainedAny = true
		}
		if w.drainDetailLane(set.ThreadID, set.Detail, writers.Detail) {
			drainedAny = true
		}
	}
	return drainedAny
}

func (w *Worker) drainIndexLane(threadID uint32, l *lane.IndexLane, writer *atf.IndexWriter) bool {
	if l == nil || writer == nil {
		return false
	}
	any := false
	for {
		idx, err := l.TakeRing()
		if err != nil {
			break
		}
		any = true
		recs := l.Ring(idx).ReadAll(nil)
		for _, rec := range recs {
			if err := writer.Append(rec); err != nil {
				w.log.Warn("index append failed", zap.Uint32("thread_id", threadID), zap.Error(err))
			}
		}
		w.recordsDrained.AddAcqRel(uint64(len(recs)))
		if err := writer.Flush(); err != nil {
			w.log.Warn("index flush failed", zap.Uint32("thread_id", threadID), zap.Error(err))
		}
		if err := l.ReturnRing(idx); err != nil {
			w.log.Error("return index ring failed", zap.Uint32("thread_id", threadID), zap.Error(err))
		}
	}
	return any
}

func (w *Worker) drainDetailLane(threadID uint32, l *lane.DetailLane, writer *atf.DetailWriter) bool {
	if l == nil || writer == nil {
		return false
	}
	any := false
	for {
		idx, err := l.TakeRing()
		if err != nil {
			break
		}
		any = true
		recs := l.Ring(idx).ReadAll(nil)
		for _, rec := range recs {
			payload := rec.Payload[:rec.PayloadLen()]
			if err := writer.Append(rec.Header, payload); err != nil {
				w.log.Warn("detail append failed", zap.Uint32("thread_id", threadID), zap.Error(err))
			}
		}
		w.recordsDrained.AddAcqRel(uint64(len(recs)))
		if err := writer.Flush(); err != nil {
			w.log.Warn("detail flush failed", zap.Uint32("thread_id", threadID), zap.Error(err))
		}
		if err := l.ReturnRing(idx); err != nil {
			w.log.Error("return detail ring failed", zap.Uint32("thread_id", threadID), zap.Error(err))
		}
	}
	return any
}

// errStopped is the cause WaitStopped wraps into its ShutdownTimeout error
// when the worker has not reached StateStopped by the deadline; Run itself
// never returns it.
var errStopped = errors.New("drain: worker not stopped")

// WaitStopped blocks (polling at 1ms, per spec §4.10's drain-join
// ceiling) until the worker reports StateStopped or the deadline elapses.
func (w *Worker) WaitStopped(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if w.State() == StateStopped {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	if w.State() == StateStopped {
		return nil
	}
	return adaerr.New(adaerr.ShutdownTimeout, "drain.wait_stopped", errStopped)
}
