// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package shutdown implements the shutdown coordinator (spec §4.10,
// component C10): a signal handler plus wake pipe feeding an idempotent,
// multi-phase teardown that never loses an accepted event.
package shutdown

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/adatrace/adaerr"
	"code.hybscloud.com/adatrace/atf"
	"code.hybscloud.com/adatrace/drain"
	"code.hybscloud.com/adatrace/registry"
	"code.hybscloud.com/adatrace/session"
)

// Reason is why a shutdown was requested (spec §4.10: "records
// last_reason, last_signal").
type Reason int32

const (
	ReasonNone Reason = iota
	ReasonSignal
	ReasonTimer
	ReasonExplicit
)

func (r Reason) String() string {
	switch r {
	case ReasonSignal:
		return "signal"
	case ReasonTimer:
		return "timer"
	case ReasonExplicit:
		return "explicit"
	default:
		return "none"
	}
}

// Phase is execute_shutdown's progression (spec §4.10 steps 1-5).
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseSignalReceived
	PhaseStoppingThreads
	PhaseDraining
	PhaseFinalizing
	PhaseSummary
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseSignalReceived:
		return "signal_received"
	case PhaseStoppingThreads:
		return "stopping_threads"
	case PhaseDraining:
		return "draining"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseSummary:
		return "summary"
	case PhaseCompleted:
		return "completed"
	default:
		return "idle"
	}
}

// DrainJoinCeiling is the 1 s polling ceiling on waiting for the drain
// worker to report stopped (spec §4.10 step 2 / §5 "Drain join has a 1 s
// ceiling").
const DrainJoinCeiling = time.Second

// Summary is the end-of-session report the Summary phase logs through the
// coordinator's zap logger (spec §4.10 step 4).
type Summary struct {
	Reason          Reason
	Signal          int32
	RequestCount    uint64
	DurationMs      int64
	EventsProcessed uint64
	EventsInFlight  uint64
	BytesWritten    uint64
	FilesSynced     int
	ThreadsFlushed  int
	ThreadsActive   int
	DrainTimedOut   bool
}

// Coordinator owns the wake pipe, the request_shutdown at-most-once
// state, and the execute_shutdown phase machine.
type Coordinator struct {
	reg        *registry.Registry
	worker     *drain.Worker
	writers    map[uint32]*drain.ThreadWriters
	sessionDir string
	nowNs      func() uint64
	log        *zap.Logger
	startNs    uint64

	shutdownRequested atomix.Bool
	executeStarted    atomix.Bool
	shutdownCompleted atomix.Bool
	phase             atomix.Int32
	lastReason        atomix.Int32
	lastSignal        atomix.Int32
	requestCount      atomix.Uint64

	wakeReadFD  int
	wakeWriteFD int

	summaryMu sync.Mutex
	summary   Summary
}

// New creates a coordinator and its wake pipe. nowNs should be a cheap,
// low-frequency clock (clock.Cached.NowNs), matching the summary's own
// once-per-shutdown timestamp need.
func New(reg *registry.Registry, worker *drain.Worker, writers map[uint32]*drain.ThreadWriters, sessionDir string, nowNs func() uint64, log *zap.Logger) (*Coordinator, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, adaerr.New(adaerr.IOFailure, "shutdown.new", err)
	}
	_ = unix.SetNonblock(fds[0], true)
	_ = unix.SetNonblock(fds[1], true)

	c := &Coordinator{
		reg:         reg,
		worker:      worker,
		writers:     writers,
		sessionDir:  sessionDir,
		nowNs:       nowNs,
		log:         log,
		startNs:     nowNs(),
		wakeReadFD:  fds[0],
		wakeWriteFD: fds[1],
	}
	c.phase.StoreRelease(int32(PhaseIdle))
	return c, nil
}

// InstallSignalHandlers wires SIGINT/SIGTERM into request_shutdown.
//
// A C signal handler runs on the interrupted thread itself and may only
// touch atomics and call write(2) (spec §9: "Signal-handler safety").
// Go's signal.Notify already relocates delivery off any application
// thread onto a dedicated runtime-owned goroutine before user code ever
// runs, so the handler-safety constraint binds differently here: this
// goroutine still does nothing but record state and write the wake byte
// before any logging happens, matching the spirit of the constraint
// without needing a raw sigset mask of its own.
func (c *Coordinator) InstallSignalHandlers() {
	ch := make(chan os.Signal, 8)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range ch {
			c.RequestShutdown(ReasonSignal, sig)
		}
	}()
}

// RequestShutdown implements request_shutdown (spec §4.10): records the
// reason/signal, increments request_count unconditionally, writes the
// wake byte, and — only for the very first caller — advances the phase
// past Idle. Returns true iff this call was the first.
func (c *Coordinator) RequestShutdown(reason Reason, sig os.Signal) bool {
	first := c.shutdownRequested.CompareAndSwapAcqRel(false, true)

	c.lastReason.StoreRelease(int32(reason))
	c.lastSignal.StoreRelease(signalNumber(sig))
	c.requestCount.AddAcqRel(1)

	c.wake()

	if first {
		c.phase.StoreRelease(int32(PhaseSignalReceived))
	}
	return first
}

func signalNumber(sig os.Signal) int32 {
	if s, ok := sig.(syscall.Signal); ok {
		return int32(s)
	}
	return 0
}

// wake writes one byte to the wake pipe, best-effort (spec §4.10: "Writes
// one byte to a wake file descriptor to unblock the drain").
func (c *Coordinator) wake() {
	if c.wakeWriteFD <= 0 {
		return
	}
	var b [1]byte
	b[0] = 1
	_, _ = unix.Write(c.wakeWriteFD, b[:])
}

// WakeReadFD exposes the wake pipe's read end for a drain loop built
// around select/poll instead of Worker's internal channel.
func (c *Coordinator) WakeReadFD() int { return c.wakeReadFD }

// ShutdownRequested reports whether any RequestShutdown call has landed.
func (c *Coordinator) ShutdownRequested() bool { return c.shutdownRequested.LoadAcquire() }

// RequestCount reports how many RequestShutdown calls have landed.
func (c *Coordinator) RequestCount() uint64 { return c.requestCount.LoadAcquire() }

// LastReason reports the most recently recorded shutdown reason.
func (c *Coordinator) LastReason() Reason { return Reason(c.lastReason.LoadAcquire()) }

// Phase reports execute_shutdown's current phase.
func (c *Coordinator) Phase() Phase { return Phase(c.phase.LoadAcquire()) }

// ShutdownCompleted reports whether execute_shutdown has finished.
func (c *Coordinator) ShutdownCompleted() bool { return c.shutdownCompleted.LoadAcquire() }

// ExecuteShutdown runs the idempotent multi-phase teardown of spec
// §4.10 steps 1-5. Must be called on the main (non-signal) goroutine.
// A second call after completion is a no-op that returns the cached
// Summary from the first.
func (c *Coordinator) ExecuteShutdown() Summary {
	if !c.executeStarted.CompareAndSwapAcqRel(false, true) {
		c.summaryMu.Lock()
		defer c.summaryMu.Unlock()
		return c.summary
	}

	// 1. StoppingThreads.
	c.phase.StoreRelease(int32(PhaseStoppingThreads))
	threadsActive := int(c.reg.ActiveCount())
	c.reg.CloseRegistrations()
	c.reg.RequestShutdown()

	// 2. Draining.
	c.phase.StoreRelease(int32(PhaseDraining))
	c.worker.RequestStop()
	drainTimedOut := false
	if err := c.worker.WaitStopped(DrainJoinCeiling); err != nil {
		drainTimedOut = true
		c.log.Warn("drain did not stop within ceiling",
			zap.Duration("ceiling", DrainJoinCeiling))
	}

	var eventsInFlight uint64
	for i := 0; i < registry.MaxThreads; i++ {
		set := c.reg.ThreadAt(i)
		if set == nil || set.Index == nil {
			continue
		}
		eventsInFlight += uint64(set.Index.BufferedRecords())
		if set.Detail != nil {
			eventsInFlight += uint64(set.Detail.BufferedRecords())
		}
	}

	// 3. Finalizing.
	c.phase.StoreRelease(int32(PhaseFinalizing))
	var eventsProcessed, bytesWritten uint64
	filesSynced := 0
	threadsFlushed := 0
	timeStartNs, timeEndNs := c.startNs, c.nowNs()
	manifest := session.NewManifest(atf.ClockBootTime, timeStartNs, timeEndNs)
	for threadID, w := range c.writers {
		entry := session.ThreadManifestEntry{ThreadID: threadID}
		if w.Index != nil {
			if w.Detail != nil && w.Detail.HasEvents() {
				w.Index.SetDetailPresent()
			}
			if err := w.Index.Finalize(); err != nil {
				c.log.Error("index finalize failed", zap.Uint32("thread_id", threadID), zap.Error(err))
			} else {
				filesSynced++
			}
			entry.IndexEvents = w.Index.EventCount()
			eventsProcessed += entry.IndexEvents
			bytesWritten += w.Index.BytesWritten()
		}
		if w.Detail != nil {
			if err := w.Detail.Finalize(); err != nil {
				c.log.Error("detail finalize failed", zap.Uint32("thread_id", threadID), zap.Error(err))
			} else {
				filesSynced++
			}
			entry.DetailEvents = w.Detail.EventCount()
			entry.DetailPresent = entry.DetailEvents > 0
			bytesWritten += w.Detail.BytesWritten()
		}
		manifest.Threads = append(manifest.Threads, entry)
		threadsFlushed++
	}
	if c.sessionDir != "" {
		if err := session.WriteManifest(c.sessionDir, manifest); err != nil {
			c.log.Error("manifest write failed", zap.Error(err))
		}
	}

	// 4. Summary.
	c.phase.StoreRelease(int32(PhaseSummary))
	summary := Summary{
		Reason:          c.LastReason(),
		Signal:          c.lastSignal.LoadAcquire(),
		RequestCount:    c.RequestCount(),
		DurationMs:      int64(timeEndNs-timeStartNs) / int64(time.Millisecond),
		EventsProcessed: eventsProcessed,
		EventsInFlight:  eventsInFlight,
		BytesWritten:    bytesWritten,
		FilesSynced:     filesSynced,
		ThreadsFlushed:  threadsFlushed,
		ThreadsActive:   threadsActive,
		DrainTimedOut:   drainTimedOut,
	}
	c.log.Warn("adatrace session summary",
		zap.String("reason", summary.Reason.String()),
		zap.Int64("duration_ms", summary.DurationMs),
		zap.Uint64("events_processed", summary.EventsProcessed),
		zap.Uint64("events_in_flight", summary.EventsInFlight),
		zap.Uint64("bytes_written", summary.BytesWritten),
		zap.Int("files_synced", summary.FilesSynced),
		zap.Int("threads_flushed", summary.ThreadsFlushed),
		zap.Int("threads_active", summary.ThreadsActive),
		zap.Bool("drain_timed_out", summary.DrainTimedOut),
	)

	c.summaryMu.Lock()
	c.summary = summary
	c.summaryMu.Unlock()

	// 5. Completed.
	c.phase.StoreRelease(int32(PhaseCompleted))
	c.shutdownCompleted.StoreRelease(true)
	return summary
}
