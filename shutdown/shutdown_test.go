// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shutdown_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"code.hybscloud.com/adatrace/atf"
	"code.hybscloud.com/adatrace/clock"
	"code.hybscloud.com/adatrace/drain"
	"code.hybscloud.com/adatrace/event"
	"code.hybscloud.com/adatrace/registry"
	"code.hybscloud.com/adatrace/session"
	"code.hybscloud.com/adatrace/shutdown"
)

func newTestCoordinator(t *testing.T) (*shutdown.Coordinator, *drain.Worker) {
	t.Helper()
	dir := t.TempDir()

	reg := registry.New(registry.WithRingCapacities(4, 4))
	set := reg.Register(1)
	if set == nil {
		t.Fatal("Register: got nil")
	}

	indexWriter, err := atf.NewIndexWriter(dir, 1)
	if err != nil {
		t.Fatalf("NewIndexWriter: %v", err)
	}
	detailWriter, err := atf.NewDetailWriter(dir, 1)
	if err != nil {
		t.Fatalf("NewDetailWriter: %v", err)
	}
	ev := event.IndexEvent{FunctionID: 1, TimestampNs: 1}
	if err := set.Index.Write(&ev); err != nil {
		t.Fatalf("Write: %v", err)
	}

	writers := map[uint32]*drain.ThreadWriters{1: {Index: indexWriter, Detail: detailWriter}}

	clk := clock.NewCached(time.Millisecond)
	t.Cleanup(clk.Stop)

	w := drain.New(reg, writers, session.NewControlBlock(0, 0), clk, zap.NewNop())
	go w.Run()

	var counter atomic.Uint64
	counter.Store(1000)
	nowNs := func() uint64 { return counter.Add(1) }

	c, err := shutdown.New(reg, w, writers, dir, nowNs, zap.NewNop())
	if err != nil {
		t.Fatalf("shutdown.New: %v", err)
	}
	return c, w
}

func TestRequestShutdownAtMostOnce(t *testing.T) {
	c, w := newTestCoordinator(t)
	defer w.RequestStop()

	var wg sync.WaitGroup
	var firstCount atomic.Int32
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.RequestShutdown(shutdown.ReasonSignal, nil) {
				firstCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if firstCount.Load() != 1 {
		t.Fatalf("exactly one caller should observe first=true, got %d", firstCount.Load())
	}
	if c.RequestCount() != 10 {
		t.Fatalf("RequestCount: got %d, want 10", c.RequestCount())
	}
	if !c.ShutdownRequested() {
		t.Fatal("ShutdownRequested: want true after any RequestShutdown call")
	}
}

func TestExecuteShutdownIdempotent(t *testing.T) {
	c, _ := newTestCoordinator(t)
	c.RequestShutdown(shutdown.ReasonExplicit, nil)

	first := c.ExecuteShutdown()
	if !c.ShutdownCompleted() {
		t.Fatal("ShutdownCompleted: want true after ExecuteShutdown")
	}
	if c.Phase() != shutdown.PhaseCompleted {
		t.Fatalf("Phase: got %v, want PhaseCompleted", c.Phase())
	}
	if first.ThreadsFlushed != 1 {
		t.Fatalf("ThreadsFlushed: got %d, want 1", first.ThreadsFlushed)
	}

	second := c.ExecuteShutdown()
	if second != first {
		t.Fatalf("second ExecuteShutdown call must return the cached summary: got %+v, want %+v", second, first)
	}
}
